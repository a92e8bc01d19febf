package fuzzy

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"pharmacy-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Tier is the match strictness band a result falls into.
type Tier string

const (
	// TierExact requires zero value tolerance.
	TierExact Tier = "exact"

	// TierClose requires the value within the close tolerance percentage.
	TierClose Tier = "close"

	// TierFuzzy is the broadest band: value within the fuzzy tolerance, or
	// a text/identifier partial hit with no value proximity at all.
	TierFuzzy Tier = "fuzzy"
)

// Confidence weight constants, pinned in one place for reproducibility.
// value similarity contributes up to 0.4, text similarity up to 0.2, the tier
// bonus is 0.3/0.15/0.05 for exact/close/fuzzy, a date-pattern match adds
// 0.05 and a partial identifier match up to 0.1, capped at 1.0.
var (
	weightValue      = decimal.RequireFromString("0.4")
	weightText       = decimal.RequireFromString("0.2")
	bonusExact       = decimal.RequireFromString("0.3")
	bonusClose       = decimal.RequireFromString("0.15")
	bonusFuzzy       = decimal.RequireFromString("0.05")
	bonusDate        = decimal.RequireFromString("0.05")
	bonusIdentifier  = decimal.RequireFromString("0.1")
	bonusIdentPieces = decimal.RequireFromString("0.05")
	confidenceCap    = decimal.RequireFromString("1.0")
	oneHundred       = decimal.NewFromInt(100)
)

// Options configures the engine's tolerances and cutoffs.
type Options struct {
	// CloseTolerancePercent bounds the close tier (default 2, sensible
	// range 2-5).
	CloseTolerancePercent float64 `json:"close_tolerance_percent"`

	// FuzzyTolerancePercent bounds the fuzzy tier (default 10).
	FuzzyTolerancePercent float64 `json:"fuzzy_tolerance_percent"`

	// MinConfidence discards results scoring below it entirely
	// (default 0.3).
	MinConfidence float64 `json:"min_confidence"`

	// MaxSuggestions caps the advisory suggestion list (default 5).
	MaxSuggestions int `json:"max_suggestions"`
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		CloseTolerancePercent: 2.0,
		FuzzyTolerancePercent: 10.0,
		MinConfidence:         0.3,
		MaxSuggestions:        5,
	}
}

// Query is an operator search input broken into its comparable parts.
// A raw input like "150,00 15/01 venda joao" carries an amount, a date
// pattern and free text at once.
type Query struct {
	Raw        string
	Amount     decimal.Decimal
	HasAmount  bool
	Text       string
	Day        int // 0 when no date pattern present
	Month      int
	Identifier string // digit fragment, empty when none typed
}

var (
	datePattern   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/\d{2,4})?$`)
	amountPattern = regexp.MustCompile(`^\d+(?:[.,]\d+)*$`)
	digitsPattern = regexp.MustCompile(`^\d{4,}$`)
)

// ParseQuery tokenizes a raw operator query. The first numeric token becomes
// the amount, a dd/mm token becomes the date pattern, a run of four or more
// digits becomes an identifier fragment, and everything else is free text.
func ParseQuery(raw string) Query {
	q := Query{Raw: raw}

	var textParts []string
	for _, token := range strings.Fields(raw) {
		if m := datePattern.FindStringSubmatch(token); m != nil && q.Day == 0 {
			day := atoiSafe(m[1])
			month := atoiSafe(m[2])
			if day >= 1 && day <= 31 && month >= 1 && month <= 12 {
				q.Day = day
				q.Month = month
				continue
			}
		}

		if digitsPattern.MatchString(token) && !strings.ContainsAny(token, ".,") && q.Identifier == "" && len(token) >= 4 {
			// A bare digit run of CPF-fragment length; short runs are
			// more likely amounts.
			if len(token) >= 5 {
				q.Identifier = token
				continue
			}
		}

		if amountPattern.MatchString(token) && !q.HasAmount {
			if amount, err := models.ParseQueryAmount(token); err == nil {
				q.Amount = amount
				q.HasAmount = true
				continue
			}
		}

		textParts = append(textParts, token)
	}

	q.Text = strings.Join(textParts, " ")
	return q
}

func atoiSafe(s string) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	return n
}

// RankedMatch is one scored result.
type RankedMatch struct {
	Record     *models.Record `json:"record"`
	Confidence float64        `json:"confidence"`
	Similarity float64        `json:"similarity"`
	Tier       Tier           `json:"tier"`
}

// SmartResult groups results into disjoint tiers plus advisory suggestions.
type SmartResult struct {
	Exact       []*RankedMatch    `json:"exact"`
	Close       []*RankedMatch    `json:"close"`
	Fuzzy       []*RankedMatch    `json:"fuzzy"`
	Suggestions []decimal.Decimal `json:"suggestions"`
}

// Engine runs fuzzy searches over record sets.
type Engine struct {
	opts Options
}

// NewEngine creates an engine. Zero-valued options fall back to defaults
// field by field.
func NewEngine(opts Options) *Engine {
	defaults := DefaultOptions()
	if opts.CloseTolerancePercent <= 0 {
		opts.CloseTolerancePercent = defaults.CloseTolerancePercent
	}
	if opts.FuzzyTolerancePercent <= 0 {
		opts.FuzzyTolerancePercent = defaults.FuzzyTolerancePercent
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = defaults.MinConfidence
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = defaults.MaxSuggestions
	}
	return &Engine{opts: opts}
}

// Options returns the engine's effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// FuzzySearch scores every record against the query and returns the ranked
// matches above the minimum confidence cutoff. Ordering is descending
// confidence, then descending raw similarity, then original record order
// (stable sort), so results are deterministic.
func (e *Engine) FuzzySearch(query Query, records []*models.Record) []*RankedMatch {
	var matches []*RankedMatch

	for _, rec := range records {
		if m := e.score(query, rec); m != nil {
			matches = append(matches, m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].Similarity > matches[j].Similarity
	})

	return matches
}

// SmartSearch runs a tiered search. Tiers are disjoint by construction: each
// record is assigned to the strictest tier it qualifies for, so the fuzzy
// tier is the set difference against exact and close rather than a
// re-ranking. Records whose keys appear in excluded are skipped entirely.
func (e *Engine) SmartSearch(query Query, records []*models.Record, excluded map[string]bool) *SmartResult {
	result := &SmartResult{}

	var available []*models.Record
	for _, rec := range records {
		if excluded[rec.Key()] {
			continue
		}
		available = append(available, rec)
	}

	for _, m := range e.FuzzySearch(query, available) {
		switch m.Tier {
		case TierExact:
			result.Exact = append(result.Exact, m)
		case TierClose:
			result.Close = append(result.Close, m)
		default:
			result.Fuzzy = append(result.Fuzzy, m)
		}
	}

	result.Suggestions = e.Suggest(query, available)
	return result
}

// score computes the confidence for one record, or nil when the record does
// not qualify for any tier or falls below the confidence cutoff.
func (e *Engine) score(query Query, rec *models.Record) *RankedMatch {
	closeLimit := decimal.NewFromFloat(e.opts.CloseTolerancePercent).Div(oneHundred)
	fuzzyLimit := decimal.NewFromFloat(e.opts.FuzzyTolerancePercent).Div(oneHundred)

	var (
		tier          Tier
		valueProx     decimal.Decimal
		haveValueProx bool
	)

	if query.HasAmount {
		tf := ToleranceFraction(query.Amount, rec.AbsAmount())
		switch {
		case tf.IsZero():
			tier = TierExact
			haveValueProx = true
			valueProx = decimal.NewFromInt(1)
		case tf.LessThanOrEqual(closeLimit):
			tier = TierClose
			haveValueProx = true
			valueProx = decimal.NewFromInt(1).Sub(tf)
		case tf.LessThanOrEqual(fuzzyLimit):
			tier = TierFuzzy
			haveValueProx = true
			valueProx = decimal.NewFromInt(1).Sub(tf)
		}
	}

	textSim := 0.0
	if query.Text != "" {
		textSim = Similarity(query.Text, rec.OriginalText)
	}

	identBonus := decimal.Zero
	if query.Identifier != "" && rec.Identifier != "" {
		if strings.Contains(rec.Identifier, query.Identifier) {
			identBonus = bonusIdentifier
		} else if models.SharedDigits(query.Identifier, rec.Identifier) >= 4 {
			identBonus = bonusIdentPieces
		}
	}

	dateHit := query.Day != 0 && matchesDatePattern(query, rec.Date)

	if tier == "" {
		// No value proximity: a text or identifier partial hit can still
		// land in the fuzzy tier.
		if textSim > 0.5 || !identBonus.IsZero() {
			tier = TierFuzzy
		} else {
			return nil
		}
	}

	confidence := decimal.Zero
	if haveValueProx {
		confidence = confidence.Add(weightValue.Mul(valueProx))
	}
	confidence = confidence.Add(weightText.Mul(decimal.NewFromFloat(textSim)))

	switch tier {
	case TierExact:
		confidence = confidence.Add(bonusExact)
	case TierClose:
		confidence = confidence.Add(bonusClose)
	case TierFuzzy:
		confidence = confidence.Add(bonusFuzzy)
	}

	if dateHit {
		confidence = confidence.Add(bonusDate)
	}
	confidence = confidence.Add(identBonus)

	if confidence.GreaterThan(confidenceCap) {
		confidence = confidenceCap
	}

	conf := confidence.InexactFloat64()
	if conf < e.opts.MinConfidence {
		return nil
	}

	similarity := textSim
	if haveValueProx {
		similarity = valueProx.InexactFloat64()
	}

	return &RankedMatch{
		Record:     rec,
		Confidence: conf,
		Similarity: similarity,
		Tier:       tier,
	}
}

func matchesDatePattern(query Query, date time.Time) bool {
	return date.Day() == query.Day && int(date.Month()) == query.Month
}
