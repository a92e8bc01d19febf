// Package recon implements the multi-source reconciliation engine: bucketed
// grouping, weighted cross-source pair scoring, configurable rules and report
// assembly.
//
// A run is a pure function over its inputs. The engine moves through
// Idle → Grouping → Evaluating → Reporting → Idle and either yields a complete
// report or fails atomically; no partial report survives a failed run.
package recon

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pharmacy-reconciliation-service/internal/fuzzy"
	"pharmacy-reconciliation-service/internal/models"
	"pharmacy-reconciliation-service/pkg/errors"
	"pharmacy-reconciliation-service/pkg/logger"
)

// Source is one reconciliation input: an identified set of normalized records.
type Source struct {
	ID      string
	Records []*models.Record
}

// Scoring weights, pinned as decimals in one place for reproducibility.
// Value proximity contributes up to 0.4; date exactness 0.3 or 0.15 within one
// day; identifier 0.2 exact or 0.1 for a partial-digit overlap of six or more
// shared digits; text similarity above 0.7 adds 0.1; each satisfied rule
// condition adds 0.05.
var (
	weightValue        = decimal.RequireFromString("0.4")
	weightDateExact    = decimal.RequireFromString("0.3")
	weightDateNear     = decimal.RequireFromString("0.15")
	weightIdentExact   = decimal.RequireFromString("0.2")
	weightIdentPartial = decimal.RequireFromString("0.1")
	weightText         = decimal.RequireFromString("0.1")
	bonusRuleCondition = decimal.RequireFromString("0.05")
	confidenceCap      = decimal.RequireFromString("1.0")

	textSimilarityFloor = 0.7
	sharedDigitsFloor   = 6
	oneCurrencyUnit     = decimal.NewFromInt(1)
)

type phase string

const (
	phaseIdle       phase = "idle"
	phaseGrouping   phase = "grouping"
	phaseEvaluating phase = "evaluating"
	phaseReporting  phase = "reporting"
)

// Engine runs reconciliations. Safe for concurrent use: each Reconcile call
// owns all of its state.
type Engine struct {
	config *Config
	logger logger.Logger
}

// NewEngine creates an engine with the given configuration. A nil config uses
// the defaults; a nil logger uses the global logger.
func NewEngine(config *Config, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Engine{
		config: config,
		logger: log.WithComponent("recon"),
	}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// bucketKey groups records by coarse value range and calendar day. Only
// records in the same or an adjacent bucket are ever compared.
type bucketKey struct {
	value int64
	day   time.Time
}

// Reconcile runs a full reconciliation over the sources with the given rules
// and returns the report. Malformed rules or configuration fail the run up
// front; any later failure discards all partial state.
func (e *Engine) Reconcile(sources []*Source, rules []*Rule) (*models.ReconciliationReport, error) {
	runID := uuid.NewString()
	started := time.Now().UTC()

	op := logger.NewOperationLogger("reconcile", e.logger).WithField("run_id", runID)

	if len(sources) == 0 {
		err := errors.New(errors.CategoryReconciliation, errors.CodeNoSources,
			"no reconciliation sources provided").
			WithSuggestion("Provide at least one source of records")
		op.Error(err, "reconciliation rejected")
		return nil, err
	}

	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			op.Error(err, "reconciliation rejected")
			return nil, err
		}
	}

	// Grouping.
	op.Step(string(phaseGrouping))
	records, buckets := e.group(sources)
	op.Progress("records grouped", len(records), len(records))

	// Evaluating.
	op.Step(string(phaseEvaluating))
	matches, err := e.evaluate(records, buckets, rules)
	if err != nil {
		op.Error(err, "reconciliation failed")
		return nil, errors.RunError(runID, err)
	}
	op.Progress("pairs evaluated", len(matches), 0)

	// Reporting.
	op.Step(string(phaseReporting))
	report := buildReport(runID, started, sources, records, matches)

	op.WithField("matches", len(report.Matches)).
		WithField("matched_records", report.Summary.MatchedRecords).
		Success("reconciliation complete")
	return report, nil
}

// group stamps each record with its source, assigns a stable global order and
// buckets everything by (value range, day).
func (e *Engine) group(sources []*Source) ([]*models.Record, map[bucketKey][]int) {
	var records []*models.Record
	buckets := make(map[bucketKey][]int)

	for _, src := range sources {
		for _, rec := range src.Records {
			if rec.SourceID == "" {
				rec.SourceID = src.ID
			}
			idx := len(records)
			records = append(records, rec)
			key := e.bucketOf(rec)
			buckets[key] = append(buckets[key], idx)
		}
	}

	return records, buckets
}

func (e *Engine) bucketOf(rec *models.Record) bucketKey {
	return bucketKey{
		value: rec.AbsAmount().Div(e.config.bucketWidth()).Floor().IntPart(),
		day:   models.TruncateToDay(rec.Date),
	}
}

// neighborKeys returns the record's own bucket plus the adjacent value buckets
// and the day buckets within the configured tolerance, so near-tolerance pairs
// on neighboring days are still compared. Pairs further apart than one bucket
// width in value or the day tolerance in date are never compared; that recall
// loss is the documented cost of avoiding the O(n²) scan.
func (e *Engine) neighborKeys(key bucketKey) []bucketKey {
	var keys []bucketKey
	for dv := int64(-1); dv <= 1; dv++ {
		for dd := -e.config.DateToleranceDays; dd <= e.config.DateToleranceDays; dd++ {
			keys = append(keys, bucketKey{
				value: key.value + dv,
				day:   key.day.AddDate(0, 0, dd),
			})
		}
	}
	return keys
}

// evaluate scores every cross-source candidate pair and keeps those reaching
// the minimum confidence. Iteration follows the global record order, so the
// produced match list is deterministic for identical inputs.
func (e *Engine) evaluate(records []*models.Record, buckets map[bucketKey][]int, rules []*Rule) ([]*models.ReconciliationMatch, error) {
	var matches []*models.ReconciliationMatch

	for i, rec := range records {
		for _, key := range e.neighborKeys(e.bucketOf(rec)) {
			for _, j := range buckets[key] {
				if j <= i {
					continue
				}
				other := records[j]
				if other.SourceID == rec.SourceID {
					continue
				}
				if match := e.scorePair(rec, other, rules); match != nil {
					matches = append(matches, match)
				}
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	return matches, nil
}

// scorePair computes the weighted score for one cross-source pair, or nil when
// the pair does not reach the minimum confidence.
//
// The raw score is normalized by the weight actually achievable for the pair:
// identifier weight only counts toward the denominator when both records carry
// an identifier, so a pair that agrees on everything it can possibly agree on
// scores 1.0 rather than being penalized for data its sources never had.
func (e *Engine) scorePair(a, b *models.Record, rules []*Rule) *models.ReconciliationMatch {
	score := decimal.Zero
	achievable := weightValue.Add(weightDateExact).Add(weightText)

	var matchingFields []string
	var discrepancies []*models.Discrepancy

	// Value proximity.
	tf := fuzzy.ToleranceFraction(a.AbsAmount(), b.AbsAmount())
	score = score.Add(weightValue.Mul(decimal.NewFromInt(1).Sub(tf)))
	if tf.IsZero() {
		matchingFields = append(matchingFields, string(FieldAmount))
	} else {
		severity := models.SeverityLow
		if a.AbsAmount().Sub(b.AbsAmount()).Abs().GreaterThan(oneCurrencyUnit) {
			severity = models.SeverityMedium
		}
		discrepancies = append(discrepancies, &models.Discrepancy{
			Field: string(FieldAmount),
			ValuesBySource: map[string]string{
				a.SourceID: a.AbsAmount().StringFixed(2),
				b.SourceID: b.AbsAmount().StringFixed(2),
			},
			Severity: severity,
			Reason:   "amounts differ within tolerance",
		})
	}

	// Date exactness. A near miss still scores, and records a discrepancy.
	switch {
	case models.SameDay(a.Date, b.Date):
		score = score.Add(weightDateExact)
		matchingFields = append(matchingFields, string(FieldDate))
	case models.DaysApart(a.Date, b.Date) <= 1:
		score = score.Add(weightDateNear)
		matchingFields = append(matchingFields, string(FieldDate))
		discrepancies = append(discrepancies, &models.Discrepancy{
			Field: string(FieldDate),
			ValuesBySource: map[string]string{
				a.SourceID: a.Date.Format("2006-01-02"),
				b.SourceID: b.Date.Format("2006-01-02"),
			},
			Severity: models.SeverityLow,
			Reason:   "dates one calendar day apart",
		})
	}

	// Identifier: exact, partial-digit overlap, or a conflict worth
	// surfacing. Weight only achievable when both sides carry one.
	if a.Identifier != "" && b.Identifier != "" {
		achievable = achievable.Add(weightIdentExact)
		switch {
		case a.Identifier == b.Identifier:
			score = score.Add(weightIdentExact)
			matchingFields = append(matchingFields, string(FieldIdentifier))
		case models.SharedDigits(a.Identifier, b.Identifier) >= sharedDigitsFloor:
			score = score.Add(weightIdentPartial)
			matchingFields = append(matchingFields, string(FieldIdentifier))
		default:
			discrepancies = append(discrepancies, &models.Discrepancy{
				Field: string(FieldIdentifier),
				ValuesBySource: map[string]string{
					a.SourceID: a.Identifier,
					b.SourceID: b.Identifier,
				},
				Severity: models.SeverityHigh,
				Reason:   "identifiers conflict",
			})
		}
	}

	// Text similarity. Two records with no descriptive text at all have
	// nothing to disagree about.
	if fuzzy.Similarity(a.OriginalText, b.OriginalText) > textSimilarityFloor {
		score = score.Add(weightText)
		if a.OriginalText != "" {
			matchingFields = append(matchingFields, string(FieldOriginalText))
		}
	}

	confidence := score.Div(achievable)

	// Rule bonuses apply after normalization; rules reward agreement beyond
	// what the built-in weights cover.
	outcome := applyRules(rules, a, b)
	confidence = confidence.Add(outcome.bonus)
	if confidence.GreaterThan(confidenceCap) {
		confidence = confidenceCap
	}
	discrepancies = append(discrepancies, outcome.discrepancies...)

	conf := confidence.InexactFloat64()
	if conf < e.config.MinConfidence {
		return nil
	}

	matchType := models.MatchPattern
	switch {
	case conf > e.config.ExactThreshold:
		matchType = models.MatchExact
	case conf > e.config.ApproxThreshold:
		matchType = models.MatchApproximate
	}

	for _, name := range outcome.satisfied {
		matchingFields = append(matchingFields, fmt.Sprintf("rule:%s", name))
	}

	return &models.ReconciliationMatch{
		Confidence: conf,
		MatchType:  matchType,
		Participants: []*models.Participant{
			{SourceID: a.SourceID, Record: a, MatchingFields: matchingFields},
			{SourceID: b.SourceID, Record: b, MatchingFields: matchingFields},
		},
		Discrepancies: collapseDiscrepancies(discrepancies),
	}
}

// collapseDiscrepancies keeps one entry per field for a match, preferring the
// highest severity when duplicates were registered.
func collapseDiscrepancies(discrepancies []*models.Discrepancy) []*models.Discrepancy {
	if len(discrepancies) == 0 {
		return nil
	}

	rank := map[models.Severity]int{
		models.SeverityLow:    0,
		models.SeverityMedium: 1,
		models.SeverityHigh:   2,
	}

	byField := make(map[string]*models.Discrepancy)
	var order []string
	for _, d := range discrepancies {
		existing, seen := byField[d.Field]
		if !seen {
			byField[d.Field] = d
			order = append(order, d.Field)
			continue
		}
		if rank[d.Severity] > rank[existing.Severity] {
			byField[d.Field] = d
		}
	}

	collapsed := make([]*models.Discrepancy, 0, len(order))
	for _, field := range order {
		collapsed = append(collapsed, byField[field])
	}
	return collapsed
}
