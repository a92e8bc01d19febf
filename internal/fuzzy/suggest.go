package fuzzy

import (
	"sort"

	"pharmacy-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// Suggestion tolerance bands, widened progressively until the cap is filled.
var suggestionBands = []float64{1.0, 5.0, 10.0, 20.0}

// Suggest proposes alternative values the operator may have meant: nearby
// round numbers and values actually present in the dataset within widening
// tolerance bands. Suggestions are deduplicated, capped, ordered by proximity
// to the query, and purely advisory; they are never applied automatically.
//
// Independent of the match list: a query with exact matches still gets
// suggestions, and a query with none may get several.
func (e *Engine) Suggest(query Query, records []*models.Record) []decimal.Decimal {
	if !query.HasAmount || query.Amount.IsZero() {
		return nil
	}

	seen := map[string]bool{query.Amount.StringFixed(2): true}
	var candidates []decimal.Decimal

	add := func(v decimal.Decimal) {
		v = models.NormalizeAmount(v)
		if v.IsNegative() || v.IsZero() {
			return
		}
		key := v.StringFixed(2)
		if seen[key] {
			return
		}
		seen[key] = true
		candidates = append(candidates, v)
	}

	// Nearby round numbers: the whole unit on either side and the nearest
	// multiples of ten.
	add(query.Amount.Floor())
	add(query.Amount.Ceil())
	ten := decimal.NewFromInt(10)
	add(query.Amount.Div(ten).Floor().Mul(ten))
	add(query.Amount.Div(ten).Ceil().Mul(ten))

	// Dataset values inside widening tolerance bands.
	for _, band := range suggestionBands {
		for _, rec := range records {
			if WithinTolerance(query.Amount, rec.AbsAmount(), band) {
				add(rec.AbsAmount())
			}
		}
		if len(candidates) >= e.opts.MaxSuggestions {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		di := candidates[i].Sub(query.Amount).Abs()
		dj := candidates[j].Sub(query.Amount).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return candidates[i].LessThan(candidates[j])
	})

	if len(candidates) > e.opts.MaxSuggestions {
		candidates = candidates[:e.opts.MaxSuggestions]
	}

	return candidates
}
