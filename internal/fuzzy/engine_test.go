package fuzzy

import (
	"testing"
	"time"

	"pharmacy-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

func fuzzyTestRecords() []*models.Record {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return []*models.Record{
		models.NewRecord("bank", "B001", date, decimal.NewFromFloat(150.00), models.PaymentCash, "12345678901", "VENDA BALCAO"),
		models.NewRecord("bank", "B002", date, decimal.NewFromFloat(148.00), models.PaymentCard, "", "CARTAO CREDITO"),
		models.NewRecord("bank", "B003", date, decimal.NewFromFloat(140.00), models.PaymentPix, "", "PIX RECEBIDO"),
		models.NewRecord("bank", "B004", date, decimal.NewFromFloat(75.50), models.PaymentCash, "", "VENDA CONVENIO"),
		models.NewRecord("bank", "B005", date, decimal.NewFromFloat(150.00), models.PaymentPix, "98765432100", "PIX JOAO"),
	}
}

func TestParseQuery(t *testing.T) {
	q := ParseQuery("150,00 15/01 venda joao")

	if !q.HasAmount || !q.Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("Expected amount 150, got %+v", q)
	}

	if q.Day != 15 || q.Month != 1 {
		t.Errorf("Expected date pattern 15/01, got day=%d month=%d", q.Day, q.Month)
	}

	if q.Text != "venda joao" {
		t.Errorf("Expected free text 'venda joao', got %q", q.Text)
	}
}

func TestParseQuery_IdentifierFragment(t *testing.T) {
	q := ParseQuery("345678901")

	if q.Identifier != "345678901" {
		t.Errorf("Expected digit run to parse as identifier fragment, got %+v", q)
	}

	if q.HasAmount {
		t.Error("Long digit run should not be treated as an amount")
	}
}

func TestParseQuery_AmountOnly(t *testing.T) {
	q := ParseQuery("89,90")

	if !q.HasAmount || !q.Amount.Equal(decimal.NewFromFloat(89.90)) {
		t.Errorf("Expected amount 89.90, got %+v", q)
	}

	if q.Text != "" || q.Identifier != "" || q.Day != 0 {
		t.Errorf("Amount-only query should carry nothing else: %+v", q)
	}
}

func TestEngine_FuzzySearch_Tiers(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	matches := e.FuzzySearch(ParseQuery("150,00"), records)
	if len(matches) == 0 {
		t.Fatal("Expected matches for 150,00")
	}

	byID := map[string]*RankedMatch{}
	for _, m := range matches {
		byID[m.Record.RecordID] = m
	}

	// 150.00 exact.
	if m := byID["B001"]; m == nil || m.Tier != TierExact {
		t.Errorf("B001 should be an exact match, got %+v", m)
	}

	// 148.00 differs by ~1.33%: inside the 2% close tolerance.
	if m := byID["B002"]; m == nil || m.Tier != TierClose {
		t.Errorf("B002 should be a close match, got %+v", m)
	}

	// 140.00 differs by ~6.7%: inside the 10% fuzzy tolerance.
	if m := byID["B003"]; m == nil || m.Tier != TierFuzzy {
		t.Errorf("B003 should be a fuzzy match, got %+v", m)
	}

	// 75.50 differs by ~50%: no tier at all.
	if _, found := byID["B004"]; found {
		t.Error("B004 should not match at all")
	}
}

func TestEngine_FuzzySearch_ConfidenceWeights(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	matches := e.FuzzySearch(ParseQuery("150,00"), records)

	for _, m := range matches {
		switch m.Record.RecordID {
		case "B001", "B005":
			// value 0.4 + exact bonus 0.3
			if m.Confidence < 0.699 || m.Confidence > 0.701 {
				t.Errorf("%s exact confidence = %f, want 0.70", m.Record.RecordID, m.Confidence)
			}
		case "B002":
			// value 0.4*(1-2/150) + close bonus 0.15
			want := 0.4*(1.0-2.0/150.0) + 0.15
			if m.Confidence < want-0.001 || m.Confidence > want+0.001 {
				t.Errorf("B002 close confidence = %f, want %f", m.Confidence, want)
			}
		}
	}
}

func TestEngine_FuzzySearch_Ordering(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	matches := e.FuzzySearch(ParseQuery("150,00"), records)

	for i := 1; i < len(matches); i++ {
		prev, curr := matches[i-1], matches[i]
		if curr.Confidence > prev.Confidence {
			t.Fatalf("Matches not ordered by descending confidence at %d", i)
		}
		if curr.Confidence == prev.Confidence && curr.Similarity > prev.Similarity {
			t.Fatalf("Ties not ordered by descending similarity at %d", i)
		}
	}

	// Full ties keep original record order: B001 before B005.
	var exactIDs []string
	for _, m := range matches {
		if m.Tier == TierExact {
			exactIDs = append(exactIDs, m.Record.RecordID)
		}
	}
	if len(exactIDs) != 2 || exactIDs[0] != "B001" || exactIDs[1] != "B005" {
		t.Errorf("Stable sort should keep original order for ties, got %v", exactIDs)
	}
}

func TestEngine_FuzzySearch_Deterministic(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()
	query := ParseQuery("150,00 venda")

	first := e.FuzzySearch(query, records)
	second := e.FuzzySearch(query, records)

	if len(first) != len(second) {
		t.Fatalf("Run lengths differ: %d vs %d", len(first), len(second))
	}

	for i := range first {
		if first[i].Record.Key() != second[i].Record.Key() || first[i].Confidence != second[i].Confidence {
			t.Fatalf("Runs differ at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestEngine_SmartSearch_TierDisjointness(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	result := e.SmartSearch(ParseQuery("150,00"), records, nil)

	seen := map[string]string{}
	checkTier := func(tier string, matches []*RankedMatch) {
		for _, m := range matches {
			key := m.Record.Key()
			if prev, dup := seen[key]; dup {
				t.Errorf("Record %s appears in both %s and %s tiers", key, prev, tier)
			}
			seen[key] = tier
		}
	}

	checkTier("exact", result.Exact)
	checkTier("close", result.Close)
	checkTier("fuzzy", result.Fuzzy)

	if len(result.Exact) != 2 {
		t.Errorf("Expected 2 exact matches, got %d", len(result.Exact))
	}
}

func TestEngine_SmartSearch_Excluded(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	excluded := map[string]bool{records[0].Key(): true} // B001

	result := e.SmartSearch(ParseQuery("150,00"), records, excluded)

	for _, m := range result.Exact {
		if m.Record.RecordID == "B001" {
			t.Error("Excluded record must not appear in any tier")
		}
	}

	if len(result.Exact) != 1 {
		t.Errorf("Expected only B005 in the exact tier, got %d entries", len(result.Exact))
	}
}

func TestEngine_FuzzySearch_MinConfidenceCutoff(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	// Pure text queries top out at 0.25 (text 0.2 + fuzzy bonus 0.05),
	// below the 0.3 cutoff: discarded entirely, not ranked low.
	matches := e.FuzzySearch(ParseQuery("venda balcao"), records)
	if len(matches) != 0 {
		t.Errorf("Pure-text matches below the cutoff must be discarded, got %d", len(matches))
	}

	// Identifier fragment adds 0.1 and clears the cutoff.
	matches = e.FuzzySearch(ParseQuery("venda balcao 12345678901"), records)
	if len(matches) != 1 || matches[0].Record.RecordID != "B001" {
		t.Errorf("Expected B001 via text+identifier, got %+v", matches)
	}
}

// Widening the fuzzy tolerance never decreases the confidence of a match that
// already qualified; it only admits more matches.
func TestEngine_ToleranceWidening_Monotonic(t *testing.T) {
	records := fuzzyTestRecords()
	query := ParseQuery("150,00")

	narrow := NewEngine(Options{FuzzyTolerancePercent: 10.0})
	wide := NewEngine(Options{FuzzyTolerancePercent: 20.0})

	narrowConf := map[string]float64{}
	for _, m := range narrow.FuzzySearch(query, records) {
		narrowConf[m.Record.Key()] = m.Confidence
	}

	wideConf := map[string]float64{}
	for _, m := range wide.FuzzySearch(query, records) {
		wideConf[m.Record.Key()] = m.Confidence
	}

	if len(wideConf) < len(narrowConf) {
		t.Errorf("Widening tolerance lost matches: %d -> %d", len(narrowConf), len(wideConf))
	}

	for key, conf := range narrowConf {
		wc, still := wideConf[key]
		if !still {
			t.Errorf("Match %s disappeared after widening", key)
			continue
		}
		if wc < conf {
			t.Errorf("Confidence of %s decreased from %f to %f after widening", key, conf, wc)
		}
	}
}

func TestEngine_Suggest(t *testing.T) {
	e := NewEngine(Options{})
	records := fuzzyTestRecords()

	suggestions := e.Suggest(ParseQuery("149,00"), records)

	if len(suggestions) == 0 {
		t.Fatal("Expected suggestions near 149.00")
	}

	if len(suggestions) > e.Options().MaxSuggestions {
		t.Errorf("Suggestions exceed cap: %d", len(suggestions))
	}

	seen := map[string]bool{}
	foundDataset := false
	for _, s := range suggestions {
		key := s.StringFixed(2)
		if seen[key] {
			t.Errorf("Duplicate suggestion %s", key)
		}
		seen[key] = true

		if key == "149.00" {
			t.Error("The queried value itself must not be suggested")
		}
		if key == "148.00" || key == "150.00" {
			foundDataset = true
		}
	}

	if !foundDataset {
		t.Errorf("Expected dataset values near the query among suggestions, got %v", suggestions)
	}
}

func TestEngine_Suggest_NoAmount(t *testing.T) {
	e := NewEngine(Options{})

	if s := e.Suggest(ParseQuery("venda"), fuzzyTestRecords()); s != nil {
		t.Errorf("Text-only queries should produce no value suggestions, got %v", s)
	}
}
