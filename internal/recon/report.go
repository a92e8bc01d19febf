package recon

import (
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-reconciliation-service/internal/models"
)

// Histogram bands. A match is high confidence at 0.9 and above, medium at 0.7,
// low at the 0.3 match floor.
const (
	histogramHighBand   = 0.9
	histogramMediumBand = 0.7
	histogramLowBand    = 0.3
)

// buildReport aggregates a finished run into the read-only report. A record
// counts as matched when it appears in at least one match, no matter how many
// matches it appears in, so matched+unmatched always equals the total for both
// counts and values.
func buildReport(runID string, started time.Time, sources []*Source, records []*models.Record, matches []*models.ReconciliationMatch) *models.ReconciliationReport {
	matched := make(map[string]bool)
	for _, m := range matches {
		for _, p := range m.Participants {
			matched[p.Record.Key()] = true
		}
	}

	summary := models.ReportSummary{
		TotalRecords:    len(records),
		TotalValue:      decimal.Zero,
		MatchedValue:    decimal.Zero,
		UnmatchedValue:  decimal.Zero,
		RecordsBySource: make(map[string]int, len(sources)),
	}

	var unmatched []*models.Record
	for _, rec := range records {
		value := rec.AbsAmount()
		summary.TotalValue = summary.TotalValue.Add(value)
		summary.RecordsBySource[rec.SourceID]++

		if matched[rec.Key()] {
			summary.MatchedRecords++
			summary.MatchedValue = summary.MatchedValue.Add(value)
		} else {
			summary.UnmatchedRecords++
			summary.UnmatchedValue = summary.UnmatchedValue.Add(value)
			unmatched = append(unmatched, rec)
		}
	}

	for _, m := range matches {
		switch {
		case m.Confidence >= histogramHighBand:
			summary.Histogram.High++
		case m.Confidence >= histogramMediumBand:
			summary.Histogram.Medium++
		case m.Confidence >= histogramLowBand:
			summary.Histogram.Low++
		}
	}

	return &models.ReconciliationReport{
		RunID:            runID,
		GeneratedAt:      started,
		Duration:         time.Since(started),
		Matches:          matches,
		UnmatchedRecords: unmatched,
		Summary:          summary,
	}
}

// AttachResolution records an operator decision on a proposed match. The match
// itself stays immutable apart from this one field; attaching again replaces
// the previous resolution.
func AttachResolution(match *models.ReconciliationMatch, action models.ResolutionAction, note string) {
	match.Resolution = &models.Resolution{
		Action:     action,
		ResolvedAt: time.Now().UTC(),
		Note:       note,
	}
}

// NewManualMatch builds an operator-asserted correspondence between records
// the engine did not pair on its own.
func NewManualMatch(participants []*models.Participant, note string) *models.ReconciliationMatch {
	match := &models.ReconciliationMatch{
		Confidence:   1.0,
		MatchType:    models.MatchManual,
		Participants: participants,
	}
	AttachResolution(match, models.ResolutionAccept, note)
	return match
}
