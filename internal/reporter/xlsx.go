package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pharmacy-reconciliation-service/internal/models"
)

const (
	sheetSummary   = "Summary"
	sheetMatches   = "Matches"
	sheetUnmatched = "Unmatched"
)

// generateXLSX writes the report as a workbook with summary, match and
// unmatched sheets, ready to hand to the pharmacy's accountant.
func (rg *ReportGenerator) generateXLSX(report *models.ReconciliationReport, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := rg.writeSummarySheet(f, report); err != nil {
		return err
	}
	if rg.config.IncludeMatches {
		if err := rg.writeMatchesSheet(f, report); err != nil {
			return err
		}
	}
	if rg.config.IncludeUnmatched {
		if err := rg.writeUnmatchedSheet(f, report); err != nil {
			return err
		}
	}

	// The default sheet becomes Summary; delete the placeholder.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	return f.Write(writer)
}

func (rg *ReportGenerator) writeSummarySheet(f *excelize.File, report *models.ReconciliationReport) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}

	s := report.Summary
	rows := [][]interface{}{
		{"Run", report.RunID},
		{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Duration", report.Duration.String()},
		{},
		{"Total records", s.TotalRecords},
		{"Matched records", s.MatchedRecords},
		{"Unmatched records", s.UnmatchedRecords},
		{},
		{"Total value", s.TotalValue.StringFixed(2)},
		{"Matched value", s.MatchedValue.StringFixed(2)},
		{"Unmatched value", s.UnmatchedValue.StringFixed(2)},
		{},
		{"High confidence", s.Histogram.High},
		{"Medium confidence", s.Histogram.Medium},
		{"Low confidence", s.Histogram.Low},
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return err
		}
	}

	return f.SetColWidth(sheetSummary, "A", "A", 22)
}

func (rg *ReportGenerator) writeMatchesSheet(f *excelize.File, report *models.ReconciliationReport) error {
	if _, err := f.NewSheet(sheetMatches); err != nil {
		return err
	}

	header := []interface{}{"Type", "Confidence", "Record A", "Amount A", "Record B", "Amount B", "Discrepancies"}
	if err := f.SetSheetRow(sheetMatches, "A1", &header); err != nil {
		return err
	}

	rowNum := 2
	for _, match := range report.Matches {
		if len(match.Participants) < 2 {
			continue
		}
		a := match.Participants[0].Record
		b := match.Participants[1].Record

		discrepancies := ""
		for i, d := range match.Discrepancies {
			if i > 0 {
				discrepancies += "; "
			}
			discrepancies += fmt.Sprintf("%s (%s)", d.Field, d.Severity)
		}

		row := []interface{}{
			string(match.MatchType),
			match.Confidence,
			a.Key(), a.AbsAmount().InexactFloat64(),
			b.Key(), b.AbsAmount().InexactFloat64(),
			discrepancies,
		}
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetMatches, cell, &row); err != nil {
			return err
		}
		rowNum++
	}

	return f.SetColWidth(sheetMatches, "A", "G", 18)
}

func (rg *ReportGenerator) writeUnmatchedSheet(f *excelize.File, report *models.ReconciliationReport) error {
	if _, err := f.NewSheet(sheetUnmatched); err != nil {
		return err
	}

	header := []interface{}{"Record", "Amount", "Date", "Type", "Description"}
	if err := f.SetSheetRow(sheetUnmatched, "A1", &header); err != nil {
		return err
	}

	for i, rec := range report.UnmatchedRecords {
		row := []interface{}{
			rec.Key(),
			rec.AbsAmount().InexactFloat64(),
			rec.Date.Format("2006-01-02"),
			rec.PaymentType,
			rec.OriginalText,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetUnmatched, cell, &row); err != nil {
			return err
		}
	}

	return f.SetColWidth(sheetUnmatched, "A", "E", 18)
}
