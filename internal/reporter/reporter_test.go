package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"pharmacy-reconciliation-service/internal/models"
)

func sampleReport() *models.ReconciliationReport {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	bank := models.NewRecord("bank", "B1", date, decimal.NewFromFloat(150.00), models.PaymentCash, "12345678901", "VENDA BALCAO")
	cash := models.NewRecord("caixa", "C1", date, decimal.NewFromFloat(150.00), models.PaymentCash, "12345678901", "VENDA BALCAO")
	loose := models.NewRecord("bank", "B2", date, decimal.NewFromFloat(75.50), models.PaymentPix, "", "PIX AVULSO")

	return &models.ReconciliationReport{
		RunID:       "run-test",
		GeneratedAt: date,
		Duration:    42 * time.Millisecond,
		Matches: []*models.ReconciliationMatch{{
			Confidence: 1.0,
			MatchType:  models.MatchExact,
			Participants: []*models.Participant{
				{SourceID: "bank", Record: bank, MatchingFields: []string{"amount", "date", "identifier"}},
				{SourceID: "caixa", Record: cash, MatchingFields: []string{"amount", "date", "identifier"}},
			},
		}},
		UnmatchedRecords: []*models.Record{loose},
		Summary: models.ReportSummary{
			TotalRecords:     3,
			MatchedRecords:   2,
			UnmatchedRecords: 1,
			TotalValue:       decimal.RequireFromString("375.50"),
			MatchedValue:     decimal.RequireFromString("300.00"),
			UnmatchedValue:   decimal.RequireFromString("75.50"),
			RecordsBySource:  map[string]int{"bank": 2, "caixa": 1},
			Histogram:        models.ConfidenceHistogram{High: 1},
		},
	}
}

func newGenerator(t *testing.T, format OutputFormat) *ReportGenerator {
	t.Helper()
	config := DefaultReportConfig()
	config.Format = format
	rg, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("Failed to create generator: %v", err)
	}
	return rg
}

func TestGenerateConsole(t *testing.T) {
	rg := newGenerator(t, FormatConsole)

	var buf bytes.Buffer
	if err := rg.Generate(sampleReport(), &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"RECONCILIATION REPORT",
		"run-test",
		"Total records:     3",
		"Matched value:   300.00",
		"bank/B1 <-> caixa/C1",
		"UNMATCHED RECORDS",
		"bank/B2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Console output missing %q", want)
		}
	}
}

func TestGenerateJSON(t *testing.T) {
	rg := newGenerator(t, FormatJSON)

	var buf bytes.Buffer
	if err := rg.Generate(sampleReport(), &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var decoded models.ReconciliationReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON output does not round-trip: %v", err)
	}
	if decoded.RunID != "run-test" || len(decoded.Matches) != 1 {
		t.Errorf("Unexpected decoded report: %s, %d matches", decoded.RunID, len(decoded.Matches))
	}
	if decoded.Summary.MatchedRecords != 2 {
		t.Errorf("Expected 2 matched records, got %d", decoded.Summary.MatchedRecords)
	}
}

func TestGenerateCSV(t *testing.T) {
	rg := newGenerator(t, FormatCSV)

	var buf bytes.Buffer
	if err := rg.Generate(sampleReport(), &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV output unreadable: %v", err)
	}

	// Header, one match row, one unmatched row.
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "match_type" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][0] != "exact" || rows[1][2] != "bank/B1" {
		t.Errorf("Unexpected match row: %v", rows[1])
	}
	if rows[2][0] != "unmatched" || rows[2][2] != "bank/B2" {
		t.Errorf("Unexpected unmatched row: %v", rows[2])
	}
}

func TestGenerateXLSX(t *testing.T) {
	rg := newGenerator(t, FormatXLSX)

	var buf bytes.Buffer
	if err := rg.Generate(sampleReport(), &buf); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("XLSX output unreadable: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{sheetSummary, sheetMatches, sheetUnmatched} {
		if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
			t.Errorf("Missing sheet %q", sheet)
		}
	}

	value, err := f.GetCellValue(sheetSummary, "B1")
	if err != nil || value != "run-test" {
		t.Errorf("Expected run ID in summary sheet, got %q (%v)", value, err)
	}

	matchType, err := f.GetCellValue(sheetMatches, "A2")
	if err != nil || matchType != "exact" {
		t.Errorf("Expected exact match row, got %q (%v)", matchType, err)
	}
}

func TestGenerate_NilReport(t *testing.T) {
	rg := newGenerator(t, FormatConsole)
	if err := rg.Generate(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("Expected an error for a nil report")
	}
}

func TestNewReportGenerator_InvalidFormat(t *testing.T) {
	_, err := NewReportGenerator(&ReportConfig{Format: "pdf"})
	if err == nil {
		t.Fatal("Expected an error for an unsupported format")
	}
}

func TestWriteConferredItems(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	items := []*models.ConferredItem{{
		Record:      models.NewRecord("bank", "B1", date, decimal.NewFromFloat(89.90), models.PaymentPix, "", "PIX JOAO"),
		ConferredAt: date.Add(10 * time.Hour),
		ConferredID: "conf-1",
	}}

	var buf bytes.Buffer
	if err := WriteConferredItems(items, &buf); err != nil {
		t.Fatalf("WriteConferredItems failed: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("CSV output unreadable: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected header plus one row, got %d", len(rows))
	}
	if rows[1][0] != "conf-1" || rows[1][1] != "bank/B1" || rows[1][2] != "89.90" {
		t.Errorf("Unexpected row: %v", rows[1])
	}
}
