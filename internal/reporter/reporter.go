// Package reporter renders reconciliation reports and conference audit lists
// for people and downstream tools.
//
// Supported output formats:
//   - Console: human-readable summary with discrepancy and unmatched tables
//   - JSON: the report structure as-is for programmatic consumption
//   - CSV: flat match rows for spreadsheet applications
//   - XLSX: styled workbook with summary, match and unmatched sheets
//
// The reporter consumes plain report data and writes bytes; it knows nothing
// about how matches were produced.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"pharmacy-reconciliation-service/internal/models"
)

// OutputFormat selects a report rendering.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks whether the output format is supported.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// ReportConfig controls what the renderings include.
type ReportConfig struct {
	Format OutputFormat `json:"format"`

	IncludeMatches       bool `json:"include_matches"`
	IncludeUnmatched     bool `json:"include_unmatched"`
	IncludeDiscrepancies bool `json:"include_discrepancies"`

	// MaxListedItems truncates the console match and unmatched tables;
	// zero lists everything.
	MaxListedItems int `json:"max_listed_items"`

	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns the default rendering configuration.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:               FormatConsole,
		IncludeMatches:       true,
		IncludeUnmatched:     true,
		IncludeDiscrepancies: true,
		MaxListedItems:       50,
		CSVDelimiter:         ',',
		CSVHeaders:           true,
	}
}

// Validate checks the rendering configuration.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.CSVDelimiter == 0 {
		c.CSVDelimiter = ','
	}
	return nil
}

// ReportGenerator renders reconciliation reports.
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a generator. A nil config uses the defaults.
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// Generate renders the report in the configured format.
func (rg *ReportGenerator) Generate(report *models.ReconciliationReport, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsole(report, writer)
	case FormatJSON:
		return rg.generateJSON(report, writer)
	case FormatCSV:
		return rg.generateCSV(report, writer)
	case FormatXLSX:
		return rg.generateXLSX(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsole(report *models.ReconciliationReport, writer io.Writer) error {
	s := report.Summary

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n", report.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration: %v\n\n", report.Duration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	fmt.Fprintf(writer, "Total records:     %d\n", s.TotalRecords)
	fmt.Fprintf(writer, "Matched records:   %d\n", s.MatchedRecords)
	fmt.Fprintf(writer, "Unmatched records: %d\n", s.UnmatchedRecords)
	for source, count := range s.RecordsBySource {
		fmt.Fprintf(writer, "  %-16s %d\n", source+":", count)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== VALUES ===\n")
	fmt.Fprintf(writer, "Total value:     %s\n", s.TotalValue.StringFixed(2))
	fmt.Fprintf(writer, "Matched value:   %s\n", s.MatchedValue.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched value: %s\n\n", s.UnmatchedValue.StringFixed(2))

	fmt.Fprintf(writer, "=== CONFIDENCE ===\n")
	fmt.Fprintf(writer, "High (>=0.9):   %d\n", s.Histogram.High)
	fmt.Fprintf(writer, "Medium (>=0.7): %d\n", s.Histogram.Medium)
	fmt.Fprintf(writer, "Low (>=0.3):    %d\n\n", s.Histogram.Low)

	if rg.config.IncludeMatches && len(report.Matches) > 0 {
		fmt.Fprintf(writer, "=== MATCHES ===\n")
		for i, match := range report.Matches {
			if rg.config.MaxListedItems > 0 && i >= rg.config.MaxListedItems {
				fmt.Fprintf(writer, "... %d more\n", len(report.Matches)-i)
				break
			}
			rg.printMatch(match, writer)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched && len(report.UnmatchedRecords) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED RECORDS ===\n")
		for i, rec := range report.UnmatchedRecords {
			if rg.config.MaxListedItems > 0 && i >= rg.config.MaxListedItems {
				fmt.Fprintf(writer, "... %d more\n", len(report.UnmatchedRecords)-i)
				break
			}
			fmt.Fprintf(writer, "%-20s %10s  %s  %s\n",
				rec.Key(), rec.AbsAmount().StringFixed(2),
				rec.Date.Format("2006-01-02"), rec.OriginalText)
		}
	}

	return nil
}

func (rg *ReportGenerator) printMatch(match *models.ReconciliationMatch, writer io.Writer) {
	var keys []string
	for _, p := range match.Participants {
		keys = append(keys, p.Record.Key())
	}
	fmt.Fprintf(writer, "[%.2f %-11s] %s\n", match.Confidence, match.MatchType, strings.Join(keys, " <-> "))

	if rg.config.IncludeDiscrepancies {
		for _, d := range match.Discrepancies {
			var values []string
			for source, value := range d.ValuesBySource {
				values = append(values, fmt.Sprintf("%s=%s", source, value))
			}
			fmt.Fprintf(writer, "    ! %s (%s): %s\n", d.Field, d.Severity, strings.Join(values, " vs "))
		}
	}
}

func (rg *ReportGenerator) generateJSON(report *models.ReconciliationReport, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (rg *ReportGenerator) generateCSV(report *models.ReconciliationReport, writer io.Writer) error {
	w := csv.NewWriter(writer)
	w.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := w.Write([]string{
			"match_type", "confidence", "record_a", "amount_a", "record_b", "amount_b", "discrepancies",
		}); err != nil {
			return err
		}
	}

	for _, match := range report.Matches {
		if len(match.Participants) < 2 {
			continue
		}
		a := match.Participants[0].Record
		b := match.Participants[1].Record

		var fields []string
		for _, d := range match.Discrepancies {
			fields = append(fields, fmt.Sprintf("%s:%s", d.Field, d.Severity))
		}

		if err := w.Write([]string{
			string(match.MatchType),
			strconv.FormatFloat(match.Confidence, 'f', 4, 64),
			a.Key(), a.AbsAmount().StringFixed(2),
			b.Key(), b.AbsAmount().StringFixed(2),
			strings.Join(fields, ";"),
		}); err != nil {
			return err
		}
	}

	if rg.config.IncludeUnmatched {
		for _, rec := range report.UnmatchedRecords {
			if err := w.Write([]string{
				"unmatched", "", rec.Key(), rec.AbsAmount().StringFixed(2), "", "", "",
			}); err != nil {
				return err
			}
		}
	}

	w.Flush()
	return w.Error()
}

// WriteConferredItems renders a conference audit list as CSV.
func WriteConferredItems(items []*models.ConferredItem, writer io.Writer) error {
	w := csv.NewWriter(writer)

	if err := w.Write([]string{"conferred_id", "record", "amount", "date", "conferred_at"}); err != nil {
		return err
	}
	for _, item := range items {
		if err := w.Write([]string{
			item.ConferredID,
			item.Record.Key(),
			item.Record.AbsAmount().StringFixed(2),
			item.Record.Date.Format("2006-01-02"),
			item.ConferredAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}
