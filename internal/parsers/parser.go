// Package parsers loads CSV exports into normalized records. It owns every
// raw-cell concern (column mapping, date formats, decimal commas, currency
// prefixes) so the matching core only ever sees canonical values.
package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-reconciliation-service/internal/models"
	"pharmacy-reconciliation-service/pkg/errors"
	"pharmacy-reconciliation-service/pkg/logger"
)

// ParseStats summarizes one parse run.
type ParseStats struct {
	TotalRows   int
	ParsedRows  int
	SkippedRows int
	Errors      []error
}

// RecordParser reads CSV rows into records for one source.
type RecordParser struct {
	config *RecordParserConfig
	logger logger.Logger

	columns map[string]int
}

// NewRecordParser creates a parser for one source file layout.
func NewRecordParser(config *RecordParserConfig) (*RecordParser, error) {
	if config == nil {
		return nil, errors.ConfigurationError("parser_config", nil, nil).
			WithSuggestion("Provide a record parser configuration")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RecordParser{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("parser").
			WithField("source", config.SourceID),
	}, nil
}

// ParseFile reads and parses a CSV file from disk.
func (p *RecordParser) ParseFile(path string) ([]*models.Record, *ParseStats, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, nil, errors.FileError(errors.CodeFileMalformed, path, err)
	}
	defer file.Close()

	records, stats, err := p.Parse(file)
	if err != nil {
		return nil, stats, errors.FileError(errors.CodeFileMalformed, path, err)
	}

	p.logger.WithFields(logger.Fields{
		"file":    path,
		"parsed":  stats.ParsedRows,
		"skipped": stats.SkippedRows,
	}).Info("file parsed")
	return records, stats, nil
}

// Parse reads CSV rows from the reader and returns normalized records.
// With SkipInvalidRows set, malformed rows are counted and collected in the
// stats instead of failing the parse.
func (p *RecordParser) Parse(r io.Reader) ([]*models.Record, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	stats := &ParseStats{}
	var records []*models.Record

	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			if p.config.SkipInvalidRows {
				stats.TotalRows++
				stats.SkippedRows++
				stats.Errors = append(stats.Errors, fmt.Errorf("line %d: %w", line, err))
				continue
			}
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}

		if line == 1 && p.config.HasHeader {
			p.columns = p.mapColumns(row)
			continue
		}
		stats.TotalRows++

		if isEmptyRow(row) {
			stats.SkippedRows++
			continue
		}

		rec, err := p.parseRow(row, stats.TotalRows)
		if err != nil {
			if p.config.SkipInvalidRows {
				stats.SkippedRows++
				stats.Errors = append(stats.Errors, fmt.Errorf("line %d: %w", line, err))
				p.logger.WithError(err).WithField("line", line).Debug("row skipped")
				continue
			}
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}

		stats.ParsedRows++
		records = append(records, rec)
	}

	return records, stats, nil
}

// mapColumns resolves the header to field positions, using explicit config
// names first and the alias table second.
func (p *RecordParser) mapColumns(header []string) map[string]int {
	columns := make(map[string]int)

	lookup := func(field, configured string) {
		for i, cell := range header {
			cell = strings.ToLower(strings.TrimSpace(cell))
			if configured != "" {
				if cell == strings.ToLower(configured) {
					columns[field] = i
					return
				}
				continue
			}
			for _, alias := range columnAliases[field] {
				if cell == alias {
					columns[field] = i
					return
				}
			}
		}
	}

	lookup("date", p.config.DateColumn)
	lookup("amount", p.config.AmountColumn)
	lookup("type", p.config.TypeColumn)
	lookup("identifier", p.config.IdentifierColumn)
	lookup("text", p.config.TextColumn)
	lookup("id", p.config.IDColumn)
	return columns
}

func (p *RecordParser) cell(row []string, field string) string {
	idx, mapped := p.columns[field]
	if !mapped || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (p *RecordParser) parseRow(row []string, rowNum int) (*models.Record, error) {
	if p.columns == nil {
		// Headerless files use the fixed layout date,amount,type,identifier,text,id.
		p.columns = map[string]int{"date": 0, "amount": 1, "type": 2, "identifier": 3, "text": 4, "id": 5}
	}

	dateText := p.cell(row, "date")
	date, err := p.parseDate(dateText)
	if err != nil {
		return nil, err
	}

	amountText := p.cell(row, "amount")
	amount, err := parseAmount(amountText)
	if err != nil {
		return nil, err
	}

	recordID := p.cell(row, "id")
	if recordID == "" {
		recordID = fmt.Sprintf("row-%d", rowNum)
	}

	rec := models.NewRecord(
		p.config.SourceID,
		recordID,
		date,
		amount,
		p.cell(row, "type"),
		p.cell(row, "identifier"),
		p.cell(row, "text"),
	)
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *RecordParser) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing date")
	}

	formats := p.config.DateFormats
	if len(formats) == 0 {
		formats = defaultDateFormats
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// parseAmount handles the separator styles that appear in the exports:
// "1234.56", "1.234,56", "1234,56", "R$ 99,90" and negatives of each.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.TrimPrefix(cleaned, "R$")
	cleaned = strings.TrimSpace(cleaned)

	negative := strings.HasPrefix(cleaned, "-")
	cleaned = strings.TrimPrefix(cleaned, "-")

	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}

	// A comma after the last dot, or a lone comma, marks decimal-comma
	// style: dots are thousands separators.
	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	if lastComma > lastDot {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	} else if lastComma >= 0 {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q: %w", s, err)
	}
	if negative {
		amount = amount.Neg()
	}
	return models.NormalizeAmount(amount), nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
