package parsers

import (
	"strings"

	"pharmacy-reconciliation-service/pkg/errors"
)

// RecordParserConfig maps CSV columns to record fields for one source file.
// Column names are matched case-insensitively against the header, falling back
// to a built-in alias table, so the common Brazilian back-office exports parse
// without per-file configuration.
type RecordParserConfig struct {
	// SourceID tags every parsed record; the reconciliation engine only
	// pairs records across different sources.
	SourceID string

	DateColumn       string
	AmountColumn     string
	TypeColumn       string
	IdentifierColumn string
	TextColumn       string
	IDColumn         string

	// DateFormats are tried in order. Empty uses the default list.
	DateFormats []string

	HasHeader bool
	Delimiter rune

	// SkipInvalidRows drops rows that fail to parse instead of failing the
	// whole file; the parse stats record how many were dropped.
	SkipInvalidRows bool
}

// DefaultRecordParserConfig returns a configuration for the common export
// layout: header row, comma delimiter, invalid rows skipped.
func DefaultRecordParserConfig(sourceID string) *RecordParserConfig {
	return &RecordParserConfig{
		SourceID:        sourceID,
		HasHeader:       true,
		Delimiter:       ',',
		SkipInvalidRows: true,
	}
}

// Validate checks the configuration.
func (c *RecordParserConfig) Validate() error {
	if strings.TrimSpace(c.SourceID) == "" {
		return errors.ConfigurationError("source_id", c.SourceID, nil).
			WithSuggestion("Give each input file a source identifier, e.g. bank or caixa")
	}
	if c.Delimiter == 0 {
		c.Delimiter = ','
	}
	return nil
}

// Column aliases accepted when the config does not name a column explicitly.
// Matching is case-insensitive against the trimmed header cell.
var columnAliases = map[string][]string{
	"date":       {"date", "data", "dt", "transaction_date", "data_movimento"},
	"amount":     {"amount", "valor", "value", "vlr", "montante"},
	"type":       {"type", "tipo", "payment_type", "forma_pagamento", "forma"},
	"identifier": {"identifier", "cpf", "cnpj", "documento", "doc", "id_cliente"},
	"text":       {"description", "descricao", "historico", "memo", "texto", "obs"},
	"id":         {"id", "record_id", "codigo", "num", "numero", "seq"},
}

// defaultDateFormats are tried in order when the config does not pin formats.
var defaultDateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"02/01/06",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02-01-2006",
}
