// Package models defines the normalized transaction record consumed by every
// other component, along with the plain data structures produced by the
// conference and reconciliation flows.
//
// All monetary values are carried as decimal.Decimal and normalized to two
// decimal places at construction time. Downstream components never re-parse
// or coerce amounts; the Record boundary is the single place where raw input
// becomes a canonical decimal.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known payment type tags. The set is open: parsers may emit any tag the
// source uses, these constants only cover the ones the pharmacy front office
// produces itself.
const (
	PaymentCash     = "dinheiro"
	PaymentCard     = "cartao"
	PaymentPix      = "pix"
	PaymentConvenio = "convenio"
)

// Record is one normalized transaction entry from a single source. Records are
// immutable once produced by a parser; every component treats them as
// read-only values.
type Record struct {
	// Date is the transaction date at day precision. Time-of-day is always
	// midnight UTC.
	Date time.Time `json:"date"`

	// PaymentType is a categorical tag (open string set).
	PaymentType string `json:"paymentType,omitempty"`

	// Identifier is the optional national tax ID (CPF/CNPJ) in digits-only
	// canonical form. Empty when the source row carries none.
	Identifier string `json:"identifier,omitempty"`

	// Amount is the signed value, normalized to two decimal places.
	// Credits are positive, debits negative.
	Amount decimal.Decimal `json:"amount"`

	// OriginalText is the free-form source description.
	OriginalText string `json:"originalText,omitempty"`

	// SourceID names the external source or batch that produced the record.
	SourceID string `json:"sourceId"`

	// RecordID is stable and unique within its source.
	RecordID string `json:"recordId"`
}

// NewRecord builds a Record with canonical amount and identifier forms.
// The amount is rounded to two decimal places (half away from zero) and the
// identifier is reduced to digits. The date is truncated to day precision.
func NewRecord(sourceID, recordID string, date time.Time, amount decimal.Decimal, paymentType, identifier, originalText string) *Record {
	return &Record{
		Date:         TruncateToDay(date),
		PaymentType:  strings.ToLower(strings.TrimSpace(paymentType)),
		Identifier:   NormalizeIdentifier(identifier),
		Amount:       NormalizeAmount(amount),
		OriginalText: strings.TrimSpace(originalText),
		SourceID:     sourceID,
		RecordID:     recordID,
	}
}

// Validate performs basic validation on the Record.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" {
		return fmt.Errorf("record ID cannot be empty")
	}

	if strings.TrimSpace(r.SourceID) == "" {
		return fmt.Errorf("record source ID cannot be empty")
	}

	if r.Date.IsZero() {
		return fmt.Errorf("record date cannot be zero")
	}

	if !r.Amount.Equal(NormalizeAmount(r.Amount)) {
		return fmt.Errorf("record amount %s is not normalized to two decimal places", r.Amount.String())
	}

	return nil
}

// Key returns the globally unique handle for the record, combining source and
// record IDs. RecordID alone is only unique within one source.
func (r *Record) Key() string {
	return r.SourceID + "/" + r.RecordID
}

// AbsAmount returns the unsigned magnitude of the record amount.
func (r *Record) AbsAmount() decimal.Decimal {
	return r.Amount.Abs()
}

// IsCredit returns true for positive amounts.
func (r *Record) IsCredit() bool {
	return r.Amount.IsPositive()
}

// IsDebit returns true for negative amounts.
func (r *Record) IsDebit() bool {
	return r.Amount.IsNegative()
}

// String returns a string representation of the Record.
func (r *Record) String() string {
	return fmt.Sprintf("Record{%s, %s, %s, %s}",
		r.Key(), r.Amount.StringFixed(2), r.Date.Format("2006-01-02"), r.PaymentType)
}

// MarshalJSON renders the amount as a fixed two-decimal string and the date at
// day precision.
func (r *Record) MarshalJSON() ([]byte, error) {
	type Alias Record
	return json.Marshal(&struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Date:   r.Date.Format("2006-01-02"),
		Amount: r.Amount.StringFixed(2),
		Alias:  (*Alias)(r),
	})
}

// UnmarshalJSON parses the day-precision date and decimal amount emitted by
// MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	type Alias Record
	aux := &struct {
		Date   string `json:"date"`
		Amount string `json:"amount"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	r.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	r.Date, err = time.Parse("2006-01-02", aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// Equals compares two Record instances for equality.
func (r *Record) Equals(other *Record) bool {
	if other == nil {
		return false
	}

	return r.Key() == other.Key() &&
		r.Amount.Equal(other.Amount) &&
		r.Date.Equal(other.Date) &&
		r.PaymentType == other.PaymentType &&
		r.Identifier == other.Identifier
}

// ConferredItem is a Record confirmed against an operator-supplied value.
// It is created only through a successful match confirmation and destroyed only
// by an explicit undo, which releases the Record back to the unmatched pool.
type ConferredItem struct {
	Record      *Record   `json:"record"`
	ConferredAt time.Time `json:"conferredAt"`
	ConferredID string    `json:"conferredId"`
}

// String returns a string representation of the ConferredItem.
func (ci *ConferredItem) String() string {
	return fmt.Sprintf("ConferredItem{%s, record: %s, at: %s}",
		ci.ConferredID, ci.Record.Key(), ci.ConferredAt.Format(time.RFC3339))
}

// MatchType classifies how a reconciliation match was established.
type MatchType string

const (
	// MatchExact is a high-confidence match, typically identical value,
	// date and identifier.
	MatchExact MatchType = "exact"

	// MatchApproximate is a match within configured tolerances.
	MatchApproximate MatchType = "approximate"

	// MatchPattern is a lower-confidence match established through partial
	// field agreement or custom rules.
	MatchPattern MatchType = "pattern"

	// MatchManual marks a correspondence attached by an operator rather
	// than proposed by the engine.
	MatchManual MatchType = "manual"
)

// Severity grades a field-level discrepancy.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ResolutionAction is the operator decision attached to a match after review.
type ResolutionAction string

const (
	ResolutionAccept      ResolutionAction = "accept"
	ResolutionReject      ResolutionAction = "reject"
	ResolutionMerge       ResolutionAction = "merge"
	ResolutionInvestigate ResolutionAction = "investigate"
)

// Resolution records an operator action on a proposed match.
type Resolution struct {
	Action     ResolutionAction `json:"action"`
	ResolvedAt time.Time        `json:"resolvedAt"`
	Note       string           `json:"note,omitempty"`
}

// Participant ties one record to the fields that supported its match.
type Participant struct {
	SourceID       string   `json:"sourceId"`
	Record         *Record  `json:"record"`
	MatchingFields []string `json:"matchingFields"`
}

// Discrepancy is a field-level disagreement between records that are otherwise
// considered a match.
type Discrepancy struct {
	Field          string            `json:"field"`
	ValuesBySource map[string]string `json:"valuesBySource"`
	Severity       Severity          `json:"severity"`
	Reason         string            `json:"reason"`
}

// ReconciliationMatch is a proposed correspondence between two or more records
// from different sources. Immutable once produced except for the attached
// Resolution.
type ReconciliationMatch struct {
	Confidence    float64        `json:"confidence"`
	MatchType     MatchType      `json:"matchType"`
	Participants  []*Participant `json:"participants"`
	Discrepancies []*Discrepancy `json:"discrepancies,omitempty"`
	Resolution    *Resolution    `json:"resolution,omitempty"`
}

// ConfidenceHistogram buckets match confidences into fixed bands.
type ConfidenceHistogram struct {
	High   int `json:"high"`   // confidence >= 0.9
	Medium int `json:"medium"` // 0.7 <= confidence < 0.9
	Low    int `json:"low"`    // 0.3 <= confidence < 0.7
}

// ReportSummary aggregates counts and totals for one reconciliation run.
// A record counts as matched when it appears in at least one match, regardless
// of how many matches it appears in.
type ReportSummary struct {
	TotalRecords     int                 `json:"totalRecords"`
	MatchedRecords   int                 `json:"matchedRecords"`
	UnmatchedRecords int                 `json:"unmatchedRecords"`
	TotalValue       decimal.Decimal     `json:"totalValue"`
	MatchedValue     decimal.Decimal     `json:"matchedValue"`
	UnmatchedValue   decimal.Decimal     `json:"unmatchedValue"`
	RecordsBySource  map[string]int      `json:"recordsBySource"`
	Histogram        ConfidenceHistogram `json:"histogram"`
}

// ReconciliationReport is the aggregate result of one reconcile run.
// Read-only after the run completes.
type ReconciliationReport struct {
	RunID            string                 `json:"runId"`
	GeneratedAt      time.Time              `json:"generatedAt"`
	Duration         time.Duration          `json:"duration"`
	Matches          []*ReconciliationMatch `json:"matches"`
	UnmatchedRecords []*Record              `json:"unmatchedRecords,omitempty"`
	Summary          ReportSummary          `json:"summary"`
}

// Normalization and comparison helpers. These are the only places where raw
// strings become canonical amounts, identifiers and dates.

// NormalizeAmount rounds to two decimal places using round-half-away-from-zero.
func NormalizeAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// NormalizeIdentifier reduces a tax ID to its digits-only canonical form.
// "123.456.789-01" and "12345678901" normalize to the same value.
func NormalizeIdentifier(id string) string {
	var b strings.Builder
	for _, ch := range id {
		if ch >= '0' && ch <= '9' {
			b.WriteByte(byte(ch))
		}
	}
	return b.String()
}

// ParseQueryAmount parses an operator-typed monetary value. Both '.' and ','
// are accepted as the decimal separator; thousand separators in the Brazilian
// style ("1.234,56") are stripped. Negative and non-numeric input is rejected.
func ParseQueryAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("value cannot be empty")
	}

	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)

	if strings.Contains(s, ",") {
		// Comma is the decimal separator; any dots are thousand separators.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s': %w", s, err)
	}

	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("value cannot be negative: %s", s)
	}

	return NormalizeAmount(d), nil
}

// TruncateToDay drops the time component, keeping day-month-year in UTC.
func TruncateToDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two dates fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return TruncateToDay(a).Equal(TruncateToDay(b))
}

// DaysApart returns the absolute number of calendar days between two dates.
func DaysApart(a, b time.Time) int {
	diff := TruncateToDay(a).Sub(TruncateToDay(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// SharedDigits returns the length of the longest contiguous digit run shared
// by two identifiers. Used to tolerate masked identifiers ("123***78901")
// where exact comparison is impossible.
func SharedDigits(a, b string) int {
	a = NormalizeIdentifier(a)
	b = NormalizeIdentifier(b)
	if a == "" || b == "" {
		return 0
	}

	// Longest common substring over digit strings. Identifiers are short
	// (CPF 11, CNPJ 14 digits), so the quadratic table is fine.
	longest := 0
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > longest {
					longest = curr[j]
				}
			} else {
				curr[j] = 0
			}
		}
		prev, curr = curr, prev
	}
	return longest
}
