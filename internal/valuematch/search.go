// Package valuematch implements the single-source value conference search:
// given an operator-typed monetary value, it finds the candidate records whose
// magnitude equals the queried amount, excluding records already consumed by a
// confirmed conferral.
//
// The search is a pure query. It never mutates the ledger or creates
// conferred items; confirmation is the caller's responsibility, which keeps
// the search idempotent and safe to retry.
package valuematch

import (
	"time"

	"pharmacy-reconciliation-service/internal/models"
	conferrors "pharmacy-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// Outcome classifies the result of a conference attempt for the audit trail.
type Outcome string

const (
	// OutcomeMatched: exactly one candidate was found.
	OutcomeMatched Outcome = "matched"

	// OutcomeNotFound: no unreserved record matches the queried value.
	// Recorded for audit, not an error.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeAmbiguous: more than one candidate; the caller must
	// disambiguate, the search never guesses.
	OutcomeAmbiguous Outcome = "ambiguous"

	// OutcomeAlreadyConferred: a confirmation attempt hit a record that is
	// already consumed. Emitted by the caller after a failed confirm.
	OutcomeAlreadyConferred Outcome = "already_conferred"
)

// Event is the plain audit record handed to the persistence collaborator.
// The core performs no I/O itself.
type Event struct {
	RecordRef  string    `json:"recordRef,omitempty"`
	QueryValue string    `json:"queryValue,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventSink receives audit events for persistence.
type EventSink interface {
	Emit(Event)
}

// NopSink discards events.
type NopSink struct{}

// Emit implements EventSink.
func (NopSink) Emit(Event) {}

// ReservedSet answers whether a record key is currently consumed.
// *ledger.Ledger satisfies it.
type ReservedSet interface {
	IsReserved(recordKey string) bool
}

// SearchResult is the outcome of one value search.
type SearchResult struct {
	// Query is the parsed, normalized query amount.
	Query decimal.Decimal

	// Matches holds the unreserved records whose |amount| equals Query,
	// in original record order.
	Matches []*models.Record

	// Outcome is matched, not_found or ambiguous.
	Outcome Outcome
}

// HasMatches reports whether any candidate was found.
func (sr *SearchResult) HasMatches() bool {
	return len(sr.Matches) > 0
}

// IsUnique reports whether the result is eligible for automatic confirmation.
func (sr *SearchResult) IsUnique() bool {
	return len(sr.Matches) == 1
}

// Searcher runs value conference searches against a record pool, gated by the
// dedup ledger and reporting outcomes to the audit sink.
type Searcher struct {
	reserved ReservedSet
	sink     EventSink
}

// NewSearcher creates a searcher. A nil sink discards events; a nil reserved
// set treats every record as available.
func NewSearcher(reserved ReservedSet, sink EventSink) *Searcher {
	if sink == nil {
		sink = NopSink{}
	}
	return &Searcher{reserved: reserved, sink: sink}
}

// Search finds records whose normalized |amount| equals the queried value.
// The amount sign is ignored: the operator confers magnitudes.
//
// Invalid input (empty, non-numeric, negative) returns an invalid_value error
// and emits nothing. Zero matches is not an error; it is recorded as a
// not_found outcome for the audit trail.
func (s *Searcher) Search(queryText string, records []*models.Record) (*SearchResult, error) {
	query, err := models.ParseQueryAmount(queryText)
	if err != nil {
		return nil, conferrors.InvalidValueError(queryText, err)
	}

	result := &SearchResult{Query: query}

	for _, rec := range records {
		if s.reserved != nil && s.reserved.IsReserved(rec.Key()) {
			continue
		}
		if rec.AbsAmount().Equal(query) {
			result.Matches = append(result.Matches, rec)
		}
	}

	switch len(result.Matches) {
	case 0:
		result.Outcome = OutcomeNotFound
		s.sink.Emit(Event{
			QueryValue: query.StringFixed(2),
			Outcome:    OutcomeNotFound,
			Timestamp:  time.Now().UTC(),
		})
	case 1:
		result.Outcome = OutcomeMatched
		s.sink.Emit(Event{
			RecordRef:  result.Matches[0].Key(),
			QueryValue: query.StringFixed(2),
			Outcome:    OutcomeMatched,
			Timestamp:  time.Now().UTC(),
		})
	default:
		// More than one candidate: the caller runs a selection step.
		// The matched event is emitted after the operator picks one.
		result.Outcome = OutcomeAmbiguous
	}

	return result, nil
}

// EmitConfirmed reports the record chosen after a disambiguation step.
func (s *Searcher) EmitConfirmed(record *models.Record, query decimal.Decimal) {
	s.sink.Emit(Event{
		RecordRef:  record.Key(),
		QueryValue: query.StringFixed(2),
		Outcome:    OutcomeMatched,
		Timestamp:  time.Now().UTC(),
	})
}

// EmitAlreadyConferred reports a confirmation attempt that lost to an
// existing conferral, so the audit trail distinguishes it from not_found.
func (s *Searcher) EmitAlreadyConferred(record *models.Record, query decimal.Decimal) {
	s.sink.Emit(Event{
		RecordRef:  record.Key(),
		QueryValue: query.StringFixed(2),
		Outcome:    OutcomeAlreadyConferred,
		Timestamp:  time.Now().UTC(),
	})
}
