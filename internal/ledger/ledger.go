// Package ledger tracks which records have been consumed by confirmed
// conferrals so they cannot be matched twice.
//
// The Ledger itself is a pure, mutex-guarded set of record keys with no
// knowledge of why a key was reserved. The Session pairs reservations with
// ConferredItem lifecycle so the two always change together. Both are
// explicitly constructed and injectable: one session per operator conference
// session, no ambient global state.
package ledger

import (
	"sync"
	"time"

	"pharmacy-reconciliation-service/internal/models"
	conferrors "pharmacy-reconciliation-service/pkg/errors"

	"github.com/google/uuid"
)

// Ledger is the dedup/transfer set. A record key is present iff the record is
// currently consumed by exactly one live conferred item.
type Ledger struct {
	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		reserved: make(map[string]struct{}),
	}
}

// Reserve marks a record key as consumed. Returns false when the key is
// already reserved; under concurrent confirmation attempts for the same key,
// exactly one caller observes true.
func (l *Ledger) Reserve(recordKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, taken := l.reserved[recordKey]; taken {
		return false
	}
	l.reserved[recordKey] = struct{}{}
	return true
}

// Release removes a reservation. Releasing an unreserved key is a no-op.
func (l *Ledger) Release(recordKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reserved, recordKey)
}

// IsReserved reports whether a record key is currently consumed.
func (l *Ledger) IsReserved(recordKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, taken := l.reserved[recordKey]
	return taken
}

// Len returns the number of reserved keys.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reserved)
}

// Session pairs ledger reservations with conferred item creation and removal,
// keeping the two atomic with respect to each other.
type Session struct {
	ledger *Ledger

	mu    sync.Mutex
	items map[string]*models.ConferredItem // keyed by ConferredID
	byRec map[string]string                // record key -> ConferredID
}

// NewSession creates a conference session backed by the given ledger.
// Multiple sessions may share one ledger when they operate on the same
// record pool.
func NewSession(ledger *Ledger) *Session {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Session{
		ledger: ledger,
		items:  make(map[string]*models.ConferredItem),
		byRec:  make(map[string]string),
	}
}

// Ledger returns the backing ledger, for sharing with search components.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Confirm reserves the record and creates the conferred item in one step.
// When the record is already consumed, an already_conferred error is returned
// and no state changes.
func (s *Session) Confirm(record *models.Record) (*models.ConferredItem, error) {
	key := record.Key()
	if !s.ledger.Reserve(key) {
		return nil, conferrors.AlreadyConferredError(key)
	}

	item := &models.ConferredItem{
		Record:      record,
		ConferredAt: time.Now().UTC(),
		ConferredID: uuid.NewString(),
	}

	s.mu.Lock()
	s.items[item.ConferredID] = item
	s.byRec[key] = item.ConferredID
	s.mu.Unlock()

	return item, nil
}

// Undo destroys a conferred item and releases its record back to the
// unmatched pool. Unknown conferred IDs return an unknown_conferral error.
func (s *Session) Undo(conferredID string) error {
	s.mu.Lock()
	item, ok := s.items[conferredID]
	if !ok {
		s.mu.Unlock()
		return conferrors.UnknownConferralError(conferredID)
	}
	delete(s.items, conferredID)
	delete(s.byRec, item.Record.Key())
	s.mu.Unlock()

	s.ledger.Release(item.Record.Key())
	return nil
}

// Items returns the live conferred items, in no particular order.
func (s *Session) Items() []*models.ConferredItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]*models.ConferredItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	return items
}

// Find returns the live conferred item backing a record key, if any.
func (s *Session) Find(recordKey string) (*models.ConferredItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRec[recordKey]
	if !ok {
		return nil, false
	}
	return s.items[id], true
}
