package memory

import (
	"context"
	"sync"

	"aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"
)

// InMemoryStore keeps the audit log in process memory. Events are held both
// per donation and in global append order; there is no mutation API beyond
// Append.
type InMemoryStore struct {
	mu         sync.RWMutex
	byDonation map[domain.DonationID][]audit.Event
	ordered    []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byDonation: make(map[domain.DonationID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDonation[event.DonationID] = append(s.byDonation[event.DonationID], event)
	s.ordered = append(s.ordered, event)
	return nil
}

// ListByDonation returns the transition trail for one donation in append
// order.
func (s *InMemoryStore) ListByDonation(_ context.Context, id domain.DonationID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.byDonation[id]...), nil
}

// ListAll returns every event across all donations in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.ordered...), nil
}

// ListRecent returns the most recent N events in append order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.ordered) - limit
	if start < 0 {
		start = 0
	}
	return append([]audit.Event{}, s.ordered[start:]...), nil
}

// Len reports the number of appended events.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ordered)
}
