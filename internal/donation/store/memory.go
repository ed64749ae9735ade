package store

import (
	"context"
	"sync"

	"aidledger/internal/donation/models"
	"aidledger/pkg/domain"
	"aidledger/pkg/platform/sentinel"
)

// InMemoryStore keeps donations in an append-only arena. The slice index is
// the donation ID, which makes monotonic no-gap assignment structural rather
// than something to check.
type InMemoryStore struct {
	mu        sync.RWMutex
	donations []*models.Donation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Donation) (domain.DonationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.DonationID(len(s.donations))
	cp := d.Clone()
	cp.ID = id
	s.donations = append(s.donations, cp)
	return id, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.DonationID) (*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, err := s.locked(id)
	if err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

func (s *InMemoryStore) Execute(_ context.Context, id domain.DonationID,
	validate func(*models.Donation) error,
	apply func(*models.Donation)) (*models.Donation, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.locked(id)
	if err != nil {
		return nil, err
	}

	// Validate against a copy so a misbehaving callback cannot leave a
	// half-mutated record behind on error.
	if err := validate(d.Clone()); err != nil {
		return nil, err
	}
	apply(d)
	return d.Clone(), nil
}

func (s *InMemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.donations)), nil
}

// locked returns the live record; callers must hold s.mu.
func (s *InMemoryStore) locked(id domain.DonationID) (*models.Donation, error) {
	if uint64(id) >= uint64(len(s.donations)) {
		return nil, sentinel.ErrNotFound
	}
	return s.donations[id], nil
}
