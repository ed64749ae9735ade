// Package store owns the donation registry: the mapping from sequential
// donation ID to record, and the counter that assigns new IDs. All mutation
// goes through Create and Execute; reads return snapshots.
package store

import (
	"context"

	"aidledger/internal/donation/models"
	"aidledger/pkg/domain"
)

// Store is implemented by the in-memory registry and the Postgres registry.
//
// Execute is the atomic validate-then-mutate primitive: the implementation
// holds its lock (mutex or SELECT ... FOR UPDATE) across both callbacks, so a
// concurrent call against the same ID observes either the record before or
// after the whole mutation, never in between. If validate returns an error
// the record is left untouched and the error is returned as-is.
type Store interface {
	// Create assigns the next sequential ID, stores the record, and returns
	// the assigned ID. IDs start at zero with no gaps and no reuse.
	Create(ctx context.Context, d *models.Donation) (domain.DonationID, error)

	// FindByID returns a snapshot of the record, or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id domain.DonationID) (*models.Donation, error)

	// Execute atomically validates and mutates one record, returning a
	// snapshot of the updated record.
	Execute(ctx context.Context, id domain.DonationID,
		validate func(*models.Donation) error,
		apply func(*models.Donation)) (*models.Donation, error)

	// Count returns the number of records ever created (the next ID).
	Count(ctx context.Context) (uint64, error)
}
