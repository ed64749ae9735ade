package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "aidledger/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps per-donation append order", func(t *testing.T) {
		s := NewInMemoryStore()
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 0, Action: "request_initialized"}))
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 1, Action: "request_initialized"}))
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 0, Action: "donation_approved"}))

		events, err := s.ListByDonation(ctx, 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "request_initialized", events[0].Action)
		assert.Equal(t, "donation_approved", events[1].Action)
	})

	t.Run("lists nothing for an unknown donation", func(t *testing.T) {
		s := NewInMemoryStore()
		events, err := s.ListByDonation(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("global order spans donations", func(t *testing.T) {
		s := NewInMemoryStore()
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 0, Action: "a"}))
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 1, Action: "b"}))
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 0, Action: "c"}))

		all, err := s.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "b", all[1].Action)
		assert.Equal(t, 3, s.Len())
	})

	t.Run("recent returns the tail", func(t *testing.T) {
		s := NewInMemoryStore()
		for _, a := range []string{"a", "b", "c", "d"} {
			require.NoError(t, s.Append(ctx, audit.Event{Action: a}))
		}

		recent, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "c", recent[0].Action)
		assert.Equal(t, "d", recent[1].Action)

		all, err := s.ListRecent(ctx, 100)
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("returned slices do not alias the log", func(t *testing.T) {
		s := NewInMemoryStore()
		require.NoError(t, s.Append(ctx, audit.Event{DonationID: 0, Action: "a"}))

		events, err := s.ListByDonation(ctx, 0)
		require.NoError(t, err)
		events[0].Action = "tampered"

		again, err := s.ListByDonation(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, "a", again[0].Action)
	})
}
