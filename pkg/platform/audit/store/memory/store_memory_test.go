package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "accounts/pkg/domain"
	audit "accounts/pkg/platform/audit"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	alice, bob := id.NewUserID(), id.NewUserID()
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, audit.Event{UserID: alice, Action: "user_created", Timestamp: base}))
	require.NoError(t, store.Append(ctx, audit.Event{UserID: bob, Action: "user_created", Timestamp: base.Add(time.Minute)}))
	require.NoError(t, store.Append(ctx, audit.Event{UserID: alice, Action: "verification_requested", Timestamp: base.Add(2 * time.Minute)}))

	t.Run("list by user keeps append order", func(t *testing.T) {
		events, err := store.ListByUser(ctx, alice)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "user_created", events[0].Action)
		assert.Equal(t, "verification_requested", events[1].Action)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		events, err := store.ListByUser(ctx, alice)
		require.NoError(t, err)
		events[0].Action = "tampered"

		again, err := store.ListByUser(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "user_created", again[0].Action)
	})

	t.Run("recent is newest first and limited", func(t *testing.T) {
		events, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "verification_requested", events[0].Action)
		assert.Equal(t, bob, events[1].UserID)
	})

	t.Run("clear", func(t *testing.T) {
		store.Clear()
		events, err := store.ListByUser(ctx, alice)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
