package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/orderflow/pkg/domain"
)

// RunSessionStoreContract verifies that a SessionStore implementation honors
// the interface contract. Adapters call it from their own tests.
func RunSessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sessionID := "contract-session-" + time.Now().Format("20060102150405.000")

	t.Run("Save and Load", func(t *testing.T) {
		s := domain.NewSessionContext(sessionID, "greeting", now)
		s.RecordAnswer("greeting", "visit_purpose", "Place an order")
		s.Append(domain.RoleUser, "Place an order", now)
		s.Turn = 1

		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, s.Stage, loaded.Stage)
		assert.Equal(t, 1, loaded.Turn)
		answer, ok := loaded.Answer("greeting", "visit_purpose")
		assert.True(t, ok)
		assert.Equal(t, "Place an order", answer)
		require.Len(t, loaded.Messages, 1)
		assert.Equal(t, "Place an order", loaded.Messages[0].Content)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		s := domain.NewSessionContext(sessionID, "greeting", now)
		require.NoError(t, store.Save(ctx, s))

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Stage = "support"
		loaded.RecordAnswer("support", "x", "y")

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, "greeting", again.Stage)
		assert.Empty(t, again.Answered)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, domain.NewSessionContext(sessionID, "greeting", now)))
		require.NoError(t, store.Delete(ctx, sessionID))

		_, err := store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")

		assert.NoError(t, store.Delete(ctx, sessionID), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		require.NoError(t, store.Save(ctx, domain.NewSessionContext(id1, "greeting", now)))
		require.NoError(t, store.Save(ctx, domain.NewSessionContext(id2, "greeting", now)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
