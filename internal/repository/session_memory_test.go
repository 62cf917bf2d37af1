package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/davomat-bot/internal/models"
)

func TestMemorySessionStoreMissingIsIdle(t *testing.T) {
	store := NewMemorySessionStore()
	sess, err := store.Get(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, sess.State)
	assert.Nil(t, sess.PendingReason)
}

func TestMemorySessionStorePutGetDelete(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	sess := models.Session{
		State:   models.StateAwaitingReason,
		Subject: "Math",
		PendingReason: &models.PendingReasonTarget{
			Student:   "Ali",
			Subject:   "Math",
			MessageID: 42,
		},
	}
	require.NoError(t, store.Put(ctx, 100, sess))

	got, err := store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	require.NoError(t, store.Delete(ctx, 100))
	got, err = store.Get(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, got.State)
}

func TestMemorySessionStoreIsolatesOperators(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, 100, models.Session{State: models.StateMarking, Subject: "Math"}))
	require.NoError(t, store.Put(ctx, 200, models.Session{State: models.StateBrowsingJournal}))

	first, err := store.Get(ctx, 100)
	require.NoError(t, err)
	second, err := store.Get(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, models.StateMarking, first.State)
	assert.Equal(t, models.StateBrowsingJournal, second.State)
}
