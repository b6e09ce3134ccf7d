package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"salesbot/pkg"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateOrCreateWithoutID(t *testing.T) {
	store := NewSQLiteSessionStore(newTestDB(t))
	ctx := context.Background()

	sess, created, err := store.ValidateOrCreate(ctx, "", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, pkg.SessionActive, sess.Status)
	assert.Equal(t, AnonymousOwner, sess.OwnerID)

	again, created, err := store.ValidateOrCreate(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
}

func TestValidateOrCreateReplacesEndedSession(t *testing.T) {
	store := NewSQLiteSessionStore(newTestDB(t))
	ctx := context.Background()

	sess, _, err := store.ValidateOrCreate(ctx, "", "admin-1")
	require.NoError(t, err)
	require.NoError(t, store.End(ctx, sess.ID))

	ended, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.SessionEnded, ended.Status)
	assert.NotNil(t, ended.EndedAt)

	fresh, created, err := store.ValidateOrCreate(ctx, sess.ID, "admin-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, sess.ID, fresh.ID)
	assert.True(t, fresh.IsActive())
}

func TestValidateOrCreateUnknownIDs(t *testing.T) {
	store := NewSQLiteSessionStore(newTestDB(t))
	ctx := context.Background()

	known := uuid.NewString()
	sess, created, err := store.ValidateOrCreate(ctx, known, "admin-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, known, sess.ID)

	temp, _, err := store.ValidateOrCreate(ctx, "temp-123", "admin-1")
	require.NoError(t, err)
	assert.NotEqual(t, "temp-123", temp.ID)

	garbage, _, err := store.ValidateOrCreate(ctx, "not a uuid", "admin-1")
	require.NoError(t, err)
	assert.NotEqual(t, "not a uuid", garbage.ID)
}

func TestValidateOrCreateConcurrentSameID(t *testing.T) {
	store := NewSQLiteSessionStore(newTestDB(t))
	ctx := context.Background()
	id := uuid.NewString()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, created, err := store.ValidateOrCreate(ctx, id, "admin-1")
			assert.NoError(t, err)
			assert.Equal(t, id, sess.ID)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
}

func TestTouchAndEnd(t *testing.T) {
	store := NewSQLiteSessionStore(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	sess, _, err := store.ValidateOrCreate(ctx, "", "admin-1")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(10 * time.Minute) }
	require.NoError(t, store.Touch(ctx, sess.ID))

	touched, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Minute), touched.LastActivityAt)

	err = store.End(ctx, "missing")
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))
}

func TestExpireIdle(t *testing.T) {
	store := NewSQLiteSessionStore(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	idle, _, err := store.ValidateOrCreate(ctx, "", "admin-1")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(90 * time.Minute) }
	busy, _, err := store.ValidateOrCreate(ctx, "", "admin-1")
	require.NoError(t, err)

	n, err := store.ExpireIdle(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.Get(ctx, idle.ID)
	require.NoError(t, err)
	assert.Equal(t, pkg.SessionExpired, got.Status)

	got, err = store.Get(ctx, busy.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive())
}
