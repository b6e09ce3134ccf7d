package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salesbot/pkg"
	kv "salesbot/src/storage"
)

const sessionPrefix = "session:"

// RedisSessionStore keeps sessions as JSON documents under "session:{id}".
// Idle sessions disappear with the key TTL, which reads as "unknown" and
// leads to a fresh session on the next turn.
type RedisSessionStore struct {
	docs *kv.RedisStorage[pkg.Session]
	now  func() time.Time
}

// NewRedisSessionStore connects to Redis
func NewRedisSessionStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisSessionStore, error) {
	docs, err := kv.NewRedisStorage[pkg.Session](ctx, redisURL, sessionPrefix, ttl)
	if err != nil {
		return nil, err
	}
	return &RedisSessionStore{docs: docs, now: time.Now}, nil
}

// ValidateOrCreate implements SessionStore
func (r *RedisSessionStore) ValidateOrCreate(ctx context.Context, sessionID, ownerID string) (*pkg.Session, bool, error) {
	if ownerID == "" {
		ownerID = AnonymousOwner
	}

	newID, err := resolveSessionID(ctx, r, sessionID)
	if err != nil {
		return nil, false, err
	}
	if newID == "" {
		sess, err := r.Get(ctx, sessionID)
		return sess, false, err
	}

	now := r.now().UTC()
	sess := &pkg.Session{
		ID:             newID,
		OwnerID:        ownerID,
		Status:         pkg.SessionActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	created, err := r.docs.SetNX(ctx, newID, sess)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}
	if created {
		return sess, true, nil
	}

	existing, err := r.Get(ctx, newID)
	return existing, false, err
}

// Get loads a session, failing with NotFound when the key is gone
func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) (*pkg.Session, error) {
	sess, err := r.docs.Get(ctx, sessionID)
	if errors.Is(err, kv.ErrMissing) {
		return nil, pkg.NewNotFoundError("session " + sessionID)
	}
	return sess, err
}

// Touch refreshes last_activity and the key TTL
func (r *RedisSessionStore) Touch(ctx context.Context, sessionID string) error {
	sess, err := r.docs.GetAndTouch(ctx, sessionID)
	if err != nil {
		if errors.Is(err, kv.ErrMissing) {
			return pkg.NewNotFoundError("session " + sessionID)
		}
		return err
	}
	if !sess.IsActive() {
		return nil
	}
	sess.LastActivityAt = r.now().UTC()
	return r.docs.Set(ctx, sessionID, sess)
}

// End marks the session ended
func (r *RedisSessionStore) End(ctx context.Context, sessionID string) error {
	sess, err := r.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	now := r.now().UTC()
	sess.Status = pkg.SessionEnded
	sess.EndedAt = &now
	return r.docs.Set(ctx, sessionID, sess)
}

// PingContext reports whether Redis answers
func (r *RedisSessionStore) PingContext(ctx context.Context) error {
	return r.docs.Ping(ctx)
}

// Close closes the Redis connection
func (r *RedisSessionStore) Close() error {
	return r.docs.Close()
}
