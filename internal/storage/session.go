package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"salesbot/pkg"

	"github.com/google/uuid"
)

// AnonymousOwner is used when the caller supplies no owner id
const AnonymousOwner = "anonymous"

// temporarySessionPrefix marks client-side placeholder ids that never resolve
const temporarySessionPrefix = "temp-"

// SessionStore owns session lifecycle records
type SessionStore interface {
	// ValidateOrCreate returns the active session for sessionID, or a fresh
	// active session when the id is absent, unknown or no longer active.
	// The boolean reports whether a session was created.
	ValidateOrCreate(ctx context.Context, sessionID, ownerID string) (*pkg.Session, bool, error)
	Get(ctx context.Context, sessionID string) (*pkg.Session, error)
	Touch(ctx context.Context, sessionID string) error
	End(ctx context.Context, sessionID string) error
}

// SQLiteSessionStore keeps sessions in the admin_sessions table
type SQLiteSessionStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteSessionStore creates a session store on an open database
func NewSQLiteSessionStore(db *sql.DB) *SQLiteSessionStore {
	return &SQLiteSessionStore{db: db, now: time.Now}
}

// ValidateOrCreate implements SessionStore
func (s *SQLiteSessionStore) ValidateOrCreate(ctx context.Context, sessionID, ownerID string) (*pkg.Session, bool, error) {
	if ownerID == "" {
		ownerID = AnonymousOwner
	}

	newID, err := resolveSessionID(ctx, s, sessionID)
	if err != nil {
		return nil, false, err
	}
	if newID == "" {
		sess, err := s.Get(ctx, sessionID)
		return sess, false, err
	}

	now := toMillis(s.now())
	var affected int64
	err = Retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO admin_sessions (session_id, admin_id, status, created_at, last_activity)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(session_id) DO NOTHING`,
			newID, ownerID, string(pkg.SessionActive), now, now)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create session: %w", err)
	}

	sess, err := s.Get(ctx, newID)
	if err != nil {
		return nil, false, err
	}
	return sess, affected == 1, nil
}

// Get loads a session, failing with NotFound when the id is unknown
func (s *SQLiteSessionStore) Get(ctx context.Context, sessionID string) (*pkg.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, admin_id, status, created_at, last_activity, ended_at
		FROM admin_sessions WHERE session_id = ?`, sessionID)

	var sess pkg.Session
	var status string
	var createdAt, lastActivity int64
	var endedAt sql.NullInt64
	err := row.Scan(&sess.ID, &sess.OwnerID, &status, &createdAt, &lastActivity, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.NewNotFoundError("session " + sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}

	sess.Status = pkg.SessionStatus(status)
	sess.CreatedAt = fromMillis(createdAt)
	sess.LastActivityAt = fromMillis(lastActivity)
	if endedAt.Valid {
		t := fromMillis(endedAt.Int64)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// Touch updates last_activity for an active session
func (s *SQLiteSessionStore) Touch(ctx context.Context, sessionID string) error {
	return Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE admin_sessions SET last_activity = ? WHERE session_id = ? AND status = ?`,
			toMillis(s.now()), sessionID, string(pkg.SessionActive))
		return err
	})
}

// End marks the session ended
func (s *SQLiteSessionStore) End(ctx context.Context, sessionID string) error {
	now := toMillis(s.now())
	var affected int64
	err := Retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE admin_sessions SET status = ?, ended_at = ? WHERE session_id = ?`,
			string(pkg.SessionEnded), now, sessionID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected == 0 {
		return pkg.NewNotFoundError("session " + sessionID)
	}
	return nil
}

// ExpireIdle marks active sessions idle for longer than ttl as expired
func (s *SQLiteSessionStore) ExpireIdle(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := toMillis(s.now().Add(-ttl))
	var affected int64
	err := Retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE admin_sessions SET status = ? WHERE status = ? AND last_activity < ?`,
			string(pkg.SessionExpired), string(pkg.SessionActive), cutoff)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	return affected, nil
}

// resolveSessionID decides which id a new session gets. An empty result means
// sessionID already names an active session.
//
// A caller-supplied id that is unknown but well formed is adopted so that
// concurrent first contacts with the same id converge on one session.
func resolveSessionID(ctx context.Context, store SessionStore, sessionID string) (string, error) {
	if sessionID == "" || strings.HasPrefix(sessionID, temporarySessionPrefix) {
		return uuid.NewString(), nil
	}

	sess, err := store.Get(ctx, sessionID)
	switch {
	case err == nil && sess.IsActive():
		return "", nil
	case err == nil:
		return uuid.NewString(), nil
	case pkg.IsKind(err, pkg.ErrNotFound):
		if _, parseErr := uuid.Parse(sessionID); parseErr == nil {
			return sessionID, nil
		}
		return uuid.NewString(), nil
	default:
		return "", err
	}
}
