package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"salesbot/pkg"
	"salesbot/src/logger"

	"github.com/bytedance/sonic"
)

// Scope identifies who a write belongs to
type Scope struct {
	SessionID string
	OwnerID   string
}

// FetchFunc performs one data retrieval and reports the payload and its size
type FetchFunc func(ctx context.Context) (payload map[string]any, count int, err error)

// ContextTracker records every retrieval attempt in retrieved_context
type ContextTracker struct {
	db  *sql.DB
	now func() time.Time
}

// NewContextTracker creates a tracker on an open database
func NewContextTracker(db *sql.DB) *ContextTracker {
	return &ContextTracker{db: db, now: time.Now}
}

// Track runs fetch and writes exactly one RetrievalRecord for it, success or
// failure. The fetch error is returned alongside the record; a failure to
// write the record is logged and does not replace the fetch outcome.
func (t *ContextTracker) Track(ctx context.Context, scope Scope, source pkg.SourceType, query string, fetch FetchFunc) (*pkg.RetrievalRecord, error) {
	start := t.now()
	payload, count, fetchErr := fetch(ctx)

	rec := &pkg.RetrievalRecord{
		SessionID:       scope.SessionID,
		OwnerID:         scope.OwnerID,
		SourceType:      source,
		QueryText:       query,
		RecordCount:     count,
		Payload:         payload,
		RetrievalTimeMs: t.now().Sub(start).Milliseconds(),
	}
	if fetchErr != nil {
		rec.RecordCount = 0
		rec.ErrorMessage = fetchErr.Error()
	}

	if err := t.Record(ctx, rec); err != nil {
		logger.Error().Err(err).Str("session_id", scope.SessionID).Str("source_type", string(source)).
			Msg("❌ Failed to persist retrieval record")
	}
	return rec, fetchErr
}

// Record appends a retrieval record
func (t *ContextTracker) Record(ctx context.Context, rec *pkg.RetrievalRecord) error {
	if !pkg.ValidRetrievalSource(rec.SourceType) {
		return pkg.NewValidationError(fmt.Sprintf("unknown retrieval source %q", rec.SourceType))
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = t.now().UTC()
	}

	var payload any
	if rec.Payload != nil {
		data, err := sonic.MarshalString(rec.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payload = data
	}
	var errMsg any
	if rec.ErrorMessage != "" {
		errMsg = rec.ErrorMessage
	}

	return Retry(ctx, func() error {
		res, err := t.db.ExecContext(ctx, `
			INSERT INTO retrieved_context
				(session_id, admin_id, source_type, query_text, record_count, payload, error_message, retrieval_time_ms, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SessionID, rec.OwnerID, string(rec.SourceType), rec.QueryText, rec.RecordCount,
			payload, errMsg, rec.RetrievalTimeMs, toMillis(rec.CreatedAt))
		if err != nil {
			return err
		}
		rec.ID, err = res.LastInsertId()
		return err
	})
}

// Latest returns the newest record of a source for the session, or nil
func (t *ContextTracker) Latest(ctx context.Context, sessionID string, source pkg.SourceType) (*pkg.RetrievalRecord, error) {
	recs, err := t.list(ctx, `WHERE session_id = ? AND source_type = ? ORDER BY id DESC LIMIT 1`, sessionID, string(source))
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Recent returns the newest records for the session, newest first
func (t *ContextTracker) Recent(ctx context.Context, sessionID string, limit int) ([]*pkg.RetrievalRecord, error) {
	return t.list(ctx, `WHERE session_id = ? ORDER BY id DESC LIMIT ?`, sessionID, limit)
}

func (t *ContextTracker) list(ctx context.Context, where string, args ...any) ([]*pkg.RetrievalRecord, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, session_id, admin_id, source_type, query_text, record_count, payload, error_message, retrieval_time_ms, created_at
		FROM retrieved_context `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query retrieved_context: %w", err)
	}
	defer rows.Close()

	var out []*pkg.RetrievalRecord
	for rows.Next() {
		var rec pkg.RetrievalRecord
		var source string
		var payload, errMsg sql.NullString
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.OwnerID, &source, &rec.QueryText, &rec.RecordCount,
			&payload, &errMsg, &rec.RetrievalTimeMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan retrieved_context row: %w", err)
		}
		rec.SourceType = pkg.SourceType(source)
		rec.ErrorMessage = errMsg.String
		rec.CreatedAt = fromMillis(createdAt)
		if payload.Valid {
			if err := sonic.UnmarshalString(payload.String, &rec.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}
