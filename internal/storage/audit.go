package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salesbot/pkg"
	"salesbot/src/logger"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// AuditLog appends entries to audit_logs
type AuditLog struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditLog creates an audit log on an open database
func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db, now: time.Now}
}

// Log writes one entry. Failures are logged and returned.
func (a *AuditLog) Log(ctx context.Context, scope Scope, action string, metadata map[string]any) error {
	entry := &pkg.AuditEntry{
		ID:        uuid.NewString(),
		OwnerID:   scope.OwnerID,
		SessionID: scope.SessionID,
		Action:    action,
		Metadata:  metadata,
		CreatedAt: a.now().UTC(),
	}
	if entry.OwnerID == "" {
		entry.OwnerID = AnonymousOwner
	}
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}

	err := a.insert(ctx, entry)
	if err != nil {
		logger.Error().Err(err).Str("action", action).Str("session_id", scope.SessionID).Msg("❌ Failed to write audit entry")
	}
	return err
}

func (a *AuditLog) insert(ctx context.Context, entry *pkg.AuditEntry) error {
	metadata, err := sonic.MarshalString(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal audit metadata: %w", err)
	}
	var sessionID any
	if entry.SessionID != "" {
		sessionID = entry.SessionID
	}

	return Retry(ctx, func() error {
		_, err := a.db.ExecContext(ctx, `
			INSERT INTO audit_logs (id, admin_id, session_id, action, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.OwnerID, sessionID, entry.Action, metadata, toMillis(entry.CreatedAt))
		return err
	})
}

// List returns entries for a session, oldest first
func (a *AuditLog) List(ctx context.Context, sessionID string) ([]*pkg.AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, admin_id, COALESCE(session_id, ''), action, metadata, created_at
		FROM audit_logs WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit_logs: %w", err)
	}
	defer rows.Close()

	var out []*pkg.AuditEntry
	for rows.Next() {
		var entry pkg.AuditEntry
		var metadata string
		var createdAt int64
		if err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.SessionID, &entry.Action, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if err := sonic.UnmarshalString(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
		}
		entry.CreatedAt = fromMillis(createdAt)
		out = append(out, &entry)
	}
	return out, rows.Err()
}
