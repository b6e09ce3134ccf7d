package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
)

// DefaultHistoryLimit is the number of turns loaded when the caller passes none
const DefaultHistoryLimit = 5

// Repository is the append-only conversation log of a session
type Repository interface {
	// Load returns the most recent turns of the session, oldest first
	Load(ctx context.Context, sessionID string, limit int) ([]*pkg.ConversationTurn, error)
	// Append writes one turn
	Append(ctx context.Context, turn *pkg.ConversationTurn) error
}

// SQLiteRepository reads and writes the chat_history table
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Load(ctx context.Context, sessionID string, limit int) ([]*pkg.ConversationTurn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, admin_id, user_message, assistant_response, source_type, response_time_ms, tokens_used, created_at
		FROM chat_history
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	var turns []*pkg.ConversationTurn
	for rows.Next() {
		var turn pkg.ConversationTurn
		var source string
		var tokens sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.OwnerID, &turn.UserMessage, &turn.AssistantResponse,
			&source, &turn.ResponseTimeMs, &tokens, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		turn.SourceType = pkg.SourceType(source)
		turn.CreatedAt = time.UnixMilli(createdAt).UTC()
		if tokens.Valid {
			n := int(tokens.Int64)
			turn.TokensUsed = &n
		}
		turns = append(turns, &turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	// newest first from the query, oldest first for prompts
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (r *SQLiteRepository) Append(ctx context.Context, turn *pkg.ConversationTurn) error {
	if !pkg.ValidTurnSource(turn.SourceType) {
		return pkg.NewValidationError(fmt.Sprintf("unknown turn source %q", turn.SourceType))
	}
	if turn.SessionID == "" {
		return pkg.NewValidationError("turn has no session id")
	}
	if turn.OwnerID == "" {
		turn.OwnerID = storage.AnonymousOwner
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = r.now().UTC()
	}

	var tokens any
	if turn.TokensUsed != nil {
		tokens = *turn.TokensUsed
	}

	return storage.Retry(ctx, func() error {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO chat_history
				(session_id, admin_id, user_message, assistant_response, source_type, response_time_ms, tokens_used, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			turn.SessionID, turn.OwnerID, turn.UserMessage, turn.AssistantResponse, string(turn.SourceType),
			turn.ResponseTimeMs, tokens, turn.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
		turn.ID, err = res.LastInsertId()
		return err
	})
}
