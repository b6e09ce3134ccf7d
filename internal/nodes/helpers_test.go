package nodes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func day(d int) string { return testNow.AddDate(0, 0, d).Format(time.RFC3339) }

type env struct {
	db       *sql.DB
	store    *storage.SQLiteCRMStore
	tracker  *storage.ContextTracker
	audit    *storage.AuditLog
	executor *Executor
	scope    storage.Scope
}

func newEnv(t *testing.T, seed storage.SeedFile) *env {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := storage.NewSQLiteCRMStore(db)
	_, err = storage.Seed(context.Background(), store, seed)
	require.NoError(t, err)

	tracker := storage.NewContextTracker(db)
	audit := storage.NewAuditLog(db)
	return &env{
		db:       db,
		store:    store,
		tracker:  tracker,
		audit:    audit,
		executor: NewExecutor(store, audit, tracker),
		scope:    storage.Scope{SessionID: "4f6c2b0e-8d7a-4c1e-9f3b-2a5d6e7f8a90", OwnerID: "admin-1"},
	}
}

func (e *env) actions(t *testing.T) []string {
	t.Helper()
	entries, err := e.audit.List(context.Background(), e.scope.SessionID)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Action)
	}
	return out
}

func (e *env) retrievals(t *testing.T, source pkg.SourceType) []*pkg.RetrievalRecord {
	t.Helper()
	recs, err := e.tracker.Recent(context.Background(), e.scope.SessionID, 100)
	require.NoError(t, err)
	var out []*pkg.RetrievalRecord
	for _, r := range recs {
		if r.SourceType == source {
			out = append(out, r)
		}
	}
	return out
}

var leadSeed = storage.SeedFile{
	"leads": {
		{"id": 1, "name": "Guna Raj", "email": "guna@example.com", "phone": "9000000001", "lead_status": "Contacted", "created_at": day(-3)},
		{"id": 2, "name": "Priya Shah", "email": "priya@example.com", "phone": "9000000002", "lead_status": "Qualified", "created_at": day(-1)},
	},
}

// scriptedGenerator replays one reply per call and records the options it saw
type scriptedGenerator struct {
	replies []*schema.Message
	err     error
	calls   int
	toolUse []bool
}

func (g *scriptedGenerator) Generate(_ context.Context, _ []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	g.calls++
	g.toolUse = append(g.toolUse, len(einomodel.GetCommonOptions(nil, opts...).Tools) > 0)
	if g.err != nil {
		return nil, g.err
	}
	if len(g.replies) == 0 {
		return schema.AssistantMessage("ok", nil), nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

func toolReply(name, args string) *schema.Message {
	return multiToolReply(name, args)
}

// multiToolReply builds one assistant message carrying name/args pairs as tool calls
func multiToolReply(pairs ...string) *schema.Message {
	var calls []schema.ToolCall
	for i := 0; i+1 < len(pairs); i += 2 {
		calls = append(calls, schema.ToolCall{
			ID:       "call_" + pairs[i],
			Function: schema.FunctionCall{Name: pairs[i], Arguments: pairs[i+1]},
		})
	}
	return schema.AssistantMessage("", calls)
}

type fakeMailer struct {
	err  error
	sent []string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+subject)
	return nil
}
