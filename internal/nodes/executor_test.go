package nodes

import (
	"context"
	"testing"

	"salesbot/pkg"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteWithoutConfirmationDoesNotMutate(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()

	result, err := e.executor.Execute(ctx, e.scope, ToolCall{ID: "c1", Name: "delete_lead", Arguments: map[string]any{"lead_id": float64(1)}}, false)
	require.Error(t, err)
	assert.True(t, pkg.IsKind(err, pkg.ErrConfirmationRequired))
	assert.Equal(t, ActionConfirmationRequired, result.Status)
	assert.Contains(t, result.Prompt, "I'm about to delete lead")

	_, err = e.store.Get(ctx, "leads", 1)
	require.NoError(t, err, "lead must still exist")
	assert.Equal(t, []string{"tool_confirmation_required"}, e.actions(t))

	pending, err := e.executor.Pending(ctx, e.scope.SessionID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "delete_lead", pending.Name)
	assert.Equal(t, "c1", pending.ID)
}

func TestModelSuppliedConfirmIsIgnored(t *testing.T) {
	e := newEnv(t, leadSeed)
	args := map[string]any{"lead_id": float64(2), "confirm": true, "confirmed": true}

	_, err := e.executor.Execute(context.Background(), e.scope, ToolCall{Name: "delete_lead", Arguments: args}, false)
	assert.True(t, pkg.IsKind(err, pkg.ErrConfirmationRequired))
	_, err = e.store.Get(context.Background(), "leads", 2)
	assert.NoError(t, err)
}

func TestResolvePendingConfirmed(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()

	_, _ = e.executor.Execute(ctx, e.scope, ToolCall{Name: "delete_lead", Arguments: map[string]any{"lead_id": float64(1)}}, false)
	pending, err := e.executor.Pending(ctx, e.scope.SessionID)
	require.NoError(t, err)
	require.NotNil(t, pending)

	result, err := e.executor.ResolvePending(ctx, e.scope, pending, true)
	require.NoError(t, err)
	assert.Equal(t, ActionSuccess, result.Status)
	assert.Equal(t, []int64{1}, result.RecordIDs)

	_, err = e.store.Get(ctx, "leads", 1)
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))

	pending, err = e.executor.Pending(ctx, e.scope.SessionID)
	require.NoError(t, err)
	assert.Nil(t, pending, "tombstone resolves the pending action")
	assert.Equal(t, []string{"tool_confirmation_required", "tool_executed_delete_lead"}, e.actions(t))

	entries, err := e.audit.List(ctx, e.scope.SessionID)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, float64(CapabilityVersion), entry.Metadata["capability_version"], entry.Action)
	}
}

func TestResolvePendingCancelled(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()

	_, _ = e.executor.Execute(ctx, e.scope, ToolCall{Name: "delete_lead", Arguments: map[string]any{"lead_id": float64(1)}}, false)
	pending, _ := e.executor.Pending(ctx, e.scope.SessionID)
	require.NotNil(t, pending)

	result, err := e.executor.ResolvePending(ctx, e.scope, pending, false)
	require.NoError(t, err)
	assert.Equal(t, ActionCancelled, result.Status)

	_, err = e.store.Get(ctx, "leads", 1)
	assert.NoError(t, err)
	assert.Equal(t, []string{"tool_confirmation_required", "tool_cancelled"}, e.actions(t))
}

func TestBulkUpdateNeedsConfirmation(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()
	args := map[string]any{"lead_ids": []any{float64(1), float64(2)}, "lead_status": "Qualified"}

	_, err := e.executor.Execute(ctx, e.scope, ToolCall{Name: "update_lead", Arguments: args}, false)
	assert.True(t, pkg.IsKind(err, pkg.ErrConfirmationRequired))

	result, err := e.executor.Execute(ctx, e.scope, ToolCall{Name: "update_lead", Arguments: args}, true)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	rec, err := e.store.Get(ctx, "leads", 1)
	require.NoError(t, err)
	assert.Equal(t, "Qualified", rec.String("lead_status"))
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	e := newEnv(t, leadSeed)

	result, err := e.executor.Execute(context.Background(), e.scope,
		ToolCall{Name: "create_lead", Arguments: map[string]any{"name": "Kiran"}}, false)
	require.Error(t, err)
	assert.True(t, pkg.IsKind(err, pkg.ErrValidation))
	assert.Equal(t, "Missing required parameter: phone", result.Error)
	assert.Equal(t, []string{"tool_call_validation_failed"}, e.actions(t))
}

func TestUnknownTools(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()

	_, err := e.executor.Execute(ctx, e.scope, ToolCall{Name: "delete_invoice", Arguments: map[string]any{"invoice_id": 1}}, true)
	assert.True(t, pkg.IsKind(err, pkg.ErrUnsupportedTable))

	result, err := e.executor.Execute(ctx, e.scope, ToolCall{Name: "launch_rocket"}, true)
	assert.True(t, pkg.IsKind(err, pkg.ErrValidation))
	assert.Contains(t, result.Error, "Unknown tool: launch_rocket")
}

func TestCreateThenUpdateUsesEntityMemory(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()

	created, err := e.executor.Execute(ctx, e.scope, ToolCall{Name: "create_lead", Arguments: map[string]any{
		"name": "Kiran Das", "phone": "9000000003", "bogus": "dropped",
	}}, false)
	require.NoError(t, err)
	require.Len(t, created.Records, 1)
	assert.Equal(t, int64(3), created.Records[0].ID())
	assert.NotContains(t, created.Records[0], "bogus")

	mem, err := e.executor.EntityMemory(ctx, e.scope.SessionID)
	require.NoError(t, err)
	require.NotNil(t, mem)
	assert.Equal(t, EntityMemory{Type: "lead", ID: 3, Name: "Kiran Das"}, *mem)

	updated, err := e.executor.Execute(ctx, e.scope, ToolCall{Name: "update_lead", Arguments: map[string]any{"lead_status": "Contacted"}}, false)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, updated.RecordIDs)

	// memory of a lead does not fill a task id
	_, err = e.executor.Execute(ctx, e.scope, ToolCall{Name: "update_task", Arguments: map[string]any{"status": "Done"}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing required parameter: task_id")
}

func TestUpdateMissingRecord(t *testing.T) {
	e := newEnv(t, leadSeed)

	result, err := e.executor.Execute(context.Background(), e.scope,
		ToolCall{Name: "update_lead", Arguments: map[string]any{"lead_id": float64(99), "lead_status": "Contacted"}}, false)
	require.Error(t, err)
	assert.True(t, pkg.IsKind(err, pkg.ErrNotFound))
	assert.Equal(t, ActionError, result.Status)
	assert.Equal(t, []string{"tool_execution_error"}, e.actions(t))
}

func TestResolvePendingFailsWhenTombstoneCannotBeWritten(t *testing.T) {
	e := newEnv(t, leadSeed)
	ctx := context.Background()

	_, _ = e.executor.Execute(ctx, e.scope, ToolCall{Name: "delete_lead", Arguments: map[string]any{"lead_id": float64(1)}}, false)
	pending, err := e.executor.Pending(ctx, e.scope.SessionID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	require.NoError(t, e.db.Close())

	result, err := e.executor.ResolvePending(ctx, e.scope, pending, false)
	require.Error(t, err)
	assert.Equal(t, ActionError, result.Status)

	result, err = e.executor.ResolvePending(ctx, e.scope, pending, true)
	require.Error(t, err)
	assert.Equal(t, ActionError, result.Status, "confirmed call is not run without a tombstone")
}
