package nodes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"salesbot/internal/services"
	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/logger"
)

// ToolCall is one mutation requested by the model
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ActionStatus is the outcome of one tool call
type ActionStatus string

const (
	ActionSuccess              ActionStatus = "success"
	ActionError                ActionStatus = "error"
	ActionCancelled            ActionStatus = "cancelled"
	ActionConfirmationRequired ActionStatus = "confirmation_required"
)

// ActionResult is what the executor reports back to the formatter and the model
type ActionResult struct {
	ToolName  string       `json:"tool_name"`
	Operation Operation    `json:"operation"`
	Status    ActionStatus `json:"status"`
	Records   []pkg.Record `json:"records,omitempty"`
	RecordIDs []int64      `json:"record_ids,omitempty"`
	Error     string       `json:"error,omitempty"`
	Prompt    string       `json:"-"`
}

// EntityMemory is the last record the admin created or changed in a session
type EntityMemory struct {
	Type string
	ID   int64
	Name string
}

var nameFields = []string{"name", "campaign_name", "trainer_name", "learner_name", "title", "subject", "meeting_name", "batch_name", "activity_name", "email"}

func recordName(rec pkg.Record) string {
	for _, f := range nameFields {
		if s := strings.TrimSpace(rec.String(f)); s != "" {
			return s
		}
	}
	return ""
}

// Executor validates and runs tool calls against the CRM store
type Executor struct {
	store   storage.CRMStore
	audit   *storage.AuditLog
	tracker *storage.ContextTracker
}

// NewExecutor creates an executor
func NewExecutor(store storage.CRMStore, audit *storage.AuditLog, tracker *storage.ContextTracker) *Executor {
	return &Executor{store: store, audit: audit, tracker: tracker}
}

// Execute runs one tool call. Delete and bulk update need confirmed=true;
// without it the call is parked as the session's pending action and a
// ConfirmationRequired error is returned. The result is never nil.
func (e *Executor) Execute(ctx context.Context, scope storage.Scope, call ToolCall, confirmed bool) (*ActionResult, error) {
	result := &ActionResult{ToolName: call.Name, Status: ActionError}

	tool, err := e.resolve(call.Name)
	if err != nil {
		return e.rejected(ctx, scope, result, err)
	}
	result.Operation = tool.Operation

	args := make(map[string]any, len(call.Arguments))
	for k, v := range call.Arguments {
		if k == "confirm" || k == "confirmed" {
			continue
		}
		args[k] = v
	}

	var ids []int64
	if tool.Operation != OpCreate {
		ids, err = e.targetIDs(ctx, scope, tool, args)
		if err != nil {
			return e.rejected(ctx, scope, result, err)
		}
	}
	fields, err := mutationFields(tool, args)
	if err != nil {
		return e.rejected(ctx, scope, result, err)
	}
	result.RecordIDs = ids

	destructive := tool.Operation == OpDelete || (tool.Operation == OpUpdate && len(ids) > 1)
	if destructive && !confirmed {
		return e.park(ctx, scope, tool, call, ids, result)
	}

	records, err := e.mutate(ctx, tool, ids, fields)
	if err != nil {
		result.Error = errorText(err)
		logger.Error().Err(err).Str("tool", tool.Name).Msg("❌ Tool execution failed")
		_ = e.audit.Log(ctx, scope, "tool_execution_error", map[string]any{
			"tool_name":  tool.Name,
			"table":      tool.Capability.Table,
			"operation":  string(tool.Operation),
			"record_ids": ids,
			"error":      err.Error(),
		})
		return result, err
	}

	result.Status = ActionSuccess
	result.Records = records
	if tool.Operation == OpCreate && len(records) > 0 {
		result.RecordIDs = []int64{records[0].ID()}
	}
	_ = e.audit.Log(ctx, scope, "tool_executed_"+tool.Name, map[string]any{
		"tool_name":          tool.Name,
		"table":              tool.Capability.Table,
		"operation":          string(tool.Operation),
		"record_ids":         result.RecordIDs,
		"arguments":          fields,
		"confirmed":          confirmed,
		"capability_version": CapabilityVersion,
	})
	logger.Info().Str("tool", tool.Name).Interface("record_ids", result.RecordIDs).Msg("✅ Tool executed")

	if tool.Operation != OpDelete && len(records) > 0 {
		e.remember(ctx, scope, tool, records[len(records)-1])
	}
	return result, nil
}

func (e *Executor) resolve(name string) (Tool, error) {
	if tool, ok := LookupTool(name); ok {
		return tool, nil
	}
	if op, entity, ok := strings.Cut(name, "_"); ok {
		switch Operation(op) {
		case OpCreate, OpUpdate, OpDelete:
			if _, known := CapabilityForEntity(entity); !known {
				return Tool{}, pkg.NewUnsupportedTableError(entity)
			}
		}
	}
	return Tool{}, pkg.NewValidationError("Unknown tool: " + name)
}

func (e *Executor) rejected(ctx context.Context, scope storage.Scope, result *ActionResult, err error) (*ActionResult, error) {
	result.Error = errorText(err)
	logger.Warn().Err(err).Str("tool", result.ToolName).Msg("⚠️ Tool call rejected")
	_ = e.audit.Log(ctx, scope, "tool_call_validation_failed", map[string]any{
		"tool_name": result.ToolName,
		"error":     err.Error(),
		"kind":      string(pkg.KindOf(err)),
	})
	return result, err
}

func (e *Executor) targetIDs(ctx context.Context, scope storage.Scope, tool Tool, args map[string]any) ([]int64, error) {
	var ids []int64
	if raw, ok := args[tool.IDsParam()]; ok {
		list, isList := raw.([]any)
		if !isList {
			return nil, pkg.NewValidationError(fmt.Sprintf("Invalid parameter: %s must be a list of ids", tool.IDsParam()))
		}
		for _, v := range list {
			id, ok := toInt64(v)
			if !ok {
				return nil, pkg.NewValidationError(fmt.Sprintf("Invalid parameter: %s contains %v", tool.IDsParam(), v))
			}
			ids = append(ids, id)
		}
	}
	if raw, ok := args[tool.IDParam()]; ok && len(ids) == 0 {
		id, valid := toInt64(raw)
		if !valid {
			return nil, pkg.NewValidationError(fmt.Sprintf("Invalid parameter: %s", tool.IDParam()))
		}
		ids = []int64{id}
	}

	if len(ids) == 0 {
		mem, err := e.EntityMemory(ctx, scope.SessionID)
		if err != nil {
			logger.Warn().Err(err).Msg("⚠️ Entity memory unavailable")
		}
		if mem != nil && mem.Type == tool.Capability.Entity && mem.ID > 0 {
			logger.Debug().Str("tool", tool.Name).Int64("id", mem.ID).Msg("🧠 Filled id from entity memory")
			ids = []int64{mem.ID}
		}
	}
	if len(ids) == 0 {
		return nil, pkg.NewValidationError("Missing required parameter: " + tool.IDParam())
	}
	return ids, nil
}

func mutationFields(tool Tool, args map[string]any) (pkg.Record, error) {
	fields := pkg.Record{}
	for k, v := range args {
		if k == tool.IDParam() || k == tool.IDsParam() {
			continue
		}
		if _, known := tool.Capability.field(k); !known {
			logger.Debug().Str("tool", tool.Name).Str("argument", k).Msg("⚠️ Dropping unknown tool argument")
			continue
		}
		fields[k] = v
	}

	switch tool.Operation {
	case OpCreate:
		for _, req := range tool.Capability.Required {
			if v, ok := fields[req]; !ok || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
				return nil, pkg.NewValidationError("Missing required parameter: " + req)
			}
		}
	case OpUpdate:
		if len(fields) == 0 {
			return nil, pkg.NewValidationError("No fields to update")
		}
	}
	return fields, nil
}

func (e *Executor) mutate(ctx context.Context, tool Tool, ids []int64, fields pkg.Record) ([]pkg.Record, error) {
	table := tool.Capability.Table
	switch tool.Operation {
	case OpCreate:
		rec, err := e.store.Create(ctx, table, fields)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.ID() == 0 {
			return nil, fmt.Errorf("%s failed - no record returned from database (missing ID)", services.Title(tool.Name))
		}
		return []pkg.Record{rec}, nil
	case OpUpdate:
		out := make([]pkg.Record, 0, len(ids))
		for _, id := range ids {
			rec, err := e.store.Update(ctx, table, id, fields)
			if err != nil {
				return out, err
			}
			if rec == nil || rec.ID() == 0 {
				return out, fmt.Errorf("%s failed - no record returned from database (missing ID)", services.Title(tool.Name))
			}
			out = append(out, rec)
		}
		return out, nil
	case OpDelete:
		for _, id := range ids {
			if err := e.store.Delete(ctx, table, id); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}
	return nil, pkg.NewValidationError("Unknown tool: " + tool.Name)
}

// ConfirmationPrompt is the question asked before a destructive call runs
func ConfirmationPrompt(toolName string) string {
	return fmt.Sprintf("I'm about to %s. This action cannot be undone. Please confirm by saying 'yes' or 'confirm' to proceed.",
		strings.ReplaceAll(toolName, "_", " "))
}

func (e *Executor) park(ctx context.Context, scope storage.Scope, tool Tool, call ToolCall, ids []int64, result *ActionResult) (*ActionResult, error) {
	args := map[string]any{}
	for k, v := range call.Arguments {
		if k != "confirm" && k != "confirmed" {
			args[k] = v
		}
	}
	if _, ok := args[tool.IDsParam()]; !ok {
		if _, ok := args[tool.IDParam()]; !ok {
			args[tool.IDParam()] = ids[0]
		}
	}

	if err := e.tracker.Record(ctx, &pkg.RetrievalRecord{
		SessionID:   scope.SessionID,
		OwnerID:     scope.OwnerID,
		SourceType:  pkg.SourcePendingAction,
		QueryText:   tool.Name,
		RecordCount: 1,
		Payload: map[string]any{
			"tool_name":    tool.Name,
			"tool_call_id": call.ID,
			"arguments":    args,
		},
	}); err != nil {
		logger.Error().Err(err).Str("tool", tool.Name).Msg("❌ Failed to save pending action")
	}

	err := pkg.NewConfirmationRequiredError(tool.Name)
	_ = e.audit.Log(ctx, scope, "tool_confirmation_required", map[string]any{
		"tool_name":          tool.Name,
		"table":              tool.Capability.Table,
		"operation":          string(tool.Operation),
		"record_ids":         ids,
		"capability_version": CapabilityVersion,
	})
	logger.Info().Str("tool", tool.Name).Interface("record_ids", ids).Msg("✋ Destructive call awaiting confirmation")

	result.Status = ActionConfirmationRequired
	result.Error = errorText(err)
	result.Prompt = ConfirmationPrompt(tool.Name)
	return result, err
}

// Pending returns the session's unresolved destructive call, or nil
func (e *Executor) Pending(ctx context.Context, sessionID string) (*ToolCall, error) {
	rec, err := e.tracker.Latest(ctx, sessionID, pkg.SourcePendingAction)
	if err != nil || rec == nil || rec.RecordCount == 0 {
		return nil, err
	}
	name, _ := rec.Payload["tool_name"].(string)
	if name == "" {
		return nil, nil
	}
	call := &ToolCall{Name: name, Arguments: map[string]any{}}
	call.ID, _ = rec.Payload["tool_call_id"].(string)
	if args, ok := rec.Payload["arguments"].(map[string]any); ok {
		call.Arguments = args
	}
	return call, nil
}

// ResolvePending closes the pending action with a tombstone and, when
// confirmed, runs it
func (e *Executor) ResolvePending(ctx context.Context, scope storage.Scope, call *ToolCall, confirmed bool) (*ActionResult, error) {
	resolution := "cancelled"
	if confirmed {
		resolution = "confirmed"
	}
	if err := e.tracker.Record(ctx, &pkg.RetrievalRecord{
		SessionID:   scope.SessionID,
		OwnerID:     scope.OwnerID,
		SourceType:  pkg.SourcePendingAction,
		QueryText:   call.Name,
		RecordCount: 0,
		Payload:     map[string]any{"tool_name": call.Name, "resolution": resolution},
	}); err != nil {
		// an unresolved pending call would run again on the next "yes"
		logger.Error().Err(err).Str("tool", call.Name).Msg("❌ Failed to resolve pending action")
		return &ActionResult{ToolName: call.Name, Status: ActionError, Error: "Could not resolve the pending action. Please try again."},
			fmt.Errorf("failed to resolve pending action %s: %w", call.Name, err)
	}

	if confirmed {
		return e.Execute(ctx, scope, *call, true)
	}
	_ = e.audit.Log(ctx, scope, "tool_cancelled", map[string]any{"tool_name": call.Name, "arguments": call.Arguments})
	logger.Info().Str("tool", call.Name).Msg("🚫 Pending action cancelled")
	return &ActionResult{ToolName: call.Name, Status: ActionCancelled}, nil
}

func (e *Executor) remember(ctx context.Context, scope storage.Scope, tool Tool, rec pkg.Record) {
	if err := e.tracker.Record(ctx, &pkg.RetrievalRecord{
		SessionID:   scope.SessionID,
		OwnerID:     scope.OwnerID,
		SourceType:  pkg.SourceEntityMemory,
		QueryText:   tool.Name,
		RecordCount: 1,
		Payload: map[string]any{
			"last_entity_type": tool.Capability.Entity,
			"last_entity_id":   rec.ID(),
			"last_entity_name": recordName(rec),
		},
	}); err != nil {
		logger.Warn().Err(err).Msg("⚠️ Failed to store entity memory")
	}
}

// EntityMemory returns the last entity touched in the session, or nil
func (e *Executor) EntityMemory(ctx context.Context, sessionID string) (*EntityMemory, error) {
	rec, err := e.tracker.Latest(ctx, sessionID, pkg.SourceEntityMemory)
	if err != nil || rec == nil {
		return nil, err
	}
	mem := &EntityMemory{}
	mem.Type, _ = rec.Payload["last_entity_type"].(string)
	mem.Name, _ = rec.Payload["last_entity_name"].(string)
	mem.ID, _ = toInt64(rec.Payload["last_entity_id"])
	return mem, nil
}

// errorText is the message shown to the admin, without the error kind prefix
func errorText(err error) string {
	var appErr *pkg.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return id, err == nil
	}
	return 0, false
}
