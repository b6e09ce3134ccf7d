package nodes

import (
	"context"
	"strings"

	"salesbot/internal/core"
	"salesbot/internal/services"
	"salesbot/pkg"
	"salesbot/src/conversation"
	"salesbot/src/llm"
	"salesbot/src/logger"

	"github.com/bytedance/sonic"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const payloadLimit = 8000

var (
	actionVerbs = []string{
		"create", "add", "insert", "make", "update", "change", "modify", "edit", "set",
		"delete", "remove", "cancel", "drop", "rename", "mark", "assign",
	}
	confirmPhrases = []string{"yes", "confirm", "proceed", "ok", "okay", "yep", "sure", "y", "go ahead", "do it", "yes please"}
	cancelWords    = []string{"cancel", "no", "abort", "stop", "nope", "dont"}
)

// HasActionVerb reports whether the message asks for a CRM change
func HasActionVerb(message string) bool {
	return services.HasAnyPhrase(services.Normalize(message), actionVerbs...)
}

// IsConfirmation matches a confirmation phrase as the whole message or its opening words
func IsConfirmation(message string) bool {
	text := strings.ReplaceAll(services.Normalize(message), "don t", "dont")
	if services.HasAnyPhrase(text, cancelWords...) {
		return false
	}
	for _, p := range confirmPhrases {
		if text == p || strings.HasPrefix(text, p+" ") {
			return true
		}
	}
	return false
}

// IsCancellation reports whether the message rejects a pending action
func IsCancellation(message string) bool {
	text := strings.ReplaceAll(services.Normalize(message), "don t", "dont")
	return services.HasAnyPhrase(text, cancelWords...)
}

// Formatter turns a retrieval into the reply, and runs CRM tool calls when
// the admin asks for a change
type Formatter struct {
	gen      llm.Generator
	executor *Executor
	memory   *conversation.Service

	formatTpl  prompt.ChatTemplate
	actionTpl  prompt.ChatTemplate
	narrateTpl prompt.ChatTemplate
}

// NewFormatter creates a formatter; gen may be nil for deterministic replies only
func NewFormatter(gen llm.Generator, executor *Executor, memory *conversation.Service) *Formatter {
	return &Formatter{
		gen:        gen,
		executor:   executor,
		memory:     memory,
		formatTpl:  llm.NewFormatterTemplate(),
		actionTpl:  llm.NewActionTemplate(),
		narrateTpl: llm.NewNarrationTemplate(),
	}
}

// ResolvePending handles the reply to a parked destructive call. handled is
// false when no action was pending, or when the message was neither a
// confirmation nor a cancellation; in that case the pending action is
// dropped and the message should be processed normally.
func (f *Formatter) ResolvePending(ctx context.Context, input core.NodeInput) (out core.NodeOutput, handled bool) {
	call, err := f.executor.Pending(ctx, input.Scope.SessionID)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", input.Scope.SessionID).Msg("⚠️ Pending action lookup failed")
		return out, false
	}
	if call == nil {
		return out, false
	}

	switch {
	case IsConfirmation(input.Message):
		logger.Info().Str("tool", call.Name).Msg("👍 Pending action confirmed")
		result, execErr := f.executor.ResolvePending(ctx, input.Scope, call, true)
		out = core.NodeOutput{Response: RenderActionResults([]*ActionResult{result}), Source: pkg.SourceCRM, Error: execErr}
		return out, true
	case IsCancellation(input.Message):
		if _, err := f.executor.ResolvePending(ctx, input.Scope, call, false); err != nil {
			logger.Warn().Err(err).Str("tool", call.Name).Msg("⚠️ Failed to cancel pending action")
		}
		return core.NodeOutput{Response: ActionCancelledReply, Source: pkg.SourceCRM}, true
	}

	logger.Debug().Str("tool", call.Name).Msg("🔁 New request replaces pending action")
	if _, err := f.executor.ResolvePending(ctx, input.Scope, call, false); err != nil {
		logger.Warn().Err(err).Str("tool", call.Name).Msg("⚠️ Failed to drop pending action")
	}
	return out, false
}

// Respond renders the reply for a CRM turn
func (f *Formatter) Respond(ctx context.Context, input core.NodeInput, rec *pkg.RetrievalRecord) core.NodeOutput {
	if f.gen != nil && HasActionVerb(input.Message) {
		return f.act(ctx, input, rec)
	}
	out := core.NodeOutput{Source: pkg.SourceCRM, Record: rec}
	if rec == nil {
		out.Response = OutOfScopeResponse
		return out
	}
	if f.gen == nil || rec.Failed() {
		out.Response = RenderFallback(rec)
		return out
	}

	msgs, err := llm.Render(ctx, f.formatTpl, map[string]any{
		"source":   string(rec.SourceType),
		"payload":  payloadText(rec),
		"history":  f.history(input),
		"question": input.Message,
	})
	if err == nil {
		var reply *schema.Message
		reply, err = f.gen.Generate(ctx, msgs)
		if err == nil && strings.TrimSpace(reply.Content) != "" {
			out.Response = strings.TrimSpace(reply.Content)
			out.TokensUsed = llm.TokensUsed(reply)
			return out
		}
	}
	logger.Warn().Err(err).Str("session_id", input.Scope.SessionID).Msg("⚠️ Formatter model call failed, using fallback")
	out.Response = RenderFallback(rec)
	out.Error = err
	return out
}

func (f *Formatter) act(ctx context.Context, input core.NodeInput, rec *pkg.RetrievalRecord) core.NodeOutput {
	out := core.NodeOutput{Source: pkg.SourceCRM, Record: rec}

	memoryContext := ""
	if mem, err := f.executor.EntityMemory(ctx, input.Scope.SessionID); err == nil && mem != nil {
		memoryContext = llm.MemoryContext(mem.Type, mem.ID, mem.Name)
	}
	payload := "none"
	if rec != nil {
		payload = payloadText(rec)
	}

	msgs, err := llm.Render(ctx, f.actionTpl, map[string]any{
		"memory_context": memoryContext,
		"payload":        payload,
		"history":        f.history(input),
		"question":       input.Message,
	})
	var reply *schema.Message
	if err == nil {
		reply, err = f.gen.Generate(ctx, msgs, einomodel.WithTools(ToolInfos()))
	}
	if err != nil {
		logger.Warn().Err(err).Str("session_id", input.Scope.SessionID).Msg("⚠️ Action model call failed")
		out.Error = err
		if rec != nil {
			out.Response = RenderFallback(rec)
		} else {
			out.Response = ActionErrorResponse
		}
		return out
	}
	out.TokensUsed = llm.TokensUsed(reply)

	if len(reply.ToolCalls) == 0 {
		out.Response = strings.TrimSpace(reply.Content)
		if out.Response == "" {
			out.Response = RenderFallback(rec)
		}
		return out
	}

	results := make([]*ActionResult, 0, len(reply.ToolCalls))
	for i, tc := range reply.ToolCalls {
		logger.Info().Str("tool", tc.Function.Name).Str("call_id", tc.ID).Msg("🔧 Model requested tool")
		args, parseErr := llm.ParseToolArguments(tc.Function.Arguments)
		if parseErr != nil {
			results = append(results, &ActionResult{ToolName: tc.Function.Name, Status: ActionError, Error: parseErr.Error()})
			continue
		}
		result, execErr := f.executor.Execute(ctx, input.Scope, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}, false)
		if result.Status == ActionConfirmationRequired {
			// only one call can be parked; later calls may depend on it, so they are not run
			if skipped := len(reply.ToolCalls) - i - 1; skipped > 0 {
				logger.Warn().Int("skipped", skipped).Str("tool", tc.Function.Name).Msg("⚠️ Tool calls after a parked action were not run")
			}
			results = append(results, result)
			out.Response = RenderActionResults(results)
			out.Error = execErr
			return out
		}
		if execErr != nil && out.Error == nil {
			out.Error = execErr
		}
		results = append(results, result)
	}

	text, tokens := f.narrate(ctx, input, results)
	out.Response = text
	out.TokensUsed = addTokens(out.TokensUsed, tokens)
	return out
}

func (f *Formatter) narrate(ctx context.Context, input core.NodeInput, results []*ActionResult) (string, *int) {
	data, err := sonic.MarshalString(results)
	if err == nil {
		var msgs []*schema.Message
		msgs, err = llm.Render(ctx, f.narrateTpl, map[string]any{"results": data, "question": input.Message})
		if err == nil {
			var reply *schema.Message
			reply, err = f.gen.Generate(ctx, msgs)
			if err == nil && strings.TrimSpace(reply.Content) != "" {
				return strings.TrimSpace(reply.Content), llm.TokensUsed(reply)
			}
		}
	}
	logger.Warn().Err(err).Msg("⚠️ Narration failed, describing results directly")
	return RenderActionResults(results), nil
}

func (f *Formatter) history(input core.NodeInput) []*schema.Message {
	if f.memory == nil {
		return nil
	}
	return f.memory.Messages(input.History)
}

func payloadText(rec *pkg.RetrievalRecord) string {
	if rec.Failed() {
		return "error: " + rec.ErrorMessage
	}
	data, err := sonic.MarshalString(rec.Payload)
	if err != nil {
		return "none"
	}
	return services.Truncate(data, payloadLimit)
}

func addTokens(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	sum := *a + *b
	return &sum
}
