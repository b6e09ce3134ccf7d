package core

import (
	"context"
	"fmt"
	"time"

	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/conversation"
	"salesbot/src/logger"

	"github.com/google/uuid"
)

const (
	TimeoutResponse      = "I apologize, but your request is taking longer than expected. Please try again."
	SessionErrorResponse = "I'm having trouble accessing your session right now. Please try again."
	GenericErrorResponse = "I encountered an error processing your request. Please try again."

	DefaultRequestTimeout = 30 * time.Second
)

// Router runs one pass of the turn state machine per inbound message:
// ValidateSession, LoadMemory, Classify, one branch, SaveMemory.
type Router struct {
	sessions storage.SessionStore
	memory   *conversation.Service
	audit    *storage.AuditLog
	classify Classifier
	branches Branches
	timeout  time.Duration
	now      func() time.Time
}

// NewRouter wires the state machine
func NewRouter(sessions storage.SessionStore, memory *conversation.Service, audit *storage.AuditLog,
	classify Classifier, branches Branches, timeout time.Duration) *Router {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Router{
		sessions: sessions,
		memory:   memory,
		audit:    audit,
		classify: classify,
		branches: branches,
		timeout:  timeout,
		now:      time.Now,
	}
}

type turnResult struct {
	sessionID string
	output    NodeOutput
}

// Handle processes one message and always persists exactly one turn. It never
// fails: every error path produces a best-effort response.
func (r *Router) Handle(ctx context.Context, req pkg.ChatRequest, ownerID string) *pkg.ChatResponse {
	start := r.now()
	if ownerID == "" {
		ownerID = storage.AnonymousOwner
	}

	// In-flight work outlives an abandoned request but not the turn deadline
	workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	sessionCh := make(chan string, 1)
	done := make(chan turnResult, 1)
	go func() {
		done <- r.run(workCtx, req, ownerID, sessionCh)
	}()

	var result turnResult
	select {
	case result = <-done:
	case <-workCtx.Done():
		select {
		case result = <-done:
		default:
			result = r.timedOut(req, sessionCh)
		}
	}

	if result.sessionID == "" {
		result.sessionID = uuid.NewString()
	}
	source := result.output.Source
	if !pkg.ValidTurnSource(source) {
		source = pkg.SourceNone
	}

	elapsed := r.now().Sub(start)
	r.saveMemory(context.WithoutCancel(ctx), &pkg.ConversationTurn{
		SessionID:         result.sessionID,
		OwnerID:           ownerID,
		UserMessage:       req.Message,
		AssistantResponse: result.output.Response,
		SourceType:        source,
		ResponseTimeMs:    elapsed.Milliseconds(),
		TokensUsed:        result.output.TokensUsed,
	})

	logger.Info().Str("session_id", result.sessionID).Str("source_type", string(source)).
		Int64("duration_ms", elapsed.Milliseconds()).Msg("🏁 Turn completed")

	return &pkg.ChatResponse{
		Response:   result.output.Response,
		SessionID:  result.sessionID,
		SourceType: source,
	}
}

func (r *Router) timedOut(req pkg.ChatRequest, sessionCh <-chan string) turnResult {
	sessionID := req.SessionID
	select {
	case sessionID = <-sessionCh:
	default:
	}
	logger.Warn().Str("session_id", sessionID).Dur("timeout", r.timeout).Msg("⚠️ Turn exceeded request timeout")
	return turnResult{
		sessionID: sessionID,
		output: NodeOutput{
			Response: TimeoutResponse,
			Source:   pkg.SourceNone,
			Error:    pkg.NewUpstreamError("turn", context.DeadlineExceeded),
		},
	}
}

func (r *Router) run(ctx context.Context, req pkg.ChatRequest, ownerID string, sessionCh chan<- string) turnResult {
	logger.Debug().Str("session_id", req.SessionID).Msg("🚀 Turn started")

	// ValidateSession
	sess, created, err := r.sessions.ValidateOrCreate(ctx, req.SessionID, ownerID)
	if err != nil {
		logger.Error().Err(err).Str("session_id", req.SessionID).Msg("❌ Session store unavailable")
		return turnResult{
			sessionID: req.SessionID,
			output:    NodeOutput{Response: SessionErrorResponse, Source: pkg.SourceNone, Error: err},
		}
	}
	sessionCh <- sess.ID

	scope := storage.Scope{SessionID: sess.ID, OwnerID: ownerID}
	if created {
		_ = r.audit.Log(ctx, scope, "session_created", map[string]any{"requested_session_id": req.SessionID})
		logger.Info().Str("session_id", sess.ID).Msg("🆕 Session created")
	}
	if err := r.sessions.Touch(ctx, sess.ID); err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("⚠️ Session touch failed")
	}
	_ = r.audit.Log(ctx, scope, "user_message_received", map[string]any{"message_length": len(req.Message)})

	// LoadMemory
	history, err := r.memory.History(ctx, sess.ID)
	if err != nil {
		logger.Warn().Err(err).Str("session_id", sess.ID).Msg("⚠️ History unavailable, continuing without it")
		history = nil
	}
	lastSource := conversation.LastSource(history)

	// Classify
	intent := r.classify(req.Message, lastSource)
	node := r.branch(intent)
	logger.Info().Str("session_id", sess.ID).Str("intent", string(intent)).Str("node", node.GetName()).
		Msg("🔀 Routing turn")

	output, err := r.execute(ctx, node, NodeInput{
		Scope:      scope,
		Message:    req.Message,
		Intent:     intent,
		History:    history,
		LastSource: lastSource,
	})
	if err != nil {
		logger.Error().Err(err).Str("node", node.GetName()).Msg("❌ Node failed")
		output = NodeOutput{Response: GenericErrorResponse, Source: sourceFor(intent), Error: err}
	}
	if output.Error != nil {
		logger.Warn().Err(output.Error).Str("node", node.GetName()).Msg("⚠️ Node recovered from error")
	}
	if output.Response == "" {
		output.Response = GenericErrorResponse
	}
	return turnResult{sessionID: sess.ID, output: output}
}

func (r *Router) execute(ctx context.Context, node Node, input NodeInput) (out NodeOutput, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = pkg.NewInternalError("node panicked", fmt.Errorf("%v", p))
		}
	}()
	logger.Debug().Str("node", node.GetName()).Str("type", string(node.GetType())).Msg("📍 Executing node")
	return node.Execute(ctx, input)
}

// branch is the single dispatch point from intent to node
func (r *Router) branch(intent Intent) Node {
	switch intent {
	case IntentGreeting:
		return r.branches.Greeting
	case IntentSendEmail:
		return r.branches.SendEmail
	case IntentFollowup:
		return r.branches.Followup
	case IntentEmailDraft:
		return r.branches.EmailDraft
	case IntentLeadSummary:
		return r.branches.LeadSummary
	default:
		return r.branches.CRM
	}
}

func sourceFor(intent Intent) pkg.SourceType {
	switch intent {
	case IntentSendEmail:
		return pkg.SourceSendEmail
	case IntentFollowup:
		return pkg.SourceFollowup
	case IntentEmailDraft:
		return pkg.SourceEmailDraft
	case IntentLeadSummary:
		return pkg.SourceLeadSummary
	case IntentCRM:
		return pkg.SourceCRM
	}
	return pkg.SourceNone
}

func (r *Router) saveMemory(ctx context.Context, turn *pkg.ConversationTurn) {
	if err := r.memory.SaveTurn(ctx, turn); err != nil {
		logger.Error().Err(err).Str("session_id", turn.SessionID).Msg("❌ Failed to save chat history")
		_ = r.audit.Log(ctx, storage.Scope{SessionID: turn.SessionID, OwnerID: turn.OwnerID}, "chat_history_save_failed",
			map[string]any{"error": err.Error(), "source_type": string(turn.SourceType)})
		return
	}
	logger.Debug().Str("session_id", turn.SessionID).Msg("💾 Turn persisted")
}

// EndSession ends a session and audits the transition
func (r *Router) EndSession(ctx context.Context, sessionID, ownerID string) error {
	if ownerID == "" {
		ownerID = storage.AnonymousOwner
	}
	if err := r.sessions.End(ctx, sessionID); err != nil {
		return err
	}
	_ = r.audit.Log(ctx, storage.Scope{SessionID: sessionID, OwnerID: ownerID}, "session_ended", nil)
	logger.Info().Str("session_id", sessionID).Msg("👋 Session ended")
	return nil
}
