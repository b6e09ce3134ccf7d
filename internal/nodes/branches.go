package nodes

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salesbot/internal/core"
	"salesbot/internal/services"
	"salesbot/internal/storage"
	"salesbot/pkg"
	"salesbot/src/llm"
	"salesbot/src/logger"
)

const GreetingResponse = "Hii 👋\nWhat's up? How can I help you today?"

// withTimeout bounds a fetch by the store timeout
func withTimeout(timeout time.Duration, fetch storage.FetchFunc) storage.FetchFunc {
	if timeout <= 0 {
		return fetch
	}
	return func(ctx context.Context) (map[string]any, int, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fetch(ctx)
	}
}

// ====================== Greeting ======================

// GreetingNode answers greetings without touching any data source
type GreetingNode struct{}

func NewGreetingNode() *GreetingNode { return &GreetingNode{} }

func (n *GreetingNode) Execute(_ context.Context, _ core.NodeInput) (core.NodeOutput, error) {
	return core.NodeOutput{Response: GreetingResponse, Source: pkg.SourceNone}, nil
}

func (n *GreetingNode) GetName() string        { return "greeting" }
func (n *GreetingNode) GetType() core.NodeType { return core.NodeTypeDirect }

// ====================== Followup ======================

// FollowupNode lists leads whose follow-up is due
type FollowupNode struct {
	tracker *storage.ContextTracker
	svc     *services.FollowupService
	timeout time.Duration
}

func NewFollowupNode(tracker *storage.ContextTracker, svc *services.FollowupService, timeout time.Duration) *FollowupNode {
	return &FollowupNode{tracker: tracker, svc: svc, timeout: timeout}
}

func (n *FollowupNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	rec, err := n.tracker.Track(ctx, input.Scope, pkg.SourceFollowup, input.Message, withTimeout(n.timeout, n.svc.Fetch))
	out := core.NodeOutput{Source: pkg.SourceFollowup, Record: rec, Error: err}
	if err != nil {
		logger.Error().Err(err).Str("session_id", input.Scope.SessionID).Msg("❌ Follow-up fetch failed")
		out.Response = services.FollowupFailed
		return out, nil
	}
	out.Response = services.FormatFollowups(services.Records(rec.Payload))
	logger.Info().Int("count", rec.RecordCount).Msg("📅 Follow-ups listed")
	return out, nil
}

func (n *FollowupNode) GetName() string        { return "followup" }
func (n *FollowupNode) GetType() core.NodeType { return core.NodeTypeFetch }

// ====================== Lead summary ======================

// LeadSummaryNode summarizes one lead and its activity
type LeadSummaryNode struct {
	tracker *storage.ContextTracker
	svc     *services.LeadSummaryService
	timeout time.Duration
}

func NewLeadSummaryNode(tracker *storage.ContextTracker, svc *services.LeadSummaryService, timeout time.Duration) *LeadSummaryNode {
	return &LeadSummaryNode{tracker: tracker, svc: svc, timeout: timeout}
}

func (n *LeadSummaryNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	identifier := services.ExtractLeadIdentifier(input.Message)

	var summary *services.LeadSummary
	rec, err := n.tracker.Track(ctx, input.Scope, pkg.SourceLeadSummary, input.Message,
		withTimeout(n.timeout, func(ctx context.Context) (map[string]any, int, error) {
			if identifier == "" {
				return nil, 0, pkg.NewValidationError("lead identifier missing")
			}
			var err error
			summary, err = n.svc.Summarize(ctx, identifier)
			if err != nil {
				return nil, 0, err
			}
			return summary.Payload(), 1, nil
		}))

	out := core.NodeOutput{Source: pkg.SourceLeadSummary, Record: rec, Error: err}
	switch {
	case identifier == "":
		out.Response = services.LeadSummaryNotIdentified
	case pkg.IsKind(err, pkg.ErrNotFound):
		out.Response = services.LeadNotFound
	case err != nil:
		logger.Error().Err(err).Str("identifier", identifier).Msg("❌ Lead summary failed")
		out.Response = services.LeadSummaryFailed
	default:
		out.Response, out.TokensUsed = n.svc.Render(ctx, summary)
	}
	return out, nil
}

func (n *LeadSummaryNode) GetName() string        { return "lead_summary" }
func (n *LeadSummaryNode) GetType() core.NodeType { return core.NodeTypeFetch }

// ====================== Email draft ======================

// EmailDraftNode drafts an email for one lead
type EmailDraftNode struct {
	tracker *storage.ContextTracker
	svc     *services.EmailDraftService
}

func NewEmailDraftNode(tracker *storage.ContextTracker, svc *services.EmailDraftService) *EmailDraftNode {
	return &EmailDraftNode{tracker: tracker, svc: svc}
}

func (n *EmailDraftNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	identifier := services.ExtractLeadIdentifier(input.Message)

	var draft *services.EmailDraft
	rec, err := n.tracker.Track(ctx, input.Scope, pkg.SourceEmailDraft, input.Message,
		func(ctx context.Context) (map[string]any, int, error) {
			if identifier == "" {
				return nil, 0, pkg.NewValidationError("lead identifier missing")
			}
			var err error
			draft, err = n.svc.Draft(ctx, identifier, input.Message)
			if err != nil {
				return nil, 0, err
			}
			return draft.Payload(), 1, nil
		})

	out := core.NodeOutput{Source: pkg.SourceEmailDraft, Record: rec, Error: err}
	switch {
	case identifier == "":
		out.Response = services.EmailDraftNotIdentified
	case pkg.IsKind(err, pkg.ErrNotFound):
		out.Response = services.LeadNotFound
	case err != nil:
		logger.Error().Err(err).Str("identifier", identifier).Msg("❌ Email draft failed")
		out.Response = services.EmailDraftFailed
	default:
		logger.Info().Int64("lead_id", draft.LeadID).Str("template", draft.Template).Bool("generated", draft.Generated).
			Msg("✉️ Email drafted")
		out.Response = services.FormatDraft(draft)
	}
	return out, nil
}

func (n *EmailDraftNode) GetName() string        { return "email_draft" }
func (n *EmailDraftNode) GetType() core.NodeType { return core.NodeTypeFetch }

// ====================== Send email ======================

var toLine = regexp.MustCompile(`(?mi)^\s*to:\s*(.+)$`)

// SendEmailNode delivers the drafted email, or a template email to a named lead
type SendEmailNode struct {
	tracker *storage.ContextTracker
	svc     *services.EmailSendService
}

func NewSendEmailNode(tracker *storage.ContextTracker, svc *services.EmailSendService) *SendEmailNode {
	return &SendEmailNode{tracker: tracker, svc: svc}
}

func (n *SendEmailNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	req := services.SendRequest{Message: input.Message}
	if !IsConfirmation(input.Message) {
		req.Identifier = services.ExtractLeadIdentifier(input.Message)
	}
	req.Draft, req.Identifier = n.content(ctx, input, req.Identifier)

	var result *services.SendResult
	rec, err := n.tracker.Track(ctx, input.Scope, pkg.SourceSendEmail, input.Message,
		func(ctx context.Context) (map[string]any, int, error) {
			var err error
			result, err = n.svc.Send(ctx, req)
			if err != nil {
				return nil, 0, err
			}
			if !result.Sent {
				return result.Payload(), 0, pkg.NewValidationError(result.Reason)
			}
			return result.Payload(), 1, nil
		})

	out := core.NodeOutput{Source: pkg.SourceSendEmail, Record: rec, Error: err}
	switch {
	case result != nil:
		out.Response = result.Response()
	case pkg.IsKind(err, pkg.ErrNotFound) && req.Identifier == "" && (req.Draft == nil || req.Draft.LeadID == 0):
		out.Response = services.SendEmailNotIdentified
	case pkg.IsKind(err, pkg.ErrNotFound):
		out.Response = services.LeadNotFound
	default:
		logger.Error().Err(err).Msg("❌ Send email failed")
		out.Response = services.SendEmailFailed
	}
	return out, nil
}

// content finds what to send: the session's stored draft when it is for the
// same lead, otherwise a Subject/Body block in the last assistant reply whose
// To: line names the lead when the message does not
func (n *SendEmailNode) content(ctx context.Context, input core.NodeInput, identifier string) (*services.EmailDraft, string) {
	rec, err := n.tracker.Latest(ctx, input.Scope.SessionID, pkg.SourceEmailDraft)
	if err != nil {
		logger.Warn().Err(err).Msg("⚠️ Draft lookup failed")
	}
	if rec != nil && !rec.Failed() {
		if d, ok := services.DraftFromPayload(rec.Payload); ok {
			if draftMatches(d, identifier) {
				return d, identifier
			}
			return nil, identifier
		}
	}

	if len(input.History) == 0 {
		return nil, identifier
	}
	reply := input.History[len(input.History)-1].AssistantResponse
	parsed, ok := llm.ExtractSubjectBody(reply)
	if !ok {
		return nil, identifier
	}
	if identifier == "" {
		if m := toLine.FindStringSubmatch(reply); m != nil {
			identifier = strings.TrimSpace(m[1])
		}
	}
	logger.Debug().Str("identifier", identifier).Msg("📝 Reusing email from previous reply")
	return &services.EmailDraft{Subject: parsed.Subject, Body: parsed.Body}, identifier
}

func draftMatches(d *services.EmailDraft, identifier string) bool {
	if identifier == "" {
		return true
	}
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		return id == d.LeadID
	}
	return strings.Contains(strings.ToLower(d.LeadName), strings.ToLower(identifier))
}

func (n *SendEmailNode) GetName() string        { return "send_email" }
func (n *SendEmailNode) GetType() core.NodeType { return core.NodeTypeAction }

// ====================== CRM ======================

// CRMNode reads CRM data for the message and hands it to the formatter
type CRMNode struct {
	tracker   *storage.ContextTracker
	svc       *services.CRMQueryService
	formatter *Formatter
	timeout   time.Duration
}

func NewCRMNode(tracker *storage.ContextTracker, svc *services.CRMQueryService, formatter *Formatter, timeout time.Duration) *CRMNode {
	return &CRMNode{tracker: tracker, svc: svc, formatter: formatter, timeout: timeout}
}

func (n *CRMNode) Execute(ctx context.Context, input core.NodeInput) (core.NodeOutput, error) {
	if out, handled := n.formatter.ResolvePending(ctx, input); handled {
		return out, nil
	}

	rec, err := n.tracker.Track(ctx, input.Scope, pkg.SourceCRM, input.Message,
		withTimeout(n.timeout, func(ctx context.Context) (map[string]any, int, error) {
			return n.svc.Fetch(ctx, input.Message, 1)
		}))
	if err != nil {
		logger.Error().Err(err).Str("session_id", input.Scope.SessionID).Msg("❌ CRM fetch failed")
	}

	out := n.formatter.Respond(ctx, input, rec)
	if out.Error == nil {
		out.Error = err
	}
	return out, nil
}

func (n *CRMNode) GetName() string        { return "crm" }
func (n *CRMNode) GetType() core.NodeType { return core.NodeTypeFormat }
