package core

import (
	"context"

	"salesbot/internal/storage"
	"salesbot/pkg"
)

// Node represents one terminal branch of the turn state machine
type Node interface {
	Execute(ctx context.Context, input NodeInput) (NodeOutput, error)
	GetName() string
	GetType() NodeType
}

// NodeType groups nodes by what they touch
type NodeType string

const (
	NodeTypeDirect NodeType = "direct" // answers without data access
	NodeTypeFetch  NodeType = "fetch"  // one fetch plus deterministic formatting
	NodeTypeAction NodeType = "action" // side effect outside the CRM tables
	NodeTypeFormat NodeType = "format" // fetch plus model formatting and tool calls
)

// Intent is the classified purpose of one inbound message
type Intent string

const (
	IntentGreeting    Intent = "greeting"
	IntentSendEmail   Intent = "send_email"
	IntentFollowup    Intent = "followup"
	IntentEmailDraft  Intent = "email_draft"
	IntentLeadSummary Intent = "lead_summary"
	IntentCRM         Intent = "crm"
)

// Classifier maps a message and the previous turn's source to an intent
type Classifier func(message string, lastSource pkg.SourceType) Intent

// NodeInput is the turn state a branch node works from
type NodeInput struct {
	Scope      storage.Scope
	Message    string
	Intent     Intent
	History    []*pkg.ConversationTurn
	LastSource pkg.SourceType
}

// NodeOutput is what a branch produced. Error carries a recovered failure
// whose user-facing Response is already set.
type NodeOutput struct {
	Response   string
	Source     pkg.SourceType
	Record     *pkg.RetrievalRecord
	TokensUsed *int
	Error      error
}

// Branches holds one node per intent
type Branches struct {
	Greeting    Node
	SendEmail   Node
	Followup    Node
	EmailDraft  Node
	LeadSummary Node
	CRM         Node
}

// ChatService is the turn boundary the HTTP surface and the terminal client call
type ChatService interface {
	Handle(ctx context.Context, req pkg.ChatRequest, ownerID string) *pkg.ChatResponse
	EndSession(ctx context.Context, sessionID, ownerID string) error
}
