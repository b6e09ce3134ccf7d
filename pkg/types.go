package pkg

import (
	"time"
)

// Core domain types shared by storage, nodes and the HTTP surface

// SessionStatus is the lifecycle state of a chat session
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
	SessionExpired SessionStatus = "expired"
)

// Session represents one conversation lifecycle record
type Session struct {
	ID             string        `json:"session_id"`
	OwnerID        string        `json:"admin_id"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
}

// IsActive reports whether the session may accept a turn
func (s *Session) IsActive() bool {
	return s != nil && s.Status == SessionActive
}

// SourceType tags where the data behind a turn or a retrieval came from
type SourceType string

const (
	SourceCRM           SourceType = "crm"
	SourceFollowup      SourceType = "followup"
	SourceEmailDraft    SourceType = "email_draft"
	SourceSendEmail     SourceType = "send_email"
	SourceLeadSummary   SourceType = "lead_summary"
	SourceLMS           SourceType = "lms"
	SourceRMS           SourceType = "rms"
	SourceRAG           SourceType = "rag"
	SourceNone          SourceType = "none"
	SourceEntityMemory  SourceType = "entity_memory"
	SourcePendingAction SourceType = "pending_action"
)

// turnSources is the closed tag set accepted on chat_history rows
var turnSources = map[SourceType]bool{
	SourceCRM:         true,
	SourceFollowup:    true,
	SourceEmailDraft:  true,
	SourceSendEmail:   true,
	SourceLeadSummary: true,
	SourceRAG:         true,
	SourceNone:        true,
}

// retrievalSources is the closed tag set accepted on retrieved_context rows
var retrievalSources = map[SourceType]bool{
	SourceCRM:           true,
	SourceLMS:           true,
	SourceRMS:           true,
	SourceRAG:           true,
	SourceNone:          true,
	SourceEntityMemory:  true,
	SourcePendingAction: true,
	// fetchers that are not plain CRM reads still log under their own tag
	SourceFollowup:    true,
	SourceEmailDraft:  true,
	SourceSendEmail:   true,
	SourceLeadSummary: true,
}

// ValidTurnSource reports whether s may be stored on a conversation turn
func ValidTurnSource(s SourceType) bool { return turnSources[s] }

// ValidRetrievalSource reports whether s may be stored on a retrieval record
func ValidRetrievalSource(s SourceType) bool { return retrievalSources[s] }

// ConversationTurn is one persisted user message plus the assistant reply
type ConversationTurn struct {
	ID                int64      `json:"id"`
	SessionID         string     `json:"session_id"`
	OwnerID           string     `json:"admin_id"`
	UserMessage       string     `json:"user_message"`
	AssistantResponse string     `json:"assistant_response"`
	SourceType        SourceType `json:"source_type"`
	ResponseTimeMs    int64      `json:"response_time_ms"`
	TokensUsed        *int       `json:"tokens_used,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// RetrievalRecord captures one data-fetch attempt and its outcome
type RetrievalRecord struct {
	ID              int64          `json:"id"`
	SessionID       string         `json:"session_id"`
	OwnerID         string         `json:"admin_id"`
	SourceType      SourceType     `json:"source_type"`
	QueryText       string         `json:"query_text"`
	RecordCount     int            `json:"record_count"`
	Payload         map[string]any `json:"payload,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	RetrievalTimeMs int64          `json:"retrieval_time_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Failed reports whether the fetch attempt ended in an error
func (r *RetrievalRecord) Failed() bool {
	return r != nil && r.ErrorMessage != ""
}

// Empty reports whether the fetch succeeded with nothing to show
func (r *RetrievalRecord) Empty() bool {
	return r == nil || (!r.Failed() && r.RecordCount == 0)
}

// AuditEntry is written for every state-changing operation
type AuditEntry struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"admin_id"`
	SessionID string         `json:"session_id,omitempty"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Record is an untyped CRM row keyed by field name
type Record map[string]any

// ID returns the record identifier as stored under "id"
func (r Record) ID() int64 {
	switch v := r["id"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// String returns a field as text, empty when absent
func (r Record) String(field string) string {
	if v, ok := r[field].(string); ok {
		return v
	}
	return ""
}

// ================ HTTP ================

// ChatRequest is the inbound chat message
type ChatRequest struct {
	Message   string `json:"message" validate:"required,max=4000"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse is the reply for one processed message
type ChatResponse struct {
	Response   string     `json:"response"`
	SessionID  string     `json:"session_id"`
	SourceType SourceType `json:"source_type"`
}
