package conversation

import (
	"salesbot/pkg"

	"github.com/cloudwego/eino/schema"
)

// ContextStrategy turns a window of turns into model input
type ContextStrategy interface {
	BuildMessages(turns []*pkg.ConversationTurn) []*schema.Message
	GetMaxTurns() int
}

// ====================== Window ======================
// WindowStrategy keeps the last maxTurns turns as user/assistant message pairs
type WindowStrategy struct {
	maxTurns int
}

func NewWindowStrategy(maxTurns int) *WindowStrategy {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryLimit
	}
	return &WindowStrategy{maxTurns: maxTurns}
}

func (s *WindowStrategy) GetMaxTurns() int {
	return s.maxTurns
}

func (s *WindowStrategy) BuildMessages(turns []*pkg.ConversationTurn) []*schema.Message {
	recent := trimTail(turns, s.maxTurns)

	messages := make([]*schema.Message, 0, len(recent)*2)
	for _, turn := range recent {
		messages = append(messages, schema.UserMessage(turn.UserMessage))
		if turn.AssistantResponse != "" {
			messages = append(messages, schema.AssistantMessage(turn.AssistantResponse, nil))
		}
	}
	return messages
}

// Helper function
func trimTail(turns []*pkg.ConversationTurn, maxTurns int) []*pkg.ConversationTurn {
	if len(turns) <= maxTurns {
		return turns
	}
	return turns[len(turns)-maxTurns:]
}
