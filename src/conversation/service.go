package conversation

import (
	"context"

	"salesbot/pkg"

	"github.com/cloudwego/eino/schema"
)

// Service is the memory seen by the workflow: a bounded window over the log
type Service struct {
	repo     Repository
	strategy ContextStrategy
}

func NewService(repo Repository, strategy ContextStrategy) *Service {
	return &Service{repo: repo, strategy: strategy}
}

// History loads the window of recent turns for the session, oldest first
func (s *Service) History(ctx context.Context, sessionID string) ([]*pkg.ConversationTurn, error) {
	return s.repo.Load(ctx, sessionID, s.strategy.GetMaxTurns())
}

// Messages renders turns as chat messages for a prompt
func (s *Service) Messages(turns []*pkg.ConversationTurn) []*schema.Message {
	return s.strategy.BuildMessages(turns)
}

// SaveTurn appends the turn produced by one processed message
func (s *Service) SaveTurn(ctx context.Context, turn *pkg.ConversationTurn) error {
	return s.repo.Append(ctx, turn)
}

// LastSource returns the source of the newest turn, or SourceNone
func LastSource(turns []*pkg.ConversationTurn) pkg.SourceType {
	if len(turns) == 0 {
		return pkg.SourceNone
	}
	return turns[len(turns)-1].SourceType
}
