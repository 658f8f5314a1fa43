package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"operador/internal/domain"
	"operador/internal/events"
	"operador/internal/sanitize"
)

var (
	ErrUnavailable  = errors.New("agent backend unavailable")
	ErrEmptyMessage = errors.New("message is empty")
)

// Completer turns a system prompt and a user message into a reply.
type Completer interface {
	Complete(ctx context.Context, system, message string) (string, error)
}

type Store interface {
	InsertInteraction(ctx context.Context, it domain.Interaction, evt domain.Event) error
	ListInteractions(ctx context.Context, userID int64, agentType string, limit int) ([]domain.Interaction, error)
}

type Service struct {
	Completer Completer
	Store     Store
	Now       func() time.Time
	Log       *zap.Logger
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Available reports whether a completion backend is configured.
func (s Service) Available() bool {
	return s.Completer != nil
}

// Chat sends message to the agent and stores the exchange. Unknown agent
// types are answered by the clarity agent.
func (s Service) Chat(ctx context.Context, userID int64, agentType, message string) (domain.Interaction, error) {
	message = sanitize.Text(message)
	if message == "" {
		return domain.Interaction{}, ErrEmptyMessage
	}
	if s.Completer == nil {
		return domain.Interaction{}, ErrUnavailable
	}
	agent := Resolve(agentType)
	reply, err := s.Completer.Complete(ctx, agent.SystemPrompt, message)
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	now := s.now()
	it := domain.Interaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		AgentType:   agent.Type,
		UserMessage: message,
		AIResponse:  strings.TrimSpace(reply),
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}
	evt := events.New(now, events.AgentInteraction, userID, "interaction", it.ID, events.EventPayload{"agent_type": agent.Type})
	if err := s.Store.InsertInteraction(ctx, it, evt); err != nil {
		return domain.Interaction{}, fmt.Errorf("store interaction: %w", err)
	}
	if s.Log != nil {
		s.Log.Debug("agent reply", zap.Int64("user_id", userID), zap.String("agent", agent.Type), zap.Int("chars", len(it.AIResponse)))
	}
	return it, nil
}

func (s Service) History(ctx context.Context, userID int64, agentType string, limit int) ([]domain.Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.Store.ListInteractions(ctx, userID, agentType, limit)
}
