package agents_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operador/internal/agents"
	"operador/internal/repo/memrepo"
)

type scripted struct {
	system, message string
	reply           string
	err             error
}

func (s *scripted) Complete(_ context.Context, system, message string) (string, error) {
	s.system, s.message = system, message
	return s.reply, s.err
}

func fixedNow() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestChatStoresInteraction(t *testing.T) {
	llm := &scripted{reply: "  Qual decisão?  "}
	store := memrepo.New()
	svc := agents.Service{Completer: llm, Store: store, Now: fixedNow}

	it, err := svc.Chat(context.Background(), 1, agents.Decision, "<i>devo</i> sair do emprego")
	require.NoError(t, err)
	assert.Equal(t, "Qual decisão?", it.AIResponse)
	assert.Equal(t, agents.Decision, it.AgentType)
	assert.Equal(t, "devo sair do emprego", llm.message)
	assert.Contains(t, llm.system, "agente de decisao")
	assert.Equal(t, "2026-05-01T12:00:00Z", it.CreatedAt)

	history, err := svc.History(context.Background(), 1, agents.Decision, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, it.ID, history[0].ID)

	evts, err := store.ListEvents(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "agent.interaction", evts[0].Type)
}

func TestUnknownAgentFallsBackToClarity(t *testing.T) {
	llm := &scripted{reply: "ok"}
	svc := agents.Service{Completer: llm, Store: memrepo.New(), Now: fixedNow}
	it, err := svc.Chat(context.Background(), 1, "therapist", "oi")
	require.NoError(t, err)
	assert.Equal(t, agents.Clarity, it.AgentType)
	assert.Contains(t, llm.system, "clareza")

	_, ok := agents.Lookup("therapist")
	assert.False(t, ok)
}

func TestChatErrors(t *testing.T) {
	svc := agents.Service{Store: memrepo.New()}
	_, err := svc.Chat(context.Background(), 1, agents.Cut, "   ")
	require.ErrorIs(t, err, agents.ErrEmptyMessage)
	_, err = svc.Chat(context.Background(), 1, agents.Cut, "corte")
	require.ErrorIs(t, err, agents.ErrUnavailable)

	svc.Completer = &scripted{err: errors.New("quota")}
	_, err = svc.Chat(context.Background(), 1, agents.Cut, "corte")
	require.ErrorIs(t, err, agents.ErrUnavailable)
}

func TestCatalog(t *testing.T) {
	cat := agents.Catalog()
	require.Len(t, cat, 4)
	types := []string{cat[0].Type, cat[1].Type, cat[2].Type, cat[3].Type}
	assert.Equal(t, []string{"clarity", "decision", "execution", "cut"}, types)
	for _, a := range cat {
		assert.NotEmpty(t, a.SystemPrompt)
		assert.NotEmpty(t, a.Opener)
	}
}
