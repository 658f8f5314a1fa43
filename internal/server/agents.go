package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"operador/internal/agents"
	"operador/internal/domain"
	"operador/internal/repo"
)

func registerGuides(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-guides",
		Method:      http.MethodGet,
		Path:        "/guides",
		Summary:     "Reading library, optionally filtered by layer",
		Tags:        []string{"guides"},
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Layer string `query:"layer" enum:"illusion,clarity,pattern,escape,autonomy"`
	}) (*struct {
		Body []domain.Guide `json:"body"`
	}, error) {
		guides, err := r.ListGuides(ctx, input.Layer)
		if err != nil {
			return nil, handleError(err)
		}
		if guides == nil {
			guides = []domain.Guide{}
		}
		return &struct {
			Body []domain.Guide `json:"body"`
		}{Body: guides}, nil
	})
}

func registerAgents(api huma.API, svc agents.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-agents",
		Method:      http.MethodGet,
		Path:        "/agents",
		Summary:     "Available guidance agents",
		Tags:        []string{"agents"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AgentResponse `json:"body"`
	}, error) {
		catalog := agents.Catalog()
		out := make([]AgentResponse, 0, len(catalog))
		for _, a := range catalog {
			out = append(out, agentResponse(a, svc.Available()))
		}
		return &struct {
			Body []AgentResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-chat",
		Method:      http.MethodPost,
		Path:        "/agents/{agent_type}/chat",
		Summary:     "Send a message to an agent",
		Description: "Unknown agent types are answered by the clarity agent.",
		Tags:        []string{"agents"},
		Errors:      []int{http.StatusBadRequest, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		AgentType string      `path:"agent_type"`
		Body      ChatRequest `json:"body"`
	}) (*struct {
		Body domain.Interaction `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		it, err := svc.Chat(ctx, userID, input.AgentType, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Interaction `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "agent-history",
		Method:      http.MethodGet,
		Path:        "/agents/history",
		Summary:     "Past agent exchanges, newest first",
		Tags:        []string{"agents"},
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		AgentType string `query:"agent_type"`
		Limit     int    `query:"limit" default:"20"`
	}) (*struct {
		Body []domain.Interaction `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := svc.History(ctx, userID, input.AgentType, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Interaction{}
		}
		return &struct {
			Body []domain.Interaction `json:"body"`
		}{Body: items}, nil
	})
}
