package server

import (
	"encoding/json"
	"time"

	"operador/internal/agents"
	"operador/internal/auth"
	"operador/internal/domain"
)

// Request payloads

type ProgressRequest struct {
	Date      string `json:"date,omitempty" pattern:"^\\d{4}-\\d{2}-\\d{2}$" doc:"Calendar day, defaults to today"`
	Completed bool   `json:"completed"`
	Notes     string `json:"notes,omitempty" maxLength:"2000"`
}

type SignupRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"6"`
	Name     string `json:"name,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type ChatRequest struct {
	Message string `json:"message" minLength:"1" maxLength:"4000"`
}

// Response payloads

type ProgressResponse struct {
	Success  bool                 `json:"success"`
	Progress domain.DailyProgress `json:"progress"`
}

type TodayProgressResponse struct {
	Date     string                `json:"date"`
	Progress *domain.DailyProgress `json:"progress"`
}

type SessionResponse struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type MeResponse struct {
	User   domain.User `json:"user"`
	Source string      `json:"source" enum:"single,jwt,api_key,cookie"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key" doc:"Shown once"`
}

type AgentResponse struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Opener      string `json:"opener"`
	Available   bool   `json:"available"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	UserID     int64          `json:"user_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func sessionResponse(s auth.Session) SessionResponse {
	return SessionResponse{User: s.User, Token: s.Token, ExpiresAt: s.ExpiresAt}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func agentResponse(a agents.Agent, available bool) AgentResponse {
	return AgentResponse{
		Type:        a.Type,
		Title:       a.Title,
		Description: a.Description,
		Opener:      a.Opener,
		Available:   available,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		UserID:     e.UserID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}
