package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"operador/internal/domain"
)

const (
	MissionsInitialized = "missions.initialized"
	ProgressRecorded    = "progress.recorded"
	MissionCompleted    = "mission.completed"
	MissionActivated    = "mission.activated"
	AutonomySnapshot    = "autonomy.snapshot"
	AgentInteraction    = "agent.interaction"
	UserSignedUp        = "user.signup"
)

type EventPayload map[string]any

// New builds an unsaved event with a JSON payload.
func New(now time.Time, evtType string, userID int64, entityKind string, entityID any, payload EventPayload) domain.Event {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return domain.Event{
		TS:         now.UTC().Format(time.RFC3339),
		Type:       evtType,
		UserID:     userID,
		EntityKind: entityKind,
		EntityID:   entityKey(entityID),
		Payload:    string(data),
	}
}

func entityKey(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case int64:
		return strconv.FormatInt(id, 10)
	case int:
		return strconv.Itoa(id)
	default:
		return fmt.Sprint(id)
	}
}

// Writer persists events inside the caller's transaction.
type Writer struct{}

func (Writer) Append(ctx context.Context, tx *sql.Tx, evts ...domain.Event) error {
	for _, e := range evts {
		if e.Type == "" {
			continue
		}
		if e.Payload == "" {
			e.Payload = "{}"
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,user_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`,
			e.TS, e.Type, e.UserID, e.EntityKind, nullable(e.EntityID), e.Payload)
		if err != nil {
			return fmt.Errorf("append event %s: %w", e.Type, err)
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
