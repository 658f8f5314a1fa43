package repo

import (
	"context"
	"fmt"
	"strings"

	"operador/internal/domain"
)

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID *string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.UserID, &e.EntityKind, &entityID, &e.Payload); err != nil {
			return nil, classify(err)
		}
		if entityID != nil {
			e.EntityID = *entityID
		}
		res = append(res, e)
	}
	return res, classify(rows.Err())
}

// ListEvents returns a user's events, newest first.
func (r Repo) ListEvents(ctx context.Context, userID int64, limit int) ([]domain.Event, error) {
	return r.queryEvents(ctx, `SELECT id,ts,type,user_id,entity_kind,entity_id,payload_json FROM events WHERE user_id=? ORDER BY id DESC LIMIT ?`,
		userID, limit)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
// A zero userID spans every user.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, userID int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"id>?"}
	args := []any{cursor}
	if userID != 0 {
		clauses = append(clauses, "user_id=?")
		args = append(args, userID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,user_id,entity_kind,entity_id,payload_json FROM events WHERE %s ORDER BY id ASC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID across all users.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, classify(err)
	}
	return id, nil
}
