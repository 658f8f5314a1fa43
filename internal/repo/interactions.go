package repo

import (
	"context"
	"database/sql"

	"operador/internal/domain"
)

func (r Repo) InsertInteraction(ctx context.Context, it domain.Interaction, evt domain.Event) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO ai_interactions(id,user_id,agent_type,user_message,ai_response,created_at) VALUES (?,?,?,?,?,?)`,
			it.ID, it.UserID, it.AgentType, it.UserMessage, it.AIResponse, it.CreatedAt)
		if err != nil {
			return err
		}
		return r.Events.Append(ctx, tx, evt)
	})
}

// ListInteractions returns a user's conversations newest first, optionally for one agent.
func (r Repo) ListInteractions(ctx context.Context, userID int64, agentType string, limit int) ([]domain.Interaction, error) {
	query := `SELECT id,user_id,agent_type,user_message,ai_response,created_at FROM ai_interactions WHERE user_id=?`
	args := []any{userID}
	if agentType != "" {
		query += ` AND agent_type=?`
		args = append(args, agentType)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.Interaction
	for rows.Next() {
		var it domain.Interaction
		if err := rows.Scan(&it.ID, &it.UserID, &it.AgentType, &it.UserMessage, &it.AIResponse, &it.CreatedAt); err != nil {
			return nil, classify(err)
		}
		res = append(res, it)
	}
	return res, classify(rows.Err())
}
