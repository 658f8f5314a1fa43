package repo

import (
	"context"
	"database/sql"
	"fmt"

	"operador/internal/domain"
)

const missionColumns = `id,user_id,mission_number,title,objective,minimal_action,repetition_rule,completion_criteria,silent_penalty,required_streak,status,started_at,completed_at,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(row rowScanner) (domain.Mission, error) {
	var m domain.Mission
	var started, completed sql.NullString
	err := row.Scan(&m.ID, &m.UserID, &m.Number, &m.Title, &m.Objective, &m.MinimalAction, &m.RepetitionRule,
		&m.CompletionCriteria, &m.SilentPenalty, &m.RequiredStreak, &m.Status, &started, &completed, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, classify(err)
	}
	m.StartedAt = stringPtr(started)
	m.CompletedAt = stringPtr(completed)
	return m, nil
}

// InsertMissions stores a full chain. The (user_id, mission_number) unique
// index turns a concurrent second initialization into ErrConflict.
func (r Repo) InsertMissions(ctx context.Context, missions []domain.Mission, evt domain.Event) ([]domain.Mission, error) {
	out := make([]domain.Mission, 0, len(missions))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, m := range missions {
			res, err := tx.ExecContext(ctx, `INSERT INTO missions(user_id,mission_number,title,objective,minimal_action,repetition_rule,completion_criteria,silent_penalty,required_streak,status,started_at,completed_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				m.UserID, m.Number, m.Title, m.Objective, m.MinimalAction, m.RepetitionRule, m.CompletionCriteria, m.SilentPenalty,
				m.RequiredStreak, m.Status, nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt), m.CreatedAt, m.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert mission %d: %w", m.Number, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			m.ID = id
			out = append(out, m)
		}
		return r.Events.Append(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r Repo) ListMissions(ctx context.Context, userID int64) ([]domain.Mission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE user_id=? ORDER BY mission_number ASC`, userID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, classify(rows.Err())
}

func (r Repo) GetMission(ctx context.Context, userID, missionID int64) (domain.Mission, error) {
	m, err := scanMission(r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=? AND user_id=?`, missionID, userID))
	if err != nil {
		return m, fmt.Errorf("mission %d: %w", missionID, err)
	}
	return m, nil
}

// ApplyTransition completes the active mission and activates its locked successor in one transaction.
func (r Repo) ApplyTransition(ctx context.Context, tr domain.Transition, evts []domain.Event) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE missions SET status=?, completed_at=?, updated_at=? WHERE id=? AND user_id=? AND status=?`,
			domain.MissionCompleted, tr.At, tr.At, tr.MissionID, tr.UserID, domain.MissionActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: mission %d is not active", ErrConflict, tr.MissionID)
		}
		if tr.NextMissionID != 0 {
			res, err := tx.ExecContext(ctx, `UPDATE missions SET status=?, started_at=?, updated_at=? WHERE id=? AND user_id=? AND status=?`,
				domain.MissionActive, tr.At, tr.At, tr.NextMissionID, tr.UserID, domain.MissionLocked)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: mission %d is not locked", ErrConflict, tr.NextMissionID)
			}
		}
		return r.Events.Append(ctx, tx, evts...)
	})
}
