package repo

import (
	"context"
	"database/sql"

	"operador/internal/domain"
)

// SaveAutonomy upserts the weekly snapshot keyed by (user, week).
func (r Repo) SaveAutonomy(ctx context.Context, snap domain.AutonomySnapshot, evt domain.Event) (domain.AutonomySnapshot, error) {
	var out domain.AutonomySnapshot
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO autonomy_tracking(user_id,week,autonomy_score,is_ready_to_exit,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(user_id,week) DO UPDATE SET autonomy_score=excluded.autonomy_score, is_ready_to_exit=excluded.is_ready_to_exit, updated_at=excluded.updated_at`,
			snap.UserID, snap.Week, snap.Percent, boolInt(snap.Ready), snap.CreatedAt, snap.UpdatedAt)
		if err != nil {
			return err
		}
		out, err = scanAutonomy(tx.QueryRowContext(ctx, `SELECT user_id,week,autonomy_score,is_ready_to_exit,created_at,updated_at FROM autonomy_tracking WHERE user_id=? AND week=?`,
			snap.UserID, snap.Week))
		if err != nil {
			return err
		}
		return r.Events.Append(ctx, tx, evt)
	})
	return out, err
}

func scanAutonomy(row rowScanner) (domain.AutonomySnapshot, error) {
	var s domain.AutonomySnapshot
	var ready int
	if err := row.Scan(&s.UserID, &s.Week, &s.Percent, &ready, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, classify(err)
	}
	s.Ready = ready == 1
	return s, nil
}

// ListAutonomy returns snapshots newest week first.
func (r Repo) ListAutonomy(ctx context.Context, userID int64, limit int) ([]domain.AutonomySnapshot, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id,week,autonomy_score,is_ready_to_exit,created_at,updated_at FROM autonomy_tracking WHERE user_id=? ORDER BY week DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.AutonomySnapshot
	for rows.Next() {
		s, err := scanAutonomy(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, classify(rows.Err())
}
