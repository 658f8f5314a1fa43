package repo

import (
	"context"
	"database/sql"
	"fmt"

	"operador/internal/domain"
)

const progressColumns = `id,user_id,mission_id,date,completed,consecutive_days,COALESCE(notes,''),created_at,updated_at`

func scanProgress(row rowScanner) (domain.DailyProgress, error) {
	var p domain.DailyProgress
	var completed int
	err := row.Scan(&p.ID, &p.UserID, &p.MissionID, &p.Date, &completed, &p.ConsecutiveDays, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, classify(err)
	}
	p.Completed = completed == 1
	return p, nil
}

func (r Repo) queryProgress(ctx context.Context, query string, args ...any) ([]domain.DailyProgress, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.DailyProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, classify(rows.Err())
}

func (r Repo) GetProgress(ctx context.Context, userID, missionID int64, date string) (domain.DailyProgress, error) {
	return scanProgress(r.DB.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM daily_progress WHERE user_id=? AND mission_id=? AND date=?`,
		userID, missionID, date))
}

// ProgressBefore returns the most recent record strictly before date.
func (r Repo) ProgressBefore(ctx context.Context, userID, missionID int64, date string) (domain.DailyProgress, error) {
	return scanProgress(r.DB.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM daily_progress WHERE user_id=? AND mission_id=? AND date<? ORDER BY date DESC LIMIT 1`,
		userID, missionID, date))
}

// ProgressAfter returns records strictly after date, oldest first.
func (r Repo) ProgressAfter(ctx context.Context, userID, missionID int64, date string) ([]domain.DailyProgress, error) {
	return r.queryProgress(ctx, `SELECT `+progressColumns+` FROM daily_progress WHERE user_id=? AND mission_id=? AND date>? ORDER BY date ASC`,
		userID, missionID, date)
}

func (r Repo) LatestProgress(ctx context.Context, userID, missionID int64) (domain.DailyProgress, error) {
	return scanProgress(r.DB.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM daily_progress WHERE user_id=? AND mission_id=? ORDER BY date DESC LIMIT 1`,
		userID, missionID))
}

func (r Repo) ListProgress(ctx context.Context, userID, missionID int64, limit int) ([]domain.DailyProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM daily_progress WHERE user_id=? AND mission_id=? ORDER BY date DESC`
	args := []any{userID, missionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryProgress(ctx, query, args...)
}

// SaveProgress upserts every record on its (user, mission, date) key and
// returns them as stored, in input order.
func (r Repo) SaveProgress(ctx context.Context, records []domain.DailyProgress, evt domain.Event) ([]domain.DailyProgress, error) {
	out := make([]domain.DailyProgress, 0, len(records))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range records {
			_, err := tx.ExecContext(ctx, `INSERT INTO daily_progress(user_id,mission_id,date,completed,consecutive_days,notes,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(user_id,mission_id,date) DO UPDATE SET completed=excluded.completed, consecutive_days=excluded.consecutive_days, notes=excluded.notes, updated_at=excluded.updated_at`,
				p.UserID, p.MissionID, p.Date, boolInt(p.Completed), p.ConsecutiveDays, nullable(p.Notes), p.CreatedAt, p.UpdatedAt)
			if err != nil {
				return fmt.Errorf("upsert progress %s: %w", p.Date, err)
			}
			saved, err := scanProgress(tx.QueryRowContext(ctx, `SELECT `+progressColumns+` FROM daily_progress WHERE user_id=? AND mission_id=? AND date=?`,
				p.UserID, p.MissionID, p.Date))
			if err != nil {
				return err
			}
			out = append(out, saved)
		}
		return r.Events.Append(ctx, tx, evt)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
