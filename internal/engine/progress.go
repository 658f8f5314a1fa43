package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"operador/internal/domain"
	"operador/internal/events"
	"operador/internal/repo"
)

// ProgressInput records one binary check-in. An empty Date means today.
type ProgressInput struct {
	UserID    int64
	MissionID int64
	Date      string
	Completed bool
	Notes     string
}

// nextStreak is the consecutive-day rule: a completed day extends the prior
// run, any failure resets it to zero.
func nextStreak(prior int, completed bool) int {
	if !completed {
		return 0
	}
	return prior + 1
}

func validDate(date string) error {
	d, err := time.Parse(domain.DateLayout, date)
	if err != nil || d.Format(domain.DateLayout) != date {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// RecordProgress upserts the check-in for (user, mission, date) and returns it
// with its recomputed streak. A failed day silently resets the streak; the
// mission status never changes here.
func (e Engine) RecordProgress(ctx context.Context, in ProgressInput) (domain.DailyProgress, error) {
	if in.Date == "" {
		in.Date = e.today()
	}
	if err := validDate(in.Date); err != nil {
		return domain.DailyProgress{}, err
	}
	if _, err := e.Store.GetMission(ctx, in.UserID, in.MissionID); err != nil {
		return domain.DailyProgress{}, err
	}
	unlock, err := e.lock(ctx, in.UserID, in.MissionID)
	if err != nil {
		return domain.DailyProgress{}, err
	}
	defer unlock()

	prior := 0
	prev, err := e.Store.ProgressBefore(ctx, in.UserID, in.MissionID, in.Date)
	switch {
	case err == nil:
		prior = prev.ConsecutiveDays
	case errors.Is(err, repo.ErrNotFound):
	default:
		return domain.DailyProgress{}, fmt.Errorf("load prior progress: %w", err)
	}

	now := e.stamp()
	current := domain.DailyProgress{
		UserID:          in.UserID,
		MissionID:       in.MissionID,
		Date:            in.Date,
		Completed:       in.Completed,
		ConsecutiveDays: nextStreak(prior, in.Completed),
		Notes:           sanitizeNotes(in.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	records := []domain.DailyProgress{current}

	later, err := e.Store.ProgressAfter(ctx, in.UserID, in.MissionID, in.Date)
	if err != nil {
		return domain.DailyProgress{}, fmt.Errorf("load later progress: %w", err)
	}
	streak := current.ConsecutiveDays
	for _, p := range later {
		want := nextStreak(streak, p.Completed)
		if want == p.ConsecutiveDays {
			break
		}
		p.ConsecutiveDays = want
		p.UpdatedAt = now
		records = append(records, p)
		streak = want
	}

	evt := events.New(e.now(), events.ProgressRecorded, in.UserID, "mission", in.MissionID, events.EventPayload{
		"date":             in.Date,
		"completed":        in.Completed,
		"consecutive_days": current.ConsecutiveDays,
		"recomputed":       len(records) - 1,
	})
	saved, err := e.Store.SaveProgress(ctx, records, evt)
	if err != nil {
		return domain.DailyProgress{}, fmt.Errorf("save progress: %w", err)
	}
	e.log().Debug("progress recorded",
		zap.Int64("user_id", in.UserID),
		zap.Int64("mission_id", in.MissionID),
		zap.String("date", in.Date),
		zap.Bool("completed", in.Completed),
		zap.Int("consecutive_days", saved[0].ConsecutiveDays),
	)
	return saved[0], nil
}

// RecordToday records a check-in for the clock's current day.
func (e Engine) RecordToday(ctx context.Context, userID, missionID int64, completed bool, notes string) (domain.DailyProgress, error) {
	return e.RecordProgress(ctx, ProgressInput{
		UserID:    userID,
		MissionID: missionID,
		Date:      e.today(),
		Completed: completed,
		Notes:     notes,
	})
}

// TodayProgress returns today's record, or nil when nothing was recorded yet.
func (e Engine) TodayProgress(ctx context.Context, userID, missionID int64) (*domain.DailyProgress, error) {
	if _, err := e.Store.GetMission(ctx, userID, missionID); err != nil {
		return nil, err
	}
	p, err := e.Store.GetProgress(ctx, userID, missionID, e.today())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ProgressHistory lists a mission's records, newest first.
func (e Engine) ProgressHistory(ctx context.Context, userID, missionID int64, limit int) ([]domain.DailyProgress, error) {
	if _, err := e.Store.GetMission(ctx, userID, missionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 30
	}
	return e.Store.ListProgress(ctx, userID, missionID, limit)
}

// CurrentStreak is the streak that counts toward completion: the latest run
// restricted to check-ins dated on or after the mission's activation day.
func (e Engine) CurrentStreak(ctx context.Context, userID, missionID int64) (int, error) {
	m, err := e.Store.GetMission(ctx, userID, missionID)
	if err != nil {
		return 0, err
	}
	return e.activeStreak(ctx, m)
}
