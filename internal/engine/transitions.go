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

// Advance reports the outcome of an evaluation.
type Advance struct {
	Mission  domain.Mission  `json:"mission"`
	Next     *domain.Mission `json:"next,omitempty"`
	Advanced bool            `json:"advanced"`
	Streak   int             `json:"streak"`
	Required int             `json:"required"`
}

func (e Engine) requireActive(ctx context.Context, userID, missionID int64) (domain.Mission, error) {
	m, err := e.Store.GetMission(ctx, userID, missionID)
	if err != nil {
		return domain.Mission{}, err
	}
	if m.Status != domain.MissionActive {
		return m, fmt.Errorf("%w: mission %d is %s", ErrInvalidTransition, m.Number, m.Status)
	}
	return m, nil
}

// EvaluateAndAdvance completes the active mission once its streak since
// activation reaches the required length and unlocks the next one. When the
// criterion is not met nothing changes and no error is returned.
func (e Engine) EvaluateAndAdvance(ctx context.Context, userID, missionID int64) (Advance, error) {
	unlock, err := e.lock(ctx, userID, missionID)
	if err != nil {
		return Advance{}, err
	}
	defer unlock()

	m, err := e.requireActive(ctx, userID, missionID)
	if err != nil {
		return Advance{}, err
	}
	res := Advance{Mission: m, Required: m.RequiredStreak}
	if res.Streak, err = e.activeStreak(ctx, m); err != nil {
		return Advance{}, err
	}
	if m.RequiredStreak <= 0 || res.Streak < m.RequiredStreak {
		return res, nil
	}
	return e.complete(ctx, m, res)
}

// activeStreak is the run ending at the mission's latest record, counting
// only check-ins dated on or after the day the mission became active. Days
// logged while it was still locked never count.
func (e Engine) activeStreak(ctx context.Context, m domain.Mission) (int, error) {
	if m.StartedAt == nil {
		return 0, nil
	}
	started, err := time.Parse(time.RFC3339, *m.StartedAt)
	if err != nil {
		return 0, fmt.Errorf("mission %d started_at %q: %w", m.Number, *m.StartedAt, err)
	}
	first, err := time.Parse(domain.DateLayout, e.day(started))
	if err != nil {
		return 0, err
	}
	records, err := e.Store.ProgressAfter(ctx, m.UserID, m.ID, first.AddDate(0, 0, -1).Format(domain.DateLayout))
	if err != nil {
		return 0, fmt.Errorf("load progress since activation: %w", err)
	}
	streak := 0
	for _, p := range records {
		streak = nextStreak(streak, p.Completed)
	}
	return streak, nil
}

// ConfirmMission completes an active mission whose criterion is a manual
// one-shot confirmation rather than a streak.
func (e Engine) ConfirmMission(ctx context.Context, userID, missionID int64) (Advance, error) {
	unlock, err := e.lock(ctx, userID, missionID)
	if err != nil {
		return Advance{}, err
	}
	defer unlock()

	m, err := e.requireActive(ctx, userID, missionID)
	if err != nil {
		return Advance{}, err
	}
	if m.RequiredStreak > 0 {
		return Advance{}, fmt.Errorf("%w: mission %d completes by a %d-day streak", ErrInvalidTransition, m.Number, m.RequiredStreak)
	}
	return e.complete(ctx, m, Advance{Mission: m})
}

func (e Engine) complete(ctx context.Context, m domain.Mission, res Advance) (Advance, error) {
	missions, err := e.Store.ListMissions(ctx, m.UserID)
	if err != nil {
		return Advance{}, fmt.Errorf("list missions: %w", err)
	}
	var next *domain.Mission
	for i := range missions {
		if missions[i].Number == m.Number+1 {
			next = &missions[i]
			break
		}
	}
	tr := domain.Transition{UserID: m.UserID, MissionID: m.ID, At: e.stamp()}
	evts := []domain.Event{
		events.New(e.now(), events.MissionCompleted, m.UserID, "mission", m.ID, events.EventPayload{
			"mission_number": m.Number,
			"streak":         res.Streak,
		}),
	}
	if next != nil {
		if next.Status != domain.MissionLocked {
			return Advance{}, fmt.Errorf("%w: mission %d is %s", ErrInvalidTransition, next.Number, next.Status)
		}
		tr.NextMissionID = next.ID
		evts = append(evts, events.New(e.now(), events.MissionActivated, m.UserID, "mission", next.ID, events.EventPayload{
			"mission_number": next.Number,
		}))
	}
	if err := e.Store.ApplyTransition(ctx, tr, evts); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return Advance{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		return Advance{}, fmt.Errorf("apply transition: %w", err)
	}

	updated, err := e.Store.GetMission(ctx, m.UserID, m.ID)
	if err != nil {
		return Advance{}, err
	}
	res.Mission = updated
	res.Advanced = true
	if next != nil {
		n, err := e.Store.GetMission(ctx, m.UserID, next.ID)
		if err != nil {
			return Advance{}, err
		}
		res.Next = &n
	}
	e.log().Info("mission completed",
		zap.Int64("user_id", m.UserID),
		zap.Int("mission_number", m.Number),
		zap.Bool("next_activated", next != nil),
	)
	return res, nil
}
