package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"operador/internal/clock"
	"operador/internal/domain"
	"operador/internal/events"
	"operador/internal/locks"
	"operador/internal/repo"
	"operador/internal/sanitize"
)

// Store is the persistence the engine needs. Implementations report
// repo.ErrNotFound, repo.ErrConflict and repo.ErrUnavailable.
type Store interface {
	// InsertMissions writes a user's whole chain at once, failing with
	// repo.ErrConflict if any mission already exists for the user.
	InsertMissions(ctx context.Context, missions []domain.Mission, evt domain.Event) ([]domain.Mission, error)
	ListMissions(ctx context.Context, userID int64) ([]domain.Mission, error)
	GetMission(ctx context.Context, userID, missionID int64) (domain.Mission, error)
	// ApplyTransition completes an active mission and activates a locked
	// successor atomically, failing with repo.ErrConflict when either
	// status no longer matches.
	ApplyTransition(ctx context.Context, tr domain.Transition, evts []domain.Event) error

	GetProgress(ctx context.Context, userID, missionID int64, date string) (domain.DailyProgress, error)
	ProgressBefore(ctx context.Context, userID, missionID int64, date string) (domain.DailyProgress, error)
	ProgressAfter(ctx context.Context, userID, missionID int64, date string) ([]domain.DailyProgress, error)
	LatestProgress(ctx context.Context, userID, missionID int64) (domain.DailyProgress, error)
	ListProgress(ctx context.Context, userID, missionID int64, limit int) ([]domain.DailyProgress, error)
	// SaveProgress upserts records keyed by (user, mission, date) in one write.
	SaveProgress(ctx context.Context, records []domain.DailyProgress, evt domain.Event) ([]domain.DailyProgress, error)

	SaveAutonomy(ctx context.Context, snap domain.AutonomySnapshot, evt domain.Event) (domain.AutonomySnapshot, error)
	ListAutonomy(ctx context.Context, userID int64, limit int) ([]domain.AutonomySnapshot, error)
	ListEvents(ctx context.Context, userID int64, limit int) ([]domain.Event, error)
}

type Engine struct {
	Store     Store
	Clock     clock.Clock
	Locks     locks.Locker
	Templates []domain.MissionTemplate
	Log       *zap.Logger
}

func New(store Store, templates []domain.MissionTemplate) Engine {
	return Engine{
		Store:     store,
		Clock:     clock.System{Location: time.UTC},
		Locks:     locks.NewLocal(),
		Templates: templates,
		Log:       zap.NewNop(),
	}
}

func (e Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now()
}

func (e Engine) today() string {
	if e.Clock != nil {
		return e.Clock.Today()
	}
	return time.Now().UTC().Format(domain.DateLayout)
}

func (e Engine) day(t time.Time) string {
	if e.Clock != nil {
		return e.Clock.Day(t)
	}
	return t.UTC().Format(domain.DateLayout)
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func progressKey(userID, missionID int64) string {
	return "progress:" + strconv.FormatInt(userID, 10) + ":" + strconv.FormatInt(missionID, 10)
}

func (e Engine) lock(ctx context.Context, userID, missionID int64) (func(), error) {
	if e.Locks == nil {
		return func() {}, nil
	}
	unlock, err := e.Locks.Lock(ctx, progressKey(userID, missionID))
	if err != nil {
		return nil, fmt.Errorf("lock mission %d: %w", missionID, err)
	}
	return unlock, nil
}

// ValidateTemplates checks that templates describe missions 1..4 exactly once.
func ValidateTemplates(templates []domain.MissionTemplate) error {
	if len(templates) != domain.MissionCount {
		return fmt.Errorf("%w: want %d templates, got %d", ErrInvalidTemplates, domain.MissionCount, len(templates))
	}
	seen := map[int]bool{}
	for _, t := range templates {
		if t.Number < 1 || t.Number > domain.MissionCount {
			return fmt.Errorf("%w: mission number %d out of range", ErrInvalidTemplates, t.Number)
		}
		if seen[t.Number] {
			return fmt.Errorf("%w: mission number %d repeated", ErrInvalidTemplates, t.Number)
		}
		if t.Title == "" {
			return fmt.Errorf("%w: mission %d has no title", ErrInvalidTemplates, t.Number)
		}
		if t.RequiredStreak < 0 {
			return fmt.Errorf("%w: mission %d has negative required streak", ErrInvalidTemplates, t.Number)
		}
		seen[t.Number] = true
	}
	return nil
}

// InitializeUser creates the user's four missions: the first active, the rest locked.
// A second call for the same user fails with ErrAlreadyInitialized.
func (e Engine) InitializeUser(ctx context.Context, userID int64) ([]domain.Mission, error) {
	if err := ValidateTemplates(e.Templates); err != nil {
		return nil, err
	}
	existing, err := e.Store.ListMissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	if len(existing) > 0 {
		return nil, ErrAlreadyInitialized
	}
	templates := append([]domain.MissionTemplate(nil), e.Templates...)
	sort.Slice(templates, func(i, j int) bool { return templates[i].Number < templates[j].Number })

	now := e.stamp()
	missions := make([]domain.Mission, 0, len(templates))
	for _, t := range templates {
		m := domain.Mission{
			UserID:             userID,
			Number:             t.Number,
			Title:              t.Title,
			Objective:          t.Objective,
			MinimalAction:      t.MinimalAction,
			RepetitionRule:     t.RepetitionRule,
			CompletionCriteria: t.CompletionCriteria,
			SilentPenalty:      t.SilentPenalty,
			RequiredStreak:     t.RequiredStreak,
			Status:             domain.MissionLocked,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if t.Number == 1 {
			m.Status = domain.MissionActive
			started := now
			m.StartedAt = &started
		}
		missions = append(missions, m)
	}
	evt := events.New(e.now(), events.MissionsInitialized, userID, "user", userID, events.EventPayload{"missions": len(missions)})
	created, err := e.Store.InsertMissions(ctx, missions, evt)
	if errors.Is(err, repo.ErrConflict) {
		return nil, ErrAlreadyInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("insert missions: %w", err)
	}
	e.log().Info("missions initialized", zap.Int64("user_id", userID))
	return created, nil
}

func (e Engine) ListMissions(ctx context.Context, userID int64) ([]domain.Mission, error) {
	missions, err := e.Store.ListMissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(missions, func(i, j int) bool { return missions[i].Number < missions[j].Number })
	return missions, nil
}

func (e Engine) GetMission(ctx context.Context, userID, missionID int64) (domain.Mission, error) {
	return e.Store.GetMission(ctx, userID, missionID)
}

// MissionByNumber resolves a mission number (1..4) to the user's mission.
func (e Engine) MissionByNumber(ctx context.Context, userID int64, number int) (domain.Mission, error) {
	missions, err := e.Store.ListMissions(ctx, userID)
	if err != nil {
		return domain.Mission{}, err
	}
	for _, m := range missions {
		if m.Number == number {
			return m, nil
		}
	}
	return domain.Mission{}, fmt.Errorf("mission number %d: %w", number, repo.ErrNotFound)
}

// ActiveMission returns the single active mission, or repo.ErrNotFound once the chain is done.
func (e Engine) ActiveMission(ctx context.Context, userID int64) (domain.Mission, error) {
	missions, err := e.Store.ListMissions(ctx, userID)
	if err != nil {
		return domain.Mission{}, err
	}
	for _, m := range missions {
		if m.Status == domain.MissionActive {
			return m, nil
		}
	}
	return domain.Mission{}, fmt.Errorf("active mission: %w", repo.ErrNotFound)
}

// Autonomy scores the user's current mission statuses.
func (e Engine) Autonomy(ctx context.Context, userID int64) (domain.Autonomy, error) {
	missions, err := e.Store.ListMissions(ctx, userID)
	if err != nil {
		return domain.Autonomy{}, err
	}
	return Score(missions), nil
}

// SnapshotAutonomy stores the current score under the clock's ISO week.
func (e Engine) SnapshotAutonomy(ctx context.Context, userID int64) (domain.AutonomySnapshot, error) {
	a, err := e.Autonomy(ctx, userID)
	if err != nil {
		return domain.AutonomySnapshot{}, err
	}
	day, err := time.Parse(domain.DateLayout, e.today())
	if err != nil {
		return domain.AutonomySnapshot{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	now := e.stamp()
	snap := domain.AutonomySnapshot{
		UserID:    userID,
		Week:      ISOWeek(day),
		Percent:   a.Percent,
		Ready:     a.Ready,
		CreatedAt: now,
		UpdatedAt: now,
	}
	evt := events.New(e.now(), events.AutonomySnapshot, userID, "autonomy", snap.Week, events.EventPayload{
		"percent": a.Percent,
		"ready":   a.Ready,
	})
	saved, err := e.Store.SaveAutonomy(ctx, snap, evt)
	if err != nil {
		return domain.AutonomySnapshot{}, fmt.Errorf("save autonomy: %w", err)
	}
	return saved, nil
}

func (e Engine) AutonomyHistory(ctx context.Context, userID int64, limit int) ([]domain.AutonomySnapshot, error) {
	if limit <= 0 {
		limit = 12
	}
	return e.Store.ListAutonomy(ctx, userID, limit)
}

// ISOWeek formats t as YYYY-Www.
func ISOWeek(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

func (e Engine) Events(ctx context.Context, userID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.Store.ListEvents(ctx, userID, limit)
}

func sanitizeNotes(s string) string {
	return sanitize.Text(s)
}
