// Package memrepo is an in-memory implementation of the engine store, used by
// tests and by ephemeral runs that keep nothing on disk.
package memrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"operador/internal/domain"
	"operador/internal/repo"
)

type progressKey struct {
	userID, missionID int64
	date              string
}

type autonomyKey struct {
	userID int64
	week   string
}

type Store struct {
	mu      sync.Mutex
	offline bool

	lastID       int64
	missions     map[int64]domain.Mission
	progress     map[progressKey]domain.DailyProgress
	autonomy     map[autonomyKey]domain.AutonomySnapshot
	events       []domain.Event
	interactions []domain.Interaction
}

func New() *Store {
	return &Store{
		missions: map[int64]domain.Mission{},
		progress: map[progressKey]domain.DailyProgress{},
		autonomy: map[autonomyKey]domain.AutonomySnapshot{},
	}
}

// SetOffline makes every call fail with repo.ErrUnavailable until switched back.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// lock takes the store mutex and reports ErrUnavailable when offline.
// The caller must unlock even on error.
func (s *Store) lock(ctx context.Context) error {
	s.mu.Lock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.offline {
		return repo.ErrUnavailable
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) appendEvents(evts ...domain.Event) {
	for _, e := range evts {
		if e.Type == "" {
			continue
		}
		e.ID = s.nextID()
		if e.Payload == "" {
			e.Payload = "{}"
		}
		s.events = append(s.events, e)
	}
}

func (s *Store) InsertMissions(ctx context.Context, missions []domain.Mission, evt domain.Event) ([]domain.Mission, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	for _, m := range missions {
		for _, existing := range s.missions {
			if existing.UserID == m.UserID && existing.Number == m.Number {
				return nil, fmt.Errorf("%w: mission %d exists for user %d", repo.ErrConflict, m.Number, m.UserID)
			}
		}
	}
	out := make([]domain.Mission, 0, len(missions))
	for _, m := range missions {
		m.ID = s.nextID()
		s.missions[m.ID] = cloneMission(m)
		out = append(out, m)
	}
	s.appendEvents(evt)
	return out, nil
}

func cloneMission(m domain.Mission) domain.Mission {
	if m.StartedAt != nil {
		v := *m.StartedAt
		m.StartedAt = &v
	}
	if m.CompletedAt != nil {
		v := *m.CompletedAt
		m.CompletedAt = &v
	}
	return m
}

func (s *Store) ListMissions(ctx context.Context, userID int64) ([]domain.Mission, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	var res []domain.Mission
	for _, m := range s.missions {
		if m.UserID == userID {
			res = append(res, cloneMission(m))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	return res, nil
}

func (s *Store) GetMission(ctx context.Context, userID, missionID int64) (domain.Mission, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return domain.Mission{}, err
	}
	m, ok := s.missions[missionID]
	if !ok || m.UserID != userID {
		return domain.Mission{}, fmt.Errorf("mission %d: %w", missionID, repo.ErrNotFound)
	}
	return cloneMission(m), nil
}

func (s *Store) ApplyTransition(ctx context.Context, tr domain.Transition, evts []domain.Event) error {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return err
	}
	cur, ok := s.missions[tr.MissionID]
	if !ok || cur.UserID != tr.UserID || cur.Status != domain.MissionActive {
		return fmt.Errorf("%w: mission %d is not active", repo.ErrConflict, tr.MissionID)
	}
	var next domain.Mission
	if tr.NextMissionID != 0 {
		next, ok = s.missions[tr.NextMissionID]
		if !ok || next.UserID != tr.UserID || next.Status != domain.MissionLocked {
			return fmt.Errorf("%w: mission %d is not locked", repo.ErrConflict, tr.NextMissionID)
		}
	}
	at := tr.At
	cur.Status = domain.MissionCompleted
	cur.CompletedAt = &at
	cur.UpdatedAt = at
	s.missions[cur.ID] = cur
	if tr.NextMissionID != 0 {
		started := tr.At
		next.Status = domain.MissionActive
		next.StartedAt = &started
		next.UpdatedAt = at
		s.missions[next.ID] = next
	}
	s.appendEvents(evts...)
	return nil
}

func (s *Store) missionProgress(userID, missionID int64) []domain.DailyProgress {
	var res []domain.DailyProgress
	for k, p := range s.progress {
		if k.userID == userID && k.missionID == missionID {
			res = append(res, p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date < res[j].Date })
	return res
}

func (s *Store) GetProgress(ctx context.Context, userID, missionID int64, date string) (domain.DailyProgress, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return domain.DailyProgress{}, err
	}
	p, ok := s.progress[progressKey{userID, missionID, date}]
	if !ok {
		return domain.DailyProgress{}, repo.ErrNotFound
	}
	return p, nil
}

func (s *Store) ProgressBefore(ctx context.Context, userID, missionID int64, date string) (domain.DailyProgress, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return domain.DailyProgress{}, err
	}
	all := s.missionProgress(userID, missionID)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Date < date {
			return all[i], nil
		}
	}
	return domain.DailyProgress{}, repo.ErrNotFound
}

func (s *Store) ProgressAfter(ctx context.Context, userID, missionID int64, date string) ([]domain.DailyProgress, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	var res []domain.DailyProgress
	for _, p := range s.missionProgress(userID, missionID) {
		if p.Date > date {
			res = append(res, p)
		}
	}
	return res, nil
}

func (s *Store) LatestProgress(ctx context.Context, userID, missionID int64) (domain.DailyProgress, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return domain.DailyProgress{}, err
	}
	all := s.missionProgress(userID, missionID)
	if len(all) == 0 {
		return domain.DailyProgress{}, repo.ErrNotFound
	}
	return all[len(all)-1], nil
}

func (s *Store) ListProgress(ctx context.Context, userID, missionID int64, limit int) ([]domain.DailyProgress, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	all := s.missionProgress(userID, missionID)
	res := make([]domain.DailyProgress, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		res = append(res, all[i])
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (s *Store) SaveProgress(ctx context.Context, records []domain.DailyProgress, evt domain.Event) ([]domain.DailyProgress, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.DailyProgress, 0, len(records))
	for _, p := range records {
		k := progressKey{p.UserID, p.MissionID, p.Date}
		if existing, ok := s.progress[k]; ok {
			p.ID = existing.ID
			p.CreatedAt = existing.CreatedAt
		} else {
			p.ID = s.nextID()
		}
		s.progress[k] = p
		out = append(out, p)
	}
	s.appendEvents(evt)
	return out, nil
}

func (s *Store) SaveAutonomy(ctx context.Context, snap domain.AutonomySnapshot, evt domain.Event) (domain.AutonomySnapshot, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return domain.AutonomySnapshot{}, err
	}
	k := autonomyKey{snap.UserID, snap.Week}
	if existing, ok := s.autonomy[k]; ok {
		snap.CreatedAt = existing.CreatedAt
	}
	s.autonomy[k] = snap
	s.appendEvents(evt)
	return snap, nil
}

func (s *Store) ListAutonomy(ctx context.Context, userID int64, limit int) ([]domain.AutonomySnapshot, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	var res []domain.AutonomySnapshot
	for k, v := range s.autonomy {
		if k.userID == userID {
			res = append(res, v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Week > res[j].Week })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *Store) ListEvents(ctx context.Context, userID int64, limit int) ([]domain.Event, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	var res []domain.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].UserID != userID {
			continue
		}
		res = append(res, s.events[i])
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}

func (s *Store) InsertInteraction(ctx context.Context, it domain.Interaction, evt domain.Event) error {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return err
	}
	s.interactions = append(s.interactions, it)
	s.appendEvents(evt)
	return nil
}

func (s *Store) ListInteractions(ctx context.Context, userID int64, agentType string, limit int) ([]domain.Interaction, error) {
	defer s.mu.Unlock()
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	var res []domain.Interaction
	for i := len(s.interactions) - 1; i >= 0; i-- {
		it := s.interactions[i]
		if it.UserID != userID || (agentType != "" && it.AgentType != agentType) {
			continue
		}
		res = append(res, it)
		if limit > 0 && len(res) == limit {
			break
		}
	}
	return res, nil
}
