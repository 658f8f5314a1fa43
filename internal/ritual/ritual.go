// Package ritual drives the daily cut, action and record sequence for one
// mission. Sessions live in memory only.
package ritual

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"operador/internal/domain"
)

type Phase string

const (
	PhaseCut    Phase = "cut"
	PhaseAction Phase = "action"
	PhaseRecord Phase = "record"
)

type Outcome string

const (
	Done    Outcome = "done"
	NotDone Outcome = "not_done"
)

// DefaultAction is the action countdown when none is configured.
const DefaultAction = 15 * time.Minute

var (
	ErrWrongPhase = errors.New("wrong ritual phase")
	ErrResolved   = errors.New("ritual already resolved")
)

// Recorder persists the ritual outcome for the current day.
type Recorder interface {
	RecordToday(ctx context.Context, userID, missionID int64, completed bool, notes string) (domain.DailyProgress, error)
}

type Options struct {
	ActionDuration time.Duration
	// RecordNotDone makes a "not done" outcome record a failed day. When
	// false the outcome is discarded and nothing is written.
	RecordNotDone bool
	// OnPhase is called after every phase change, outside the session lock.
	OnPhase func(Phase)
}

type Result struct {
	Outcome  Outcome               `json:"outcome"`
	Recorded bool                  `json:"recorded"`
	Progress *domain.DailyProgress `json:"progress,omitempty"`
}

type Session struct {
	rec       Recorder
	userID    int64
	missionID int64
	opts      Options

	mu        sync.Mutex
	phase     Phase
	remaining time.Duration
	running   bool
	resolving bool
	resolved  bool
}

func New(rec Recorder, userID, missionID int64, opts Options) *Session {
	if opts.ActionDuration <= 0 {
		opts.ActionDuration = DefaultAction
	}
	return &Session{
		rec:       rec,
		userID:    userID,
		missionID: missionID,
		opts:      opts,
		phase:     PhaseCut,
		remaining: opts.ActionDuration,
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

func (s *Session) notify(p Phase) {
	if s.opts.OnPhase != nil {
		s.opts.OnPhase(p)
	}
}

// BeginAction leaves the cut phase. The countdown starts paused.
func (s *Session) BeginAction() error {
	s.mu.Lock()
	if s.phase != PhaseCut {
		s.mu.Unlock()
		return fmt.Errorf("%w: begin action from %s", ErrWrongPhase, s.phase)
	}
	s.phase = PhaseAction
	s.remaining = s.opts.ActionDuration
	s.running = false
	s.mu.Unlock()
	s.notify(PhaseAction)
	return nil
}

func (s *Session) setRunning(running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseAction {
		return fmt.Errorf("%w: countdown only runs in action, now %s", ErrWrongPhase, s.phase)
	}
	s.running = running
	return nil
}

func (s *Session) Start() error { return s.setRunning(true) }
func (s *Session) Pause() error { return s.setRunning(false) }

// Toggle flips between running and paused.
func (s *Session) Toggle() error {
	s.mu.Lock()
	running := !s.running
	s.mu.Unlock()
	return s.setRunning(running)
}

// Tick consumes d from a running countdown and moves to record at zero.
func (s *Session) Tick(d time.Duration) Phase {
	s.mu.Lock()
	if s.phase != PhaseAction || !s.running {
		p := s.phase
		s.mu.Unlock()
		return p
	}
	s.remaining -= d
	if s.remaining > 0 {
		s.mu.Unlock()
		return PhaseAction
	}
	s.remaining = 0
	s.running = false
	s.phase = PhaseRecord
	s.mu.Unlock()
	s.notify(PhaseRecord)
	return PhaseRecord
}

// SkipToRecord ends the action phase early.
func (s *Session) SkipToRecord() error {
	s.mu.Lock()
	if s.phase != PhaseAction {
		s.mu.Unlock()
		return fmt.Errorf("%w: skip from %s", ErrWrongPhase, s.phase)
	}
	s.running = false
	s.phase = PhaseRecord
	s.mu.Unlock()
	s.notify(PhaseRecord)
	return nil
}

// Run drives the countdown from a ticker until the session leaves the
// action phase or ctx ends.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if s.Phase() != PhaseAction {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick(interval)
		}
	}
}

// Resolve closes the run with the user's verdict. Done always records a
// completed day; NotDone records a failed day only when RecordNotDone is set.
// A run resolves once: calls made while another is in flight or after it
// succeeded get ErrResolved. A recorder failure leaves the run open.
func (s *Session) Resolve(ctx context.Context, outcome Outcome, notes string) (Result, error) {
	if outcome != Done && outcome != NotDone {
		return Result{}, fmt.Errorf("unknown ritual outcome %q", outcome)
	}
	s.mu.Lock()
	if s.phase != PhaseRecord {
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: resolve from %s", ErrWrongPhase, s.phase)
	}
	if s.resolved || s.resolving {
		s.mu.Unlock()
		return Result{}, ErrResolved
	}
	s.resolving = true
	s.mu.Unlock()

	res := Result{Outcome: outcome}
	if outcome == NotDone && !s.opts.RecordNotDone {
		s.finishResolve(true)
		return res, nil
	}
	p, err := s.rec.RecordToday(ctx, s.userID, s.missionID, outcome == Done, notes)
	if err != nil {
		s.finishResolve(false)
		return Result{}, fmt.Errorf("record ritual outcome: %w", err)
	}
	s.finishResolve(true)
	res.Recorded = true
	res.Progress = &p
	return res, nil
}

func (s *Session) finishResolve(ok bool) {
	s.mu.Lock()
	s.resolving = false
	s.resolved = ok
	s.mu.Unlock()
}

// Reset starts a fresh run at the cut phase.
func (s *Session) Reset() {
	s.mu.Lock()
	s.phase = PhaseCut
	s.remaining = s.opts.ActionDuration
	s.running = false
	s.resolving = false
	s.resolved = false
	s.mu.Unlock()
	s.notify(PhaseCut)
}
