package ritual

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"operador/internal/domain"
)

type call struct {
	userID, missionID int64
	completed         bool
	notes             string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeRecorder) RecordToday(_ context.Context, userID, missionID int64, completed bool, notes string) (domain.DailyProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.DailyProgress{}, f.err
	}
	f.calls = append(f.calls, call{userID, missionID, completed, notes})
	streak := 0
	if completed {
		streak = 1
	}
	return domain.DailyProgress{UserID: userID, MissionID: missionID, Completed: completed, ConsecutiveDays: streak}, nil
}

func TestPhaseOrder(t *testing.T) {
	var phases []Phase
	s := New(&fakeRecorder{}, 1, 10, Options{OnPhase: func(p Phase) { phases = append(phases, p) }})
	assert.Equal(t, PhaseCut, s.Phase())
	assert.Equal(t, 15*time.Minute, s.Remaining())

	require.ErrorIs(t, s.Start(), ErrWrongPhase)
	require.ErrorIs(t, s.SkipToRecord(), ErrWrongPhase)
	_, err := s.Resolve(context.Background(), Done, "")
	require.ErrorIs(t, err, ErrWrongPhase)

	require.NoError(t, s.BeginAction())
	require.ErrorIs(t, s.BeginAction(), ErrWrongPhase)
	require.NoError(t, s.SkipToRecord())
	assert.Equal(t, []Phase{PhaseAction, PhaseRecord}, phases)
}

func TestCountdownPauseResumeAndAutoTransition(t *testing.T) {
	s := New(&fakeRecorder{}, 1, 10, Options{ActionDuration: 3 * time.Second})
	require.NoError(t, s.BeginAction())
	assert.False(t, s.Running())

	assert.Equal(t, PhaseAction, s.Tick(time.Second))
	assert.Equal(t, 3*time.Second, s.Remaining(), "paused countdown must not move")

	require.NoError(t, s.Start())
	s.Tick(time.Second)
	assert.Equal(t, 2*time.Second, s.Remaining())

	require.NoError(t, s.Toggle())
	assert.False(t, s.Running())
	s.Tick(time.Second)
	assert.Equal(t, 2*time.Second, s.Remaining())

	require.NoError(t, s.Toggle())
	assert.Equal(t, PhaseAction, s.Tick(time.Second))
	assert.Equal(t, PhaseRecord, s.Tick(time.Second))
	assert.Zero(t, s.Remaining())
	assert.False(t, s.Running())
	require.ErrorIs(t, s.Pause(), ErrWrongPhase)
}

func TestDoneRecordsCompletedDay(t *testing.T) {
	rec := &fakeRecorder{}
	s := New(rec, 1, 10, Options{})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.SkipToRecord())

	res, err := s.Resolve(context.Background(), Done, "15 min")
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	require.NotNil(t, res.Progress)
	assert.Equal(t, 1, res.Progress.ConsecutiveDays)
	assert.Equal(t, []call{{1, 10, true, "15 min"}}, rec.calls)

	_, err = s.Resolve(context.Background(), Done, "")
	require.ErrorIs(t, err, ErrResolved)
}

func TestNotDoneRecordsFailureWhenEnabled(t *testing.T) {
	rec := &fakeRecorder{}
	s := New(rec, 1, 10, Options{RecordNotDone: true})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.SkipToRecord())

	res, err := s.Resolve(context.Background(), NotDone, "")
	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, 0, res.Progress.ConsecutiveDays)
	assert.Equal(t, []call{{1, 10, false, ""}}, rec.calls)
}

func TestNotDoneDiscardedWhenDisabled(t *testing.T) {
	rec := &fakeRecorder{}
	s := New(rec, 1, 10, Options{RecordNotDone: false})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.SkipToRecord())

	res, err := s.Resolve(context.Background(), NotDone, "")
	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.Nil(t, res.Progress)
	assert.Empty(t, rec.calls)
	assert.True(t, s.Resolved())
}

func TestRecorderFailureLeavesRunOpen(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("disk gone")}
	s := New(rec, 1, 10, Options{})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.SkipToRecord())

	_, err := s.Resolve(context.Background(), Done, "")
	require.Error(t, err)
	assert.False(t, s.Resolved())

	rec.err = nil
	res, err := s.Resolve(context.Background(), Done, "")
	require.NoError(t, err)
	assert.True(t, res.Recorded)
}

func TestResetStartsFreshRun(t *testing.T) {
	s := New(&fakeRecorder{}, 1, 10, Options{ActionDuration: time.Minute})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.Start())
	s.Tick(10 * time.Second)
	require.NoError(t, s.SkipToRecord())
	_, err := s.Resolve(context.Background(), Done, "")
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, PhaseCut, s.Phase())
	assert.Equal(t, time.Minute, s.Remaining())
	assert.False(t, s.Resolved())
}

func TestRunReachesRecord(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := New(&fakeRecorder{}, 1, 10, Options{ActionDuration: 5 * time.Millisecond})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx, time.Millisecond))
	assert.Equal(t, PhaseRecord, s.Phase())
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := New(&fakeRecorder{}, 1, 10, Options{ActionDuration: time.Hour})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Millisecond) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, PhaseAction, s.Phase())
	assert.Less(t, s.Remaining(), time.Hour)
}

type gatedRecorder struct {
	fakeRecorder
	entered chan struct{}
	release chan struct{}
}

func (g *gatedRecorder) RecordToday(ctx context.Context, userID, missionID int64, completed bool, notes string) (domain.DailyProgress, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeRecorder.RecordToday(ctx, userID, missionID, completed, notes)
}

func TestConcurrentResolveRecordsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := &gatedRecorder{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := New(rec, 1, 10, Options{RecordNotDone: true})
	require.NoError(t, s.BeginAction())
	require.NoError(t, s.SkipToRecord())

	type outcome struct {
		res Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := s.Resolve(context.Background(), Done, "")
		first <- outcome{res, err}
	}()
	<-rec.entered

	_, err := s.Resolve(context.Background(), Done, "")
	require.ErrorIs(t, err, ErrResolved)
	_, err = s.Resolve(context.Background(), NotDone, "")
	require.ErrorIs(t, err, ErrResolved)

	close(rec.release)
	got := <-first
	require.NoError(t, got.err)
	assert.True(t, got.res.Recorded)
	assert.Len(t, rec.calls, 1)
	assert.True(t, s.Resolved())
}
