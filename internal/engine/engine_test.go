package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operador/internal/clock"
	"operador/internal/config"
	"operador/internal/db"
	"operador/internal/domain"
	"operador/internal/engine"
	"operador/internal/events"
	"operador/internal/migrate"
	"operador/internal/repo"
	"operador/internal/repo/memrepo"
)

var (
	_ engine.Store = repo.Repo{}
	_ engine.Store = (*memrepo.Store)(nil)
)

const userID = int64(1)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *clock.Fixed
	Mem    *memrepo.Store
}

func start() time.Time {
	return time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
}

func newSQLiteEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	for _, id := range []int64{1, 2} {
		u := domain.User{ID: id, Email: fmt.Sprintf("u%d@example.com", id), CreatedAt: start().Format(time.RFC3339)}
		if _, err := r.CreateUser(ctx, u, domain.Event{}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	return newEnv(t, r, nil)
}

func newMemEnv(t *testing.T) testEnv {
	t.Helper()
	mem := memrepo.New()
	return newEnv(t, mem, mem)
}

func newEnv(t *testing.T, store engine.Store, mem *memrepo.Store) testEnv {
	t.Helper()
	clk := clock.NewFixed(start())
	eng := engine.New(store, config.Default().Missions)
	eng.Clock = clk
	ctx := context.Background()
	if _, err := eng.InitializeUser(ctx, userID); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Clock: clk, Mem: mem}
}

// forEachStore runs fn against the SQLite repo and the in-memory store.
func forEachStore(t *testing.T, fn func(t *testing.T, env testEnv)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteEnv(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, newMemEnv(t)) })
}

func mission(t *testing.T, env testEnv, number int) domain.Mission {
	t.Helper()
	m, err := env.Engine.MissionByNumber(env.Ctx, userID, number)
	require.NoError(t, err)
	return m
}

// recordDays records consecutive days starting at the clock's today and
// leaves the clock on the day after the last record.
func recordDays(t *testing.T, env testEnv, missionID int64, outcomes ...bool) []int {
	t.Helper()
	var streaks []int
	for _, done := range outcomes {
		p, err := env.Engine.RecordToday(env.Ctx, userID, missionID, done, "")
		require.NoError(t, err)
		streaks = append(streaks, p.ConsecutiveDays)
		env.Clock.AddDays(1)
	}
	return streaks
}

func activeCount(missions []domain.Mission) int {
	n := 0
	for _, m := range missions {
		if m.Status == domain.MissionActive {
			n++
		}
	}
	return n
}

func TestInitializeUserSeedsChain(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		missions, err := env.Engine.ListMissions(env.Ctx, userID)
		require.NoError(t, err)
		require.Len(t, missions, 4)

		got := make([]string, 0, 4)
		for _, m := range missions {
			got = append(got, fmt.Sprintf("%d:%s", m.Number, m.Status))
		}
		want := []string{"1:active", "2:locked", "3:locked", "4:locked"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("statuses (-want +got):\n%s", diff)
		}
		require.NotNil(t, missions[0].StartedAt)
		assert.Nil(t, missions[1].StartedAt)
		assert.Equal(t, "Corte de Ruído", missions[0].Title)
		assert.Equal(t, 7, missions[0].RequiredStreak)
	})
}

func TestInitializeTwiceIsRejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		_, err := env.Engine.InitializeUser(env.Ctx, userID)
		require.ErrorIs(t, err, engine.ErrAlreadyInitialized)

		missions, err := env.Engine.ListMissions(env.Ctx, userID)
		require.NoError(t, err)
		assert.Len(t, missions, 4)
	})
}

func TestInitializeRejectsBadTemplates(t *testing.T) {
	eng := engine.New(memrepo.New(), config.Default().Missions[:3])
	_, err := eng.InitializeUser(context.Background(), userID)
	require.ErrorIs(t, err, engine.ErrInvalidTemplates)
}

func TestStreakSequence(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		streaks := recordDays(t, env, m.ID, true, true, false, true)
		assert.Equal(t, []int{1, 2, 0, 1}, streaks)
	})
}

func TestOneRecordPerDay(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		first, err := env.Engine.RecordToday(env.Ctx, userID, m.ID, true, "primeiro")
		require.NoError(t, err)
		again, err := env.Engine.RecordToday(env.Ctx, userID, m.ID, true, "segundo")
		require.NoError(t, err)

		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, 1, again.ConsecutiveDays)
		assert.Equal(t, "segundo", again.Notes)

		history, err := env.Engine.ProgressHistory(env.Ctx, userID, m.ID, 0)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

func TestSilentPenaltyResetsWithoutStatusChange(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		streaks := recordDays(t, env, m.ID, true, true, true, true, true, true, false)
		assert.Equal(t, 6, streaks[5])
		assert.Equal(t, 0, streaks[6])

		adv, err := env.Engine.EvaluateAndAdvance(env.Ctx, userID, m.ID)
		require.NoError(t, err)
		assert.False(t, adv.Advanced)
		assert.Equal(t, domain.MissionActive, mission(t, env, 1).Status)
		assert.Equal(t, domain.MissionLocked, mission(t, env, 2).Status)
	})
}

func TestAdvanceRequiresSevenDays(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		recordDays(t, env, m.ID, true, true, true, true, true, true)

		adv, err := env.Engine.EvaluateAndAdvance(env.Ctx, userID, m.ID)
		require.NoError(t, err)
		assert.False(t, adv.Advanced)
		assert.Equal(t, 6, adv.Streak)
		assert.Equal(t, 7, adv.Required)

		recordDays(t, env, m.ID, true)
		adv, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, m.ID)
		require.NoError(t, err)
		require.True(t, adv.Advanced)
		assert.Equal(t, domain.MissionCompleted, adv.Mission.Status)
		require.NotNil(t, adv.Mission.CompletedAt)
		require.NotNil(t, adv.Next)
		assert.Equal(t, 2, adv.Next.Number)
		assert.Equal(t, domain.MissionActive, adv.Next.Status)
		require.NotNil(t, adv.Next.StartedAt)

		missions, err := env.Engine.ListMissions(env.Ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 1, activeCount(missions))
	})
}

func TestDaysLoggedWhileLockedDoNotCount(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		first, second := mission(t, env, 1), mission(t, env, 2)
		for i := 0; i < 7; i++ {
			for _, id := range []int64{first.ID, second.ID} {
				_, err := env.Engine.RecordToday(env.Ctx, userID, id, true, "")
				require.NoError(t, err)
			}
			env.Clock.AddDays(1)
		}

		adv, err := env.Engine.EvaluateAndAdvance(env.Ctx, userID, first.ID)
		require.NoError(t, err)
		require.True(t, adv.Advanced)
		require.NotNil(t, adv.Next)
		assert.Equal(t, "2026-01-12", (*adv.Next.StartedAt)[:10])

		adv, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, second.ID)
		require.NoError(t, err)
		assert.False(t, adv.Advanced)
		assert.Equal(t, 0, adv.Streak)
		assert.Equal(t, domain.MissionActive, mission(t, env, 2).Status)

		streaks := recordDays(t, env, second.ID, true, true, true, true, true, true)
		assert.Equal(t, 13, streaks[5], "stored run still spans the locked days")
		current, err := env.Engine.CurrentStreak(env.Ctx, userID, second.ID)
		require.NoError(t, err)
		assert.Equal(t, 6, current)
		adv, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, second.ID)
		require.NoError(t, err)
		assert.False(t, adv.Advanced)

		recordDays(t, env, second.ID, true)
		adv, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, second.ID)
		require.NoError(t, err)
		assert.True(t, adv.Advanced)
		assert.Equal(t, 7, adv.Streak)
	})
}

func TestAdvanceNonActiveIsInvalid(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		locked := mission(t, env, 2)
		_, err := env.Engine.EvaluateAndAdvance(env.Ctx, userID, locked.ID)
		require.ErrorIs(t, err, engine.ErrInvalidTransition)

		first := mission(t, env, 1)
		recordDays(t, env, first.ID, true, true, true, true, true, true, true)
		_, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, first.ID)
		require.NoError(t, err)
		_, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, first.ID)
		require.ErrorIs(t, err, engine.ErrInvalidTransition)
	})
}

func TestFullChainKeepsSingleActive(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		for n := 1; n <= 4; n++ {
			m := mission(t, env, n)
			recordDays(t, env, m.ID, true, true, true, true, true, true, true)
			adv, err := env.Engine.EvaluateAndAdvance(env.Ctx, userID, m.ID)
			require.NoError(t, err)
			require.True(t, adv.Advanced, "mission %d", n)

			missions, err := env.Engine.ListMissions(env.Ctx, userID)
			require.NoError(t, err)
			assert.LessOrEqual(t, activeCount(missions), 1)

			a, err := env.Engine.Autonomy(env.Ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, n*25, a.Percent)
			assert.Equal(t, n >= 3, a.Ready)
		}
		_, err := env.Engine.ActiveMission(env.Ctx, userID)
		require.ErrorIs(t, err, repo.ErrNotFound)
	})
}

func TestRecordingAnyStatusIsAccepted(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		locked := mission(t, env, 3)
		p, err := env.Engine.RecordToday(env.Ctx, userID, locked.ID, true, "")
		require.NoError(t, err)
		assert.Equal(t, 1, p.ConsecutiveDays)
		assert.Equal(t, domain.MissionLocked, mission(t, env, 3).Status)
	})
}

func TestReRecordingPastDateRecomputesLaterStreaks(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		day1 := env.Clock.Today()
		recordDays(t, env, m.ID, true, true, true, true)
		day2 := start().AddDate(0, 0, 1).Format(domain.DateLayout)

		_, err := env.Engine.RecordProgress(env.Ctx, engine.ProgressInput{UserID: userID, MissionID: m.ID, Date: day2, Completed: false})
		require.NoError(t, err)

		history, err := env.Engine.ProgressHistory(env.Ctx, userID, m.ID, 0)
		require.NoError(t, err)
		got := map[string]int{}
		for _, p := range history {
			got[p.Date] = p.ConsecutiveDays
		}
		assert.Equal(t, 1, got[day1])
		assert.Equal(t, 0, got[day2])
		assert.Equal(t, 1, got[start().AddDate(0, 0, 2).Format(domain.DateLayout)])
		assert.Equal(t, 2, got[start().AddDate(0, 0, 3).Format(domain.DateLayout)])
	})
}

func TestGapsDoNotResetStreak(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		recordDays(t, env, m.ID, true)
		env.Clock.AddDays(3)
		streaks := recordDays(t, env, m.ID, true)
		assert.Equal(t, []int{2}, streaks)
	})
}

func TestTodayProgress(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		today, err := env.Engine.TodayProgress(env.Ctx, userID, m.ID)
		require.NoError(t, err)
		assert.Nil(t, today)

		_, err = env.Engine.RecordToday(env.Ctx, userID, m.ID, true, "<b>feito</b>")
		require.NoError(t, err)
		today, err = env.Engine.TodayProgress(env.Ctx, userID, m.ID)
		require.NoError(t, err)
		require.NotNil(t, today)
		assert.True(t, today.Completed)
		assert.Equal(t, "feito", today.Notes)
		assert.Equal(t, env.Clock.Today(), today.Date)

		streak, err := env.Engine.CurrentStreak(env.Ctx, userID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, streak)
	})
}

func TestForeignMissionIsNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		_, err := env.Engine.RecordToday(env.Ctx, 2, m.ID, true, "")
		require.ErrorIs(t, err, repo.ErrNotFound)
		_, err = env.Engine.TodayProgress(env.Ctx, 2, m.ID)
		require.ErrorIs(t, err, repo.ErrNotFound)
		_, err = env.Engine.EvaluateAndAdvance(env.Ctx, 2, m.ID)
		require.ErrorIs(t, err, repo.ErrNotFound)
		_, err = env.Engine.RecordToday(env.Ctx, userID, 9999, true, "")
		require.ErrorIs(t, err, repo.ErrNotFound)
	})
}

func TestInvalidDate(t *testing.T) {
	env := newMemEnv(t)
	m := mission(t, env, 1)
	for _, d := range []string{"2026-13-01", "05/01/2026", "2026-1-5", "2026-02-30"} {
		_, err := env.Engine.RecordProgress(env.Ctx, engine.ProgressInput{UserID: userID, MissionID: m.ID, Date: d, Completed: true})
		require.ErrorIs(t, err, engine.ErrInvalidDate, d)
	}
}

func TestStoreUnavailableSurfaces(t *testing.T) {
	env := newMemEnv(t)
	m := mission(t, env, 1)
	env.Mem.SetOffline(true)

	_, err := env.Engine.RecordToday(env.Ctx, userID, m.ID, true, "")
	require.ErrorIs(t, err, repo.ErrUnavailable)
	_, err = env.Engine.ListMissions(env.Ctx, userID)
	require.ErrorIs(t, err, repo.ErrUnavailable)
	_, err = env.Engine.Autonomy(env.Ctx, userID)
	require.ErrorIs(t, err, repo.ErrUnavailable)

	env.Mem.SetOffline(false)
	_, err = env.Engine.RecordToday(env.Ctx, userID, m.ID, true, "")
	require.NoError(t, err)
}

func TestConcurrentRecordingSameDay(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		recordDays(t, env, m.ID, true, true)

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := env.Engine.RecordToday(env.Ctx, userID, m.ID, true, fmt.Sprintf("n%d", i))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		history, err := env.Engine.ProgressHistory(env.Ctx, userID, m.ID, 0)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, 3, history[0].ConsecutiveDays)
	})
}

func TestConfirmManualMission(t *testing.T) {
	templates := config.Default().Missions
	templates[0].RequiredStreak = 0
	eng := engine.New(memrepo.New(), templates)
	eng.Clock = clock.NewFixed(start())
	ctx := context.Background()
	_, err := eng.InitializeUser(ctx, userID)
	require.NoError(t, err)
	first, err := eng.MissionByNumber(ctx, userID, 1)
	require.NoError(t, err)

	adv, err := eng.EvaluateAndAdvance(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.False(t, adv.Advanced)

	adv, err = eng.ConfirmMission(ctx, userID, first.ID)
	require.NoError(t, err)
	assert.True(t, adv.Advanced)
	require.NotNil(t, adv.Next)

	_, err = eng.ConfirmMission(ctx, userID, adv.Next.ID)
	require.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestSnapshotAutonomy(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		snap, err := env.Engine.SnapshotAutonomy(env.Ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "2026-W02", snap.Week)
		assert.Equal(t, 0, snap.Percent)

		m := mission(t, env, 1)
		recordDays(t, env, m.ID, true, true, true, true, true, true, true)
		_, err = env.Engine.EvaluateAndAdvance(env.Ctx, userID, m.ID)
		require.NoError(t, err)

		snap, err = env.Engine.SnapshotAutonomy(env.Ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "2026-W03", snap.Week)
		assert.Equal(t, 25, snap.Percent)

		history, err := env.Engine.AutonomyHistory(env.Ctx, userID, 0)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "2026-W03", history[0].Week)
	})
}

func TestEventsAreRecorded(t *testing.T) {
	forEachStore(t, func(t *testing.T, env testEnv) {
		m := mission(t, env, 1)
		recordDays(t, env, m.ID, true, true, true, true, true, true, true)
		_, err := env.Engine.EvaluateAndAdvance(env.Ctx, userID, m.ID)
		require.NoError(t, err)

		evts, err := env.Engine.Events(env.Ctx, userID, 3)
		require.NoError(t, err)
		require.Len(t, evts, 3)
		assert.Equal(t, events.MissionActivated, evts[0].Type)
		assert.Equal(t, events.MissionCompleted, evts[1].Type)
		assert.Equal(t, events.ProgressRecorded, evts[2].Type)
		assert.Contains(t, evts[2].Payload, `"consecutive_days":7`)
	})
}

func TestScore(t *testing.T) {
	statuses := func(completed int) []domain.Mission {
		missions := make([]domain.Mission, 4)
		for i := range missions {
			missions[i].Status = domain.MissionLocked
			if i < completed {
				missions[i].Status = domain.MissionCompleted
			}
		}
		return missions
	}
	cases := []struct {
		completed int
		percent   int
		ready     bool
	}{
		{0, 0, false},
		{1, 25, false},
		{2, 50, false},
		{3, 75, true},
		{4, 100, true},
	}
	for _, tc := range cases {
		got := engine.Score(statuses(tc.completed))
		assert.Equal(t, domain.Autonomy{Percent: tc.percent, Ready: tc.ready, Completed: tc.completed, Total: 4}, got)
	}
}
