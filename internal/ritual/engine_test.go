package ritual_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operador/internal/clock"
	"operador/internal/config"
	"operador/internal/engine"
	"operador/internal/repo/memrepo"
	"operador/internal/ritual"
)

func TestRitualOutcomesDriveStreak(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFixed(time.Date(2026, 2, 2, 7, 0, 0, 0, time.UTC))
	eng := engine.New(memrepo.New(), config.Default().Missions)
	eng.Clock = clk
	missions, err := eng.InitializeUser(ctx, 1)
	require.NoError(t, err)
	first := missions[0]

	run := func(outcome ritual.Outcome) ritual.Result {
		s := ritual.New(eng, 1, first.ID, ritual.Options{RecordNotDone: true})
		require.NoError(t, s.BeginAction())
		require.NoError(t, s.SkipToRecord())
		res, err := s.Resolve(ctx, outcome, "")
		require.NoError(t, err)
		clk.AddDays(1)
		return res
	}

	assert.Equal(t, 1, run(ritual.Done).Progress.ConsecutiveDays)
	assert.Equal(t, 2, run(ritual.Done).Progress.ConsecutiveDays)
	assert.Equal(t, 0, run(ritual.NotDone).Progress.ConsecutiveDays)

	m, err := eng.GetMission(ctx, 1, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", m.Status)
}
