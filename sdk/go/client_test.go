package operadorsdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operador/internal/app"
	"operador/internal/clock"
	"operador/internal/config"
	"operador/internal/server"
	operadorsdk "operador/sdk/go"
)

func newClient(t *testing.T, mutate func(*config.Config)) *operadorsdk.Client {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Server.RateLimitPerMinute = 0
	if mutate != nil {
		mutate(cfg)
	}
	rt, err := app.Open(ctx, t.TempDir(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	clk := clock.NewFixed(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	rt.Engine.Clock = clk
	if cfg.Auth.Mode == config.AuthSingle {
		require.NoError(t, rt.EnsureDefaultUser(ctx))
	}
	clk.Set(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	handler, err := server.New(server.ConfigFor(rt))
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return operadorsdk.New(srv.URL)
}

func TestClientMissionLoop(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, nil)

	m, err := c.ActiveMission(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Number)

	today, err := c.TodayProgress(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, today)

	for day := 4; day <= 10; day++ {
		p, err := c.RecordProgress(ctx, m.ID, time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02"), true, "")
		require.NoError(t, err)
		assert.Equal(t, day-3, p.ConsecutiveDays)
	}
	today, err = c.TodayProgress(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.Equal(t, "2026-03-10", today.Date)

	history, err := c.ProgressHistory(ctx, m.ID, 3)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	adv, err := c.Advance(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, adv.Advanced)
	require.NotNil(t, adv.Next)
	assert.Equal(t, 2, adv.Next.Number)

	auto, err := c.Autonomy(ctx)
	require.NoError(t, err)
	assert.Equal(t, operadorsdk.Autonomy{Percent: 25, Completed: 1, Total: 4}, auto)

	page, err := c.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)

	_, err = c.Advance(ctx, m.ID)
	require.Error(t, err)
	assert.True(t, operadorsdk.IsCode(err, "invalid_transition"))
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, nil)

	_, err := c.Chat(ctx, "clarity", "oi")
	var apiErr *operadorsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "agent_unavailable", apiErr.Code)

	_, err = c.TodayProgress(ctx, 12345)
	assert.True(t, operadorsdk.IsCode(err, "not_found"))
}

func TestClientTokenMode(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, func(cfg *config.Config) {
		cfg.Auth.Mode = config.AuthToken
		cfg.Auth.JWTSecret = "sdk-secret"
	})

	_, err := c.ListMissions(ctx)
	assert.True(t, operadorsdk.IsCode(err, "unauthorized"))

	s, err := c.Signup(ctx, "caio@example.com", "segredo1", "Caio")
	require.NoError(t, err)
	assert.Equal(t, s.Token, c.BearerToken)

	missions, err := c.ListMissions(ctx)
	require.NoError(t, err)
	assert.Len(t, missions, 4)

	c.BearerToken = ""
	_, err = c.Login(ctx, "caio@example.com", "segredo1")
	require.NoError(t, err)
	_, err = c.ListMissions(ctx)
	require.NoError(t, err)
}
