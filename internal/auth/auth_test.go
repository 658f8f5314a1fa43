package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"operador/internal/auth"
	"operador/internal/config"
	"operador/internal/db"
	"operador/internal/engine"
	"operador/internal/migrate"
	"operador/internal/repo"
)

func newAccounts(t *testing.T) (auth.Accounts, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	r := repo.New(conn)
	now := func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }
	return auth.Accounts{
		Users:    r,
		Missions: engine.New(r, config.Default().Missions),
		Tokens:   auth.Tokens{Secret: "test-secret", TTL: time.Hour, Now: now},
		Now:      now,
	}, r
}

func TestSignupSeedsMissionsAndIssuesToken(t *testing.T) {
	ctx := context.Background()
	acc, r := newAccounts(t)

	s, err := acc.Signup(ctx, "ana@example.com", "segredo1", "Ana")
	require.NoError(t, err)
	assert.NotZero(t, s.User.ID)
	assert.NotEmpty(t, s.User.PasswordHash)

	claims, err := acc.Tokens.Verify(s.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, id)
	assert.Equal(t, "ana@example.com", claims.Email)

	missions, err := r.ListMissions(ctx, s.User.ID)
	require.NoError(t, err)
	assert.Len(t, missions, 4)
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()
	acc, _ := newAccounts(t)

	_, err := acc.Signup(ctx, "not-an-email", "segredo1", "")
	require.ErrorIs(t, err, auth.ErrInvalidEmail)
	_, err = acc.Signup(ctx, "bia@example.com", "12345", "")
	require.ErrorIs(t, err, auth.ErrWeakPassword)

	_, err = acc.Signup(ctx, "bia@example.com", "123456", "")
	require.NoError(t, err)
	_, err = acc.Signup(ctx, "bia@example.com", "654321", "")
	require.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	acc, _ := newAccounts(t)
	_, err := acc.Signup(ctx, "caio@example.com", "correto", "")
	require.NoError(t, err)

	s, err := acc.Login(ctx, "CAIO@example.com ", "correto")
	require.NoError(t, err)
	assert.Equal(t, "caio@example.com", s.User.Email)
	assert.Equal(t, "2026-06-01T08:00:00Z", s.User.LastSignedIn)

	_, err = acc.Login(ctx, "caio@example.com", "errado")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = acc.Login(ctx, "ninguem@example.com", "correto")
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	tokens := auth.Tokens{Secret: "s", TTL: time.Hour, Now: func() time.Time { return now }}
	tok, exp, err := tokens.Issue(42, "x@example.com")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	later := auth.Tokens{Secret: "s", Now: func() time.Time { return now.Add(2 * time.Hour) }}
	_, err = later.Verify(tok)
	require.Error(t, err)

	other := auth.Tokens{Secret: "other", Now: func() time.Time { return now }}
	_, err = other.Verify(tok)
	require.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	h, err := auth.HashPassword("abcdef")
	require.NoError(t, err)
	assert.True(t, auth.CheckPassword(h, "abcdef"))
	assert.False(t, auth.CheckPassword(h, "abcdeg"))
	assert.False(t, auth.CheckPassword("", "abcdef"))
}

func TestIssueAPIKey(t *testing.T) {
	ctx := context.Background()
	acc, r := newAccounts(t)
	s, err := acc.Signup(ctx, "bia@example.com", "segredo1", "")
	require.NoError(t, err)

	key, plain, err := auth.IssueAPIKey(ctx, r, s.User.ID, " ci ", acc.Now())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plain, auth.APIKeyPrefix))
	assert.Equal(t, "ci", key.Name)
	assert.NotEqual(t, plain, key.KeyHash)

	stored, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	require.NoError(t, err)
	assert.Equal(t, key.ID, stored.ID)
	assert.Equal(t, s.User.ID, stored.UserID)

	_, other, err := auth.IssueAPIKey(ctx, r, s.User.ID, "", acc.Now())
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}
