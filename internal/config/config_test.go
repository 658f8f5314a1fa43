package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, AuthSingle, cfg.Auth.Mode)
	assert.Equal(t, int64(1), cfg.Auth.DefaultUserID)
	assert.Equal(t, 15*time.Minute, cfg.ActionDuration())
	assert.True(t, cfg.Ritual.RecordNotDone)
	require.Len(t, cfg.Missions, 4)
	for i, m := range cfg.Missions {
		assert.Equal(t, i+1, m.Number)
		assert.Equal(t, 7, m.RequiredStreak)
	}
	assert.Equal(t, "Corte de Ruído", cfg.Missions[0].Title)
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("ritual:\n  action_seconds: 60\n  record_not_done: false\nlog:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.ActionDuration())
	assert.False(t, cfg.Ritual.RecordNotDone)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Len(t, cfg.Missions, 4)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"token mode without secret": "auth:\n  mode: token\n",
		"unknown mode":              "auth:\n  mode: oauth\n",
		"bad level":                 "log:\n  level: loud\n",
		"zero countdown":            "ritual:\n  action_seconds: 0\n",
		"bad zone":                  "clock:\n  timezone: Mars/Olympus\n",
		"webhook without url":       "webhooks:\n  - events: [progress.recorded]\n",
		"three missions": `missions:
  - {number: 1, title: a, required_streak: 7}
  - {number: 2, title: b, required_streak: 7}
  - {number: 3, title: c, required_streak: 7}
`,
		"duplicate number": `missions:
  - {number: 1, title: a, required_streak: 7}
  - {number: 1, title: b, required_streak: 7}
  - {number: 3, title: c, required_streak: 7}
  - {number: 4, title: d, required_streak: 7}
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "operador.yml"), []byte(GenerateDefault()), 0o644))
	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}
