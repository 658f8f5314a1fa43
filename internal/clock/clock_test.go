package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedToday(t *testing.T) {
	c := NewFixed(time.Date(2026, 3, 31, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-31", c.Today())
	c.AddDays(1)
	assert.Equal(t, "2026-04-01", c.Today())
}

func TestLoadZone(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, c.Location)

	_, err = Load("Not/AZone")
	require.Error(t, err)
}

func TestSystemDayUsesZone(t *testing.T) {
	c := System{Location: time.FixedZone("BRT", -3*60*60)}
	late := time.Date(2026, 1, 12, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-11", c.Day(late))
	assert.Equal(t, "2026-01-12", NewFixed(late).Day(late))
}
