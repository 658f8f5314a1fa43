// Package clock supplies the current instant and calendar day to the engine.
package clock

import (
	"sync"
	"time"

	"operador/internal/domain"
)

type Clock interface {
	Now() time.Time
	// Today returns the current calendar day as YYYY-MM-DD.
	Today() string
	// Day returns the calendar day t falls on, in the clock's zone.
	Day(t time.Time) string
}

// System reads wall-clock time, reporting days in Location (UTC when nil).
type System struct {
	Location *time.Location
}

func (s System) Now() time.Time {
	return time.Now()
}

func (s System) Today() string {
	return s.Day(time.Now())
}

func (s System) Day(t time.Time) string {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(domain.DateLayout)
}

// Load resolves an IANA zone name into a System clock.
func Load(zone string) (System, error) {
	if zone == "" {
		return System{Location: time.UTC}, nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return System{}, err
	}
	return System{Location: loc}, nil
}

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{t: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Today() string {
	return f.Day(f.Now())
}

func (f *Fixed) Day(t time.Time) string {
	return t.UTC().Format(domain.DateLayout)
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

// AddDays moves the clock forward by n calendar days.
func (f *Fixed) AddDays(n int) {
	f.mu.Lock()
	f.t = f.t.AddDate(0, 0, n)
	f.mu.Unlock()
}
