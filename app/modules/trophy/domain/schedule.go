package trophydomain

import (
	"fmt"
	"sync"
	"time"
)

// AnchoredAction names a once-a-day action tied to a local time of day.
type AnchoredAction string

const (
	ActionBackup  AnchoredAction = "backup"
	ActionReset   AnchoredAction = "reset"
	ActionRefresh AnchoredAction = "post_reset_refresh"
)

// Valid reports whether a is one of the known actions.
func (a AnchoredAction) Valid() bool {
	switch a {
	case ActionBackup, ActionReset, ActionRefresh:
		return true
	}
	return false
}

// TimeOfDay is a local wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MinuteOfDay returns minutes since local midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant t occurs on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Trigger binds an action to its time of day.
type Trigger struct {
	Action AnchoredAction
	At     TimeOfDay
}

// FireGuard remembers, per action, the last local date the action fired.
// An action is due when the local time falls inside [At, At+window) and it
// has not fired on that date yet.
type FireGuard struct {
	mu        sync.Mutex
	loc       *time.Location
	window    time.Duration
	lastFired map[AnchoredAction]Date
}

// NewFireGuard returns a guard evaluating wall-clock time in loc. A window
// shorter than one minute is raised to one minute.
func NewFireGuard(loc *time.Location, window time.Duration) *FireGuard {
	if window < time.Minute {
		window = time.Minute
	}
	return &FireGuard{
		loc:       loc,
		window:    window,
		lastFired: make(map[AnchoredAction]Date),
	}
}

// Claim reports whether trig is due at now and, if so, records it as fired
// for the local date of now. A second Claim for the same occurrence returns
// false.
func (g *FireGuard) Claim(trig Trigger, now time.Time) (Date, bool) {
	local := now.In(g.loc)
	start := trig.At.On(local, g.loc)
	if local.Before(start) || !local.Before(start.Add(g.window)) {
		return "", false
	}

	today := DateOf(local, g.loc)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastFired[trig.Action] == today {
		return "", false
	}
	g.lastFired[trig.Action] = today
	return today, true
}

// LastFired returns the last date action fired, or "" if never.
func (g *FireGuard) LastFired(action AnchoredAction) Date {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFired[action]
}

// Restore seeds the guard, e.g. from a snapshot already taken today.
func (g *FireGuard) Restore(action AnchoredAction, on Date) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on > g.lastFired[action] {
		g.lastFired[action] = on
	}
}

// BackupSnapshot is a write-once copy of every player at one instant.
type BackupSnapshot struct {
	ID      string
	TakenAt time.Time
	TakenOn Date
	Players []Player
}

// BackupSummary describes a snapshot without its players.
type BackupSummary struct {
	ID          string
	TakenAt     time.Time
	TakenOn     Date
	PlayerCount int
}
