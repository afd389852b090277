package trophydomain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for reset and fire-guard dates.
const DateLayout = "2006-01-02"

// OwnerID identifies the external account that linked a tag.
type OwnerID string

// Tag is a normalized player tag: no leading '#', upper case, [0-9A-Z] only.
type Tag string

// NormalizeTag strips the '#' delimiter, trims whitespace and upper-cases raw.
func NormalizeTag(raw string) (Tag, error) {
	t := strings.ToUpper(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "#", "")
	if t == "" {
		return "", fmt.Errorf("%w: empty tag", ErrInvalidTag)
	}
	for _, r := range t {
		if (r < '0' || r > '9') && (r < 'A' || r > 'Z') {
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidTag, raw, r)
		}
	}
	return Tag(t), nil
}

// PathSegment returns the tag with its '#' delimiter percent-encoded, as the
// score source expects it in request paths.
func (t Tag) PathSegment() string {
	return "%23" + string(t)
}

func (t Tag) String() string { return string(t) }

// Date is a calendar date in the schedule timezone, formatted with DateLayout.
type Date string

// DateOf returns the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return Date(t.Format(DateLayout))
}

// ParseDate validates s as a DateLayout date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date(s), nil
}

// Observation is one successful read of a tag from the score source.
type Observation struct {
	DisplayName      string
	Score            int
	Rank             int
	AttackLogLength  int
	DefenseLogLength int
}

// Player is a tracked entity and its daily accumulators.
type Player struct {
	OwnerID       OwnerID
	Tag           Tag
	DisplayName   string
	CurrentScore  int
	Rank          int
	PreviousScore int
	PreviousRank  int

	OffenseGainTotal  int
	OffenseEventCount int
	DefenseLossTotal  int
	DefenseEventCount int

	AttackLogLength  int
	DefenseLogLength int

	LastResetDate Date
	UpdatedAt     time.Time
}

// NewPlayer builds a freshly linked player: counters at zero and the
// baseline equal to the observed score.
func NewPlayer(owner OwnerID, tag Tag, obs Observation, today Date) Player {
	p := Player{OwnerID: owner, Tag: tag}
	return ResetWithRebase(p, obs, today)
}

// NetDelta is the score movement since the last rebase.
func (p Player) NetDelta() int {
	return p.CurrentScore - p.PreviousScore
}
