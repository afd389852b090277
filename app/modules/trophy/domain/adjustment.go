package trophydomain

import "fmt"

// AdjustmentKind tags the direction of a score change.
type AdjustmentKind int

const (
	NoChange AdjustmentKind = iota
	Offense
	Defense
)

func (k AdjustmentKind) String() string {
	switch k {
	case Offense:
		return "offense"
	case Defense:
		return "defense"
	default:
		return "no_change"
	}
}

// Adjustment is a classified score change. Amount is strictly positive for
// Offense and Defense and zero for NoChange.
type Adjustment struct {
	Kind   AdjustmentKind
	Amount int
}

func (a Adjustment) String() string {
	if a.Kind == NoChange {
		return a.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", a.Kind, a.Amount)
}

// Classify maps a previous and current score to an Adjustment.
func Classify(previous, current int) Adjustment {
	switch {
	case current > previous:
		return Adjustment{Kind: Offense, Amount: current - previous}
	case current < previous:
		return Adjustment{Kind: Defense, Amount: previous - current}
	default:
		return Adjustment{Kind: NoChange}
	}
}

// Apply folds a fresh observation into p. The stored score and rank become
// the new baseline, the observation overwrites the current fields, and the
// counters grow according to the classified adjustment. LastResetDate is not
// touched.
func Apply(p Player, obs Observation) (Player, Adjustment) {
	adj := Classify(p.CurrentScore, obs.Score)

	switch adj.Kind {
	case Offense:
		p.OffenseGainTotal += adj.Amount
		p.OffenseEventCount++
	case Defense:
		p.DefenseLossTotal += adj.Amount
		p.DefenseEventCount++
	}

	p.PreviousScore = p.CurrentScore
	p.PreviousRank = p.Rank
	p = observe(p, obs)

	return p, adj
}

// Reset zeroes the four counters and stamps the reset date. Score, rank and
// name are left alone.
func Reset(p Player, on Date) Player {
	p.OffenseGainTotal = 0
	p.OffenseEventCount = 0
	p.DefenseLossTotal = 0
	p.DefenseEventCount = 0
	p.LastResetDate = on
	return p
}

// ResetWithRebase resets p, takes the observation as current and makes it the
// baseline for subsequent deltas.
func ResetWithRebase(p Player, obs Observation, on Date) Player {
	return Rebase(Reset(p, on), obs)
}

// Rebase takes the observation as current and as the new baseline without
// counting it as an adjustment. Counters are kept.
func Rebase(p Player, obs Observation) Player {
	p = observe(p, obs)
	p.PreviousScore = p.CurrentScore
	p.PreviousRank = p.Rank
	return p
}

func observe(p Player, obs Observation) Player {
	p.DisplayName = obs.DisplayName
	p.CurrentScore = obs.Score
	p.Rank = obs.Rank
	p.AttackLogLength = obs.AttackLogLength
	p.DefenseLogLength = obs.DefenseLogLength
	return p
}
