// Package scoring matches resolved onsets against the expected-note schedule,
// classifies timing and pitch accuracy, and folds the resulting verdicts into
// a running score with streak multipliers.
package scoring

// Result classifies one expected note's outcome.
type Result int

const (
	Perfect Result = iota
	Good
	Ok
	Miss
)

// String returns the lowercase result name used in logs, the API, and the
// session store.
func (r Result) String() string {
	switch r {
	case Perfect:
		return "perfect"
	case Good:
		return "good"
	case Ok:
		return "ok"
	case Miss:
		return "miss"
	default:
		return "unknown"
	}
}

// ParseResult is the inverse of Result.String. The second return is false
// for unrecognised input.
func ParseResult(s string) (Result, bool) {
	switch s {
	case "perfect":
		return Perfect, true
	case "good":
		return Good, true
	case "ok":
		return Ok, true
	case "miss":
		return Miss, true
	}
	return 0, false
}

// basePoints awarded per result before the streak multiplier.
var basePoints = map[Result]int{
	Perfect: 100,
	Good:    75,
	Ok:      50,
	Miss:    0,
}

// ScoreState is the running score. It evolves only through ApplyVerdict, a
// pure fold: replaying the same verdict sequence always reproduces the same
// state. Score and MaxStreak never decrease; Streak resets to zero only on a
// Miss.
type ScoreState struct {
	Score        int `json:"score"`
	Streak       int `json:"streak"`
	MaxStreak    int `json:"max_streak"`
	PerfectCount int `json:"perfect_count"`
	GoodCount    int `json:"good_count"`
	OkCount      int `json:"ok_count"`
	MissCount    int `json:"miss_count"`
}

// StreakMultiplier returns the score multiplier for a given streak length.
func StreakMultiplier(streak int) int {
	switch {
	case streak >= 30:
		return 4
	case streak >= 20:
		return 3
	case streak >= 10:
		return 2
	default:
		return 1
	}
}

// ApplyVerdict folds one verdict into the state and returns the new state.
// The multiplier uses the pre-update streak.
func ApplyVerdict(state ScoreState, result Result) ScoreState {
	state.Score += basePoints[result] * StreakMultiplier(state.Streak)

	if result == Miss {
		state.Streak = 0
		state.MissCount++
	} else {
		state.Streak++
		if state.Streak > state.MaxStreak {
			state.MaxStreak = state.Streak
		}
		switch result {
		case Perfect:
			state.PerfectCount++
		case Good:
			state.GoodCount++
		case Ok:
			state.OkCount++
		}
	}
	return state
}
