package scoring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplyVerdictBasePoints(t *testing.T) {
	tests := []struct {
		result Result
		points int
	}{
		{Perfect, 100},
		{Good, 75},
		{Ok, 50},
		{Miss, 0},
	}
	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			got := ApplyVerdict(ScoreState{}, tt.result)
			if got.Score != tt.points {
				t.Errorf("score = %d, want %d", got.Score, tt.points)
			}
		})
	}
}

func TestStreakMultiplierSteps(t *testing.T) {
	tests := []struct {
		streak int
		want   int
	}{
		{0, 1}, {9, 1}, {10, 2}, {19, 2}, {20, 3}, {29, 3}, {30, 4}, {100, 4},
	}
	for _, tt := range tests {
		if got := StreakMultiplier(tt.streak); got != tt.want {
			t.Errorf("StreakMultiplier(%d) = %d, want %d", tt.streak, got, tt.want)
		}
	}
}

func TestMultiplierUsesPreUpdateStreak(t *testing.T) {
	// At streak 9 the tenth hit still pays 1x; the eleventh pays 2x.
	state := ScoreState{Streak: 9}
	state = ApplyVerdict(state, Perfect)
	if state.Score != 100 {
		t.Errorf("tenth hit score = %d, want 100 (1x at pre-update streak 9)", state.Score)
	}
	state = ApplyVerdict(state, Perfect)
	if state.Score != 300 {
		t.Errorf("eleventh hit score = %d, want 300 (2x at pre-update streak 10)", state.Score)
	}
}

func TestStreakResetLaw(t *testing.T) {
	for _, streak := range []int{1, 5, 17, 42} {
		state := ScoreState{Streak: streak, MaxStreak: streak, Score: 1000}
		got := ApplyVerdict(state, Miss)
		if got.Streak != 0 {
			t.Errorf("streak after Miss = %d, want 0", got.Streak)
		}
		if got.MaxStreak != streak {
			t.Errorf("maxStreak after Miss = %d, want unchanged %d", got.MaxStreak, streak)
		}
		if got.Score != 1000 {
			t.Errorf("score after Miss = %d, want unchanged 1000", got.Score)
		}
	}
}

func TestMaxStreakTracksHighWater(t *testing.T) {
	var state ScoreState
	for i := 0; i < 5; i++ {
		state = ApplyVerdict(state, Good)
	}
	state = ApplyVerdict(state, Miss)
	for i := 0; i < 3; i++ {
		state = ApplyVerdict(state, Ok)
	}
	if state.MaxStreak != 5 {
		t.Errorf("maxStreak = %d, want 5", state.MaxStreak)
	}
	if state.Streak != 3 {
		t.Errorf("streak = %d, want 3", state.Streak)
	}
}

func TestScoreFoldIsIdempotent(t *testing.T) {
	seq := []Result{Perfect, Good, Miss, Ok, Perfect, Perfect, Miss, Good, Ok, Perfect}

	fold := func() ScoreState {
		var s ScoreState
		for _, r := range seq {
			s = ApplyVerdict(s, r)
		}
		return s
	}

	first := fold()
	second := fold()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("replaying the same verdict sequence diverged (-first +second):\n%s", diff)
	}
}

func TestCountersPartitionVerdicts(t *testing.T) {
	var state ScoreState
	seq := []Result{Perfect, Perfect, Good, Ok, Miss, Good, Perfect}
	for _, r := range seq {
		state = ApplyVerdict(state, r)
	}
	if state.PerfectCount != 3 || state.GoodCount != 2 || state.OkCount != 1 || state.MissCount != 1 {
		t.Errorf("counters = %d/%d/%d/%d, want 3/2/1/1", state.PerfectCount, state.GoodCount, state.OkCount, state.MissCount)
	}
}

func TestResultStringRoundTrip(t *testing.T) {
	for _, r := range []Result{Perfect, Good, Ok, Miss} {
		got, ok := ParseResult(r.String())
		if !ok || got != r {
			t.Errorf("ParseResult(%q) = %v, %v", r.String(), got, ok)
		}
	}
	if _, ok := ParseResult("legendary"); ok {
		t.Error("ParseResult accepted an unknown result")
	}
}
