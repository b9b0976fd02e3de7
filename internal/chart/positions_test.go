package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderzliu/guitarzero/internal/units"
)

func positionsFor(midis ...int) []position {
	group := make([]rawNote, len(midis))
	for i, m := range midis {
		group[i] = rawNote{midi: m}
	}
	return assignPositions(group)
}

func TestAssignPositionsPicksLowestFret(t *testing.T) {
	tests := []struct {
		name   string
		midi   int
		string int
		fret   int
	}{
		{"open low E", 40, 0, 0},
		{"open A", 45, 1, 0},
		{"open D", 50, 2, 0},
		{"open G", 55, 3, 0},
		{"open B", 59, 4, 0},
		{"open high E", 64, 5, 0},
		{"F2 is low E fret 1", 41, 0, 1},
		{"C3 prefers A string over low E", 48, 1, 3},
		{"G4 prefers open-ish high E", 67, 5, 3},
		{"highest playable", 85, 5, 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := positionsFor(tt.midi)
			require.Len(t, got, 1)
			assert.Equal(t, tt.string, got[0].string_, "string")
			assert.Equal(t, tt.fret, got[0].fret, "fret")
		})
	}
}

func TestAssignPositionsChordsNeverReuseAString(t *testing.T) {
	tests := []struct {
		name  string
		midis []int
	}{
		{"E power chord", []int{40, 47, 52}},
		{"open E major", []int{40, 47, 52, 56, 59, 64}},
		{"stacked open fourths", []int{45, 50, 55}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := positionsFor(tt.midis...)
			require.Len(t, got, len(tt.midis))

			seen := map[int]bool{}
			for i, p := range got {
				assert.GreaterOrEqual(t, p.string_, 0)
				assert.Less(t, p.string_, len(units.StandardTuning))
				assert.GreaterOrEqual(t, p.fret, 0)
				assert.LessOrEqual(t, p.fret, units.MaxFret)
				assert.Falsef(t, seen[p.string_], "member %d reuses string %d", i, p.string_)
				seen[p.string_] = true

				// The assignment must still sound the written pitch.
				assert.Equal(t, tt.midis[i], units.StandardTuning[p.string_]+p.fret)
			}
		})
	}
}

func TestAssignPositionsFullBarreUsesAllStrings(t *testing.T) {
	// F major barre at fret 1: every string occupied.
	got := positionsFor(41, 48, 53, 57, 60, 65)
	require.Len(t, got, 6)
	for i, p := range got {
		assert.Equalf(t, i, p.string_, "member %d should land on string %d", i, i)
	}
}
