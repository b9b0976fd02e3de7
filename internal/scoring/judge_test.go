package scoring

import (
	"fmt"
	"testing"

	"github.com/alexanderzliu/guitarzero/internal/intake"
)

func single(eventID string, timeSec float64, midi int) ExpectedNote {
	return ExpectedNote{EventID: eventID, TimeSec: timeSec, Midi: midi}
}

func det(songTimeSec float64, midi int) intake.DetectedOnset {
	return intake.DetectedOnset{Midi: midi, Pitched: true, OnsetSongTimeSec: songTimeSec}
}

func newJudge(t *testing.T, notes []ExpectedNote) *Judge {
	t.Helper()
	j, err := NewJudge(notes, Tolerances{})
	if err != nil {
		t.Fatalf("NewJudge: %v", err)
	}
	return j
}

func TestTimingClassification(t *testing.T) {
	tests := []struct {
		offsetMs float64
		want     Result
		matched  bool
	}{
		{45, Perfect, true},
		{-50, Perfect, true}, // boundary inclusive
		{70, Good, true},
		{100, Good, true},
		{150, Ok, true},
		{200, Ok, true}, // exactly okMs classifies as Ok
		{201, 0, false}, // one ms past: unmatched, eligible for a later Miss
		{250, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%+.0fms", tt.offsetMs), func(t *testing.T) {
			j := newJudge(t, []ExpectedNote{single("e1", 2.000, 64)})
			got := j.HandleOnset(det(2.000+tt.offsetMs/1000, 64))

			if !tt.matched {
				if len(got) != 0 {
					t.Fatalf("matched %+v, want unmatched", got)
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("verdicts = %d, want 1", len(got))
			}
			if got[0].Verdict.Result != tt.want {
				t.Errorf("result = %v, want %v", got[0].Verdict.Result, tt.want)
			}
		})
	}
}

func TestPitchTolerance(t *testing.T) {
	tests := []struct {
		name     string
		expected int
		detected int
		match    bool
	}{
		{"exact", 64, 64, true},
		{"within two semitones", 64, 66, true},
		{"three semitones off", 64, 67, false},
		{"octave up exact", 52, 64, true},
		{"octave down exact", 64, 52, true},
		{"octave up within tolerance", 52, 65, true},
		{"way off", 52, 80, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newJudge(t, []ExpectedNote{single("e1", 2.000, tt.expected)})
			got := j.HandleOnset(det(2.000, tt.detected))
			if (len(got) == 1) != tt.match {
				t.Errorf("match = %v, want %v", len(got) == 1, tt.match)
			}
		})
	}
}

func TestUnpitchedOnsetSkipsSingleNotes(t *testing.T) {
	j := newJudge(t, []ExpectedNote{single("e1", 2.000, 64)})
	got := j.HandleOnset(intake.DetectedOnset{Pitched: false, OnsetSongTimeSec: 2.000})
	if len(got) != 0 {
		t.Errorf("unpitched onset matched a single note: %+v", got)
	}
}

func TestChordScoredAsStrum(t *testing.T) {
	chord := []ExpectedNote{
		{EventID: "c1", NoteIndex: 0, TimeSec: 2.000, Midi: 40, IsChord: true},
		{EventID: "c1", NoteIndex: 1, TimeSec: 2.000, Midi: 47, IsChord: true},
		{EventID: "c1", NoteIndex: 2, TimeSec: 2.000, Midi: 52, IsChord: true},
	}
	j := newJudge(t, chord)

	// An unpitched strum candidate inside the window verdicts all members
	// identically; pitch is never checked for chords.
	got := j.HandleOnset(intake.DetectedOnset{Pitched: false, OnsetSongTimeSec: 2.060})
	if len(got) != 3 {
		t.Fatalf("verdicts = %d, want all 3 chord members", len(got))
	}
	for _, ev := range got {
		if ev.Verdict.Result != Good {
			t.Errorf("member %d result = %v, want good", ev.Note.NoteIndex, ev.Verdict.Result)
		}
	}
	if j.State().GoodCount != 3 {
		t.Errorf("goodCount = %d, want 3 (each member scores)", j.State().GoodCount)
	}
}

func TestAtMostOneVerdictPerNote(t *testing.T) {
	j := newJudge(t, []ExpectedNote{single("e1", 2.000, 64)})

	first := j.HandleOnset(det(2.045, 64))
	if len(first) != 1 || first[0].Verdict.Result != Perfect {
		t.Fatalf("first onset = %+v, want perfect", first)
	}

	// Repeated onsets in the window never change the verdict.
	for i := 0; i < 5; i++ {
		if again := j.HandleOnset(det(2.100, 64)); len(again) != 0 {
			t.Fatalf("resolved note re-matched: %+v", again)
		}
	}
	v, ok := j.VerdictFor(j.Notes()[0])
	if !ok || v.Result != Perfect {
		t.Errorf("verdict = %+v, want the original perfect", v)
	}
	if j.State().PerfectCount != 1 {
		t.Errorf("perfectCount = %d, want 1", j.State().PerfectCount)
	}
}

func TestOneOnsetMatchesOverlappingNotes(t *testing.T) {
	notes := []ExpectedNote{
		single("e1", 2.000, 64),
		single("e2", 2.100, 64), // windows overlap around 2.05
	}
	j := newJudge(t, notes)

	got := j.HandleOnset(det(2.050, 64))
	if len(got) != 2 {
		t.Fatalf("verdicts = %d, want 2 (overlapping windows)", len(got))
	}
	if got[0].Verdict.Result != Perfect || got[1].Verdict.Result != Perfect {
		t.Errorf("results = %v/%v, want perfect/perfect", got[0].Verdict.Result, got[1].Verdict.Result)
	}
}

func TestMissSweep(t *testing.T) {
	notes := []ExpectedNote{
		single("e1", 1.000, 64),
		single("e2", 2.000, 64),
		single("e3", 3.000, 64),
	}
	j := newJudge(t, notes)

	// At song time 2.2 only e1 has fully overshot its 200ms window; e2 is
	// exactly at the boundary and still pending.
	got := j.SweepMisses(2.200)
	if len(got) != 1 || got[0].Note.EventID != "e1" {
		t.Fatalf("swept = %+v, want only e1", got)
	}
	if got[0].Verdict.Result != Miss || got[0].Verdict.Hit {
		t.Errorf("verdict = %+v, want miss", got[0].Verdict)
	}
	if got[0].Verdict.OffsetMs != 1200 {
		t.Errorf("offset = %v, want 1200 (elapsed overshoot)", got[0].Verdict.OffsetMs)
	}

	// A hair past the boundary sweeps e2 as well.
	got = j.SweepMisses(2.201)
	if len(got) != 1 || got[0].Note.EventID != "e2" {
		t.Fatalf("swept = %+v, want only e2", got)
	}
	if j.State().MissCount != 2 {
		t.Errorf("missCount = %d, want 2", j.State().MissCount)
	}
}

func TestMissedNoteCannotBeHitLater(t *testing.T) {
	j := newJudge(t, []ExpectedNote{single("e1", 1.000, 64)})
	j.SweepMisses(1.500)
	if got := j.HandleOnset(det(1.100, 64)); len(got) != 0 {
		t.Errorf("missed note re-matched: %+v", got)
	}
}

func TestLateOnsetBecomesMiss(t *testing.T) {
	// 250ms late: unmatched now, a Miss once time moves on.
	j := newJudge(t, []ExpectedNote{single("e1", 2.000, 64)})
	if got := j.HandleOnset(det(2.250, 64)); len(got) != 0 {
		t.Fatalf("+250ms matched: %+v", got)
	}
	if got := j.SweepMisses(2.250); len(got) != 1 || got[0].Verdict.Result != Miss {
		t.Fatalf("sweep at 2.250 = %+v, want miss", got)
	}
}

func TestFinalizeSweepsPendingAsMisses(t *testing.T) {
	notes := []ExpectedNote{
		single("e1", 1.000, 64),
		single("e2", 2.000, 64),
	}
	j := newJudge(t, notes)
	j.HandleOnset(det(1.010, 64))

	history := j.Finalize(1.500)
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].Verdict.Result != Perfect || history[1].Verdict.Result != Miss {
		t.Errorf("history results = %v/%v, want perfect/miss",
			history[0].Verdict.Result, history[1].Verdict.Result)
	}
}

func TestResetRestoresInitialState(t *testing.T) {
	notes := []ExpectedNote{single("e1", 1.000, 64), single("e2", 2.000, 64)}
	j := newJudge(t, notes)
	j.HandleOnset(det(1.000, 64))
	j.SweepMisses(5.000)

	j.Reset()
	if j.State() != (ScoreState{}) {
		t.Errorf("state after Reset = %+v, want zero", j.State())
	}
	if len(j.History()) != 0 {
		t.Errorf("history after Reset = %d entries, want 0", len(j.History()))
	}
	// Nothing is pre-resolved: the first note can be hit again.
	if got := j.HandleOnset(det(1.000, 64)); len(got) != 1 {
		t.Errorf("note not matchable after Reset: %+v", got)
	}
}

func TestNewJudgeRejectsUnsortedSchedule(t *testing.T) {
	notes := []ExpectedNote{single("e2", 2.000, 64), single("e1", 1.000, 64)}
	if _, err := NewJudge(notes, Tolerances{}); err == nil {
		t.Error("accepted an unsorted schedule")
	}
}

func TestNewJudgeRejectsBadTolerances(t *testing.T) {
	if _, err := NewJudge(nil, Tolerances{PerfectMs: 300, GoodMs: 100}); err == nil {
		t.Error("accepted non-nested windows")
	}
	if _, err := NewJudge(nil, Tolerances{PitchToleranceSemitones: -1}); err == nil {
		t.Error("accepted negative pitch tolerance")
	}
}
