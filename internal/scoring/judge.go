package scoring

import (
	"fmt"
	"sort"

	"github.com/alexanderzliu/guitarzero/internal/intake"
)

// ExpectedNote is one schedule entry, supplied once per song by the chart
// importer and never mutated here. Chord members share an EventID and carry
// IsChord; they are judged together as a single timed strum.
type ExpectedNote struct {
	EventID   string  `json:"event_id"`
	NoteIndex int     `json:"note_index"`
	TimeSec   float64 `json:"time_sec"`
	String    int     `json:"string"`
	Fret      int     `json:"fret"`
	Midi      int     `json:"midi"`
	IsChord   bool    `json:"is_chord"`
}

// NoteVerdict is the immutable outcome assigned to one expected note. Hit is
// false for a Miss, in which case HitTimeSec is meaningless.
type NoteVerdict struct {
	Result     Result  `json:"result"`
	OffsetMs   float64 `json:"offset_ms"`
	HitTimeSec float64 `json:"hit_time_sec"`
	Hit        bool    `json:"hit"`
}

// VerdictEvent pairs a verdict with the note it resolves, in the order
// verdicts were assigned. The finalized session record is a sequence of
// these.
type VerdictEvent struct {
	Note    ExpectedNote `json:"note"`
	Verdict NoteVerdict  `json:"verdict"`
}

// Tolerances configures the classification windows. Zero values take the
// standard defaults.
type Tolerances struct {
	PerfectMs               float64 // default 50
	GoodMs                  float64 // default 100
	OkMs                    float64 // default 200
	PitchToleranceSemitones int     // default 2
}

func (tol *Tolerances) applyDefaults() {
	if tol.PerfectMs == 0 {
		tol.PerfectMs = 50
	}
	if tol.GoodMs == 0 {
		tol.GoodMs = 100
	}
	if tol.OkMs == 0 {
		tol.OkMs = 200
	}
	if tol.PitchToleranceSemitones == 0 {
		tol.PitchToleranceSemitones = 2
	}
}

type noteKey struct {
	eventID   string
	noteIndex int
}

// Judge converts the DetectedOnset stream plus elapsed song time into
// verdicts and maintains the running ScoreState. One instance per session;
// all calls happen on the frame-loop goroutine.
type Judge struct {
	notes []ExpectedNote
	tol   Tolerances

	resolved     map[noteKey]NoteVerdict
	state        ScoreState
	history      []VerdictEvent
	firstPending int // index of the earliest note that may still be pending
}

// NewJudge validates the schedule (time-sorted, tolerances sane) and returns
// a Judge with zeroed score state.
func NewJudge(notes []ExpectedNote, tol Tolerances) (*Judge, error) {
	tol.applyDefaults()
	if tol.PerfectMs < 0 || tol.GoodMs < tol.PerfectMs || tol.OkMs < tol.GoodMs {
		return nil, fmt.Errorf("scoring: windows must nest: perfect %f <= good %f <= ok %f",
			tol.PerfectMs, tol.GoodMs, tol.OkMs)
	}
	if tol.PitchToleranceSemitones < 0 {
		return nil, fmt.Errorf("scoring: pitch tolerance must be non-negative, got %d", tol.PitchToleranceSemitones)
	}
	if !sort.SliceIsSorted(notes, func(i, j int) bool { return notes[i].TimeSec < notes[j].TimeSec }) {
		return nil, fmt.Errorf("scoring: schedule must be sorted ascending by time")
	}

	return &Judge{
		notes:    notes,
		tol:      tol,
		resolved: make(map[noteKey]NoteVerdict, len(notes)),
	}, nil
}

// State returns the current score state.
func (j *Judge) State() ScoreState { return j.state }

// Notes returns the immutable schedule.
func (j *Judge) Notes() []ExpectedNote { return j.notes }

// VerdictFor returns the verdict assigned to a note, if any.
func (j *Judge) VerdictFor(n ExpectedNote) (NoteVerdict, bool) {
	v, ok := j.resolved[noteKey{n.EventID, n.NoteIndex}]
	return v, ok
}

// History returns the ordered verdict sequence assigned so far. The returned
// slice is owned by the Judge; callers must not mutate it.
func (j *Judge) History() []VerdictEvent { return j.history }

// classify maps an absolute offset to a timing class, or false when the
// onset is outside the widest window. Boundaries are inclusive.
func (j *Judge) classify(offsetMs float64) (Result, bool) {
	abs := offsetMs
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs <= j.tol.PerfectMs:
		return Perfect, true
	case abs <= j.tol.GoodMs:
		return Good, true
	case abs <= j.tol.OkMs:
		return Ok, true
	}
	return 0, false
}

// pitchMatches accepts a detected pitch within tolerance of the expected
// note, directly or after shifting by one octave either way. Octave errors
// from strong harmonics are the estimator's most common failure mode.
func (j *Judge) pitchMatches(detected, expected int) bool {
	tol := j.tol.PitchToleranceSemitones
	diff := detected - expected
	if diff < 0 {
		diff = -diff
	}
	for _, d := range [3]int{diff, diff - 12, diff + 12} {
		if d < 0 {
			d = -d
		}
		if d <= tol {
			return true
		}
	}
	return false
}

// HandleOnset matches one resolved onset against all still-pending notes.
// A single onset may verdict several notes with overlapping windows; each
// resolved note is permanently excluded from further matching.
func (j *Judge) HandleOnset(d intake.DetectedOnset) []VerdictEvent {
	var assigned []VerdictEvent

	for i := j.firstPending; i < len(j.notes); i++ {
		note := j.notes[i]
		offsetMs := (d.OnsetSongTimeSec - note.TimeSec) * 1000

		// Notes more than a window in the future cannot match; the
		// schedule is sorted so nothing beyond them can either.
		if offsetMs < -j.tol.OkMs {
			break
		}

		key := noteKey{note.EventID, note.NoteIndex}
		if _, done := j.resolved[key]; done {
			continue
		}

		result, inWindow := j.classify(offsetMs)
		if !inWindow {
			continue
		}

		if note.IsChord {
			// Chords score as one timed strum: any onset in the window
			// verdicts every member identically, pitch unchecked.
			assigned = append(assigned, j.assignChord(note.EventID, result, offsetMs, d.OnsetSongTimeSec)...)
			continue
		}

		// Single notes need a pitch; an unpitched onset is only a strum
		// candidate.
		if !d.Pitched || !j.pitchMatches(d.Midi, note.Midi) {
			continue
		}
		assigned = append(assigned, j.assign(note, NoteVerdict{
			Result:     result,
			OffsetMs:   offsetMs,
			HitTimeSec: d.OnsetSongTimeSec,
			Hit:        true,
		}))
	}
	return assigned
}

// assignChord verdicts every still-pending member of a chord event.
func (j *Judge) assignChord(eventID string, result Result, offsetMs, hitTimeSec float64) []VerdictEvent {
	var assigned []VerdictEvent
	for i := j.firstPending; i < len(j.notes); i++ {
		n := j.notes[i]
		if n.EventID != eventID {
			continue
		}
		if _, done := j.resolved[noteKey{n.EventID, n.NoteIndex}]; done {
			continue
		}
		assigned = append(assigned, j.assign(n, NoteVerdict{
			Result:     result,
			OffsetMs:   offsetMs,
			HitTimeSec: hitTimeSec,
			Hit:        true,
		}))
	}
	return assigned
}

// assign records a verdict, folds it into the score, and advances the
// pending frontier past any fully-resolved prefix.
func (j *Judge) assign(note ExpectedNote, v NoteVerdict) VerdictEvent {
	j.resolved[noteKey{note.EventID, note.NoteIndex}] = v
	j.state = ApplyVerdict(j.state, v.Result)
	ev := VerdictEvent{Note: note, Verdict: v}
	j.history = append(j.history, ev)
	j.advanceFrontier()
	return ev
}

func (j *Judge) advanceFrontier() {
	for j.firstPending < len(j.notes) {
		n := j.notes[j.firstPending]
		if _, done := j.resolved[noteKey{n.EventID, n.NoteIndex}]; !done {
			return
		}
		j.firstPending++
	}
}

// SweepMisses assigns Miss to every unresolved note whose window has fully
// elapsed. Runs every cycle, independent of whether any onset arrived.
func (j *Judge) SweepMisses(songTimeSec float64) []VerdictEvent {
	var assigned []VerdictEvent
	for i := j.firstPending; i < len(j.notes); i++ {
		note := j.notes[i]
		overshootMs := (songTimeSec - note.TimeSec) * 1000
		if overshootMs <= j.tol.OkMs {
			break // later notes are even further in the future
		}
		key := noteKey{note.EventID, note.NoteIndex}
		if _, done := j.resolved[key]; done {
			continue
		}
		assigned = append(assigned, j.assign(note, NoteVerdict{
			Result:   Miss,
			OffsetMs: overshootMs,
		}))
	}
	return assigned
}

// Finalize returns the complete ordered verdict list for persistence. Any
// still-pending notes (e.g. after an early exit) are swept as misses first.
func (j *Judge) Finalize(songTimeSec float64) []VerdictEvent {
	for i := j.firstPending; i < len(j.notes); i++ {
		note := j.notes[i]
		key := noteKey{note.EventID, note.NoteIndex}
		if _, done := j.resolved[key]; done {
			continue
		}
		j.assign(note, NoteVerdict{
			Result:   Miss,
			OffsetMs: (songTimeSec - note.TimeSec) * 1000,
		})
	}
	return j.history
}

// Reset clears the resolved set and score state for a session start or loop
// restart. The schedule itself is untouched.
func (j *Judge) Reset() {
	j.resolved = make(map[noteKey]NoteVerdict, len(j.notes))
	j.state = ScoreState{}
	j.history = nil
	j.firstPending = 0
}
