// Package chart imports Standard MIDI Files into the expected-note schedule
// the scoring judge consumes. Simultaneous note-ons become a single chord
// event; each note is mapped to a playable string/fret position on a
// standard-tuned guitar.
package chart

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/alexanderzliu/guitarzero/internal/monitoring"
	"github.com/alexanderzliu/guitarzero/internal/scoring"
	"github.com/alexanderzliu/guitarzero/internal/units"
)

// chordEpsilonSec groups note-ons closer than this into one chord event.
// MIDI files exported from notation software place chord members at exactly
// the same tick, but hand-recorded files jitter by a few milliseconds.
const chordEpsilonSec = 0.005

// tailSec pads the song duration past the last note so it never finishes
// mid-window.
const tailSec = 2.0

const defaultBPM = 120

// Chart is one imported song: the note schedule plus the timing metadata the
// transport needs.
type Chart struct {
	Title           string                 `json:"title"`
	BPM             float64                `json:"bpm"`
	BeatDurationSec float64                `json:"beat_duration_sec"`
	DurationSec     float64                `json:"duration_sec"`
	Notes           []scoring.ExpectedNote `json:"notes"`
}

// Load reads and imports a chart from a MIDI file on disk.
func Load(path string) (*Chart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chart: %w", err)
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("chart: %s: %w", path, err)
	}
	return c, nil
}

type rawNote struct {
	timeSec float64
	midi    int
}

// Read imports a chart from SMF bytes.
func Read(r io.Reader) (*Chart, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("read smf: %w", err)
	}

	c := &Chart{BPM: defaultBPM}
	var raw []rawNote
	skipped := 0

	for _, events := range s.Tracks {
		var absTicks int64
		for _, ev := range events {
			absTicks += int64(ev.Delta)

			var bpm float64
			if ev.Message.GetMetaTempo(&bpm) && bpm > 0 {
				// First tempo wins; later changes only affect note timing,
				// which TimeAt already accounts for.
				if c.BPM == defaultBPM {
					c.BPM = bpm
				}
				continue
			}
			var name string
			if ev.Message.GetMetaTrackName(&name) && c.Title == "" {
				c.Title = name
				continue
			}

			var channel, key, velocity uint8
			if !ev.Message.GetNoteStart(&channel, &key, &velocity) {
				continue
			}
			midi := int(key)
			if !units.IsGuitarRange(midi) {
				skipped++
				continue
			}
			raw = append(raw, rawNote{
				timeSec: float64(s.TimeAt(absTicks)) / 1e6,
				midi:    midi,
			})
		}
	}
	if skipped > 0 {
		monitoring.Logf("chart: skipped %d notes outside guitar range", skipped)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no playable notes")
	}

	sort.Slice(raw, func(i, j int) bool {
		if raw[i].timeSec != raw[j].timeSec {
			return raw[i].timeSec < raw[j].timeSec
		}
		return raw[i].midi < raw[j].midi
	})

	c.Notes = groupEvents(raw)
	c.BeatDurationSec = 60 / c.BPM
	c.DurationSec = c.Notes[len(c.Notes)-1].TimeSec + tailSec
	return c, nil
}

// groupEvents clusters near-simultaneous notes into chord events and assigns
// string/fret positions.
func groupEvents(raw []rawNote) []scoring.ExpectedNote {
	var notes []scoring.ExpectedNote

	for i := 0; i < len(raw); {
		j := i + 1
		for j < len(raw) && raw[j].timeSec-raw[i].timeSec < chordEpsilonSec {
			j++
		}
		group := raw[i:j]

		eventID := uuid.NewString()
		isChord := len(group) > 1
		positions := assignPositions(group)
		for k, n := range group {
			notes = append(notes, scoring.ExpectedNote{
				EventID:   eventID,
				NoteIndex: k,
				TimeSec:   group[0].timeSec,
				String:    positions[k].string_,
				Fret:      positions[k].fret,
				Midi:      n.midi,
				IsChord:   isChord,
			})
		}
		i = j
	}
	return notes
}

type position struct {
	string_ int
	fret    int
}

// assignPositions picks a string/fret for each group member, lowest fret
// first, never reusing a string within one chord. Members arrive sorted by
// midi ascending, so greedy assignment from the thickest string works.
func assignPositions(group []rawNote) []position {
	positions := make([]position, len(group))
	used := [len(units.StandardTuning)]bool{}

	for k, n := range group {
		best := position{string_: -1}
		for s, open := range units.StandardTuning {
			if used[s] {
				continue
			}
			fret := n.midi - open
			if fret < 0 || fret > units.MaxFret {
				continue
			}
			if fret < bestFret(best) {
				best = position{string_: s, fret: fret}
			}
		}
		if best.string_ == -1 {
			// No free string can produce this pitch; fall back to the
			// thinnest string and clamp.
			fret := n.midi - units.StandardTuning[len(units.StandardTuning)-1]
			if fret < 0 {
				fret = 0
			}
			if fret > units.MaxFret {
				fret = units.MaxFret
			}
			best = position{string_: len(units.StandardTuning) - 1, fret: fret}
		} else {
			used[best.string_] = true
		}
		positions[k] = best
	}
	return positions
}

func bestFret(p position) int {
	if p.string_ == -1 {
		return units.MaxFret + 1
	}
	return p.fret
}

// Validate checks the invariants the judge relies on: a non-empty,
// time-sorted schedule with consistent chord grouping.
func (c *Chart) Validate() error {
	if len(c.Notes) == 0 {
		return fmt.Errorf("chart: empty schedule")
	}
	if c.BeatDurationSec <= 0 || c.DurationSec <= 0 {
		return fmt.Errorf("chart: non-positive timing metadata")
	}
	for i := 1; i < len(c.Notes); i++ {
		prev, n := c.Notes[i-1], c.Notes[i]
		if n.TimeSec < prev.TimeSec {
			return fmt.Errorf("chart: notes out of order at index %d", i)
		}
		if n.EventID == prev.EventID && n.NoteIndex != prev.NoteIndex+1 {
			return fmt.Errorf("chart: chord %s has non-contiguous member indices", n.EventID)
		}
	}
	return nil
}
