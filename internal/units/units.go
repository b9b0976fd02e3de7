// Package units provides shared musical unit conversions and constants.
package units

import (
	"fmt"
	"math"
)

// StandardTuning holds the MIDI note numbers for standard-tuning open
// strings, low E to high E (E2 A2 D3 G3 B3 E4).
var StandardTuning = [6]int{40, 45, 50, 55, 59, 64}

// MaxFret is the highest fret the chart importer will assign.
const MaxFret = 21

// MIDI range considered valid for a six-string guitar in standard tuning.
const (
	MinGuitarMidi = 40 // open low E
	MaxGuitarMidi = 88 // high E at the top of the fretboard
)

// SilenceFloorDb is the dB value reported for an all-zero (or denormal) block.
const SilenceFloorDb = -120.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// MidiToFreq returns the equal-temperament frequency in Hz for a MIDI note
// number (A4 = 69 = 440 Hz).
func MidiToFreq(midi int) float64 {
	return 440.0 * math.Pow(2, float64(midi-69)/12.0)
}

// FreqToMidi converts a frequency in Hz to the nearest integer MIDI note
// number. Returns -1 for non-positive frequencies.
func FreqToMidi(freqHz float64) int {
	if freqHz <= 0 {
		return -1
	}
	return int(math.Round(69 + 12*math.Log2(freqHz/440.0)))
}

// FreqToMidiFloat converts a frequency in Hz to a continuous MIDI note value
// without rounding. Returns NaN for non-positive frequencies.
func FreqToMidiFloat(freqHz float64) float64 {
	if freqHz <= 0 {
		return math.NaN()
	}
	return 69 + 12*math.Log2(freqHz/440.0)
}

// LinearToDb converts a linear amplitude (e.g. an RMS value in [0,1]) to
// decibels, clamping silence to SilenceFloorDb.
func LinearToDb(amplitude float64) float64 {
	if amplitude <= 0 {
		return SilenceFloorDb
	}
	db := 20 * math.Log10(amplitude)
	if db < SilenceFloorDb {
		return SilenceFloorDb
	}
	return db
}

// NoteName formats a MIDI note number as scientific pitch notation
// (e.g. 64 → "E4"). Negative values format as "?".
func NoteName(midi int) string {
	if midi < 0 {
		return "?"
	}
	return fmt.Sprintf("%s%d", noteNames[midi%12], (midi/12)-1)
}

// IsGuitarRange reports whether the MIDI note is playable on a standard-tuned
// six-string guitar.
func IsGuitarRange(midi int) bool {
	return midi >= MinGuitarMidi && midi <= MaxGuitarMidi
}
