// Package calib estimates the fixed capture latency between the audio
// interface and the analysis clock. The player strums along with a metronome;
// the median offset between detected onsets and the beat grid becomes the
// calibrated offset the intake resolver subtracts from every onset timestamp.
package calib

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// maxValidOffsetSec rejects onsets too far from any beat to be an attempt at
// hitting it (extra strums, string noise).
const maxValidOffsetSec = 0.25

// minSamples is the fewest matched beats a trustworthy estimate needs.
const minSamples = 5

// Calibrator collects onset-to-beat offsets over a metronome run.
type Calibrator struct {
	beats   []float64
	offsets []float64
}

// NewCalibrator lays out a beat grid: count beats at the given tempo, the
// first at startSec.
func NewCalibrator(bpm float64, count int, startSec float64) (*Calibrator, error) {
	if bpm <= 0 {
		return nil, fmt.Errorf("calib: bpm must be positive, got %f", bpm)
	}
	if count < minSamples {
		return nil, fmt.Errorf("calib: need at least %d beats, got %d", minSamples, count)
	}
	beatSec := 60 / bpm
	beats := make([]float64, count)
	for i := range beats {
		beats[i] = startSec + float64(i)*beatSec
	}
	return &Calibrator{beats: beats}, nil
}

// Beats returns the metronome schedule in audio-clock seconds.
func (c *Calibrator) Beats() []float64 { return c.beats }

// AddOnset matches a detected onset to the nearest beat and records the
// offset. Onsets further than maxValidOffsetSec from every beat are ignored;
// the return reports whether the onset was used.
func (c *Calibrator) AddOnset(timestampSec float64) bool {
	i := sort.SearchFloat64s(c.beats, timestampSec)
	best := -1.0
	found := false
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(c.beats) {
			continue
		}
		off := timestampSec - c.beats[j]
		if abs(off) > maxValidOffsetSec {
			continue
		}
		if !found || abs(off) < abs(best) {
			best = off
			found = true
		}
	}
	if found {
		c.offsets = append(c.offsets, best)
	}
	return found
}

// SampleCount returns how many onsets matched a beat so far.
func (c *Calibrator) SampleCount() int { return len(c.offsets) }

// Result is a finished calibration estimate.
type Result struct {
	OffsetSec float64 `json:"offset_sec"`
	SpreadSec float64 `json:"spread_sec"`
	Samples   int     `json:"samples"`
}

// Estimate computes the median offset. The median shrugs off the occasional
// badly-timed strum that would drag a mean.
func (c *Calibrator) Estimate() (Result, error) {
	if len(c.offsets) < minSamples {
		return Result{}, fmt.Errorf("calib: only %d matched onsets, need %d", len(c.offsets), minSamples)
	}
	sorted := append([]float64(nil), c.offsets...)
	sort.Float64s(sorted)
	return Result{
		OffsetSec: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		SpreadSec: stat.StdDev(sorted, nil),
		Samples:   len(sorted),
	}, nil
}

// Reset discards collected offsets, keeping the beat grid.
func (c *Calibrator) Reset() { c.offsets = c.offsets[:0] }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
