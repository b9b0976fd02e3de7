// Package dsp implements the per-window signal analysis primitives: YIN
// fundamental-frequency estimation and loudness-envelope onset detection.
//
// Both detectors signal "nothing found" through zero-valued results rather
// than errors; a malformed configuration is rejected at construction time so
// it can never surface mid-stream.
package dsp

import (
	"fmt"
	"math"
)

// PitchResult is the outcome of one YIN analysis window. When no periodic
// signal is found Pitched is false, FrequencyHz is 0 and Clarity is 0.
type PitchResult struct {
	FrequencyHz float64
	Clarity     float64
	Pitched     bool
}

// YinConfig configures a Yin estimator. Zero values take defaults.
type YinConfig struct {
	SampleRate int     // samples per second (default 44100)
	WindowSize int     // analysis window length in samples (default 2048)
	Threshold  float64 // CMND acceptance threshold (default 0.15)
	MinFreqHz  float64 // lowest detectable fundamental (default 60)
	MaxFreqHz  float64 // highest detectable fundamental (default 1500)
}

// Yin is a time-domain monophonic fundamental-frequency estimator using the
// cumulative-mean-normalised-difference function. One instance analyses one
// stream; Detect reuses internal buffers so steady-state operation does not
// allocate.
type Yin struct {
	sampleRate float64
	windowSize int
	threshold  float64
	minTau     int
	maxTau     int

	diff []float64 // squared-difference function, indexed by lag
	cmnd []float64 // cumulative mean normalised difference
}

// NewYin builds a Yin estimator, applying defaults for zero-valued config
// fields and rejecting out-of-range values.
func NewYin(cfg YinConfig) (*Yin, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 2048
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.15
	}
	if cfg.MinFreqHz == 0 {
		cfg.MinFreqHz = 60
	}
	if cfg.MaxFreqHz == 0 {
		cfg.MaxFreqHz = 1500
	}

	if cfg.SampleRate < 0 {
		return nil, fmt.Errorf("yin: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.WindowSize < 0 || cfg.WindowSize%2 != 0 {
		return nil, fmt.Errorf("yin: window size must be positive and even, got %d", cfg.WindowSize)
	}
	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("yin: threshold must be in (0,1), got %f", cfg.Threshold)
	}
	if cfg.MinFreqHz < 0 || cfg.MaxFreqHz <= cfg.MinFreqHz {
		return nil, fmt.Errorf("yin: invalid frequency range [%f, %f]", cfg.MinFreqHz, cfg.MaxFreqHz)
	}

	half := cfg.WindowSize / 2
	sr := float64(cfg.SampleRate)

	minTau := int(sr / cfg.MaxFreqHz)
	if minTau < 2 {
		minTau = 2
	}
	maxTau := int(sr / cfg.MinFreqHz)
	if maxTau > half-1 {
		maxTau = half - 1
	}
	if minTau >= maxTau {
		return nil, fmt.Errorf("yin: frequency range [%f, %f] unresolvable at window %d / rate %d",
			cfg.MinFreqHz, cfg.MaxFreqHz, cfg.WindowSize, cfg.SampleRate)
	}

	return &Yin{
		sampleRate: sr,
		windowSize: cfg.WindowSize,
		threshold:  cfg.Threshold,
		minTau:     minTau,
		maxTau:     maxTau,
		diff:       make([]float64, half+1),
		cmnd:       make([]float64, half+1),
	}, nil
}

// WindowSize returns the expected input frame length.
func (y *Yin) WindowSize() int { return y.windowSize }

// Detect estimates the fundamental frequency of one window. The frame must be
// exactly WindowSize samples long; shorter or longer frames yield an unpitched
// result rather than a panic.
func (y *Yin) Detect(frame []float64) PitchResult {
	if len(frame) != y.windowSize {
		return PitchResult{}
	}

	half := y.windowSize / 2

	// Squared-difference function over candidate lags.
	for tau := 0; tau <= half; tau++ {
		var sum float64
		for i := 0; i < half; i++ {
			d := frame[i] - frame[i+tau]
			sum += d * d
		}
		y.diff[tau] = sum
	}

	// Cumulative mean normalised difference. cmnd[0] is 1 by definition.
	y.cmnd[0] = 1
	var runningSum float64
	for tau := 1; tau <= half; tau++ {
		runningSum += y.diff[tau]
		if runningSum == 0 {
			y.cmnd[tau] = 1
		} else {
			y.cmnd[tau] = y.diff[tau] * float64(tau) / runningSum
		}
	}

	tau := y.pickTau()
	if tau < 0 {
		return PitchResult{}
	}

	refined := y.refineTau(tau)
	clarity := 1 - y.cmnd[tau]
	if clarity < 0 {
		clarity = 0
	} else if clarity > 1 {
		clarity = 1
	}

	return PitchResult{
		FrequencyHz: y.sampleRate / refined,
		Clarity:     clarity,
		Pitched:     true,
	}
}

// pickTau scans the CMND for the first dip below the threshold and walks it
// down to its local minimum, so the shoulder of a dip is never mistaken for
// its floor. Returns -1 when nothing acceptable is found.
func (y *Yin) pickTau() int {
	for tau := y.minTau; tau <= y.maxTau; tau++ {
		if y.cmnd[tau] < y.threshold {
			for tau+1 <= y.maxTau && y.cmnd[tau+1] < y.cmnd[tau] {
				tau++
			}
			return tau
		}
	}

	// No dip below threshold: fall back to the global minimum in range,
	// accepted only if it is at least mildly periodic.
	best := -1
	bestVal := math.Inf(1)
	for tau := y.minTau; tau <= y.maxTau; tau++ {
		if y.cmnd[tau] < bestVal {
			bestVal = y.cmnd[tau]
			best = tau
		}
	}
	if best < 0 || bestVal >= 2*y.threshold {
		return -1
	}
	return best
}

// refineTau improves the integer lag estimate by fitting a parabola through
// the CMND values at tau-1, tau, tau+1. Falls back to the integer lag when
// the fit is degenerate.
func (y *Yin) refineTau(tau int) float64 {
	if tau <= 0 || tau >= len(y.cmnd)-1 {
		return float64(tau)
	}
	s0 := y.cmnd[tau-1]
	s1 := y.cmnd[tau]
	s2 := y.cmnd[tau+1]
	denom := 2*s1 - s2 - s0
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return float64(tau)
	}
	adjust := (s2 - s0) / (2 * denom)
	if math.IsNaN(adjust) || math.IsInf(adjust, 0) || math.Abs(adjust) > 1 {
		return float64(tau)
	}
	return float64(tau) + adjust
}
