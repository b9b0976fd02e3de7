package dsp

import (
	"fmt"
	"math"

	"github.com/alexanderzliu/guitarzero/internal/units"
)

// OnsetConfig configures an OnsetDetector. Zero values take defaults.
type OnsetConfig struct {
	SampleRate  int     // samples per second (default 44100)
	HopSize     int     // samples between successive windows (default 512)
	ThresholdDb float64 // absolute level floor for an attack (default -40)
	RiseDb      float64 // required level rise over the previous window (default 6)
	DebounceSec float64 // minimum spacing between fired onsets (default 0.050)
}

// OnsetDetector fires when the loudness envelope jumps: the window level must
// clear an absolute floor, rise sharply over the previous window, and sit
// outside the debounce window of the last fired onset. One instance serves
// one audio session; its clock advances by one hop per Process call.
type OnsetDetector struct {
	thresholdDb float64
	riseDb      float64
	debounceSec float64
	hopSec      float64

	lastRmsDb        float64
	lastOnsetTimeSec float64
	currentTimeSec   float64
}

// NewOnsetDetector builds an OnsetDetector, applying defaults for zero-valued
// config fields.
func NewOnsetDetector(cfg OnsetConfig) (*OnsetDetector, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.HopSize == 0 {
		cfg.HopSize = 512
	}
	if cfg.ThresholdDb == 0 {
		cfg.ThresholdDb = -40
	}
	if cfg.RiseDb == 0 {
		cfg.RiseDb = 6
	}
	if cfg.DebounceSec == 0 {
		cfg.DebounceSec = 0.050
	}

	if cfg.SampleRate < 0 || cfg.HopSize < 0 {
		return nil, fmt.Errorf("onset: sample rate and hop size must be positive, got %d / %d",
			cfg.SampleRate, cfg.HopSize)
	}
	if cfg.DebounceSec < 0 {
		return nil, fmt.Errorf("onset: debounce must be non-negative, got %f", cfg.DebounceSec)
	}

	d := &OnsetDetector{
		thresholdDb: cfg.ThresholdDb,
		riseDb:      cfg.RiseDb,
		debounceSec: cfg.DebounceSec,
		hopSec:      float64(cfg.HopSize) / float64(cfg.SampleRate),
	}
	d.Reset()
	return d, nil
}

// Process consumes one window's RMS level in dB and reports whether an onset
// fired on this window. The level memory updates every call whether or not an
// onset fires.
func (d *OnsetDetector) Process(rmsDb float64) bool {
	d.currentTimeSec += d.hopSec

	fired := rmsDb > d.thresholdDb &&
		rmsDb-d.lastRmsDb > d.riseDb &&
		d.currentTimeSec-d.lastOnsetTimeSec > d.debounceSec

	if fired {
		d.lastOnsetTimeSec = d.currentTimeSec
	}
	d.lastRmsDb = rmsDb
	return fired
}

// CurrentTimeSec returns the detector's stream position in seconds.
func (d *OnsetDetector) CurrentTimeSec() float64 { return d.currentTimeSec }

// Reset restores initial state for reuse across sessions.
func (d *OnsetDetector) Reset() {
	d.lastRmsDb = units.SilenceFloorDb
	// Far enough in the past that the first attack is never debounced.
	d.lastOnsetTimeSec = -d.debounceSec - 1
	d.currentTimeSec = 0
}

// RMS computes the root-mean-square amplitude of a frame.
func RMS(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// Peak returns the largest absolute sample value in a frame.
func Peak(frame []float64) float64 {
	var peak float64
	for _, s := range frame {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}
