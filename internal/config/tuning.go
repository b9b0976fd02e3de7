package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for analysis and scoring
// parameters. Fields are pointers so a partial JSON file only overrides the
// values it names; the Get* accessors fall back to compiled defaults. The
// config is constructed once at session start and never mutated mid-session.
type TuningConfig struct {
	// Audio analysis params
	SampleRate *int     `json:"sample_rate,omitempty"`
	WindowSize *int     `json:"window_size,omitempty"`
	HopSize    *int     `json:"hop_size,omitempty"`
	OutputRate *float64 `json:"output_rate,omitempty"` // throttled pitch/level emissions per second

	// Pitch estimator params
	YinThreshold *float64 `json:"yin_threshold,omitempty"`
	MinFreqHz    *float64 `json:"min_freq_hz,omitempty"`
	MaxFreqHz    *float64 `json:"max_freq_hz,omitempty"`

	// Onset detector params
	OnsetThresholdDb *float64 `json:"onset_threshold_db,omitempty"`
	OnsetRiseDb      *float64 `json:"onset_rise_db,omitempty"`
	DebounceMs       *float64 `json:"debounce_ms,omitempty"`

	// Onset intake params
	MaxLookaheadMs    *float64 `json:"max_lookahead_ms,omitempty"`
	MaxWaitMs         *float64 `json:"max_wait_ms,omitempty"`
	MinTrustedClarity *float64 `json:"min_trusted_clarity,omitempty"`
	MaxPendingOnsets  *int     `json:"max_pending_onsets,omitempty"`
	PitchRingSize     *int     `json:"pitch_ring_size,omitempty"`

	// Scoring params
	PitchToleranceSemitones *int     `json:"pitch_tolerance_semitones,omitempty"`
	PerfectMs               *float64 `json:"perfect_ms,omitempty"`
	GoodMs                  *float64 `json:"good_ms,omitempty"`
	OkMs                    *float64 `json:"ok_ms,omitempty"`

	// Transport params
	CountdownBeats *int `json:"countdown_beats,omitempty"`

	// Calibration output consumed as a plain offset; the calibration
	// wizard itself lives outside this config.
	CalibratedOffsetSec *float64 `json:"calibrated_offset_sec,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid. Malformed values
// are a construction-time fatal error; they must never be discovered
// mid-stream.
func (c *TuningConfig) Validate() error {
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", *c.SampleRate)
	}
	if c.WindowSize != nil && *c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", *c.WindowSize)
	}
	if c.HopSize != nil {
		if *c.HopSize <= 0 {
			return fmt.Errorf("hop_size must be positive, got %d", *c.HopSize)
		}
		if *c.HopSize > c.GetWindowSize() {
			return fmt.Errorf("hop_size %d must not exceed window_size %d", *c.HopSize, c.GetWindowSize())
		}
	}
	if c.OutputRate != nil && *c.OutputRate <= 0 {
		return fmt.Errorf("output_rate must be positive, got %f", *c.OutputRate)
	}
	if c.YinThreshold != nil && (*c.YinThreshold <= 0 || *c.YinThreshold >= 1) {
		return fmt.Errorf("yin_threshold must be in (0,1), got %f", *c.YinThreshold)
	}
	if c.MinFreqHz != nil && *c.MinFreqHz <= 0 {
		return fmt.Errorf("min_freq_hz must be positive, got %f", *c.MinFreqHz)
	}
	if c.GetMaxFreqHz() <= c.GetMinFreqHz() {
		return fmt.Errorf("max_freq_hz %f must exceed min_freq_hz %f", c.GetMaxFreqHz(), c.GetMinFreqHz())
	}
	if c.DebounceMs != nil && *c.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must be non-negative, got %f", *c.DebounceMs)
	}
	if c.MaxLookaheadMs != nil && *c.MaxLookaheadMs < 0 {
		return fmt.Errorf("max_lookahead_ms must be non-negative, got %f", *c.MaxLookaheadMs)
	}
	if c.MaxWaitMs != nil && *c.MaxWaitMs < 0 {
		return fmt.Errorf("max_wait_ms must be non-negative, got %f", *c.MaxWaitMs)
	}
	if c.MinTrustedClarity != nil && (*c.MinTrustedClarity < 0 || *c.MinTrustedClarity > 1) {
		return fmt.Errorf("min_trusted_clarity must be in [0,1], got %f", *c.MinTrustedClarity)
	}
	if c.MaxPendingOnsets != nil && *c.MaxPendingOnsets <= 0 {
		return fmt.Errorf("max_pending_onsets must be positive, got %d", *c.MaxPendingOnsets)
	}
	if c.PitchRingSize != nil && *c.PitchRingSize <= 0 {
		return fmt.Errorf("pitch_ring_size must be positive, got %d", *c.PitchRingSize)
	}
	if c.PitchToleranceSemitones != nil && *c.PitchToleranceSemitones < 0 {
		return fmt.Errorf("pitch_tolerance_semitones must be non-negative, got %d", *c.PitchToleranceSemitones)
	}
	if err := c.validateTimingWindows(); err != nil {
		return err
	}
	if c.CountdownBeats != nil && *c.CountdownBeats < 0 {
		return fmt.Errorf("countdown_beats must be non-negative, got %d", *c.CountdownBeats)
	}
	return nil
}

// validateTimingWindows checks the classification windows individually and
// that they nest (perfect <= good <= ok).
func (c *TuningConfig) validateTimingWindows() error {
	for _, w := range []struct {
		name string
		v    *float64
	}{
		{"perfect_ms", c.PerfectMs},
		{"good_ms", c.GoodMs},
		{"ok_ms", c.OkMs},
	} {
		if w.v != nil && *w.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", w.name, *w.v)
		}
	}
	if c.GetPerfectMs() > c.GetGoodMs() || c.GetGoodMs() > c.GetOkMs() {
		return fmt.Errorf("timing windows must nest: perfect_ms %f <= good_ms %f <= ok_ms %f",
			c.GetPerfectMs(), c.GetGoodMs(), c.GetOkMs())
	}
	return nil
}

// GetSampleRate returns the sample_rate value or the default.
func (c *TuningConfig) GetSampleRate() int {
	if c.SampleRate == nil {
		return 44100
	}
	return *c.SampleRate
}

// GetWindowSize returns the window_size value or the default.
func (c *TuningConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 2048
	}
	return *c.WindowSize
}

// GetHopSize returns the hop_size value or the default.
func (c *TuningConfig) GetHopSize() int {
	if c.HopSize == nil {
		return 512
	}
	return *c.HopSize
}

// GetOutputRate returns the output_rate value or the default.
func (c *TuningConfig) GetOutputRate() float64 {
	if c.OutputRate == nil {
		return 30.0
	}
	return *c.OutputRate
}

// GetYinThreshold returns the yin_threshold value or the default.
func (c *TuningConfig) GetYinThreshold() float64 {
	if c.YinThreshold == nil {
		return 0.15
	}
	return *c.YinThreshold
}

// GetMinFreqHz returns the min_freq_hz value or the default.
func (c *TuningConfig) GetMinFreqHz() float64 {
	if c.MinFreqHz == nil {
		return 60.0
	}
	return *c.MinFreqHz
}

// GetMaxFreqHz returns the max_freq_hz value or the default.
func (c *TuningConfig) GetMaxFreqHz() float64 {
	if c.MaxFreqHz == nil {
		return 1500.0
	}
	return *c.MaxFreqHz
}

// GetOnsetThresholdDb returns the onset_threshold_db value or the default.
func (c *TuningConfig) GetOnsetThresholdDb() float64 {
	if c.OnsetThresholdDb == nil {
		return -40.0
	}
	return *c.OnsetThresholdDb
}

// GetOnsetRiseDb returns the onset_rise_db value or the default.
func (c *TuningConfig) GetOnsetRiseDb() float64 {
	if c.OnsetRiseDb == nil {
		return 6.0
	}
	return *c.OnsetRiseDb
}

// GetDebounceSec returns the onset debounce window in seconds.
func (c *TuningConfig) GetDebounceSec() float64 {
	if c.DebounceMs == nil {
		return 0.050
	}
	return *c.DebounceMs / 1000.0
}

// GetMaxLookaheadSec returns the onset-to-pitch lookahead window in seconds.
func (c *TuningConfig) GetMaxLookaheadSec() float64 {
	if c.MaxLookaheadMs == nil {
		return 0.250
	}
	return *c.MaxLookaheadMs / 1000.0
}

// GetMaxWaitSec returns the deferred-resolution wait window in seconds.
func (c *TuningConfig) GetMaxWaitSec() float64 {
	if c.MaxWaitMs == nil {
		return 0.300
	}
	return *c.MaxWaitMs / 1000.0
}

// GetMinTrustedClarity returns the min_trusted_clarity value or the default.
func (c *TuningConfig) GetMinTrustedClarity() float64 {
	if c.MinTrustedClarity == nil {
		return 0.6
	}
	return *c.MinTrustedClarity
}

// GetMaxPendingOnsets returns the max_pending_onsets value or the default.
func (c *TuningConfig) GetMaxPendingOnsets() int {
	if c.MaxPendingOnsets == nil {
		return 50
	}
	return *c.MaxPendingOnsets
}

// GetPitchRingSize returns the pitch_ring_size value or the default.
func (c *TuningConfig) GetPitchRingSize() int {
	if c.PitchRingSize == nil {
		return 120
	}
	return *c.PitchRingSize
}

// GetPitchToleranceSemitones returns the pitch_tolerance_semitones value or the default.
func (c *TuningConfig) GetPitchToleranceSemitones() int {
	if c.PitchToleranceSemitones == nil {
		return 2
	}
	return *c.PitchToleranceSemitones
}

// GetPerfectMs returns the perfect_ms value or the default.
func (c *TuningConfig) GetPerfectMs() float64 {
	if c.PerfectMs == nil {
		return 50.0
	}
	return *c.PerfectMs
}

// GetGoodMs returns the good_ms value or the default.
func (c *TuningConfig) GetGoodMs() float64 {
	if c.GoodMs == nil {
		return 100.0
	}
	return *c.GoodMs
}

// GetOkMs returns the ok_ms value or the default.
func (c *TuningConfig) GetOkMs() float64 {
	if c.OkMs == nil {
		return 200.0
	}
	return *c.OkMs
}

// GetCountdownBeats returns the countdown_beats value or the default.
func (c *TuningConfig) GetCountdownBeats() int {
	if c.CountdownBeats == nil {
		return 4
	}
	return *c.CountdownBeats
}

// GetCalibratedOffsetSec returns the calibrated_offset_sec value or the default.
func (c *TuningConfig) GetCalibratedOffsetSec() float64 {
	if c.CalibratedOffsetSec == nil {
		return 0
	}
	return *c.CalibratedOffsetSec
}
