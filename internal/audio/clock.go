package audio

import "sync/atomic"

// SampleClock derives monotonic time from the audio device's own sample
// counter. It is the single time authority for the whole engine; no component
// may substitute wall-clock time for it.
//
// The audio goroutine advances it; any goroutine may read it.
type SampleClock struct {
	samples    atomic.Int64
	sampleRate float64
}

// NewSampleClock builds a clock for the given sample rate.
func NewSampleClock(sampleRate int) *SampleClock {
	return &SampleClock{sampleRate: float64(sampleRate)}
}

// Advance moves the clock forward by n processed samples.
func (c *SampleClock) Advance(n int) {
	c.samples.Add(int64(n))
}

// NowSec returns the device time in seconds since stream start.
func (c *SampleClock) NowSec() float64 {
	return float64(c.samples.Load()) / c.sampleRate
}

// Samples returns the raw sample count.
func (c *SampleClock) Samples() int64 { return c.samples.Load() }

// Reset rewinds the clock to zero. Only valid between audio streams, never
// while a session is running: within a stream the clock is monotonic.
func (c *SampleClock) Reset() { c.samples.Store(0) }
