// Package audio contains the real-time analysis pipeline: frame accumulation,
// per-window pitch/onset analysis, the sample-counter clock, and the bounded
// event queue that carries results out of the audio domain.
//
// Everything in this package is driven from the audio callback goroutine and
// must stay allocation-free and lock-free in steady state; the only shared
// structure is the single-producer/single-consumer EventQueue.
package audio

import "fmt"

// FrameAccumulator collects an incoming sample stream into overlapping
// fixed-size analysis windows. The internal ring holds twice the window
// length so a full window can always be read back safely while new samples
// arrive.
//
// Callers must check FrameReady before Frame; extracting an unready frame is
// a logic error (the window content is undefined).
type FrameAccumulator struct {
	buf        []float64
	windowSize int
	hopSize    int

	written   int64 // total samples ever written
	extracted int64 // total samples consumed by frame extraction
}

// NewFrameAccumulator builds an accumulator for the given window and hop
// sizes. Hop must not exceed window.
func NewFrameAccumulator(windowSize, hopSize int) (*FrameAccumulator, error) {
	if windowSize <= 0 || hopSize <= 0 {
		return nil, fmt.Errorf("audio: window and hop must be positive, got %d / %d", windowSize, hopSize)
	}
	if hopSize > windowSize {
		return nil, fmt.Errorf("audio: hop %d must not exceed window %d", hopSize, windowSize)
	}
	return &FrameAccumulator{
		buf:        make([]float64, 2*windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
	}, nil
}

// Write appends samples to the ring, wrapping as needed.
func (a *FrameAccumulator) Write(samples []float64) {
	n := int64(len(a.buf))
	for _, s := range samples {
		a.buf[a.written%n] = s
		a.written++
	}
}

// FrameReady reports whether at least one full window exists and hopSize new
// samples have arrived since the last extraction.
func (a *FrameAccumulator) FrameReady() bool {
	return a.written >= int64(a.windowSize) &&
		a.written-a.extracted >= int64(a.hopSize)
}

// Frame copies the most recent windowSize samples into out, which must be
// exactly windowSize long, and advances the extraction marker by one hop.
func (a *FrameAccumulator) Frame(out []float64) error {
	if len(out) != a.windowSize {
		return fmt.Errorf("audio: frame buffer length %d, want %d", len(out), a.windowSize)
	}
	n := int64(len(a.buf))
	start := a.written - int64(a.windowSize)
	for i := range out {
		out[i] = a.buf[(start+int64(i))%n]
	}
	a.extracted += int64(a.hopSize)
	if a.extracted > a.written {
		a.extracted = a.written
	}
	return nil
}

// SamplesWritten returns the total number of samples ever written.
func (a *FrameAccumulator) SamplesWritten() int64 { return a.written }

// Reset zeroes all state for reuse across sessions.
func (a *FrameAccumulator) Reset() {
	for i := range a.buf {
		a.buf[i] = 0
	}
	a.written = 0
	a.extracted = 0
}
