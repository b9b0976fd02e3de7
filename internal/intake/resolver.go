// Package intake converts raw, loosely-timed onset events into resolved
// DetectedOnsets carrying a best-effort pitch and a song-time position,
// compensating for calibrated input latency.
//
// The resolver runs entirely on the frame-loop goroutine. Its only state is
// two bounded buffers that must be cleared on every transport discontinuity
// so stale events are never attributed to the new segment.
package intake

import (
	"fmt"

	"github.com/alexanderzliu/guitarzero/internal/audio"
)

// DetectedOnset is a resolved attack: an onset paired with the pitch that
// best explains it, positioned in song time. Midi is only meaningful when
// Pitched is true; an unpitched onset is a timing-only chord/strum candidate.
type DetectedOnset struct {
	Midi             int
	Pitched          bool
	OnsetSongTimeSec float64
	Source           audio.OnsetEvent
}

// Config tunes the resolver. Zero values take defaults.
type Config struct {
	MaxLookaheadSec     float64 // trusted pitch search window after an onset (default 0.250)
	MaxWaitSec          float64 // how long to defer resolution hoping for a trusted sample (default 0.300)
	MinTrustedClarity   float64 // clarity floor for a trusted pitch sample (default 0.6)
	MaxPendingOnsets    int     // unresolved onset FIFO capacity (default 50)
	PitchRingSize       int     // recent pitch-sample ring capacity (default 120)
	CalibratedOffsetSec float64 // input latency to subtract from onset timestamps
}

// Resolver merges the onset stream with the pitch-sample stream. Pitch
// detection needs most of a window of the new note before it locks on, so
// the correct pitch sample arrives slightly after the attack: the resolver
// searches forward in time from each onset, never backward, and defers
// briefly when the trusted sample has not arrived yet.
type Resolver struct {
	cfg Config

	pending []audio.OnsetEvent // unresolved onsets, oldest first
	pitches []audio.PitchSample
	scratch []audio.OnsetEvent // reused backing for the retained-pending compaction
}

// NewResolver builds a Resolver, applying defaults for zero-valued fields.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.MaxLookaheadSec == 0 {
		cfg.MaxLookaheadSec = 0.250
	}
	if cfg.MaxWaitSec == 0 {
		cfg.MaxWaitSec = 0.300
	}
	if cfg.MinTrustedClarity == 0 {
		cfg.MinTrustedClarity = 0.6
	}
	if cfg.MaxPendingOnsets == 0 {
		cfg.MaxPendingOnsets = 50
	}
	if cfg.PitchRingSize == 0 {
		cfg.PitchRingSize = 120
	}

	if cfg.MaxLookaheadSec < 0 || cfg.MaxWaitSec < 0 {
		return nil, fmt.Errorf("intake: lookahead and wait must be non-negative, got %f / %f",
			cfg.MaxLookaheadSec, cfg.MaxWaitSec)
	}
	if cfg.MinTrustedClarity < 0 || cfg.MinTrustedClarity > 1 {
		return nil, fmt.Errorf("intake: trusted clarity must be in [0,1], got %f", cfg.MinTrustedClarity)
	}
	if cfg.MaxPendingOnsets < 0 || cfg.PitchRingSize < 0 {
		return nil, fmt.Errorf("intake: buffer capacities must be positive, got %d / %d",
			cfg.MaxPendingOnsets, cfg.PitchRingSize)
	}

	return &Resolver{
		cfg:     cfg,
		pending: make([]audio.OnsetEvent, 0, cfg.MaxPendingOnsets),
		pitches: make([]audio.PitchSample, 0, cfg.PitchRingSize),
		scratch: make([]audio.OnsetEvent, 0, cfg.MaxPendingOnsets),
	}, nil
}

// AddOnset queues a raw onset for resolution. When the FIFO is full the
// oldest entry is dropped: freshness beats completeness.
func (r *Resolver) AddOnset(o audio.OnsetEvent) {
	if len(r.pending) >= r.cfg.MaxPendingOnsets {
		copy(r.pending, r.pending[1:])
		r.pending = r.pending[:len(r.pending)-1]
	}
	r.pending = append(r.pending, o)
}

// AddPitch appends a pitch sample to the recent-sample ring, dropping the
// oldest when full. Samples arrive time-ordered from the single pipeline.
func (r *Resolver) AddPitch(p audio.PitchSample) {
	if len(r.pitches) >= r.cfg.PitchRingSize {
		copy(r.pitches, r.pitches[1:])
		r.pitches = r.pitches[:len(r.pitches)-1]
	}
	r.pitches = append(r.pitches, p)
}

// PendingCount returns the number of onsets still awaiting resolution.
func (r *Resolver) PendingCount() int { return len(r.pending) }

// Resolve runs one intake pass: each queued onset either resolves to a
// DetectedOnset or stays queued for the next pass. songTimeAt converts an
// audio-clock timestamp (already latency-compensated) to song time.
//
// Within one pass a trusted pitch sample is consumed by at most one onset,
// oldest onset first; two attacks inside one lookahead window therefore get
// distinct samples rather than sharing the first one.
func (r *Resolver) Resolve(songTimeAt func(audioTimeSec float64) float64) []DetectedOnset {
	if len(r.pending) == 0 {
		return nil
	}

	var resolved []DetectedOnset
	retained := r.scratch[:0]
	var newestPitchSec float64
	if n := len(r.pitches); n > 0 {
		newestPitchSec = r.pitches[n-1].TimestampSec
	}
	consumed := make(map[int]bool, 2)

	for _, onset := range r.pending {
		if idx, ok := r.findTrustedPitch(onset, consumed); ok {
			consumed[idx] = true
			p := r.pitches[idx]
			resolved = append(resolved, r.emit(onset, p.Midi, true, songTimeAt))
			continue
		}

		// No trusted sample yet. If the stream has not advanced past the
		// wait window the right sample may still be coming: defer.
		if newestPitchSec-onset.TimestampSec < r.cfg.MaxWaitSec {
			retained = append(retained, onset)
			continue
		}

		// Wait window elapsed: fall back, in order, to the onset's own
		// embedded pitch, then any post-onset sample regardless of
		// clarity, then a timing-only strum candidate.
		switch {
		case onset.Pitched && onset.Clarity >= r.cfg.MinTrustedClarity:
			resolved = append(resolved, r.emit(onset, onset.Midi, true, songTimeAt))
		default:
			if midi, ok := r.findAnyPostOnsetPitch(onset); ok {
				resolved = append(resolved, r.emit(onset, midi, true, songTimeAt))
			} else {
				resolved = append(resolved, r.emit(onset, -1, false, songTimeAt))
			}
		}
	}

	// Swap buffers: the retained set becomes the new pending queue and the
	// old backing array is reused for the next pass.
	r.pending, r.scratch = retained, r.pending[:0]
	return resolved
}

// findTrustedPitch scans newest-to-oldest for the first unconsumed sample at
// or after the onset, within the lookahead window, with a present pitch and
// trusted clarity.
func (r *Resolver) findTrustedPitch(onset audio.OnsetEvent, consumed map[int]bool) (int, bool) {
	for i := len(r.pitches) - 1; i >= 0; i-- {
		p := r.pitches[i]
		if p.TimestampSec < onset.TimestampSec {
			break // older samples only get older
		}
		if consumed[i] {
			continue
		}
		if p.TimestampSec-onset.TimestampSec <= r.cfg.MaxLookaheadSec &&
			p.Pitched && p.Clarity >= r.cfg.MinTrustedClarity {
			return i, true
		}
	}
	return 0, false
}

// findAnyPostOnsetPitch returns the earliest pitched sample at or after the
// onset, without any clarity requirement.
func (r *Resolver) findAnyPostOnsetPitch(onset audio.OnsetEvent) (int, bool) {
	for _, p := range r.pitches {
		if p.TimestampSec >= onset.TimestampSec && p.Pitched {
			return p.Midi, true
		}
	}
	return 0, false
}

func (r *Resolver) emit(onset audio.OnsetEvent, midi int, pitched bool, songTimeAt func(float64) float64) DetectedOnset {
	return DetectedOnset{
		Midi:             midi,
		Pitched:          pitched,
		OnsetSongTimeSec: songTimeAt(onset.TimestampSec - r.cfg.CalibratedOffsetSec),
		Source:           onset,
	}
}

// Reset clears both buffers. Called on every transport discontinuity (start,
// stop, resume, loop restart).
func (r *Resolver) Reset() {
	r.pending = r.pending[:0]
	r.pitches = r.pitches[:0]
}
