package intake

import (
	"math"
	"testing"

	"github.com/alexanderzliu/guitarzero/internal/audio"
)

// identity song time: audio seconds == song seconds.
func identity(t float64) float64 { return t }

func newTestResolver(t *testing.T, cfg Config) *Resolver {
	t.Helper()
	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

func onset(ts float64) audio.OnsetEvent {
	return audio.OnsetEvent{TimestampSec: ts, RmsDb: -10}
}

func pitch(ts float64, midi int, clarity float64) audio.PitchSample {
	return audio.PitchSample{TimestampSec: ts, Midi: midi, Pitched: true, Clarity: clarity}
}

func unpitched(ts float64) audio.PitchSample {
	return audio.PitchSample{TimestampSec: ts, Clarity: 0}
}

func TestResolveTrustedLookahead(t *testing.T) {
	r := newTestResolver(t, Config{})

	r.AddOnset(onset(1.000))
	r.AddPitch(pitch(0.950, 40, 0.9)) // pre-onset: must be ignored
	r.AddPitch(pitch(1.050, 64, 0.8)) // post-onset, trusted

	got := r.Resolve(identity)
	if len(got) != 1 {
		t.Fatalf("resolved %d onsets, want 1", len(got))
	}
	if !got[0].Pitched || got[0].Midi != 64 {
		t.Errorf("resolved midi = %d (pitched=%v), want 64 from the post-onset sample", got[0].Midi, got[0].Pitched)
	}
	if got[0].OnsetSongTimeSec != 1.000 {
		t.Errorf("song time = %v, want 1.000", got[0].OnsetSongTimeSec)
	}
}

func TestResolvePrefersLookaheadOverEmbedded(t *testing.T) {
	r := newTestResolver(t, Config{})

	o := onset(1.000)
	o.Midi, o.Pitched, o.Clarity = 40, true, 0.9 // embedded hint says low E
	r.AddOnset(o)
	r.AddPitch(pitch(1.060, 64, 0.8)) // settled post-onset sample says E4

	got := r.Resolve(identity)
	if len(got) != 1 || got[0].Midi != 64 {
		t.Fatalf("resolved = %+v, want post-onset sample midi 64 over embedded 40", got)
	}
}

func TestResolveDefersUntilTrustedSampleArrives(t *testing.T) {
	r := newTestResolver(t, Config{})

	r.AddOnset(onset(1.000))
	r.AddPitch(unpitched(1.020)) // stream barely past the onset, nothing trusted yet

	if got := r.Resolve(identity); len(got) != 0 {
		t.Fatalf("resolved %d onsets, want deferred", len(got))
	}
	if r.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", r.PendingCount())
	}

	// The trusted sample arrives on a later pass.
	r.AddPitch(pitch(1.100, 57, 0.85))
	got := r.Resolve(identity)
	if len(got) != 1 || got[0].Midi != 57 {
		t.Fatalf("resolved = %+v, want midi 57 after deferral", got)
	}
	if r.PendingCount() != 0 {
		t.Errorf("pending = %d after resolution, want 0", r.PendingCount())
	}
}

func TestResolveFallbackEmbeddedMidi(t *testing.T) {
	r := newTestResolver(t, Config{})

	o := onset(1.000)
	o.Midi, o.Pitched, o.Clarity = 52, true, 0.7
	r.AddOnset(o)
	// Stream has advanced past the wait window with only junk samples.
	r.AddPitch(unpitched(1.100))
	r.AddPitch(unpitched(1.350))

	got := r.Resolve(identity)
	if len(got) != 1 || !got[0].Pitched || got[0].Midi != 52 {
		t.Fatalf("resolved = %+v, want embedded midi 52", got)
	}
}

func TestResolveFallbackLowClaritySample(t *testing.T) {
	r := newTestResolver(t, Config{})

	o := onset(1.000) // no embedded pitch
	r.AddOnset(o)
	r.AddPitch(pitch(1.080, 45, 0.3)) // present but untrusted
	r.AddPitch(unpitched(1.350))      // pushes the stream past the wait window

	got := r.Resolve(identity)
	if len(got) != 1 || !got[0].Pitched || got[0].Midi != 45 {
		t.Fatalf("resolved = %+v, want low-clarity fallback midi 45", got)
	}
}

func TestResolveFallbackTimingOnly(t *testing.T) {
	r := newTestResolver(t, Config{})

	r.AddOnset(onset(1.000))
	r.AddPitch(unpitched(1.350))

	got := r.Resolve(identity)
	if len(got) != 1 {
		t.Fatalf("resolved %d, want 1", len(got))
	}
	if got[0].Pitched {
		t.Errorf("resolved = %+v, want timing-only strum candidate", got[0])
	}
}

func TestResolveLookaheadBoundary(t *testing.T) {
	r := newTestResolver(t, Config{})

	r.AddOnset(onset(1.000))
	// Just beyond the 250ms lookahead: not usable as a trusted match, and
	// it pushes the stream past the 300ms wait window? No: 1.260 - 1.000
	// is inside the wait window, so the onset defers.
	r.AddPitch(pitch(1.260, 64, 0.9))

	if got := r.Resolve(identity); len(got) != 0 {
		t.Fatalf("resolved = %+v, want deferred (sample outside lookahead)", got)
	}

	// Past the wait window it falls back to the post-onset sample.
	r.AddPitch(unpitched(1.350))
	got := r.Resolve(identity)
	if len(got) != 1 || got[0].Midi != 64 {
		t.Fatalf("resolved = %+v, want fallback to midi 64", got)
	}
}

func TestResolveTwoOnsetsShareWindow(t *testing.T) {
	r := newTestResolver(t, Config{})

	// Two attacks 80ms apart contending for the trusted samples between
	// them. The older onset resolves first and consumes its sample; the
	// younger one must not reuse it.
	r.AddOnset(onset(1.000))
	r.AddOnset(onset(1.080))
	r.AddPitch(pitch(1.050, 40, 0.9))
	r.AddPitch(pitch(1.120, 45, 0.9))

	got := r.Resolve(identity)
	if len(got) != 1 {
		t.Fatalf("resolved %d, want 1 (younger onset defers)", len(got))
	}
	if got[0].Midi != 45 {
		t.Errorf("older onset midi = %d, want 45 (newest trusted sample)", got[0].Midi)
	}
	if r.PendingCount() != 1 {
		t.Fatalf("pending = %d, want the younger onset deferred", r.PendingCount())
	}

	// The younger onset picks up its own sample on the next pass.
	r.AddPitch(pitch(1.200, 47, 0.9))
	got = r.Resolve(identity)
	if len(got) != 1 || got[0].Midi != 47 {
		t.Fatalf("second pass resolved = %+v, want midi 47", got)
	}
}

func TestResolveAppliesCalibrationOffset(t *testing.T) {
	r := newTestResolver(t, Config{CalibratedOffsetSec: 0.040})

	r.AddOnset(onset(1.000))
	r.AddPitch(pitch(1.050, 64, 0.9))

	got := r.Resolve(identity)
	if len(got) != 1 {
		t.Fatalf("resolved %d, want 1", len(got))
	}
	if math.Abs(got[0].OnsetSongTimeSec-0.960) > 1e-9 {
		t.Errorf("song time = %v, want 0.960 (latency-compensated)", got[0].OnsetSongTimeSec)
	}
}

func TestBuffersAreBounded(t *testing.T) {
	r := newTestResolver(t, Config{MaxPendingOnsets: 4, PitchRingSize: 4})

	for i := 0; i < 10; i++ {
		r.AddOnset(onset(float64(i)))
		r.AddPitch(unpitched(float64(i)))
	}
	if r.PendingCount() != 4 {
		t.Errorf("pending = %d, want capped at 4", r.PendingCount())
	}
	if len(r.pitches) != 4 {
		t.Errorf("pitch ring = %d, want capped at 4", len(r.pitches))
	}
	// Oldest entries were dropped: the survivors are the freshest.
	if r.pending[0].TimestampSec != 6 {
		t.Errorf("oldest surviving onset at %v, want 6", r.pending[0].TimestampSec)
	}
}

func TestResetClearsEverything(t *testing.T) {
	r := newTestResolver(t, Config{})
	r.AddOnset(onset(1.0))
	r.AddPitch(pitch(1.1, 64, 0.9))
	r.Reset()

	if r.PendingCount() != 0 || len(r.pitches) != 0 {
		t.Error("Reset left buffered state behind")
	}
	if got := r.Resolve(identity); got != nil {
		t.Errorf("Resolve after Reset = %+v, want nil", got)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewResolver(Config{MaxLookaheadSec: -1}); err == nil {
		t.Error("accepted negative lookahead")
	}
	if _, err := NewResolver(Config{MinTrustedClarity: 2}); err == nil {
		t.Error("accepted clarity above 1")
	}
	if _, err := NewResolver(Config{MaxPendingOnsets: -5}); err == nil {
		t.Error("accepted negative capacity")
	}
}
