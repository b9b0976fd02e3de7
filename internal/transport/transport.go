// Package transport derives logical song time from the audio device clock
// and manages the idle/countdown/playing/paused/finished lifecycle, including
// practice-mode section looping.
//
// The state machine advances via a cooperative per-frame Tick; nothing here
// blocks or runs concurrently. All time inputs come from an AudioClock, never
// from the wall clock.
package transport

import (
	"fmt"
	"math"

	"github.com/alexanderzliu/guitarzero/internal/monitoring"
)

// AudioClock is the single time authority: monotonically non-decreasing
// seconds derived from the audio device's own sample counter.
type AudioClock interface {
	NowSec() float64
}

// ManualClock is a hand-advanced AudioClock for tests and offline replay.
type ManualClock struct {
	Sec float64
}

// NowSec returns the manually set time.
func (c *ManualClock) NowSec() float64 { return c.Sec }

// Set moves the clock to an absolute time.
func (c *ManualClock) Set(sec float64) { c.Sec = sec }

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(d float64) { c.Sec += d }

// State is the transport lifecycle state.
type State int

const (
	Idle State = iota
	Countdown
	Playing
	Paused
	Finished
)

// String returns the lowercase state name used in logs and the API.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Countdown:
		return "countdown"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LoopConfig restricts playback to a practice section. Song time wraps from
// EndSec back to StartSec.
type LoopConfig struct {
	SectionID string
	StartSec  float64
	EndSec    float64
}

// Speed limits accepted by SetSpeed.
const (
	MinSpeed = 0.25
	MaxSpeed = 2.0
)

// beatActiveFraction is the leading slice of each countdown beat flagged as
// "active" for UI/metronome cueing.
const beatActiveFraction = 0.15

// Config sets up a Transport for one song.
type Config struct {
	SongDurationSec float64
	BeatDurationSec float64 // countdown beat period, from the song's initial tempo
	CountdownBeats  int     // default 4
	Speed           float64 // default 1.0
}

// Snapshot is the per-frame transport output.
type Snapshot struct {
	State          State
	SongTimeSec    float64
	CountdownValue int  // beats remaining, 0 outside Countdown
	BeatActive     bool // countdown beat flash window
	LoopCount      int
	LoopRestarted  bool // true on the exact frame a loop wrapped
	JustFinished   bool // true on the exact frame playback finished
}

// Transport is the clock/state machine. One instance per session; all calls
// happen on the single frame-loop goroutine.
type Transport struct {
	songDurationSec float64
	beatDurationSec float64
	countdownBeats  int
	speed           float64
	loop            *LoopConfig

	state             State
	playStartSec      float64 // audio time at which songTime == 0 (speed-scaled)
	countdownStartSec float64
	pausedAtSec       float64
	pausedState       State // Countdown or Playing
	loopCount         int
}

// New builds a Transport in the Idle state.
func New(cfg Config) (*Transport, error) {
	if cfg.CountdownBeats == 0 {
		cfg.CountdownBeats = 4
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.SongDurationSec <= 0 {
		return nil, fmt.Errorf("transport: song duration must be positive, got %f", cfg.SongDurationSec)
	}
	if cfg.BeatDurationSec <= 0 {
		return nil, fmt.Errorf("transport: beat duration must be positive, got %f", cfg.BeatDurationSec)
	}
	if cfg.CountdownBeats < 0 {
		return nil, fmt.Errorf("transport: countdown beats must be non-negative, got %d", cfg.CountdownBeats)
	}
	if cfg.Speed < MinSpeed || cfg.Speed > MaxSpeed {
		return nil, fmt.Errorf("transport: speed %f outside [%f, %f]", cfg.Speed, MinSpeed, MaxSpeed)
	}
	return &Transport{
		songDurationSec: cfg.SongDurationSec,
		beatDurationSec: cfg.BeatDurationSec,
		countdownBeats:  cfg.CountdownBeats,
		speed:           cfg.Speed,
		state:           Idle,
	}, nil
}

// State returns the current lifecycle state.
func (t *Transport) State() State { return t.state }

// Speed returns the current playback speed.
func (t *Transport) Speed() float64 { return t.speed }

// LoopCount returns how many times the active loop has wrapped.
func (t *Transport) LoopCount() int { return t.loopCount }

// Loop returns the active loop config, or nil.
func (t *Transport) Loop() *LoopConfig { return t.loop }

// SongTimeAt converts an audio-clock timestamp to song time under the
// current play anchor and speed. Only meaningful in Countdown/Playing/Paused.
func (t *Transport) SongTimeAt(audioTimeSec float64) float64 {
	return (audioTimeSec - t.playStartSec) * t.speed
}

// loopStart returns where playback begins: the loop start, or 0.
func (t *Transport) loopStart() float64 {
	if t.loop != nil {
		return t.loop.StartSec
	}
	return 0
}

// anchorAt recomputes the play anchor so song time equals target at the
// given audio time, keeping song time continuous across transitions.
func (t *Transport) anchorAt(audioTimeSec, targetSongTimeSec float64) {
	t.playStartSec = audioTimeSec - targetSongTimeSec/t.speed
}

// Start begins the countdown. Valid from Idle or Finished; a no-op elsewhere.
func (t *Transport) Start(audioTimeSec float64) {
	if t.state != Idle && t.state != Finished {
		return
	}
	t.state = Countdown
	t.countdownStartSec = audioTimeSec
	t.loopCount = 0
	// Anchor now so SongTimeAt is defined during the countdown; it is
	// re-anchored at the countdown-to-playing transition.
	t.anchorAt(audioTimeSec, t.loopStart())
}

// Pause freezes the logical clock. Valid during Countdown or Playing.
func (t *Transport) Pause(audioTimeSec float64) {
	if t.state != Countdown && t.state != Playing {
		return
	}
	t.pausedAtSec = audioTimeSec
	t.pausedState = t.state
	t.state = Paused
}

// Resume shifts the clock anchors forward by the paused duration so song
// time is unaffected, then returns to whichever of Countdown/Playing was
// active when paused.
func (t *Transport) Resume(audioTimeSec float64) {
	if t.state != Paused {
		return
	}
	elapsed := audioTimeSec - t.pausedAtSec
	t.playStartSec += elapsed
	t.countdownStartSec += elapsed
	t.state = t.pausedState
}

// Stop returns the transport to Idle.
func (t *Transport) Stop() {
	t.state = Idle
	t.loopCount = 0
}

// SetSpeed changes playback speed, clamped to [MinSpeed, MaxSpeed], and
// re-anchors so the current song position is preserved.
func (t *Transport) SetSpeed(audioTimeSec, speed float64) {
	speed = math.Min(math.Max(speed, MinSpeed), MaxSpeed)
	if t.state == Paused {
		// The logical clock is frozen at the pause moment; anchoring
		// against the live audio clock would smear the paused duration
		// into the song position.
		audioTimeSec = t.pausedAtSec
	}
	current := t.SongTimeAt(audioTimeSec)
	t.speed = speed
	t.anchorAt(audioTimeSec, current)
}

// SongTimeNow returns the song position at the given audio time, honouring
// the frozen clock while Paused.
func (t *Transport) SongTimeNow(audioTimeSec float64) float64 {
	if t.state == Paused {
		if t.pausedState == Countdown {
			return t.loopStart()
		}
		return t.SongTimeAt(t.pausedAtSec)
	}
	return t.SongTimeAt(audioTimeSec)
}

// SetLoop installs or clears (nil) a practice-section loop. When installed
// while playing outside the section, playback continues until the section
// end check wraps it in.
func (t *Transport) SetLoop(loop *LoopConfig) {
	t.loop = loop
	t.loopCount = 0
}

// Tick advances the state machine one display frame. It reads the audio time
// once, performs at most one state transition, and returns the snapshot for
// this frame. The caller stops ticking once Finished.
func (t *Transport) Tick(audioTimeSec float64) Snapshot {
	switch t.state {
	case Idle:
		return Snapshot{State: Idle, SongTimeSec: t.loopStart()}

	case Finished:
		return Snapshot{State: Finished, SongTimeSec: t.songDurationSec}

	case Paused:
		// Frozen: report the position at the moment of pausing.
		snap := Snapshot{State: Paused, SongTimeSec: t.SongTimeAt(t.pausedAtSec)}
		if t.pausedState == Countdown {
			snap.SongTimeSec = t.loopStart()
			snap.CountdownValue = t.countdownValueAt(t.pausedAtSec)
		}
		return snap

	case Countdown:
		return t.tickCountdown(audioTimeSec)

	case Playing:
		return t.tickPlaying(audioTimeSec)
	}
	return Snapshot{State: t.state}
}

func (t *Transport) countdownValueAt(audioTimeSec float64) int {
	elapsed := audioTimeSec - t.countdownStartSec
	remaining := t.countdownBeats - int(elapsed/t.beatDurationSec)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (t *Transport) tickCountdown(audioTimeSec float64) Snapshot {
	elapsed := audioTimeSec - t.countdownStartSec
	total := float64(t.countdownBeats) * t.beatDurationSec

	if elapsed >= total {
		// Countdown complete: song time starts at the loop start.
		t.state = Playing
		t.anchorAt(audioTimeSec, t.loopStart())
		return t.tickPlaying(audioTimeSec)
	}

	beatPos := math.Mod(elapsed, t.beatDurationSec)
	return Snapshot{
		State:          Countdown,
		SongTimeSec:    t.loopStart(),
		CountdownValue: t.countdownValueAt(audioTimeSec),
		BeatActive:     beatPos < beatActiveFraction*t.beatDurationSec,
	}
}

func (t *Transport) tickPlaying(audioTimeSec float64) Snapshot {
	songTime := t.SongTimeAt(audioTimeSec)
	if songTime < 0 {
		// Clock discontinuities must never produce negative song time;
		// seeing one means an anchor update was missed.
		monitoring.Logf("transport: negative song time %.6f at audio time %.6f", songTime, audioTimeSec)
		songTime = 0
	}

	if t.loop != nil && songTime >= t.loop.EndSec {
		// Snap back to the section start and report the wrap so the
		// engine can reset scoring and intake state.
		t.anchorAt(audioTimeSec, t.loop.StartSec)
		t.loopCount++
		return Snapshot{
			State:         Playing,
			SongTimeSec:   t.loop.StartSec,
			LoopCount:     t.loopCount,
			LoopRestarted: true,
		}
	}

	if t.loop == nil && songTime >= t.songDurationSec {
		t.state = Finished
		return Snapshot{
			State:        Finished,
			SongTimeSec:  t.songDurationSec,
			JustFinished: true,
		}
	}

	return Snapshot{State: Playing, SongTimeSec: songTime, LoopCount: t.loopCount}
}
