// Package engine composes the transport clock, onset intake, and scoring
// judge into the per-frame game loop. Each Tick is a synchronous, bounded
// computation on a single goroutine: drain control commands, drain the audio
// event queue, advance the transport, resolve onsets, judge them, sweep
// misses, and publish a frame snapshot.
//
// "Waiting" for audio is expressed as finding nothing new to drain this
// frame, never as blocking.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexanderzliu/guitarzero/internal/audio"
	"github.com/alexanderzliu/guitarzero/internal/config"
	"github.com/alexanderzliu/guitarzero/internal/intake"
	"github.com/alexanderzliu/guitarzero/internal/monitoring"
	"github.com/alexanderzliu/guitarzero/internal/scoring"
	"github.com/alexanderzliu/guitarzero/internal/transport"
)

// VisibleNote is a schedule entry annotated for display: the verdict is nil
// while the note is still pending.
type VisibleNote struct {
	Note    scoring.ExpectedNote `json:"note"`
	Verdict *scoring.NoteVerdict `json:"verdict,omitempty"`
}

// FrameSnapshot is the engine's per-frame output for rendering and the API.
type FrameSnapshot struct {
	State          transport.State       `json:"-"`
	StateName      string                `json:"state"`
	SongTimeSec    float64               `json:"song_time_sec"`
	CountdownValue int                   `json:"countdown_value"`
	BeatActive     bool                  `json:"beat_active"`
	Speed          float64               `json:"speed"`
	LoopCount      int                   `json:"loop_count"`
	Score          scoring.ScoreState    `json:"score"`
	LatestVerdict  *scoring.VerdictEvent `json:"latest_verdict,omitempty"`
	VisibleNotes   []VisibleNote         `json:"visible_notes"`
	Level          audio.Level           `json:"level"`
	Pitch          audio.PitchSample     `json:"pitch"`
	DroppedEvents  int64                 `json:"dropped_events"`
}

// SongConfig describes the song under play.
type SongConfig struct {
	DurationSec     float64
	BeatDurationSec float64 // from the song's initial tempo
}

// visibleBehindSec is how far behind the playhead resolved notes remain
// visible for hit/miss animation.
const visibleBehindSec = 1.0

// defaultLookAheadSec is the forward visibility window until SetLookAhead
// overrides it.
const defaultLookAheadSec = 4.0

type commandKind int

const (
	cmdStart commandKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdSetSpeed
	cmdSetLoop
	cmdSetLookAhead
)

type command struct {
	kind      commandKind
	speed     float64
	loop      *transport.LoopConfig
	lookAhead float64
}

// Engine owns the frame-domain state bundle. Control methods may be called
// from other goroutines; they only enqueue commands, which the next Tick
// applies. All mutation is confined to Tick.
type Engine struct {
	queue     *audio.EventQueue
	clock     transport.AudioClock
	transport *transport.Transport
	resolver  *intake.Resolver
	judge     *scoring.Judge

	lookAheadSec  float64
	latestVerdict *scoring.VerdictEvent
	latestLevel   audio.Level
	latestPitch   audio.PitchSample

	cmds chan command

	// OnFinish, if set, receives the finalized verdict list and score when
	// playback finishes naturally or is stopped mid-song. Called on the
	// frame goroutine.
	OnFinish func(history []scoring.VerdictEvent, final scoring.ScoreState)

	mu       sync.RWMutex
	snapshot FrameSnapshot
}

// New wires an engine from a validated config, the song's expected-note
// schedule, and the audio pipeline's event queue and clock.
func New(cfg *config.TuningConfig, song SongConfig, notes []scoring.ExpectedNote,
	queue *audio.EventQueue, clock transport.AudioClock) (*Engine, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	tr, err := transport.New(transport.Config{
		SongDurationSec: song.DurationSec,
		BeatDurationSec: song.BeatDurationSec,
		CountdownBeats:  cfg.GetCountdownBeats(),
	})
	if err != nil {
		return nil, err
	}
	res, err := intake.NewResolver(intake.Config{
		MaxLookaheadSec:     cfg.GetMaxLookaheadSec(),
		MaxWaitSec:          cfg.GetMaxWaitSec(),
		MinTrustedClarity:   cfg.GetMinTrustedClarity(),
		MaxPendingOnsets:    cfg.GetMaxPendingOnsets(),
		PitchRingSize:       cfg.GetPitchRingSize(),
		CalibratedOffsetSec: cfg.GetCalibratedOffsetSec(),
	})
	if err != nil {
		return nil, err
	}
	judge, err := scoring.NewJudge(notes, scoring.Tolerances{
		PerfectMs:               cfg.GetPerfectMs(),
		GoodMs:                  cfg.GetGoodMs(),
		OkMs:                    cfg.GetOkMs(),
		PitchToleranceSemitones: cfg.GetPitchToleranceSemitones(),
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		queue:        queue,
		clock:        clock,
		transport:    tr,
		resolver:     res,
		judge:        judge,
		lookAheadSec: defaultLookAheadSec,
		cmds:         make(chan command, 16),
	}, nil
}

// Start requests a session start (countdown) on the next frame.
func (e *Engine) Start() { e.enqueue(command{kind: cmdStart}) }

// Pause requests a pause on the next frame.
func (e *Engine) Pause() { e.enqueue(command{kind: cmdPause}) }

// Resume requests a resume on the next frame.
func (e *Engine) Resume() { e.enqueue(command{kind: cmdResume}) }

// Stop requests a stop on the next frame, finalizing any in-progress
// session.
func (e *Engine) Stop() { e.enqueue(command{kind: cmdStop}) }

// SetSpeed requests a playback speed change (clamped to 0.25-2.0).
func (e *Engine) SetSpeed(speed float64) { e.enqueue(command{kind: cmdSetSpeed, speed: speed}) }

// SetLoop requests a practice-section loop; nil clears it.
func (e *Engine) SetLoop(loop *transport.LoopConfig) { e.enqueue(command{kind: cmdSetLoop, loop: loop}) }

// SetLookAhead requests a new forward visibility window in seconds.
func (e *Engine) SetLookAhead(sec float64) {
	e.enqueue(command{kind: cmdSetLookAhead, lookAhead: sec})
}

func (e *Engine) enqueue(c command) {
	select {
	case e.cmds <- c:
	default:
		monitoring.Logf("engine: command queue full, dropping %d", c.kind)
	}
}

// Snapshot returns the most recently published frame snapshot. Safe from any
// goroutine.
func (e *Engine) Snapshot() FrameSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// Run ticks the engine at the given frame interval until the context is
// cancelled. Cancellation clears the bounded intake buffers so no stale
// state leaks into a later session.
func (e *Engine) Run(ctx context.Context, frameInterval time.Duration) {
	if frameInterval <= 0 {
		frameInterval = time.Second / 60
	}
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.resolver.Reset()
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Tick advances the engine one frame and returns the published snapshot.
func (e *Engine) Tick() FrameSnapshot {
	now := e.clock.NowSec()
	e.applyCommands(now)
	e.drainEvents()

	snap := e.transport.Tick(now)

	if snap.LoopRestarted {
		// New segment: stale onsets and verdicts must not carry over.
		e.resolver.Reset()
		e.judge.Reset()
		e.latestVerdict = nil
		monitoring.Debugf("engine: loop restart #%d at song time %.3f", snap.LoopCount, snap.SongTimeSec)
	}

	if snap.State == transport.Playing {
		detected := e.resolver.Resolve(e.transport.SongTimeAt)
		for _, d := range detected {
			for _, ev := range e.judge.HandleOnset(d) {
				ev := ev
				e.latestVerdict = &ev
			}
		}
		for _, ev := range e.judge.SweepMisses(snap.SongTimeSec) {
			ev := ev
			e.latestVerdict = &ev
		}
	}

	if snap.JustFinished {
		e.finishSession(snap.SongTimeSec)
	}

	frame := e.buildFrame(snap)
	e.mu.Lock()
	e.snapshot = frame
	e.mu.Unlock()
	return frame
}

func (e *Engine) applyCommands(now float64) {
	for {
		select {
		case c := <-e.cmds:
			e.applyCommand(now, c)
		default:
			return
		}
	}
}

func (e *Engine) applyCommand(now float64, c command) {
	switch c.kind {
	case cmdStart:
		e.resolver.Reset()
		e.judge.Reset()
		e.latestVerdict = nil
		e.transport.Start(now)
	case cmdPause:
		e.transport.Pause(now)
	case cmdResume:
		// Intake buffers may hold events from before the pause; drop them
		// rather than attribute them to the resumed segment.
		e.resolver.Reset()
		e.transport.Resume(now)
	case cmdStop:
		st := e.transport.State()
		if st == transport.Playing || st == transport.Paused {
			e.finishSession(e.transport.SongTimeNow(now))
		}
		e.resolver.Reset()
		e.transport.Stop()
	case cmdSetSpeed:
		e.transport.SetSpeed(now, c.speed)
	case cmdSetLoop:
		e.transport.SetLoop(c.loop)
	case cmdSetLookAhead:
		if c.lookAhead > 0 {
			e.lookAheadSec = c.lookAhead
		}
	}
}

func (e *Engine) drainEvents() {
	if e.queue == nil {
		return
	}
	e.queue.Drain(func(ev audio.Event) {
		switch ev.Kind {
		case audio.EventPitch:
			e.latestPitch = ev.Pitch
			e.resolver.AddPitch(ev.Pitch)
		case audio.EventOnset:
			e.resolver.AddOnset(ev.Onset)
		case audio.EventLevel:
			e.latestLevel = ev.Level
		}
	})
}

func (e *Engine) finishSession(songTimeSec float64) {
	history := e.judge.Finalize(songTimeSec)
	if e.OnFinish != nil {
		e.OnFinish(history, e.judge.State())
	}
}

func (e *Engine) buildFrame(snap transport.Snapshot) FrameSnapshot {
	frame := FrameSnapshot{
		State:          snap.State,
		StateName:      snap.State.String(),
		SongTimeSec:    snap.SongTimeSec,
		CountdownValue: snap.CountdownValue,
		BeatActive:     snap.BeatActive,
		Speed:          e.transport.Speed(),
		LoopCount:      snap.LoopCount,
		Score:          e.judge.State(),
		LatestVerdict:  e.latestVerdict,
		Level:          e.latestLevel,
		Pitch:          e.latestPitch,
	}
	if e.queue != nil {
		frame.DroppedEvents = e.queue.Dropped()
	}

	lo := snap.SongTimeSec - visibleBehindSec
	hi := snap.SongTimeSec + e.lookAheadSec
	for _, n := range e.judge.Notes() {
		if n.TimeSec < lo {
			continue
		}
		if n.TimeSec > hi {
			break
		}
		vn := VisibleNote{Note: n}
		if v, ok := e.judge.VerdictFor(n); ok {
			v := v
			vn.Verdict = &v
		}
		frame.VisibleNotes = append(frame.VisibleNotes, vn)
	}
	return frame
}
