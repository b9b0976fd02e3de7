package audio

import (
	"fmt"

	"github.com/alexanderzliu/guitarzero/internal/config"
	"github.com/alexanderzliu/guitarzero/internal/dsp"
	"github.com/alexanderzliu/guitarzero/internal/units"
)

// Pipeline drives the per-window analysis chain on the audio goroutine: it
// accumulates incoming sample blocks into overlapping windows, runs the pitch
// estimator and onset detector on each, and publishes results on the event
// queue.
//
// Onset events are published as soon as they are detected; pitch and level
// updates are throttled to a fixed output rate independent of the hop rate so
// downstream message volume stays bounded without affecting onset latency.
type Pipeline struct {
	acc   *FrameAccumulator
	yin   *dsp.Yin
	onset *dsp.OnsetDetector
	queue *EventQueue
	clock *SampleClock

	frame       []float64
	emitGapSec  float64
	lastEmitSec float64
}

// NewPipeline builds the analysis chain from a validated tuning config.
func NewPipeline(cfg *config.TuningConfig) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.EmptyTuningConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}

	acc, err := NewFrameAccumulator(cfg.GetWindowSize(), cfg.GetHopSize())
	if err != nil {
		return nil, err
	}
	yin, err := dsp.NewYin(dsp.YinConfig{
		SampleRate: cfg.GetSampleRate(),
		WindowSize: cfg.GetWindowSize(),
		Threshold:  cfg.GetYinThreshold(),
		MinFreqHz:  cfg.GetMinFreqHz(),
		MaxFreqHz:  cfg.GetMaxFreqHz(),
	})
	if err != nil {
		return nil, err
	}
	onset, err := dsp.NewOnsetDetector(dsp.OnsetConfig{
		SampleRate:  cfg.GetSampleRate(),
		HopSize:     cfg.GetHopSize(),
		ThresholdDb: cfg.GetOnsetThresholdDb(),
		RiseDb:      cfg.GetOnsetRiseDb(),
		DebounceSec: cfg.GetDebounceSec(),
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		acc:         acc,
		yin:         yin,
		onset:       onset,
		queue:       NewEventQueue(256),
		clock:       NewSampleClock(cfg.GetSampleRate()),
		frame:       make([]float64, cfg.GetWindowSize()),
		emitGapSec:  1.0 / cfg.GetOutputRate(),
		lastEmitSec: -1,
	}, nil
}

// Events returns the outbound event queue. The frame loop is its only
// consumer.
func (p *Pipeline) Events() *EventQueue { return p.queue }

// Clock returns the sample-counter clock advanced by this pipeline.
func (p *Pipeline) Clock() *SampleClock { return p.clock }

// ProcessBlock consumes one block of device samples, analysing every window
// that becomes ready. It never blocks and allocates nothing in steady state.
func (p *Pipeline) ProcessBlock(samples []float64) {
	p.acc.Write(samples)
	p.clock.Advance(len(samples))

	for p.acc.FrameReady() {
		if err := p.acc.Frame(p.frame); err != nil {
			return
		}
		p.analyseWindow()
	}
}

func (p *Pipeline) analyseWindow() {
	rms := dsp.RMS(p.frame)
	rmsDb := units.LinearToDb(rms)
	peakDb := units.LinearToDb(dsp.Peak(p.frame))

	pitch := p.yin.Detect(p.frame)
	fired := p.onset.Process(rmsDb)
	now := p.onset.CurrentTimeSec()

	midi := -1
	if pitch.Pitched {
		midi = units.FreqToMidi(pitch.FrequencyHz)
	}

	if fired {
		// Latency-critical: onsets bypass the output-rate throttle.
		p.queue.Push(Event{Kind: EventOnset, Onset: OnsetEvent{
			TimestampSec: now,
			RmsDb:        rmsDb,
			Midi:         midi,
			Pitched:      pitch.Pitched,
			Clarity:      pitch.Clarity,
		}})
	}

	if p.lastEmitSec < 0 || now-p.lastEmitSec >= p.emitGapSec {
		p.lastEmitSec = now
		p.queue.Push(Event{Kind: EventPitch, Pitch: PitchSample{
			TimestampSec: now,
			FrequencyHz:  pitch.FrequencyHz,
			Midi:         midi,
			Pitched:      pitch.Pitched,
			Clarity:      pitch.Clarity,
			RmsDb:        rmsDb,
		}})
		p.queue.Push(Event{Kind: EventLevel, Level: Level{
			TimestampSec: now,
			RmsDb:        rmsDb,
			PeakDb:       peakDb,
		}})
	}
}

// Reset clears all pipeline state for a brand-new audio stream, rewinding
// the clock to zero. Never call this mid-session: within a stream the clock
// is monotonic and transport discontinuities are handled downstream.
func (p *Pipeline) Reset() {
	p.acc.Reset()
	p.onset.Reset()
	p.clock.Reset()
	p.lastEmitSec = -1
}
