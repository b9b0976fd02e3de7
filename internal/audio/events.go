package audio

import "sync/atomic"

// PitchSample is one throttled pitch/level observation. Midi and FrequencyHz
// are only meaningful when Pitched is true.
type PitchSample struct {
	TimestampSec float64
	FrequencyHz  float64
	Midi         int
	Pitched      bool
	Clarity      float64
	RmsDb        float64
}

// OnsetEvent marks a detected note attack. It carries the pitch estimate of
// the same analysis window as a best-effort hint; the intake resolver usually
// prefers a slightly later, more settled pitch sample.
type OnsetEvent struct {
	TimestampSec float64
	RmsDb        float64
	Midi         int
	Pitched      bool
	Clarity      float64
}

// Level is a throttled loudness observation for meters.
type Level struct {
	TimestampSec float64
	RmsDb        float64
	PeakDb       float64
}

// EventKind discriminates Event payloads.
type EventKind int

const (
	EventPitch EventKind = iota
	EventOnset
	EventLevel
)

// Event is the single message type crossing from the audio domain to the
// frame domain. Exactly one payload field is meaningful, per Kind.
type Event struct {
	Kind  EventKind
	Pitch PitchSample
	Onset OnsetEvent
	Level Level
}

// EventQueue is a bounded single-producer/single-consumer queue from the
// audio goroutine to the frame loop. On overflow the oldest queued event is
// dropped in favour of the new one: the consumer always sees the freshest
// data, and losses are counted rather than hidden.
type EventQueue struct {
	ch      chan Event
	dropped atomic.Int64
}

// NewEventQueue builds a queue holding up to capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &EventQueue{ch: make(chan Event, capacity)}
}

// Push enqueues an event without blocking. If the queue is full the oldest
// event is discarded to make room. Only the audio goroutine may call Push.
func (q *EventQueue) Push(e Event) {
	select {
	case q.ch <- e:
		return
	default:
	}

	// Full: evict the oldest entry, then retry once. The single consumer
	// may have raced us and drained the queue in between, in which case
	// the retry simply succeeds without an eviction.
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}
	select {
	case q.ch <- e:
	default:
		q.dropped.Add(1)
	}
}

// Drain delivers all currently queued events to fn, in order, without
// blocking. Only the frame loop may call Drain.
func (q *EventQueue) Drain(fn func(Event)) {
	for {
		select {
		case e := <-q.ch:
			fn(e)
		default:
			return
		}
	}
}

// Dropped returns the number of events lost to overflow so far.
func (q *EventQueue) Dropped() int64 { return q.dropped.Load() }
