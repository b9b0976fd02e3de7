package audio

import "testing"

func onsetAt(ts float64) Event {
	return Event{Kind: EventOnset, Onset: OnsetEvent{TimestampSec: ts}}
}

func TestQueuePreservesOrder(t *testing.T) {
	q := NewEventQueue(8)
	for i := 0; i < 5; i++ {
		q.Push(onsetAt(float64(i)))
	}

	var got []float64
	q.Drain(func(e Event) { got = append(got, e.Onset.TimestampSec) })

	if len(got) != 5 {
		t.Fatalf("drained %d events, want 5", len(got))
	}
	for i, ts := range got {
		if ts != float64(i) {
			t.Errorf("event %d timestamp = %v, want %v", i, ts, i)
		}
	}
}

func TestQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewEventQueue(4)
	for i := 0; i < 10; i++ {
		q.Push(onsetAt(float64(i)))
	}

	var got []float64
	q.Drain(func(e Event) { got = append(got, e.Onset.TimestampSec) })

	// The freshest 4 events survive; the oldest 6 were evicted.
	want := []float64{6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("drained %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d timestamp = %v, want %v", i, got[i], want[i])
		}
	}
	if q.Dropped() != 6 {
		t.Errorf("Dropped = %d, want 6", q.Dropped())
	}
}

func TestQueueDrainOnEmptyReturns(t *testing.T) {
	q := NewEventQueue(4)
	called := false
	q.Drain(func(Event) { called = true })
	if called {
		t.Error("Drain invoked callback on empty queue")
	}
}
