// Package testutil provides shared test helpers: synthesized audio fixtures
// for the analysis packages and small assertion wrappers.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Silence returns n zero samples.
func Silence(n int) []float64 {
	return make([]float64, n)
}

// Sine synthesizes n samples of a pure tone.
func Sine(freqHz float64, sampleRate, n int, amplitude float64) []float64 {
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate))
	}
	return buf
}

// Pluck synthesizes a guitar-ish note: a tone with a sharp attack and an
// exponential decay, loud enough to trip the onset detector.
func Pluck(freqHz float64, sampleRate, n int) []float64 {
	buf := Sine(freqHz, sampleRate, n, 1.0)
	attack := sampleRate / 200 // 5ms ramp
	decay := float64(sampleRate) * 0.5
	for i := range buf {
		env := 0.8 * math.Exp(-float64(i)/decay)
		if i < attack {
			env *= float64(i) / float64(attack)
		}
		buf[i] *= env
	}
	return buf
}
