// Package monitoring holds the redirectable diagnostic logger shared by the
// engine subsystems. Tests mute it; tools redirect it into their own output.
package monitoring

import (
	"log"
	"os"
	"strings"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// debugEnabled gates per-frame diagnostic output, which is far too chatty
// for normal runs. Enabled via GUITARZERO_DEBUG=1.
var debugEnabled = strings.EqualFold(os.Getenv("GUITARZERO_DEBUG"), "1")

// Debugf logs through Logf only when debug output is enabled.
func Debugf(format string, v ...interface{}) {
	if debugEnabled {
		Logf(format, v...)
	}
}

// SetDebug toggles debug output at runtime, returning the previous setting.
func SetDebug(on bool) bool {
	prev := debugEnabled
	debugEnabled = on
	return prev
}
