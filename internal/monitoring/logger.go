// Package monitoring carries the always-on operational log line. Unlike the
// gated diagnostic streams, messages sent here are meant for operators and
// stay visible in production.
package monitoring

import "log"

// Logf writes one operational log line. It defaults to log.Printf; tests
// replace it through SetLogger to capture or mute output.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. nil installs a no-op.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
