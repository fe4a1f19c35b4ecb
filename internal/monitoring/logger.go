// Package monitoring holds the diagnostic logger shared by the tofview
// library packages.
package monitoring

import "log"

// Logf receives every library log line. It defaults to log.Printf.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger redirects library logging to f. A nil f mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that prepends "[component] " to every message
// and forwards to whatever Logf is at call time.
func Prefixed(component string) func(format string, v ...interface{}) {
	prefix := "[" + component + "] "
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
