// Package logging carries library-level warnings (currently demanddisk's
// retried-read notices) out of the library without forcing a particular
// destination on the caller, the way config.Initialize wraps errors with
// fmt.Errorf but leaves printing to the caller.
package logging

import (
	"log"
	"os"
)

// Logger receives one formatted warning at a time; implementations decide
// where it goes, or whether it goes anywhere at all.
type Logger interface {
	Printf(format string, args ...any)
}

// Stderr is the default Logger, writing through the standard log package
// to os.Stderr with a timestamp prefix.
var Stderr Logger = stderrLogger{log.New(os.Stderr, "", log.LstdFlags)}

type stderrLogger struct{ l *log.Logger }

func (s stderrLogger) Printf(format string, args ...any) { s.l.Printf(format, args...) }

// Discard silently drops every message, for callers (tests, scripted
// tools) that don't want warnings on stderr.
var Discard Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Printf(string, ...any) {}
