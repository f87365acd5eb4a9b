// Package logging provides the small leveled logger shared by the agent,
// coordinator, and launcher packages. Verbosity is controlled entirely by
// the LIARSLIE_LOG_LEVEL environment variable (spec's "logging verbosity
// variable governs observability only"); nothing here affects protocol
// behavior.
package logging

import (
	"log"
	"os"

	"github.com/davecgh/go-spew/spew"
)

// Level orders the three verbosities this project recognizes.
type Level int

const (
	LevelQuiet Level = iota
	LevelInfo
	LevelDebug
)

// LevelFromEnv reads LIARSLIE_LOG_LEVEL ("quiet", "info", "debug"),
// defaulting to LevelInfo for an unset or unrecognized value.
func LevelFromEnv() Level {
	switch os.Getenv("LIARSLIE_LOG_LEVEL") {
	case "quiet":
		return LevelQuiet
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Logger wraps the standard library logger with level gating and a
// spew-backed debug dumper for decoded wire messages.
type Logger struct {
	level Level
	std   *log.Logger
}

// New creates a Logger writing to stderr with the given prefix, at the
// verbosity named by LIARSLIE_LOG_LEVEL.
func New(prefix string) *Logger {
	return &Logger{
		level: LevelFromEnv(),
		std:   log.New(os.Stderr, prefix, log.LstdFlags),
	}
}

// Infof logs at LevelInfo and above.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.level >= LevelInfo {
		l.std.Printf(format, args...)
	}
}

// Debugf logs at LevelDebug only.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.level >= LevelDebug {
		l.std.Printf(format, args...)
	}
}

// DebugDump pretty-prints v under label at LevelDebug only.
func (l *Logger) DebugDump(label string, v interface{}) {
	if l.level >= LevelDebug {
		l.std.Printf("%s:\n%s", label, spew.Sdump(v))
	}
}
