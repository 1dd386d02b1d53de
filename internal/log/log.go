// Package log is this driver's logging sink: the standard library's log
// package behind an env-var switch. LOG_ENABLE picks the destination,
// J2534_LOG_LEVEL the verbosity.
package log

import (
	"log"
	"os"
)

// Level controls how much gets logged. Higher values log more.
type Level int

const (
	// LevelErrors logs only failures.
	LevelErrors Level = iota
	// LevelCalls additionally logs each PassThru* call.
	LevelCalls
	// LevelFrames additionally logs raw frame hex dumps.
	LevelFrames
)

var (
	logger *log.Logger
	level  = LevelErrors
)

func init() {
	configure()
}

// configure re-reads LOG_ENABLE and J2534_LOG_LEVEL from the
// environment. LOG_ENABLE, if set to a writable path, opens that file
// for append-only logging; otherwise logging goes to stderr.
func configure() {
	level = levelFromEnv(os.Getenv("J2534_LOG_LEVEL"))

	path := os.Getenv("LOG_ENABLE")
	if path == "" {
		logger = log.New(os.Stderr, "op2534: ", log.LstdFlags)
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger = log.New(os.Stderr, "op2534: ", log.LstdFlags)
		return
	}
	logger = log.New(f, "op2534: ", log.LstdFlags)
}

func levelFromEnv(s string) Level {
	switch s {
	case "frames":
		return LevelFrames
	case "calls":
		return LevelCalls
	default:
		return LevelErrors
	}
}

// Errorf always logs, regardless of level.
func Errorf(format string, args ...any) {
	logger.Printf(format, args...)
}

// Infof logs at LevelCalls or above.
func Infof(format string, args ...any) {
	if level >= LevelCalls {
		logger.Printf(format, args...)
	}
}

// Tracef logs at LevelFrames, used for raw hex dumps of bulk transfers.
func Tracef(format string, args ...any) {
	if level >= LevelFrames {
		logger.Printf(format, args...)
	}
}
