// Package logging configures the zerolog logger used by envsetup.
//
// Progress and diagnostics always go to stderr so that stdout carries only
// the completion message (text mode) or the JSON report (--json mode).
package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Options controls logger construction.
type Options struct {
	// Verbose lowers the level to debug.
	Verbose bool

	// NoColor disables ANSI colors, e.g. when stderr is not a terminal
	// or when the JSON report is requested.
	NoColor bool
}

// New returns a console logger writing to w.
//
// The console format keeps output close to plain CLI messages: no
// timestamps at info level, a short time stamp once verbose is on.
func New(w io.Writer, opts Options) zerolog.Logger {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    opts.NoColor,
		TimeFormat: time.TimeOnly,
	}

	level := zerolog.InfoLevel
	if !opts.Verbose {
		cw.PartsExclude = []string{zerolog.TimestampFieldName}
	} else {
		level = zerolog.DebugLevel
	}

	return zerolog.New(cw).Level(level).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything. Tests use it when log
// output is irrelevant.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
