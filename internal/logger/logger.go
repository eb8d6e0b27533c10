// Package logger configures the global zerolog logger used by every package.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Verbose bool
	Quiet   bool
	// Level is used when neither Verbose nor Quiet is set.
	Level string
	// Output defaults to os.Stderr; stdout is reserved for Markdown.
	Output io.Writer
}

// Init installs a console logger and returns the level it selected.
func Init(opts Options) zerolog.Level {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stderr})

	level := ResolveLevel(opts)
	zerolog.SetGlobalLevel(level)
	return level
}

// ResolveLevel applies the precedence verbose > quiet > configured level,
// defaulting to warn so normal runs only print the result.
func ResolveLevel(opts Options) zerolog.Level {
	switch {
	case opts.Verbose:
		return zerolog.DebugLevel
	case opts.Quiet:
		return zerolog.ErrorLevel
	}

	if opts.Level != "" {
		if level, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil && level != zerolog.NoLevel {
			return level
		}
	}
	return zerolog.WarnLevel
}
