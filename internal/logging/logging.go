// Package logging configures the process-wide zerolog logger used by the
// CLI. Library packages take a zerolog.Logger explicitly and stay silent by
// default.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level maps a -v count to a zerolog level: 0 warn, 1 info, 2 debug,
// 3 or more trace. Negative values silence logging.
func Level(verbosity int) zerolog.Level {
	switch {
	case verbosity < 0:
		return zerolog.Disabled
	case verbosity == 0:
		return zerolog.WarnLevel
	case verbosity == 1:
		return zerolog.InfoLevel
	case verbosity == 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Setup installs a console logger writing to w (stderr when nil) and
// returns it. Caller information is added from debug level on.
func Setup(verbosity int, w io.Writer, noColor bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.SetGlobalLevel(Level(verbosity))
	console := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}
	logger := zerolog.New(console).With().Timestamp().Logger()
	if verbosity >= 2 {
		logger = logger.With().Caller().Logger()
	}
	log.Logger = logger
	log.Debug().Int("verbosity", verbosity).Msg("logger initialized")
	return logger
}

// Get returns the global logger tagged with component.
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Timed logs the start of an operation at debug level and returns a func
// that logs its duration.
func Timed(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().Str("operation", operation).Msg("operation started")
	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("operation completed")
	}
}
