// Package logging provides the daemon's named loggers on top of zerolog.
package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	base zerolog.Logger
)

func init() {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
}

func initBase() {
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: zerolog.TimeFieldFormat}).
		With().Timestamp().Logger()
}

// Named returns the logger for one of the daemon's fixed component names:
// path_traceroute, path_traceroute.tracer, traceroute,
// path_traceroute.node_info, path_traceroute.websocket_server,
// path_traceroute.rpki.
func Named(name string) zerolog.Logger {
	once.Do(initBase)
	return base.With().Str("component", name).Logger()
}

// SetLevel adjusts the process-wide minimum log level.
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
