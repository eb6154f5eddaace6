// Package logger builds the zerolog loggers used by the client: the console
// logger, the run log that records fatal errors, and per-job log sinks.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the project-wide logging type
type Logger = zerolog.Logger

// Options configures the console logger
type Options struct {
	Level  string
	Format string // console|json
	Writer io.Writer
}

// New builds a console logger from opts
func New(opt Options) Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if opt.Writer != nil {
		w = opt.Writer
	}
	if strings.ToLower(strings.TrimSpace(opt.Format)) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(ParseLevel(opt.Level)).With().Timestamp().Logger()
}

// Nop returns a disabled logger
func Nop() Logger { return zerolog.Nop() }

// ParseLevel supports string-only levels, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// lineWriter renders each event as "<timestamp>: <message>"
func lineWriter(out io.Writer, prefix string) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       true,
		PartsOrder:    []string{zerolog.TimestampFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{JobField, JobIDField, StateField, StatusField, KindField},
		FormatTimestamp: func(i any) string {
			s := fmt.Sprint(i)
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				s = t.Format(time.RFC3339)
			}
			return s + ":"
		},
		FormatMessage: func(i any) string {
			if i == nil {
				return prefix
			}
			return prefix + strings.TrimRight(fmt.Sprint(i), "\r\n")
		},
	}
}

// Field names shared by lifecycle log events
const (
	JobField    = "job"
	JobIDField  = "job_id"
	StateField  = "state"
	StatusField = "status"
	KindField   = "kind"
)
