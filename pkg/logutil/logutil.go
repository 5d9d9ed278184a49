package logutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
)

// Verbosity is the harness output level selected on the command line.
type Verbosity int

const (
	Quiet Verbosity = iota
	Normal
	Verbose
	Debug
)

func (v Verbosity) String() string {
	switch v {
	case Quiet:
		return "quiet"
	case Verbose:
		return "verbose"
	case Debug:
		return "debug"
	default:
		return "normal"
	}
}

// ParseVerbosity accepts the harness level names as well as plain logger
// level names so existing config files keep working.
func ParseVerbosity(raw string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "normal", "info":
		return Normal, nil
	case "quiet", "warn", "warning", "error":
		return Quiet, nil
	case "verbose":
		return Verbose, nil
	case "debug", "trace", "trac":
		// The logger has no native trace enum; trace maps to the most verbose mode.
		return Debug, nil
	default:
		return Normal, fmt.Errorf("invalid verbosity %q", raw)
	}
}

// Level returns the minimum logger level shown for v.
func (v Verbosity) Level() log.Level {
	switch v {
	case Quiet:
		return log.WarnLevel
	case Verbose, Debug:
		return log.DebugLevel
	default:
		return log.InfoLevel
	}
}

// New builds a logger owned by the caller. Nothing here touches the
// package-level charmbracelet logger.
func New(w io.Writer, v Verbosity) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := log.NewWithOptions(w, log.Options{
		Level:           v.Level(),
		ReportTimestamp: v == Debug,
		ReportCaller:    v == Debug,
		TimeFormat:      time.TimeOnly,
	})
	return logger
}

// Discard returns a logger that drops everything, for tests and library
// callers that did not provide one.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// FormatDuration renders durations the way the report prints them:
// milliseconds below a second, one decimal of seconds below a minute.
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 1 {
		return fmt.Sprintf("%.0fms", seconds*1000)
	}
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	rest := seconds - float64(minutes*60)
	return fmt.Sprintf("%dm %.1fs", minutes, rest)
}
