package logutil

import (
	"bytes"
	"strings"
	"testing"
	"time"

	log "github.com/charmbracelet/log"
)

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in   string
		want Verbosity
		err  bool
	}{
		{in: "", want: Normal},
		{in: "normal", want: Normal},
		{in: "INFO", want: Normal},
		{in: "quiet", want: Quiet},
		{in: "verbose", want: Verbose},
		{in: "debug", want: Debug},
		{in: "trace", want: Debug},
		{in: "loud", err: true},
	}
	for _, tc := range tests {
		got, err := ParseVerbosity(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("ParseVerbosity(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseVerbosity(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseVerbosity(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestQuietLoggerDropsInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Quiet)
	l.Info("hello")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	l.Warn("careful")
	if !strings.Contains(buf.String(), "careful") {
		t.Fatalf("expected warning in output, got %q", buf.String())
	}
	if l.GetLevel() != log.WarnLevel {
		t.Fatalf("unexpected level %v", l.GetLevel())
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{in: 250 * time.Millisecond, want: "250ms"},
		{in: 2500 * time.Millisecond, want: "2.5s"},
		{in: 95 * time.Second, want: "1m 35.0s"},
	}
	for _, tc := range tests {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
