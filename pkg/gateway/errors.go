package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPError is a non-2xx response from the gateway.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, body)
}

// TimeoutError means the per-call deadline expired before a response arrived.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s: request timed out after %s", e.Op, e.Timeout)
	}
	return fmt.Sprintf("%s: request timed out", e.Op)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransportError covers connection, DNS and TLS failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// classifyDoError maps an http.Client.Do failure onto the taxonomy. parent is
// the caller's context, so an interrupt is not mistaken for a timeout.
func classifyDoError(op string, parent context.Context, timeout time.Duration, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return &TransportError{Op: op, Err: err}
}

// The gateway reports authorization and capacity problems as plain text
// bodies. These matchers are the only place that depends on that wording.
var (
	permissionDeniedSignals = []string{
		"Permission denied",
		"cannot request specific models",
	}
	noCapacitySignals = []string{
		"No models of class",
		"No runners have models of class",
		"No runners available",
	}
)

// PermissionDenied reports whether a response body signals that the caller
// lacks the role for the requested model.
func PermissionDenied(body string) bool {
	return containsAny(body, permissionDeniedSignals)
}

// NoCapacity reports whether a response body signals that no runner or
// model could serve the request.
func NoCapacity(body string) bool {
	return containsAny(body, noCapacitySignals)
}

// NoModelsOfClass distinguishes a missing class configuration from a fleet
// with no runners at all.
func NoModelsOfClass(body string) bool {
	return strings.Contains(body, "No models of class") || strings.Contains(body, "No runners have models of class")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Truncate shortens s to at most n bytes for log and report messages.
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
