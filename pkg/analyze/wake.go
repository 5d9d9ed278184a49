package analyze

import (
	"time"

	"github.com/lkarlslund/gwprobe/pkg/logutil"
)

const (
	FastWake     = 30 * time.Second
	ModerateWake = 60 * time.Second
)

// WakeSpeed classifies how long a request took to be served by a fleet that
// may have been asleep.
func WakeSpeed(d time.Duration) Verdict {
	switch {
	case d < FastWake:
		return Info("Fast wake (< 30s): %s", logutil.FormatDuration(d))
	case d < ModerateWake:
		return Info("Moderate wake time (30-60s): %s", logutil.FormatDuration(d))
	default:
		return Warn("Slow wake (> 60s): %s", logutil.FormatDuration(d))
	}
}

// RunnerStatus reports the initial model listing. It always passes: an
// empty listing just means the fleet is asleep.
func RunnerStatus(models int, err error) Verdict {
	if err != nil {
		return Pass("Could not list models (%v); assuming no runners", err)
	}
	if models == 0 {
		return Pass("No runners currently available")
	}
	return Pass("Found %d models online", models)
}

// WakeRequest judges the inference request sent to a possibly sleeping
// fleet.
func WakeRequest(r Response, took time.Duration) Verdict {
	if r.Err != nil {
		if r.Timeout() {
			return Fail("Inference request failed: Request timed out after %s", logutil.FormatDuration(took))
		}
		return Fail("Inference request failed: %v", r.Err)
	}
	if !r.OK() {
		return Fail("Inference request failed: HTTP %d: %s", r.StatusCode, body(r))
	}
	return Pass("Request succeeded after %s", logutil.FormatDuration(took))
}

// RunnersAvailable expects at least one model to be listed once the wake
// request has been served.
func RunnersAvailable(after int) Verdict {
	if after > 0 {
		return Pass("Runner(s) now available: %d models", after)
	}
	return Fail("No runners available after request")
}

// WakeObserved compares model listings from before and after the request.
func WakeObserved(before, after int) (Verdict, bool) {
	switch {
	case before == 0 && after > 0:
		return Info("WOL appears successful: runner came online"), true
	case after > before:
		return Info("WOL appears successful: additional runner came online"), true
	default:
		return Verdict{}, false
	}
}
