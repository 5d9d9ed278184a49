// Package report accumulates check results for one gwprobe run, renders
// them for the terminal and archives them as JSON.
package report

import (
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/version"
)

type Category string

const (
	Authentication   Category = "authentication"
	Authorization    Category = "authorization"
	Routing          Category = "routing"
	LoadDistribution Category = "load-distribution"
	WakeOnLAN        Category = "wake-on-lan"
)

// Categories lists every category in display order.
var Categories = []Category{Authentication, Authorization, Routing, LoadDistribution, WakeOnLAN}

// Check is one counted pass/fail result.
type Check struct {
	Category Category `json:"category"`
	Name     string   `json:"name"`
	Passed   bool     `json:"passed"`
	// Errored marks a check that could not run, usually for lack of
	// credentials. It always counts as failed.
	Errored bool      `json:"errored,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Note is an uncounted warning or informational finding.
type Note struct {
	Category Category       `json:"category"`
	Name     string         `json:"name"`
	Status   analyze.Status `json:"status"`
	Message  string         `json:"message"`
}

// Timing is the latency summary of a workload batch.
type Timing struct {
	analyze.Timing
	WallClock  time.Duration   `json:"wall_clock"`
	SumLatency time.Duration   `json:"sum_latency"`
	Latencies  []time.Duration `json:"latencies,omitempty"`
}

// Result is owned by the goroutine that runs a suite. Worker goroutines
// never touch it, so it carries no lock.
type Result struct {
	RunID        string               `json:"run_id"`
	Harness      string               `json:"harness,omitempty"`
	Suite        string               `json:"suite"`
	Target       string               `json:"target"`
	Started      time.Time            `json:"started"`
	Finished     time.Time            `json:"finished,omitzero"`
	Checks       []Check              `json:"checks"`
	Notes        []Note               `json:"notes,omitempty"`
	Distribution []analyze.ModelCount `json:"distribution,omitempty"`
	Timing       *Timing              `json:"timing,omitempty"`
	Interrupted  bool                 `json:"interrupted,omitempty"`

	logger *log.Logger
	now    func() time.Time
}

func New(suite, target string, logger *log.Logger) *Result {
	r := &Result{
		RunID:   ulid.Make().String(),
		Harness: version.Name + " " + version.Current().String(),
		Suite:   strings.TrimSpace(suite),
		Target:  strings.TrimSpace(target),
		logger:  logutil.OrDiscard(logger),
		now:     time.Now,
	}
	r.Started = r.now()
	return r
}

// Record appends a verdict. Pass and fail verdicts become checks; warn and
// info verdicts become notes and leave the totals alone.
func (r *Result) Record(category Category, name string, v analyze.Verdict) {
	switch v.Status {
	case analyze.StatusPass, analyze.StatusFail:
		c := Check{Category: category, Name: name, Passed: v.Passed(), Message: v.Message, At: r.now()}
		r.Checks = append(r.Checks, c)
		if c.Passed {
			r.logger.Info("PASS "+name, "result", v.Message)
		} else {
			r.logger.Error("FAIL "+name, "result", v.Message)
		}
	case analyze.StatusWarn:
		r.Notes = append(r.Notes, Note{Category: category, Name: name, Status: v.Status, Message: v.Message})
		r.logger.Warn(name, "note", v.Message)
	default:
		r.Notes = append(r.Notes, Note{Category: category, Name: name, Status: analyze.StatusInfo, Message: v.Message})
		r.logger.Info(name, "note", v.Message)
	}
}

// RecordError appends a check that could not run.
func (r *Result) RecordError(category Category, name string, err error) {
	msg := "error"
	if err != nil {
		msg = err.Error()
	}
	r.Checks = append(r.Checks, Check{Category: category, Name: name, Errored: true, Message: msg, At: r.now()})
	r.logger.Error("ERROR "+name, "err", msg)
}

// Skip records a check that was not attempted. Skipped checks count as
// failed so a run that could not exercise a category never reports success.
func (r *Result) Skip(category Category, name, reason string) {
	r.Checks = append(r.Checks, Check{Category: category, Name: name, Errored: true, Message: "Skipped: " + reason, At: r.now()})
	r.logger.Error("SKIP "+name, "reason", reason)
}

func (r *Result) SetDistribution(rows []analyze.ModelCount) {
	r.Distribution = append([]analyze.ModelCount(nil), rows...)
}

func (r *Result) SetTiming(wall, sum time.Duration, latencies []time.Duration) {
	r.Timing = &Timing{
		Timing:     analyze.TimingStats(latencies),
		WallClock:  wall,
		SumLatency: sum,
		Latencies:  append([]time.Duration(nil), latencies...),
	}
}

// Finish stamps the end time. interrupted marks a run stopped by a signal.
func (r *Result) Finish(interrupted bool) {
	r.Finished = r.now()
	r.Interrupted = r.Interrupted || interrupted
}

func (r *Result) Passed() int {
	n := 0
	for _, c := range r.Checks {
		if c.Passed {
			n++
		}
	}
	return n
}

func (r *Result) Failed() int { return len(r.Checks) - r.Passed() }

func (r *Result) TestsRun() int { return len(r.Checks) }

func (r *Result) Success() bool { return r.Failed() == 0 && !r.Interrupted }

const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitInterrupted = 130
)

func (r *Result) ExitCode() int {
	switch {
	case r.Interrupted:
		return ExitInterrupted
	case r.Failed() > 0:
		return ExitFailed
	default:
		return ExitOK
	}
}

// Subtotal is the pass/fail count of one category.
type Subtotal struct {
	Category Category
	Passed   int
	Failed   int
}

// Subtotals returns the categories that have checks, in display order,
// followed by any unknown categories in order of first appearance.
func (r *Result) Subtotals() []Subtotal {
	idx := map[Category]int{}
	var out []Subtotal
	add := func(c Category) {
		if _, ok := idx[c]; !ok {
			idx[c] = len(out)
			out = append(out, Subtotal{Category: c})
		}
	}
	for _, c := range Categories {
		for _, ch := range r.Checks {
			if ch.Category == c {
				add(c)
				break
			}
		}
	}
	for _, ch := range r.Checks {
		add(ch.Category)
		st := &out[idx[ch.Category]]
		if ch.Passed {
			st.Passed++
		} else {
			st.Failed++
		}
	}
	return out
}
