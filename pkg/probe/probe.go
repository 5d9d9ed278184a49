// Package probe drives batches of chat completion requests against the
// gateway and turns every request, successful or not, into exactly one
// Outcome.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	log "github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
)

// WorkloadPrompt is the message each numbered probe sends.
const WorkloadPrompt = "Request %d: Respond with just 'OK'."

type Category string

const (
	CategoryHTTP       Category = "http"
	CategoryTimeout    Category = "timeout"
	CategoryTransport  Category = "transport"
	CategoryCredential Category = "credential"
	CategoryCancelled  Category = "cancelled"
	CategoryOther      Category = "other"
)

// Failure is the error half of an Outcome.
type Failure struct {
	Category   Category `json:"category"`
	Detail     string   `json:"detail"`
	StatusCode int      `json:"status_code,omitempty"`
	Body       string   `json:"body,omitempty"`
}

func (f *Failure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d", f.StatusCode)
	}
	return f.Detail
}

type Probe struct {
	ID      int
	Request gateway.Request
	Options []gateway.CallOption
}

type Outcome struct {
	ProbeID       int           `json:"probe_id"`
	Succeeded     bool          `json:"succeeded"`
	ResolvedModel string        `json:"resolved_model,omitempty"`
	Content       string        `json:"-"`
	Latency       time.Duration `json:"latency"`
	Started       time.Time     `json:"started"`
	Finished      time.Time     `json:"finished"`
	Err           *Failure      `json:"error,omitempty"`
}

// Caller is the part of the gateway client the dispatcher needs.
type Caller interface {
	ChatCompletion(ctx context.Context, req gateway.Request, opts ...gateway.CallOption) (openai.ChatCompletionResponse, error)
}

// Mode selects sequential or bounded concurrent dispatch.
type Mode struct {
	workers int
}

func Sequential() Mode { return Mode{} }

// Concurrent allows up to workers probes in flight at once.
func Concurrent(workers int) Mode {
	if workers < 1 {
		workers = 1
	}
	return Mode{workers: workers}
}

func (m Mode) IsSequential() bool { return m.workers == 0 }

func (m Mode) Workers() int {
	if m.workers == 0 {
		return 1
	}
	return m.workers
}

func (m Mode) String() string {
	if m.IsSequential() {
		return "sequential"
	}
	return fmt.Sprintf("concurrent(%d)", m.workers)
}

type Dispatcher struct {
	client Caller
	logger *log.Logger
}

func NewDispatcher(client Caller, logger *log.Logger) *Dispatcher {
	return &Dispatcher{client: client, logger: logutil.OrDiscard(logger)}
}

// Dispatch runs every probe and returns one outcome per probe. Sequential
// batches list outcomes in submission order; concurrent batches list them in
// completion order, so callers match on ProbeID. Probes that never ran
// because ctx was cancelled are appended as cancelled failures.
func (d *Dispatcher) Dispatch(ctx context.Context, probes []Probe, mode Mode) Batch {
	b := Batch{Mode: mode.String(), Started: time.Now(), Outcomes: make([]Outcome, 0, len(probes))}
	done := make([]bool, len(probes))

	if mode.IsSequential() {
		for i, p := range probes {
			if ctx.Err() != nil {
				break
			}
			b.Outcomes = append(b.Outcomes, d.Run(ctx, p))
			done[i] = true
		}
	} else {
		pool := Pool[Probe, Outcome]{Workers: mode.Workers(), Work: d.Run}
		pool.Run(ctx, probes, func(i int, o Outcome) {
			b.Outcomes = append(b.Outcomes, o)
			done[i] = true
		})
	}

	now := time.Now()
	reason := "not started"
	if cause := context.Cause(ctx); cause != nil {
		reason += ": " + cause.Error()
	}
	for i, p := range probes {
		if done[i] {
			continue
		}
		b.Outcomes = append(b.Outcomes, Outcome{
			ProbeID:  p.ID,
			Started:  now,
			Finished: now,
			Err:      &Failure{Category: CategoryCancelled, Detail: reason},
		})
	}
	b.Cancelled = ctx.Err() != nil
	b.Finished = time.Now()
	return b
}

// Run issues a single probe. It never returns an error: failures are folded
// into the outcome.
func (d *Dispatcher) Run(ctx context.Context, p Probe) Outcome {
	opts := make([]gateway.CallOption, 0, len(p.Options)+1)
	opts = append(opts, p.Options...)
	opts = append(opts, gateway.WithProbeID(strconv.Itoa(p.ID)))

	o := Outcome{ProbeID: p.ID, Started: time.Now()}
	resp, err := d.client.ChatCompletion(ctx, p.Request, opts...)
	o.Finished = time.Now()
	o.Latency = o.Finished.Sub(o.Started)
	if err != nil {
		o.Err = Classify(err)
		d.logger.Debug("probe failed", "probe", p.ID, "category", o.Err.Category, "err", o.Err.Detail)
		return o
	}
	o.Succeeded = true
	o.ResolvedModel = gateway.ResolvedModel(resp)
	o.Content = gateway.Content(resp)
	d.logger.Debug("probe succeeded", "probe", p.ID, "model", o.ResolvedModel, "latency", logutil.FormatDuration(o.Latency))
	return o
}

// Classify maps a gateway or credential error onto a Failure.
func Classify(err error) *Failure {
	var he *gateway.HTTPError
	switch {
	case errors.As(err, &he):
		return &Failure{Category: CategoryHTTP, Detail: err.Error(), StatusCode: he.StatusCode, Body: gateway.Truncate(he.Body, 512)}
	case gateway.IsTimeout(err):
		return &Failure{Category: CategoryTimeout, Detail: "Request timed out"}
	case gateway.IsTransport(err):
		return &Failure{Category: CategoryTransport, Detail: err.Error()}
	case credentials.IsAcquisitionError(err):
		return &Failure{Category: CategoryCredential, Detail: err.Error()}
	case errors.Is(err, context.Canceled):
		return &Failure{Category: CategoryCancelled, Detail: err.Error()}
	default:
		return &Failure{Category: CategoryOther, Detail: err.Error()}
	}
}

// NewProbes builds n probes numbered from 0 that reuse template's model and
// sampling settings with the numbered workload prompt. opts may be nil.
func NewProbes(n int, template gateway.Request, opts func(id int) []gateway.CallOption) []Probe {
	out := make([]Probe, 0, n)
	for i := 0; i < n; i++ {
		req := template
		req.Messages = []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(WorkloadPrompt, i),
		}}
		p := Probe{ID: i, Request: req}
		if opts != nil {
			p.Options = opts(i)
		}
		out = append(out, p)
	}
	return out
}

// Batch is the result of one Dispatch call.
type Batch struct {
	Mode      string    `json:"mode"`
	Outcomes  []Outcome `json:"outcomes"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

func (b Batch) WallClock() time.Duration { return b.Finished.Sub(b.Started) }

// SumLatency adds up the latency of successful probes.
func (b Batch) SumLatency() time.Duration {
	var total time.Duration
	for _, o := range b.Outcomes {
		if o.Succeeded {
			total += o.Latency
		}
	}
	return total
}

func (b Batch) Successes() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Succeeded {
			out = append(out, o)
		}
	}
	return out
}

func (b Batch) ByID() map[int]Outcome {
	out := make(map[int]Outcome, len(b.Outcomes))
	for _, o := range b.Outcomes {
		out[o.ProbeID] = o
	}
	return out
}

// Latencies returns successful probe latencies ordered by probe id.
func (b Batch) Latencies() []time.Duration {
	ok := b.Successes()
	sort.Slice(ok, func(i, j int) bool { return ok[i].ProbeID < ok[j].ProbeID })
	out := make([]time.Duration, 0, len(ok))
	for _, o := range ok {
		out = append(out, o.Latency)
	}
	return out
}

// Errors returns the failed outcomes ordered by probe id.
func (b Batch) Errors() []Outcome {
	var out []Outcome
	for _, o := range b.Outcomes {
		if !o.Succeeded {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProbeID < out[j].ProbeID })
	return out
}

// FirstFailure returns the failure of the lowest numbered probe that failed
// with category c, or nil.
func (b Batch) FirstFailure(c Category) *Failure {
	for _, o := range b.Errors() {
		if o.Err != nil && o.Err.Category == c {
			return o.Err
		}
	}
	return nil
}

// SuccessSpan is the time from the first successful probe's start to the
// last successful probe's end.
func (b Batch) SuccessSpan() time.Duration {
	var first, last time.Time
	for _, o := range b.Outcomes {
		if !o.Succeeded {
			continue
		}
		if first.IsZero() || o.Started.Before(first) {
			first = o.Started
		}
		if o.Finished.After(last) {
			last = o.Finished
		}
	}
	if first.IsZero() {
		return 0
	}
	return last.Sub(first)
}
