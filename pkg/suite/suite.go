// Package suite runs the gwprobe test categories against a gateway and
// records their verdicts into a report.Result.
package suite

import (
	"context"
	"time"

	log "github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/probe"
	"github.com/lkarlslund/gwprobe/pkg/report"
)

const (
	DefaultModel         = "class:fast"
	DefaultSpecificModel = "llama3:8b"
	DefaultRequests      = 10
	DefaultWorkers       = 10

	InvalidToken = "invalid.token.here"
)

// Gateway is the client surface the suites drive.
type Gateway interface {
	ListModels(ctx context.Context, opts ...gateway.CallOption) (openai.ModelsList, error)
	ChatCompletion(ctx context.Context, req gateway.Request, opts ...gateway.CallOption) (openai.ChatCompletionResponse, error)
	ChatCompletionRaw(ctx context.Context, req gateway.Request, opts ...gateway.CallOption) (*gateway.RawResponse, error)
}

// Credentials tells the suites which identities they can act as.
type Credentials interface {
	Sources() credentials.Sources
	CanScope() bool
}

// Runner holds what every suite needs. Result is written only from the
// goroutine calling the suite methods.
type Runner struct {
	Gateway     Gateway
	Credentials Credentials
	Result      *report.Result
	Logger      *log.Logger
	// Timeout bounds each request; zero leaves the client default.
	Timeout time.Duration
}

func (r *Runner) logger() *log.Logger { return logutil.OrDiscard(r.Logger) }

func (r *Runner) request(model, prompt string, maxTokens int) gateway.Request {
	return gateway.NewRequest(model, prompt).WithMaxTokens(maxTokens).WithTimeout(r.Timeout)
}

// check issues one chat completion and records judge's verdict. A missing
// credential is recorded as an errored check. Only interruption is
// returned.
func (r *Runner) check(ctx context.Context, cat report.Category, name string, req gateway.Request, judge func(analyze.Response) analyze.Verdict, opts ...gateway.CallOption) (analyze.Response, error) {
	resp, err := r.Gateway.ChatCompletion(ctx, req, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return analyze.Response{}, ctx.Err()
		}
		if credentials.IsAcquisitionError(err) {
			r.Result.RecordError(cat, name, err)
			return analyze.Response{Err: err}, nil
		}
	}
	out := analyze.FromCall(resp, err)
	r.Result.Record(cat, name, judge(out))
	return out, nil
}

// checkRaw is check for calls that must see the undecoded response.
func (r *Runner) checkRaw(ctx context.Context, cat report.Category, name string, req gateway.Request, judge func(analyze.Response) analyze.Verdict, opts ...gateway.CallOption) error {
	raw, err := r.Gateway.ChatCompletionRaw(ctx, req, opts...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && credentials.IsAcquisitionError(err) {
		r.Result.RecordError(cat, name, err)
		return nil
	}
	r.Result.Record(cat, name, judge(analyze.FromRaw(raw, err)))
	return nil
}

func (r *Runner) dispatcher() *probe.Dispatcher {
	return probe.NewDispatcher(r.Gateway, r.Logger)
}
