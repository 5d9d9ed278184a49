// Package analyze turns gateway responses and probe batches into verdicts.
// Every function here is pure: the same observation always yields the same
// verdict.
package analyze

import (
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/probe"
)

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	// Warn and Info verdicts are reported as notes and never counted.
	StatusWarn Status = "warn"
	StatusInfo Status = "info"
)

type Verdict struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

func Pass(format string, args ...any) Verdict {
	return Verdict{Status: StatusPass, Message: fmt.Sprintf(format, args...)}
}

func Fail(format string, args ...any) Verdict {
	return Verdict{Status: StatusFail, Message: fmt.Sprintf(format, args...)}
}

func Warn(format string, args ...any) Verdict {
	return Verdict{Status: StatusWarn, Message: fmt.Sprintf(format, args...)}
}

func Info(format string, args ...any) Verdict {
	return Verdict{Status: StatusInfo, Message: fmt.Sprintf(format, args...)}
}

func (v Verdict) Passed() bool { return v.Status == StatusPass }

// Counted reports whether the verdict contributes to pass/fail totals.
func (v Verdict) Counted() bool { return v.Status == StatusPass || v.Status == StatusFail }

// Response is what one gateway call looked like from the outside.
// StatusCode is 0 when no HTTP response arrived, in which case Err is set.
type Response struct {
	StatusCode    int
	Body          string
	ResolvedModel string
	Err           error
}

func (r Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode <= 299 }

// Timeout reports whether the call died on its deadline.
func (r Response) Timeout() bool { return r.Err != nil && gateway.IsTimeout(r.Err) }

// FromRaw builds a Response from an undecoded gateway call.
func FromRaw(raw *gateway.RawResponse, err error) Response {
	if err != nil {
		return Response{Err: err}
	}
	return Response{StatusCode: raw.StatusCode, Body: raw.Text()}
}

// FromCall builds a Response from a decoded chat completion call.
func FromCall(resp openai.ChatCompletionResponse, err error) Response {
	if err == nil {
		return Response{StatusCode: 200, ResolvedModel: gateway.ResolvedModel(resp)}
	}
	var he *gateway.HTTPError
	if errors.As(err, &he) {
		return Response{StatusCode: he.StatusCode, Body: he.Body}
	}
	return Response{Err: err}
}

// FromOutcome builds a Response from a dispatched probe.
func FromOutcome(o probe.Outcome) Response {
	if o.Succeeded {
		return Response{StatusCode: 200, ResolvedModel: o.ResolvedModel}
	}
	if o.Err == nil {
		return Response{Err: errors.New("probe produced no result")}
	}
	if o.Err.Category == probe.CategoryHTTP {
		return Response{StatusCode: o.Err.StatusCode, Body: o.Err.Body}
	}
	if o.Err.Category == probe.CategoryTimeout {
		return Response{Err: &gateway.TimeoutError{Op: "chat completion"}}
	}
	return Response{Err: o.Err}
}

func body(r Response) string {
	return strings.TrimSpace(r.Body)
}

func requestFailed(r Response) Verdict {
	return Fail("Request failed: %v", r.Err)
}
