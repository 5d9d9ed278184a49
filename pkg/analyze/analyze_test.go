package analyze

import (
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/probe"
)

const denied = "Permission denied: cannot request specific models. Use class:fast or class:big."

func TestNoAuthRejection(t *testing.T) {
	tests := []struct {
		status int
		want   Status
		msg    string
	}{
		{401, StatusPass, "Correctly rejected with 401"},
		{403, StatusPass, "Correctly rejected with 403"},
		{400, StatusPass, "Rejected with 400 (missing auth)"},
		{200, StatusFail, "Unexpected status code: 200"},
		{500, StatusFail, "Unexpected status code: 500"},
	}
	for _, tt := range tests {
		got := NoAuthRejection(Response{StatusCode: tt.status})
		if got.Status != tt.want || got.Message != tt.msg {
			t.Fatalf("status %d: got %+v", tt.status, got)
		}
		if again := NoAuthRejection(Response{StatusCode: tt.status}); again != got {
			t.Fatalf("status %d: repeated check differs: %+v vs %+v", tt.status, again, got)
		}
	}
	if got := NoAuthRejection(Response{Err: errors.New("dial tcp: refused")}); got.Status != StatusFail {
		t.Fatalf("transport error should fail, got %+v", got)
	}
}

func TestInvalidTokenRejection(t *testing.T) {
	if got := InvalidTokenRejection(Response{StatusCode: 401}); !got.Passed() {
		t.Fatalf("401 should pass, got %+v", got)
	}
	for _, status := range []int{400, 403, 200} {
		if got := InvalidTokenRejection(Response{StatusCode: status}); got.Passed() {
			t.Fatalf("%d should fail, got %+v", status, got)
		}
	}
}

func TestClassAdmission(t *testing.T) {
	tests := []struct {
		name string
		r    Response
		want Status
	}{
		{"success", Response{StatusCode: 200, ResolvedModel: "llama3.2:3b"}, StatusPass},
		{"no capacity", Response{StatusCode: 500, Body: "No models of class 'fast'"}, StatusPass},
		{"no runners", Response{StatusCode: 500, Body: "No runners available"}, StatusPass},
		{"other 500", Response{StatusCode: 500, Body: "panic: nil map"}, StatusFail},
		{"permission", Response{StatusCode: 400, Body: denied}, StatusFail},
		{"other 400", Response{StatusCode: 400, Body: "bad json"}, StatusFail},
		{"503", Response{StatusCode: 503}, StatusFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassAdmission("class:fast", tt.r); got.Status != tt.want {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestSpecificModelDenial(t *testing.T) {
	if got := SpecificModelDenial(Response{StatusCode: 400, Body: denied}); !got.Passed() {
		t.Fatalf("permission 400 should pass, got %+v", got)
	}
	if got := SpecificModelDenial(Response{StatusCode: 400, Body: "something else"}); got.Passed() || got.Message != "Unexpected 400 error: something else" {
		t.Fatalf("plain 400 should fail, got %+v", got)
	}
	if got := SpecificModelDenial(Response{StatusCode: 200, ResolvedModel: "llama3:8b"}); got.Passed() {
		t.Fatalf("success should fail, got %+v", got)
	}
	if got := SpecificModelDenial(Response{StatusCode: 401}); got.Passed() {
		t.Fatalf("401 should fail, got %+v", got)
	}
}

func TestSpecificModelElevated(t *testing.T) {
	if got := SpecificModelElevated(Response{StatusCode: 200}); !got.Passed() {
		t.Fatalf("success should pass, got %+v", got)
	}
	if got := SpecificModelElevated(Response{StatusCode: 400, Body: denied}); got.Passed() {
		t.Fatalf("permission denial should fail, got %+v", got)
	}
	if got := SpecificModelElevated(Response{StatusCode: 500, Body: "No runners have model 'llama3:8b' loaded"}); !got.Passed() {
		t.Fatalf("unrelated failure should not count as denial, got %+v", got)
	}
}

func TestClassRoutingIsStrictAboutCapacity(t *testing.T) {
	got := ClassRouting("class:fast", Response{StatusCode: 500, Body: "No models of class 'fast' configured"})
	if got.Status != StatusFail || got.Message != "No models configured for class 'fast'" {
		t.Fatalf("got %+v", got)
	}
	got = ClassRouting("class:fast", Response{StatusCode: 500, Body: "No runners available"})
	if got.Status != StatusFail || got.Message != "No runners available" {
		t.Fatalf("got %+v", got)
	}
	got = ClassRouting("class:fast", Response{Err: &gateway.TimeoutError{Op: "chat completion"}})
	if got.Message != "Request timed out" {
		t.Fatalf("got %+v", got)
	}
	if got := ClassRouting("class:fast", Response{StatusCode: 200, ResolvedModel: "qwen2.5:3b"}); got.Message != "Class request routed to qwen2.5:3b" {
		t.Fatalf("got %+v", got)
	}
}

func TestRoutingResolution(t *testing.T) {
	if got := RoutingResolution("class:fast", Response{StatusCode: 200, ResolvedModel: "class:fast"}); got.Passed() {
		t.Fatalf("unresolved class should fail, got %+v", got)
	}
	if got := RoutingResolution("class:fast", Response{StatusCode: 200}); got.Passed() {
		t.Fatalf("missing model should fail, got %+v", got)
	}
	if got := RoutingResolution("llama3:8b", Response{StatusCode: 200, ResolvedModel: "llama3:8b"}); got.Message != "Request routed to llama3:8b" {
		t.Fatalf("got %+v", got)
	}
	if got := RoutingResolution("llama3", Response{StatusCode: 200, ResolvedModel: "llama3:8b"}); got.Message != "Request routed to llama3:8b (requested llama3)" {
		t.Fatalf("got %+v", got)
	}
}

func TestSpecificRouting(t *testing.T) {
	if got := SpecificRouting("llama3:8b", Response{StatusCode: 400, Body: denied}); got.Message != "Permission denied: user lacks model:specific role" {
		t.Fatalf("got %+v", got)
	}
	if got := Routing("llama3:8b", Response{StatusCode: 502, Body: "bad gateway"}); got.Message != "HTTP 502: bad gateway" {
		t.Fatalf("got %+v", got)
	}
}

func outcomes(models ...string) []probe.Outcome {
	out := make([]probe.Outcome, 0, len(models))
	for i, m := range models {
		out = append(out, probe.Outcome{ProbeID: i, Succeeded: true, ResolvedModel: m})
	}
	return out
}

func TestDistribution(t *testing.T) {
	var models []string
	for i := 0; i < 6; i++ {
		models = append(models, "A")
	}
	for i := 0; i < 4; i++ {
		models = append(models, "B")
	}
	v, summary := Distribution(outcomes(models...))
	if !v.Passed() || v.Message != "Requests distributed across 2 runners" {
		t.Fatalf("got %+v", v)
	}
	if len(summary) != 2 || summary[0] != (ModelCount{"A", 6}) || summary[1] != (ModelCount{"B", 4}) {
		t.Fatalf("unexpected summary %+v", summary)
	}

	v, _ = Distribution(outcomes("A", "A", "A", "A", "A", "A", "A", "A", "A", "A"))
	if v.Status != StatusWarn || v.Counted() {
		t.Fatalf("single runner should warn, got %+v", v)
	}

	failed := []probe.Outcome{{ProbeID: 0, Err: &probe.Failure{Category: probe.CategoryTimeout}}}
	v, _ = Distribution(failed)
	if v.Status != StatusFail {
		t.Fatalf("no successes should fail, got %+v", v)
	}
}

func TestDistributionSummaryTieBreak(t *testing.T) {
	summary := DistributionSummary(outcomes("b", "a", "", "b", "a"))
	want := []ModelCount{{"a", 2}, {"b", 2}, {"unknown", 1}}
	if len(summary) != len(want) {
		t.Fatalf("got %+v", summary)
	}
	for i := range want {
		if summary[i] != want[i] {
			t.Fatalf("row %d: got %+v want %+v", i, summary[i], want[i])
		}
	}
}

func TestParallelism(t *testing.T) {
	sum := 5 * 2 * time.Second
	if got := Parallelism(10500*time.Millisecond, sum); got.Status != StatusInfo {
		t.Fatalf("10.5s of 10s should not infer parallelism, got %+v", got)
	}
	if got := Parallelism(6*time.Second, sum); !got.Passed() {
		t.Fatalf("6s of 10s should infer parallelism, got %+v", got)
	}
	if got := Parallelism(8*time.Second, sum); got.Passed() {
		t.Fatalf("exactly 80%% should not infer parallelism, got %+v", got)
	}
	if got := Parallelism(time.Second, 0); got.Status != StatusFail {
		t.Fatalf("no latencies should fail, got %+v", got)
	}
}

func TestAllSucceeded(t *testing.T) {
	if got := AllSucceeded(10, 10); got.Message != "All 10 requests succeeded" {
		t.Fatalf("got %+v", got)
	}
	if got := AllSucceeded(7, 10); got.Passed() || got.Message != "Only 7/10 requests succeeded" {
		t.Fatalf("got %+v", got)
	}
}

func TestTimingStats(t *testing.T) {
	ts := TimingStats([]time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second})
	if ts.Mean != 2*time.Second || ts.StdDev != 0 || !ts.Consistent {
		t.Fatalf("got %+v", ts)
	}
	ts = TimingStats([]time.Duration{time.Second, 3 * time.Second})
	if ts.Mean != 2*time.Second || ts.StdDev != time.Second || ts.Consistent {
		t.Fatalf("got %+v", ts)
	}
	if ts.Min != time.Second || ts.Max != 3*time.Second {
		t.Fatalf("got %+v", ts)
	}
	if TimingStats(nil).Count != 0 {
		t.Fatalf("empty input should give empty stats")
	}
}

func TestWake(t *testing.T) {
	if got := WakeSpeed(10 * time.Second); got.Status != StatusInfo {
		t.Fatalf("got %+v", got)
	}
	if got := WakeSpeed(45 * time.Second); got.Status != StatusInfo {
		t.Fatalf("got %+v", got)
	}
	if got := WakeSpeed(90 * time.Second); got.Status != StatusWarn {
		t.Fatalf("got %+v", got)
	}
	if got := RunnersAvailable(0); got.Passed() {
		t.Fatalf("got %+v", got)
	}
	if _, ok := WakeObserved(0, 2); !ok {
		t.Fatalf("expected wake to be observed")
	}
	if _, ok := WakeObserved(2, 2); ok {
		t.Fatalf("expected no wake")
	}
	if got := RunnerStatus(0, errors.New("boom")); !got.Passed() {
		t.Fatalf("runner status always passes, got %+v", got)
	}
}

func TestResponseConstructors(t *testing.T) {
	r := FromCall(openai.ChatCompletionResponse{Model: "llama3:8b"}, nil)
	if !r.OK() || r.ResolvedModel != "llama3:8b" {
		t.Fatalf("got %+v", r)
	}
	r = FromCall(openai.ChatCompletionResponse{}, &gateway.HTTPError{StatusCode: 400, Body: denied})
	if r.StatusCode != 400 || r.Body != denied {
		t.Fatalf("got %+v", r)
	}
	r = FromRaw(&gateway.RawResponse{StatusCode: 401, Body: []byte("Invalid token")}, nil)
	if r.StatusCode != 401 || r.Body != "Invalid token" {
		t.Fatalf("got %+v", r)
	}
	r = FromOutcome(probe.Outcome{Err: &probe.Failure{Category: probe.CategoryTimeout}})
	if !r.Timeout() {
		t.Fatalf("expected timeout, got %+v", r)
	}
}
