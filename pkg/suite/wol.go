package suite

import (
	"context"
	"time"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/report"
)

const wakePrompt = "Say 'WOL test successful' in exactly those words."

type WOLOptions struct {
	Model string
	// Timing only measures how long the wake request takes.
	Timing bool
}

// WOL sends a request to a fleet that may be asleep and checks that it
// comes up to serve it.
func (r *Runner) WOL(ctx context.Context, opts WOLOptions) error {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timing {
		return r.wolTiming(ctx, opts)
	}
	r.logger().Info("Starting Wake-on-LAN test", "model", opts.Model)

	r.logger().Info("[Step 1] Checking initial runner status")
	before, err := r.countModels(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.Result.Record(report.WakeOnLAN, "Initial runner status", analyze.RunnerStatus(before, err))

	r.logger().Info("[Step 2] Sending inference request")
	resp, took, ok, err := r.wakeRequest(ctx, opts.Model, "Inference request")
	if err != nil || !ok {
		return err
	}
	if resp.ResolvedModel != "" {
		r.logger().Debug("model used", "model", resp.ResolvedModel)
	}
	r.Result.SetTiming(took, took, []time.Duration{took})

	r.logger().Info("[Step 3] Verifying runner availability")
	after, err := r.countModels(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		r.logger().Error("Failed to check runner status", "err", err)
	}
	r.Result.Record(report.WakeOnLAN, "Runner availability", analyze.RunnersAvailable(after))
	if v, woke := analyze.WakeObserved(before, after); woke {
		r.Result.Record(report.WakeOnLAN, "Wake detection", v)
	}
	return nil
}

func (r *Runner) wolTiming(ctx context.Context, opts WOLOptions) error {
	r.logger().Info("Starting WOL timing test", "model", opts.Model, "timeout", r.Timeout)

	r.logger().Info("[Step 1] Checking if runners are offline")
	before, _ := r.countModels(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if before > 0 {
		r.Result.Record(report.WakeOnLAN, "Initial runner status",
			analyze.Warn("Runners already online (%d models). For accurate timing, ensure runners are offline first.", before))
	}

	r.logger().Info("[Step 2] Sending request and measuring wake time")
	_, took, ok, err := r.wakeRequest(ctx, opts.Model, "Wake request")
	if err != nil || !ok {
		return err
	}
	r.Result.SetTiming(took, took, []time.Duration{took})
	r.Result.Record(report.WakeOnLAN, "Wake time", analyze.WakeSpeed(took))
	return nil
}

// wakeRequest sends the wake prompt and records the verdict under name. ok
// is false when the request did not succeed.
func (r *Runner) wakeRequest(ctx context.Context, model, name string) (analyze.Response, time.Duration, bool, error) {
	req := r.request(model, wakePrompt, 50)
	start := time.Now()
	resp, err := r.Gateway.ChatCompletion(ctx, req)
	took := time.Since(start)
	if err != nil && ctx.Err() != nil {
		return analyze.Response{}, took, false, ctx.Err()
	}
	if err != nil && credentials.IsAcquisitionError(err) {
		r.Result.RecordError(report.WakeOnLAN, name, err)
		return analyze.Response{}, took, false, nil
	}
	out := analyze.FromCall(resp, err)
	v := analyze.WakeRequest(out, took)
	r.Result.Record(report.WakeOnLAN, name, v)
	if !v.Passed() {
		return out, took, false, nil
	}
	if content := gateway.Content(resp); content != "" {
		r.logger().Debug("assistant response", "content", gateway.Truncate(content, 200), "took", logutil.FormatDuration(took))
	}
	return out, took, true, nil
}

func (r *Runner) countModels(ctx context.Context) (int, error) {
	list, err := r.Gateway.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	return len(list.Models), nil
}
