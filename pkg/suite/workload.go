package suite

import (
	"context"
	"fmt"

	"github.com/lkarlslund/gwprobe/pkg/analyze"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/probe"
	"github.com/lkarlslund/gwprobe/pkg/report"
)

type WorkloadMode int

const (
	WorkloadConcurrent WorkloadMode = iota
	WorkloadSequential
	WorkloadTiming
)

func (m WorkloadMode) String() string {
	switch m {
	case WorkloadSequential:
		return "sequential"
	case WorkloadTiming:
		return "timing"
	default:
		return "concurrent"
	}
}

type WorkloadOptions struct {
	Model    string
	Requests int
	Workers  int
	Mode     WorkloadMode
}

func (o WorkloadOptions) withDefaults() WorkloadOptions {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Requests <= 0 {
		o.Requests = DefaultRequests
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// Workload sends a batch of identical requests and looks at how the
// gateway spread and timed them.
func (r *Runner) Workload(ctx context.Context, opts WorkloadOptions) error {
	opts = opts.withDefaults()
	mode := probe.Concurrent(opts.Workers)
	if opts.Mode != WorkloadConcurrent {
		mode = probe.Sequential()
	}
	r.logger().Info("Starting workload test", "mode", opts.Mode, "model", opts.Model, "requests", opts.Requests, "workers", mode.Workers())

	probes := probe.NewProbes(opts.Requests, r.request(opts.Model, "", 10), nil)
	batch := r.dispatcher().Dispatch(ctx, probes, mode)
	if batch.Cancelled {
		return ctx.Err()
	}
	r.logger().Info("All requests completed", "in", logutil.FormatDuration(batch.WallClock()))
	for _, o := range batch.Errors() {
		r.logger().Error(fmt.Sprintf("Request %d: %v", o.ProbeID, o.Err))
	}

	if f := batch.FirstFailure(probe.CategoryCredential); f != nil {
		name := "Requests succeeded"
		if opts.Mode == WorkloadTiming {
			name = "Timing analysis"
		}
		r.Result.RecordError(report.LoadDistribution, name, f)
		return nil
	}

	successes := batch.Successes()
	r.Result.SetDistribution(analyze.DistributionSummary(batch.Outcomes))

	if opts.Mode == WorkloadTiming {
		span := batch.SuccessSpan()
		r.Result.SetTiming(span, batch.SumLatency(), batch.Latencies())
		if len(successes) == 0 {
			r.Result.Record(report.LoadDistribution, "Timing analysis", analyze.Fail("No successful requests for timing analysis"))
			return nil
		}
		r.Result.Record(report.LoadDistribution, "Parallel processing", analyze.Parallelism(span, batch.SumLatency()))
		r.Result.Record(report.LoadDistribution, "Response time variance", analyze.Variance(analyze.TimingStats(batch.Latencies())))
		return nil
	}

	r.Result.SetTiming(batch.WallClock(), batch.SumLatency(), batch.Latencies())
	r.Result.Record(report.LoadDistribution, "Requests succeeded", analyze.AllSucceeded(len(successes), opts.Requests))
	verdict, _ := analyze.Distribution(batch.Outcomes)
	r.Result.Record(report.LoadDistribution, "Runner distribution", verdict)
	return nil
}
