package analyze

import (
	"math"
	"sort"
	"time"

	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/probe"
)

const (
	// ParallelThreshold is the share of summed latency that the batch wall
	// clock must stay under before parallel processing is inferred.
	ParallelThreshold = 0.8
	// ConsistencyThreshold is the stddev/mean ratio under which response
	// times count as consistent.
	ConsistencyThreshold = 0.2

	unknownModel = "unknown"
)

// AllSucceeded expects every probe in a batch to have succeeded.
func AllSucceeded(successes, total int) Verdict {
	if successes == total {
		return Pass("All %d requests succeeded", total)
	}
	return Fail("Only %d/%d requests succeeded", successes, total)
}

// ModelCount is one row of a distribution summary.
type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

// DistributionSummary counts successful outcomes per resolved model, most
// frequent first and ties broken by model id.
func DistributionSummary(outcomes []probe.Outcome) []ModelCount {
	counts := map[string]int{}
	for _, o := range outcomes {
		if !o.Succeeded {
			continue
		}
		model := o.ResolvedModel
		if model == "" {
			model = unknownModel
		}
		counts[model]++
	}
	out := make([]ModelCount, 0, len(counts))
	for model, n := range counts {
		out = append(out, ModelCount{Model: model, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// Distribution looks for evidence that a batch was spread over more than
// one runner. A single runner is a warning, not a failure.
func Distribution(outcomes []probe.Outcome) (Verdict, []ModelCount) {
	summary := DistributionSummary(outcomes)
	switch len(summary) {
	case 0:
		return Fail("No successful requests to measure distribution"), summary
	case 1:
		return Warn("All requests went to a single runner/model"), summary
	default:
		return Pass("Requests distributed across %d runners", len(summary)), summary
	}
}

// Parallelism compares a batch's wall clock against the sum of its probe
// latencies. Sequential processing is not a failure, so that case is info.
func Parallelism(wall, sum time.Duration) Verdict {
	if sum <= 0 {
		return Fail("No successful requests for timing analysis")
	}
	if float64(wall) < float64(sum)*ParallelThreshold {
		return Pass("Evidence of parallel processing (%s wall clock vs %s summed)",
			logutil.FormatDuration(wall), logutil.FormatDuration(sum))
	}
	return Info("Requests appear to be processed sequentially (%s wall clock vs %s summed)",
		logutil.FormatDuration(wall), logutil.FormatDuration(sum))
}

// Timing summarizes a set of latencies.
type Timing struct {
	Count      int           `json:"count"`
	Mean       time.Duration `json:"mean"`
	Min        time.Duration `json:"min"`
	Max        time.Duration `json:"max"`
	StdDev     time.Duration `json:"stddev"`
	Consistent bool          `json:"consistent"`
}

// TimingStats computes population statistics over latencies.
func TimingStats(latencies []time.Duration) Timing {
	t := Timing{Count: len(latencies)}
	if t.Count == 0 {
		return t
	}
	var sum float64
	t.Min, t.Max = latencies[0], latencies[0]
	for _, l := range latencies {
		sum += float64(l)
		t.Min = min(t.Min, l)
		t.Max = max(t.Max, l)
	}
	mean := sum / float64(t.Count)
	var sq float64
	for _, l := range latencies {
		d := float64(l) - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(t.Count))
	t.Mean = time.Duration(mean)
	t.StdDev = time.Duration(std)
	t.Consistent = std < mean*ConsistencyThreshold
	return t
}

// Variance describes the spread of a Timing as a note.
func Variance(t Timing) Verdict {
	if t.Count == 0 {
		return Info("No latencies recorded")
	}
	if t.Consistent {
		return Info("Low variance - consistent response times (avg %s, stddev %s)",
			logutil.FormatDuration(t.Mean), logutil.FormatDuration(t.StdDev))
	}
	return Info("Higher variance - may indicate different runners or load conditions (avg %s, stddev %s)",
		logutil.FormatDuration(t.Mean), logutil.FormatDuration(t.StdDev))
}
