package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/suite"
)

func newWorkloadCmd(a *app) *cobra.Command {
	var (
		model      string
		requests   int
		workers    int
		sequential bool
		timing     bool
	)
	cmd := &cobra.Command{
		Use:   "workload",
		Short: "Send a batch of requests and check distribution and parallelism",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSuite(cmd, "workload", func(ctx context.Context, s *session) error {
				opts := suite.WorkloadOptions{
					Model:    s.cfg.Model,
					Requests: s.cfg.Requests,
					Workers:  s.cfg.Workers,
				}
				flags := cmd.Flags()
				if flags.Changed("model") {
					opts.Model = model
				}
				if flags.Changed("requests") {
					opts.Requests = requests
				}
				if flags.Changed("workers") {
					opts.Workers = workers
				}
				switch {
				case timing:
					opts.Mode = suite.WorkloadTiming
				case sequential:
					opts.Mode = suite.WorkloadSequential
				}
				return s.runner.Workload(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model or class selector (default from config)")
	cmd.Flags().IntVarP(&requests, "requests", "n", 0, "Number of requests (default from config)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent requests in flight (default from config)")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "Send requests one at a time")
	cmd.Flags().BoolVar(&timing, "analyze-timing", false, "Measure sequential latencies and check for parallel processing")
	cmd.MarkFlagsMutuallyExclusive("sequential", "analyze-timing")
	return cmd
}
