package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/suite"
)

func newRoutingCmd(a *app) *cobra.Command {
	var (
		model       string
		models      []string
		permissions bool
	)
	cmd := &cobra.Command{
		Use:   "routing",
		Short: "Check model and class routing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSuite(cmd, "routing", func(ctx context.Context, s *session) error {
				opts := suite.RoutingOptions{
					Models:        models,
					Permissions:   permissions,
					SpecificModel: s.cfg.SpecificModel,
				}
				if cmd.Flags().Changed("model") {
					opts.Models = []string{model}
				}
				return s.runner.Routing(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Test a single model or class selector")
	cmd.Flags().StringSliceVar(&models, "models", nil, "Test several models (comma separated)")
	cmd.Flags().BoolVar(&permissions, "test-permissions", false, "Test model access by role instead")
	cmd.MarkFlagsMutuallyExclusive("model", "models", "test-permissions")
	return cmd
}
