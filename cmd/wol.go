package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/suite"
)

func newWOLCmd(a *app) *cobra.Command {
	var (
		model  string
		timing bool
	)
	cmd := &cobra.Command{
		Use:   "wol",
		Short: "Check that a request wakes a sleeping runner fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSuite(cmd, "wol", func(ctx context.Context, s *session) error {
				opts := suite.WOLOptions{Model: s.cfg.Model, Timing: timing}
				if cmd.Flags().Changed("model") {
					opts.Model = model
				}
				return s.runner.WOL(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model or class selector (default from config)")
	cmd.Flags().BoolVar(&timing, "timing", false, "Only measure how long the wake takes")
	return cmd
}
