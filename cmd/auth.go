package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/suite"
)

func newAuthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check authentication and role based authorization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSuite(cmd, "auth", func(ctx context.Context, s *session) error {
				return s.runner.Auth(ctx, suite.AuthOptions{
					Model:         s.cfg.Model,
					SpecificModel: s.cfg.SpecificModel,
				})
			})
		},
	}
}
