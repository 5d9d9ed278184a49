package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/report"
)

func newReportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report <path>",
		Short: "Print a report saved with --report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := report.Load(args[0])
			if err != nil {
				return fmt.Errorf("load report: %w", err)
			}
			verbose := a.flags.verbose || a.flags.debug
			if err := report.Render(cmd.OutOrStdout(), res, report.RenderOptions{Verbose: verbose}); err != nil {
				return err
			}
			if code := res.ExitCode(); code != report.ExitOK {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
}
