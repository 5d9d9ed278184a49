package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/version"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Current().Detailed())
			return err
		},
	}
}
