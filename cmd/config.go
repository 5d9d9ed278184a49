package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/config"
)

const redacted = "********"

func newConfigCmd(a *app) *cobra.Command {
	var (
		write      bool
		initialize bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration, create it with --init or save it with --write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if initialize {
				if _, err := config.LoadOrCreate(a.flags.configPath); err != nil {
					return fmt.Errorf("init config: %w", err)
				}
				fmt.Fprintf(out, "Config at %s\n", a.flags.configPath)
				return nil
			}
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			if write {
				if err := config.Save(a.flags.configPath, cfg); err != nil {
					return fmt.Errorf("save config: %w", err)
				}
				fmt.Fprintf(out, "Saved config to %s\n", a.flags.configPath)
				return nil
			}
			shown := *cfg
			if shown.Token != "" {
				shown.Token = redacted
			}
			b, err := config.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = out.Write(b)
			return err
		},
	}
	cmd.Flags().BoolVar(&initialize, "init", false, "Write the default configuration to --config unless it already exists")
	cmd.Flags().BoolVar(&write, "write", false, "Save the effective configuration, including flag overrides, to --config")
	cmd.MarkFlagsMutuallyExclusive("init", "write")
	return cmd
}
