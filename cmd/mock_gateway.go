package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/mockgw"
)

func newMockGatewayCmd(a *app) *cobra.Command {
	var (
		listen    string
		latency   time.Duration
		wakeDelay time.Duration
		offline   bool
	)
	cmd := &cobra.Command{
		Use:   "mock-gateway",
		Short: "Serve a fake gateway for local dry runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			mc := cfg.MockGateway
			flags := cmd.Flags()
			if flags.Changed("listen") {
				mc.Listen = listen
			}
			if flags.Changed("latency") {
				mc.LatencyMS = int(latency / time.Millisecond)
			}
			if flags.Changed("wake-delay") {
				mc.WakeDelayMS = int(wakeDelay / time.Millisecond)
			}
			if flags.Changed("offline") {
				mc.StartOffline = offline
			}

			v, err := logutil.ParseVerbosity(cfg.Verbosity)
			if err != nil {
				return err
			}
			logger := logutil.New(a.stderr, v)

			gwCfg := mockgw.DefaultConfig()
			gwCfg.Latency = time.Duration(mc.LatencyMS) * time.Millisecond
			gwCfg.WakeEnabled = true
			gwCfg.WakeDelay = time.Duration(mc.WakeDelayMS) * time.Millisecond
			for i := range gwCfg.Runners {
				gwCfg.Runners[i].Offline = mc.StartOffline
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Mock gateway on http://%s\n", mc.Listen)
			tokens := make([]string, 0, len(gwCfg.Tokens))
			for tok := range gwCfg.Tokens {
				tokens = append(tokens, tok)
			}
			sort.Strings(tokens)
			for _, tok := range tokens {
				roles := strings.Join(gwCfg.Tokens[tok], ", ")
				if roles == "" {
					roles = "basic"
				}
				fmt.Fprintf(out, "  token %-15s %s\n", tok, roles)
			}

			return mockgw.New(gwCfg, logger).ListenAndServe(cmd.Context(), mc.Listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, 127.0.0.1:8089)")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Simulated inference latency per request")
	cmd.Flags().DurationVar(&wakeDelay, "wake-delay", 0, "Time a sleeping fleet takes to come online")
	cmd.Flags().BoolVar(&offline, "offline", false, "Start with every runner asleep")
	return cmd
}
