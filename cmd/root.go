package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lkarlslund/gwprobe/pkg/config"
	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/report"
	"github.com/lkarlslund/gwprobe/pkg/suite"
)

// ExitError carries a non-zero process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// ExitCode maps the error returned by Execute to a process exit code and
// reports unexpected errors on w.
func ExitCode(w io.Writer, err error) int {
	if err == nil {
		return report.ExitOK
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	if errors.Is(err, context.Canceled) {
		return report.ExitInterrupted
	}
	fmt.Fprintln(w, "error:", err)
	return report.ExitFailed
}

type globalFlags struct {
	configPath  string
	url         string
	token       string
	tokenBinary string
	timeout     int
	noVerifySSL bool
	verbose     bool
	debug       bool
	quiet       bool
	reportPath  string
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	flags  globalFlags
}

func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	return newRootCmd(&app{stdout: stdout, stderr: stderr, getenv: os.Getenv})
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gwprobe",
		Short: "Gateway conformance and load test harness",
		Long:  "gwprobe checks an OpenAI-compatible inference gateway for authentication, routing, load distribution and wake-on-LAN behavior.",
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", config.DefaultPath(), "Config TOML path")
	pf.StringVar(&a.flags.url, "url", config.DefaultBaseURL, "Gateway base URL")
	pf.StringVar(&a.flags.token, "token", "", "Static bearer token for unscoped requests")
	pf.StringVar(&a.flags.tokenBinary, "token-binary", "", "Executable that mints scoped tokens (--user, --role)")
	pf.IntVar(&a.flags.timeout, "timeout", 0, "Per-request timeout in seconds (default depends on the command)")
	pf.BoolVar(&a.flags.noVerifySSL, "no-verify-ssl", false, "Skip TLS certificate verification")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Verbose output")
	pf.BoolVar(&a.flags.debug, "debug", false, "Debug output, including request payloads")
	pf.BoolVar(&a.flags.quiet, "quiet", false, "Only print warnings, errors and the summary")
	pf.StringVar(&a.flags.reportPath, "report", "", "Write the run result as JSON (.zst to compress)")
	root.MarkFlagsMutuallyExclusive("quiet", "verbose")
	root.MarkFlagsMutuallyExclusive("quiet", "debug")

	root.AddCommand(
		newAuthCmd(a),
		newRoutingCmd(a),
		newWorkloadCmd(a),
		newWOLCmd(a),
		newMockGatewayCmd(a),
		newConfigCmd(a),
		newReportCmd(a),
		newVersionCmd(a),
	)
	return root
}

// loadConfig reads the config file, loads its env file, then overlays the
// environment and flags that were set explicitly. A missing file is fine
// unless --config was given.
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg, err := config.Load(a.flags.configPath, !flags.Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(a.getenv)
	if flags.Changed("url") {
		cfg.BaseURL = a.flags.url
	}
	if flags.Changed("token") {
		cfg.Token = a.flags.token
	}
	if flags.Changed("token-binary") {
		cfg.TokenBinary = a.flags.tokenBinary
	}
	if flags.Changed("timeout") {
		cfg.TimeoutSeconds = a.flags.timeout
	}
	if flags.Changed("no-verify-ssl") {
		cfg.VerifyTLS = !a.flags.noVerifySSL
	}
	if flags.Changed("report") {
		cfg.ReportPath = a.flags.reportPath
	}
	switch {
	case a.flags.debug:
		cfg.Verbosity = logutil.Debug.String()
	case a.flags.verbose:
		cfg.Verbosity = logutil.Verbose.String()
	case a.flags.quiet:
		cfg.Verbosity = logutil.Quiet.String()
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is everything one suite run needs.
type session struct {
	cfg       *config.Config
	verbosity logutil.Verbosity
	logger    *log.Logger
	result    *report.Result
	runner    *suite.Runner
}

func (a *app) newSession(cmd *cobra.Command, name string) (*session, error) {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	v, err := logutil.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return nil, err
	}
	logger := logutil.New(a.stderr, v)

	result := report.New(name, cfg.BaseURL, logger)
	creds := credentials.NewManager(credentials.Options{
		Token:        cfg.Token,
		Binary:       cfg.TokenBinary,
		IssueTimeout: cfg.TokenTimeout(),
		EnvVar:       cfg.TokenEnv,
		CacheTTL:     cfg.TokenCacheTTL(),
		Getenv:       a.getenv,
		Logger:       logger,
	})
	timeout := cfg.RequestTimeout(name)
	client, err := gateway.New(gateway.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     timeout,
		VerifyTLS:   cfg.VerifyTLS,
		Credentials: creds,
		Logger:      logger,
		RunID:       result.RunID,
		Dump:        v == logutil.Debug,
		MaxConns:    cfg.Workers,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("starting run", "suite", name, "url", cfg.BaseURL, "run", result.RunID, "timeout", timeout)
	return &session{
		cfg:       cfg,
		verbosity: v,
		logger:    logger,
		result:    result,
		runner: &suite.Runner{
			Gateway:     client,
			Credentials: creds,
			Result:      result,
			Logger:      logger,
			Timeout:     timeout,
		},
	}, nil
}

// finish renders the result, archives it when asked and turns the outcome
// into an exit code. Interrupted runs still print what they recorded.
func (a *app) finish(ctx context.Context, s *session, runErr error) error {
	interrupted := runErr != nil && ctx.Err() != nil
	if runErr != nil && !interrupted {
		return runErr
	}
	s.result.Finish(interrupted)
	if err := report.Render(a.stdout, s.result, report.RenderOptions{Verbose: s.verbosity >= logutil.Verbose}); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if s.cfg.ReportPath != "" {
		if err := report.Save(s.cfg.ReportPath, s.result); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		s.logger.Info("Report saved", "path", s.cfg.ReportPath)
	}
	if code := s.result.ExitCode(); code != report.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

// runSuite wires a session to one suite invocation.
func (a *app) runSuite(cmd *cobra.Command, name string, run func(context.Context, *session) error) error {
	s, err := a.newSession(cmd, name)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return a.finish(ctx, s, run(ctx, s))
}
