package suite

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lkarlslund/gwprobe/pkg/credentials"
	"github.com/lkarlslund/gwprobe/pkg/gateway"
	"github.com/lkarlslund/gwprobe/pkg/mockgw"
	"github.com/lkarlslund/gwprobe/pkg/report"
)

// roleIssuer hands out the fake gateway's fixed tokens by role.
type roleIssuer struct{}

func (roleIssuer) Issue(_ context.Context, scope credentials.Scope) (string, error) {
	switch scope.Role {
	case credentials.RoleModelSpecific:
		return "specific-token", nil
	case credentials.RoleAdmin:
		return "admin-token", nil
	default:
		return "basic-token", nil
	}
}

type fixture struct {
	runner *Runner
	gw     *mockgw.Server
}

func newFixture(t *testing.T, cfg mockgw.Config, creds credentials.Options) fixture {
	t.Helper()
	gw := mockgw.New(cfg, nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)

	if creds.Getenv == nil {
		creds.Getenv = func(string) string { return "" }
	}
	mgr := credentials.NewManager(creds)
	client, err := gateway.New(gateway.Options{BaseURL: srv.URL, Timeout: 5 * time.Second, VerifyTLS: true, Credentials: mgr})
	require.NoError(t, err)
	return fixture{
		runner: &Runner{
			Gateway:     client,
			Credentials: mgr,
			Result:      report.New("test", srv.URL, nil),
			Timeout:     5 * time.Second,
		},
		gw: gw,
	}
}

func quickConfig() mockgw.Config {
	cfg := mockgw.DefaultConfig()
	cfg.Latency = 0
	return cfg
}

func checkByName(t *testing.T, res *report.Result, name string) report.Check {
	t.Helper()
	for _, c := range res.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no check named %q in %+v", name, res.Checks)
	return report.Check{}
}

func TestAuthAllCategoriesPass(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Issuer: roleIssuer{}})
	require.NoError(t, f.runner.Auth(context.Background(), AuthOptions{}))

	res := f.runner.Result
	require.Equal(t, 7, res.TestsRun(), "%+v", res.Checks)
	require.True(t, res.Success(), "%+v", res.Checks)
	require.Equal(t, "Correctly rejected with 401", checkByName(t, res, "No authentication").Message)
	require.Equal(t, "Correctly rejected invalid token", checkByName(t, res, "Invalid token").Message)
	require.Equal(t, "Class request attempted (got 500 - likely no runners/models)", checkByName(t, res, "Basic user: class:big").Message)
	require.Equal(t, "Correctly denied specific model request", checkByName(t, res, "Basic user: specific model (should fail)").Message)
	require.Equal(t, "Admin role can access class:fast", checkByName(t, res, "admin role: full access").Message)
}

func TestAuthWithoutCredentialsSkips(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{})
	require.NoError(t, f.runner.Auth(context.Background(), AuthOptions{}))

	res := f.runner.Result
	require.Equal(t, 4, res.TestsRun())
	require.Equal(t, 2, res.Passed())
	basic := checkByName(t, res, "Basic user tests")
	require.True(t, basic.Errored)
	require.Equal(t, "Skipped: No token or token_binary provided", basic.Message)
	require.Equal(t, "Skipped: --token-binary required for role-based testing", checkByName(t, res, "Role-based tests").Message)
	require.Equal(t, report.ExitFailed, res.ExitCode())
}

func TestAuthStaticTokenWithoutBinary(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.Auth(context.Background(), AuthOptions{}))

	res := f.runner.Result
	require.True(t, checkByName(t, res, "Basic user: class:fast").Passed)
	require.True(t, checkByName(t, res, "Basic user: specific model (should fail)").Passed)
	require.True(t, checkByName(t, res, "Role-based tests").Errored)
}

func TestRoutingModels(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Token: "specific-token"})
	err := f.runner.Routing(context.Background(), RoutingOptions{Models: []string{"class:fast", "llama3:8b", "class:big"}})
	require.NoError(t, err)

	res := f.runner.Result
	require.Equal(t, 3, res.TestsRun())
	require.True(t, strings.HasPrefix(checkByName(t, res, "class:fast").Message, "Class request routed to "))
	require.Equal(t, "Request routed to llama3:8b", checkByName(t, res, "llama3:8b").Message)
	big := checkByName(t, res, "class:big")
	require.False(t, big.Passed)
	require.Equal(t, "No models configured for class 'big'", big.Message)
}

func TestRoutingPermissions(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Issuer: roleIssuer{}})
	require.NoError(t, f.runner.Routing(context.Background(), RoutingOptions{Permissions: true}))

	res := f.runner.Result
	require.Equal(t, 3, res.TestsRun(), "%+v", res.Checks)
	require.True(t, res.Success(), "%+v", res.Checks)
	require.True(t, checkByName(t, res, "Permission check for llama3.2:3b").Passed)
	require.Equal(t, "Request routed to llama3.2:3b", checkByName(t, res, "llama3.2:3b (with model:specific role)").Message)
}

func TestRoutingPermissionsWithoutBinaryNotes(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.Routing(context.Background(), RoutingOptions{Permissions: true}))

	res := f.runner.Result
	require.Equal(t, 2, res.TestsRun())
	require.Len(t, res.Notes, 1)
	require.True(t, res.Success())
}

func TestWorkloadConcurrentDistributes(t *testing.T) {
	cfg := mockgw.DefaultConfig()
	cfg.Latency = 20 * time.Millisecond
	for i := range cfg.Runners {
		cfg.Runners[i].Slots = 4
	}
	f := newFixture(t, cfg, credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.Workload(context.Background(), WorkloadOptions{Requests: 10, Workers: 4}))

	res := f.runner.Result
	require.True(t, res.Success(), "%+v", res.Checks)
	require.Equal(t, "All 10 requests succeeded", checkByName(t, res, "Requests succeeded").Message)
	require.Equal(t, "Requests distributed across 2 runners", checkByName(t, res, "Runner distribution").Message)
	require.Len(t, res.Distribution, 2)
	require.Equal(t, 10, res.Distribution[0].Count+res.Distribution[1].Count)
	require.LessOrEqual(t, f.gw.Stats().MaxInFlight, int64(4))
	require.NotNil(t, res.Timing)
	require.Equal(t, 10, res.Timing.Count)
}

func TestWorkloadSingleRunnerWarns(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Token: "specific-token"})
	err := f.runner.Workload(context.Background(), WorkloadOptions{Model: "llama3:8b", Requests: 4, Mode: WorkloadSequential})
	require.NoError(t, err)

	res := f.runner.Result
	require.Equal(t, 1, res.TestsRun())
	require.True(t, res.Success())
	require.Len(t, res.Notes, 1)
	require.Equal(t, "All requests went to a single runner/model", res.Notes[0].Message)
}

func TestWorkloadFailuresAreCounted(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.Workload(context.Background(), WorkloadOptions{Model: "llama3:8b", Requests: 3, Workers: 3}))

	res := f.runner.Result
	require.Equal(t, "Only 0/3 requests succeeded", checkByName(t, res, "Requests succeeded").Message)
	require.Equal(t, "No successful requests to measure distribution", checkByName(t, res, "Runner distribution").Message)
	require.Equal(t, 2, res.Failed())
}

func TestWorkloadWithoutCredentials(t *testing.T) {
	for _, mode := range []WorkloadMode{WorkloadConcurrent, WorkloadTiming} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, quickConfig(), credentials.Options{})
			require.NoError(t, f.runner.Workload(context.Background(), WorkloadOptions{Requests: 3, Mode: mode}))

			res := f.runner.Result
			require.Equal(t, 1, res.TestsRun(), "%+v", res.Checks)
			require.True(t, res.Checks[0].Errored)
			require.Contains(t, res.Checks[0].Message, "SIMPLEAI_TEST_TOKEN")
			require.Empty(t, res.Notes)
			require.Empty(t, res.Distribution)
			require.Equal(t, report.ExitFailed, res.ExitCode())
			require.Zero(t, f.gw.Stats().MaxInFlight)
		})
	}
}

func TestWorkloadTiming(t *testing.T) {
	cfg := mockgw.DefaultConfig()
	cfg.Latency = 5 * time.Millisecond
	f := newFixture(t, cfg, credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.Workload(context.Background(), WorkloadOptions{Requests: 4, Mode: WorkloadTiming}))

	res := f.runner.Result
	require.Equal(t, 0, res.TestsRun(), "sequential requests never show parallelism: %+v", res.Checks)
	require.Len(t, res.Notes, 2)
	require.NotNil(t, res.Timing)
	require.Equal(t, 4, res.Timing.Count)
}

func TestWorkloadCancelled(t *testing.T) {
	cfg := mockgw.DefaultConfig()
	cfg.Latency = time.Second
	f := newFixture(t, cfg, credentials.Options{Token: "basic-token"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := f.runner.Workload(ctx, WorkloadOptions{Requests: 4, Workers: 2})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, f.runner.Result.TestsRun())
}

func TestWOLWakesFleet(t *testing.T) {
	cfg := quickConfig()
	cfg.WakeEnabled = true
	cfg.WakeDelay = 20 * time.Millisecond
	for i := range cfg.Runners {
		cfg.Runners[i].Offline = true
	}
	f := newFixture(t, cfg, credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.WOL(context.Background(), WOLOptions{}))

	res := f.runner.Result
	require.Equal(t, 3, res.TestsRun(), "%+v", res.Checks)
	require.True(t, res.Success(), "%+v", res.Checks)
	require.Equal(t, "No runners currently available", checkByName(t, res, "Initial runner status").Message)
	require.Len(t, res.Notes, 1)
	require.Equal(t, "WOL appears successful: runner came online", res.Notes[0].Message)
	require.EqualValues(t, 1, f.gw.Stats().Wakes)
}

func TestWOLFailsWithoutWake(t *testing.T) {
	cfg := quickConfig()
	for i := range cfg.Runners {
		cfg.Runners[i].Offline = true
	}
	f := newFixture(t, cfg, credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.WOL(context.Background(), WOLOptions{}))

	res := f.runner.Result
	require.Equal(t, 2, res.TestsRun())
	req := checkByName(t, res, "Inference request")
	require.False(t, req.Passed)
	require.Equal(t, "Inference request failed: HTTP 500: No runners available", req.Message)
}

func TestWOLTiming(t *testing.T) {
	f := newFixture(t, quickConfig(), credentials.Options{Token: "basic-token"})
	require.NoError(t, f.runner.WOL(context.Background(), WOLOptions{Timing: true}))

	res := f.runner.Result
	require.Equal(t, 1, res.TestsRun())
	require.True(t, res.Success())
	require.Len(t, res.Notes, 2)
	require.Contains(t, res.Notes[0].Message, "Runners already online")
	require.Contains(t, res.Notes[1].Message, "Fast wake")
}
