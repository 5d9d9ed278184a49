package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultIssueTimeout bounds a single token binary invocation.
const DefaultIssueTimeout = 30 * time.Second

// Issuer mints a bearer token for a scope.
type Issuer interface {
	Issue(ctx context.Context, scope Scope) (string, error)
}

type IssueErrorKind string

const (
	IssueExit        IssueErrorKind = "exit"
	IssueTimeout     IssueErrorKind = "timeout"
	IssueNotFound    IssueErrorKind = "not-found"
	IssueEmptyOutput IssueErrorKind = "empty-output"
)

// IssueError describes why the token binary did not produce a token.
type IssueError struct {
	Kind     IssueErrorKind
	Binary   string
	ExitCode int
	Stderr   string
	Timeout  time.Duration
	Err      error
}

func (e *IssueError) Error() string {
	switch e.Kind {
	case IssueExit:
		msg := fmt.Sprintf("token binary failed with exit code %d", e.ExitCode)
		if s := strings.TrimSpace(e.Stderr); s != "" {
			msg += ": " + s
		}
		return msg
	case IssueTimeout:
		return fmt.Sprintf("token binary timed out after %s", e.Timeout)
	case IssueNotFound:
		return fmt.Sprintf("token binary not found: %s", e.Binary)
	case IssueEmptyOutput:
		return "token binary returned empty output"
	default:
		return fmt.Sprintf("token binary failed: %v", e.Err)
	}
}

func (e *IssueError) Unwrap() error { return e.Err }

// ProcessIssuer runs `<Binary> token [--user u] [--role r]` and reads the
// token from standard output.
type ProcessIssuer struct {
	Binary  string
	Timeout time.Duration

	// Environ overrides os.Environ for the child, mostly for tests.
	Environ func() []string
}

func (p ProcessIssuer) Args(scope Scope) []string {
	args := []string{"token"}
	if scope.User != "" {
		args = append(args, "--user", scope.User)
	}
	if scope.Role != "" {
		args = append(args, "--role", scope.Role)
	}
	return args
}

func (p ProcessIssuer) Issue(ctx context.Context, scope Scope) (string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultIssueTimeout
	}
	parent := ctx
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	proc := exec.CommandContext(ctx, p.Binary, p.Args(scope)...)
	proc.Env = p.env()
	// Orphaned grandchildren may hold stdout open after the kill.
	proc.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	err := proc.Run()
	if perr := parent.Err(); perr != nil {
		return "", fmt.Errorf("token binary %s: %w", p.Binary, perr)
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", &IssueError{Kind: IssueTimeout, Binary: p.Binary, Timeout: timeout, Err: ctx.Err()}
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			return "", &IssueError{Kind: IssueExit, Binary: p.Binary, ExitCode: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
		case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
			return "", &IssueError{Kind: IssueNotFound, Binary: p.Binary, Err: err}
		default:
			return "", &IssueError{Binary: p.Binary, Err: err}
		}
	}
	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return "", &IssueError{Kind: IssueEmptyOutput, Binary: p.Binary}
	}
	return token, nil
}

func (p ProcessIssuer) env() []string {
	var env []string
	if p.Environ != nil {
		env = p.Environ()
	} else {
		env = os.Environ()
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return env
	}
	out := make([]string, 0, len(env)+1)
	for _, e := range env {
		if strings.HasPrefix(e, "HOME=") {
			continue
		}
		out = append(out, e)
	}
	return append(out, "HOME="+home)
}
