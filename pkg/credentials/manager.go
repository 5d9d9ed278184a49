// Package credentials resolves bearer tokens for the gateway, scoped by the
// (user, role) hint that a check wants to act as.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/lkarlslund/gwprobe/pkg/cache"
	"github.com/lkarlslund/gwprobe/pkg/logutil"
)

// DefaultEnvVar holds an unscoped fallback token.
const DefaultEnvVar = "SIMPLEAI_TEST_TOKEN"

// Roles the gateway understands.
const (
	RoleModelSpecific = "model:specific"
	RoleAdmin         = "admin"
)

// Scope is the (user, role) hint passed to the token binary. Empty fields
// are unset.
type Scope struct {
	User string
	Role string
}

func (s Scope) Unscoped() bool { return s.User == "" && s.Role == "" }

func (s Scope) String() string {
	if s.Unscoped() {
		return "default"
	}
	parts := make([]string, 0, 2)
	if s.User != "" {
		parts = append(parts, "user="+s.User)
	}
	if s.Role != "" {
		parts = append(parts, "role="+s.Role)
	}
	return strings.Join(parts, ",")
}

// AcquisitionError is returned when no source could provide a token for the
// requested scope.
type AcquisitionError struct {
	Scope    Scope
	EnvVar   string
	Scoped   bool
	IssueErr error
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	if e.IssueErr != nil {
		fmt.Fprintf(&b, "no bearer token available for %s: %v", e.Scope, e.IssueErr)
	} else {
		fmt.Fprintf(&b, "no bearer token available for %s", e.Scope)
	}
	if e.Scoped {
		b.WriteString(" (scoped requests require --token-binary; --token and ")
		b.WriteString(e.EnvVar)
		b.WriteString(" are only used without --user/--role)")
		return b.String()
	}
	fmt.Fprintf(&b, "; provide one via --token, the %s environment variable, or --token-binary", e.EnvVar)
	return b.String()
}

func (e *AcquisitionError) Unwrap() error { return e.IssueErr }

func IsAcquisitionError(err error) bool {
	var e *AcquisitionError
	return errors.As(err, &e)
}

type Options struct {
	// Token is an unscoped override; it is never returned for a scoped request.
	Token        string
	Binary       string
	IssueTimeout time.Duration
	// Issuer replaces the process issuer built from Binary.
	Issuer Issuer
	EnvVar string
	// CacheTTL bounds how long a minted token is reused; zero keeps it for
	// the whole run.
	CacheTTL time.Duration
	Getenv   func(string) string
	Logger   *log.Logger
}

// Sources reports which token sources are configured.
type Sources struct {
	Static bool
	Binary bool
	Env    bool
}

func (s Sources) Any() bool { return s.Static || s.Binary || s.Env }

type Manager struct {
	static string
	issuer Issuer
	envVar string
	getenv func(string) string
	logger *log.Logger

	cacheTTL time.Duration
	cache    *cache.TTLMap[Scope, string]
	group    singleflight.Group
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		static:   strings.TrimSpace(opts.Token),
		issuer:   opts.Issuer,
		envVar:   strings.TrimSpace(opts.EnvVar),
		getenv:   opts.Getenv,
		logger:   logutil.OrDiscard(opts.Logger),
		cacheTTL: opts.CacheTTL,
		cache:    cache.NewTTLMap[Scope, string](),
	}
	if m.issuer == nil && strings.TrimSpace(opts.Binary) != "" {
		m.issuer = ProcessIssuer{Binary: strings.TrimSpace(opts.Binary), Timeout: opts.IssueTimeout}
	}
	if m.envVar == "" {
		m.envVar = DefaultEnvVar
	}
	if m.getenv == nil {
		m.getenv = os.Getenv
	}
	return m
}

func (m *Manager) Sources() Sources {
	return Sources{
		Static: m.static != "",
		Binary: m.issuer != nil,
		Env:    m.envToken() != "",
	}
}

// CanScope reports whether scoped tokens can be minted at all.
func (m *Manager) CanScope() bool { return m.issuer != nil }

// Acquire returns a bearer token for the given hints. Resolution order:
// cache, static token (unscoped only), token binary, environment token
// (unscoped only).
func (m *Manager) Acquire(ctx context.Context, user, role string) (string, error) {
	scope := Scope{User: strings.TrimSpace(user), Role: strings.TrimSpace(role)}
	if tok, ok := m.cache.Get(scope); ok {
		m.logger.Debug("using cached token", "scope", scope)
		return tok, nil
	}
	if m.static != "" && scope.Unscoped() {
		m.logger.Debug("using token from config")
		return m.static, nil
	}

	var issueErr error
	if m.issuer != nil {
		tok, err := m.issue(ctx, scope)
		if err == nil {
			return tok, nil
		}
		issueErr = err
		m.logger.Debug("token binary failed", "scope", scope, "err", err)
	}

	if scope.Unscoped() {
		if tok := m.envToken(); tok != "" {
			m.logger.Debug("using token from environment", "var", m.envVar)
			return tok, nil
		}
	}
	return "", &AcquisitionError{Scope: scope, EnvVar: m.envVar, Scoped: !scope.Unscoped(), IssueErr: issueErr}
}

func (m *Manager) issue(ctx context.Context, scope Scope) (string, error) {
	key := scope.User + "\x00" + scope.Role
	v, err, shared := m.group.Do(key, func() (any, error) {
		if tok, ok := m.cache.Get(scope); ok {
			return tok, nil
		}
		if p, ok := m.issuer.(ProcessIssuer); ok {
			m.logger.Debug("executing token binary", "cmd", p.Binary+" "+strings.Join(p.Args(scope), " "))
		}
		tok, err := m.issuer.Issue(ctx, scope)
		if err != nil {
			return "", err
		}
		m.cache.Set(scope, tok, m.cacheTTL)
		m.logger.Debug("token obtained", "scope", scope)
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		m.logger.Debug("joined in-flight token request", "scope", scope)
	}
	return v.(string), nil
}

func (m *Manager) envToken() string {
	return strings.TrimSpace(m.getenv(m.envVar))
}
