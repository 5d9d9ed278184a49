// Package gateway is a thin client for the inference gateway's OpenAI
// compatible surface: GET /v1/models and POST /v1/chat/completions.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	log "github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lkarlslund/gwprobe/pkg/logutil"
	"github.com/lkarlslund/gwprobe/pkg/version"
)

const (
	DefaultTimeout = 60 * time.Second
	maxErrorBody   = 8192
)

// TokenSource resolves a bearer token for a (user, role) hint.
type TokenSource interface {
	Acquire(ctx context.Context, user, role string) (string, error)
}

type Options struct {
	BaseURL     string
	Timeout     time.Duration
	VerifyTLS   bool
	Credentials TokenSource
	Logger      *log.Logger
	RunID       string
	// Dump logs request payloads at debug level.
	Dump bool
	// MaxConns sizes the idle connection pool; use the worker count.
	MaxConns int
	// HTTPClient replaces the client built from the options above.
	HTTPClient *http.Client
}

// RawResponse is an undecoded gateway response.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *RawResponse) Text() string { return string(r.Body) }

func (r *RawResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode <= 299 }

// Client is safe for concurrent use; its only shared state is the
// http.Client and the credential source.
type Client struct {
	baseURL *url.URL
	timeout time.Duration
	http    *http.Client
	creds   TokenSource
	logger  *log.Logger
	dump    bool
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("base url is empty")
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", raw)
	}
	// Accept both https://host and https://host/v1.
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/v1")

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: headerRoundTripper{
				Base:      newTransport(opts.VerifyTLS, opts.MaxConns),
				RunID:     opts.RunID,
				UserAgent: version.UserAgent(),
			},
		}
	}
	return &Client{
		baseURL: u,
		timeout: timeout,
		http:    hc,
		creds:   opts.Credentials,
		logger:  logutil.OrDiscard(opts.Logger),
		dump:    opts.Dump,
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL.String() }

func (c *Client) Timeout() time.Duration { return c.timeout }

func (c *Client) endpoint(p string) string {
	u := *c.baseURL
	u.Path = path.Join("/", u.Path, p)
	return u.String()
}

// authHeaders resolves the Authorization header for the call. It has no
// side effects beyond the credential lookup.
func (c *Client) authHeaders(ctx context.Context, o callOptions) (http.Header, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	switch {
	case o.noAuth:
	case o.bearer != "":
		h.Set("Authorization", "Bearer "+o.bearer)
	default:
		if c.creds == nil {
			return nil, fmt.Errorf("no credential source configured")
		}
		tok, err := c.creds.Acquire(ctx, o.user, o.role)
		if err != nil {
			return nil, err
		}
		h.Set("Authorization", "Bearer "+tok)
	}
	return h, nil
}

// ListModels calls GET /v1/models.
func (c *Client) ListModels(ctx context.Context, opts ...CallOption) (openai.ModelsList, error) {
	const op = "list models"
	var out openai.ModelsList
	raw, err := c.do(ctx, op, http.MethodGet, "/v1/models", nil, c.timeout, collectOptions(opts))
	if err != nil {
		return out, err
	}
	if !raw.OK() {
		return out, &HTTPError{Op: op, StatusCode: raw.StatusCode, Body: raw.Text()}
	}
	if err := json.Unmarshal(raw.Body, &out); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return out, nil
}

// ChatCompletion calls POST /v1/chat/completions and decodes the response.
func (c *Client) ChatCompletion(ctx context.Context, req Request, opts ...CallOption) (openai.ChatCompletionResponse, error) {
	const op = "chat completion"
	var out openai.ChatCompletionResponse
	raw, err := c.ChatCompletionRaw(ctx, req, opts...)
	if err != nil {
		return out, err
	}
	if !raw.OK() {
		return out, &HTTPError{Op: op, StatusCode: raw.StatusCode, Body: raw.Text()}
	}
	if err := json.Unmarshal(raw.Body, &out); err != nil {
		return out, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return out, nil
}

// ChatCompletionRaw sends the same request as ChatCompletion but returns
// the response undecoded, without treating non-2xx as an error.
func (c *Client) ChatCompletionRaw(ctx context.Context, req Request, opts ...CallOption) (*RawResponse, error) {
	const op = "chat completion"
	body, err := json.Marshal(req.payload())
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	o := collectOptions(opts)
	c.logger.Debug("POST /v1/chat/completions", "model", req.Model, "probe", o.probeID)
	if c.dump {
		c.logger.Debug("request payload", "body", string(body))
	}
	return c.do(ctx, op, http.MethodPost, "/v1/chat/completions", body, timeout, o)
}

func (c *Client) do(ctx context.Context, op, method, p string, body []byte, timeout time.Duration, o callOptions) (*RawResponse, error) {
	headers, err := c.authHeaders(ctx, o)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(withProbeID(ctx, o.probeID), timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, method, c.endpoint(p), rdr)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header = headers
	if method == http.MethodGet {
		httpReq.Header.Del("Content-Type")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifyDoError(op, ctx, timeout, err)
	}
	defer resp.Body.Close()

	limit := int64(-1)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		limit = maxErrorBody
	}
	var b []byte
	if limit > 0 {
		b, err = io.ReadAll(io.LimitReader(resp.Body, limit))
	} else {
		b, err = io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, classifyDoError(op, ctx, timeout, err)
	}
	c.logger.Debug("gateway response", "op", op, "status", resp.StatusCode, "bytes", len(b))
	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: b}, nil
}
