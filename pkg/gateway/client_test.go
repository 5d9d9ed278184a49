package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lkarlslund/gwprobe/pkg/mockgw"
)

type staticSource map[string]string

func (s staticSource) Acquire(_ context.Context, user, role string) (string, error) {
	tok, ok := s[user+"|"+role]
	if !ok {
		return "", errors.New("no token for scope")
	}
	return tok, nil
}

func newMockClient(t *testing.T, creds TokenSource) (*Client, *mockgw.Server) {
	t.Helper()
	cfg := mockgw.DefaultConfig()
	cfg.Latency = 0
	gw := mockgw.New(cfg, nil)
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, VerifyTLS: true, Credentials: creds})
	require.NoError(t, err)
	return c, gw
}

func TestNewNormalizesBaseURL(t *testing.T) {
	c, err := New(Options{BaseURL: "https://gw.example.com/v1/"})
	require.NoError(t, err)
	require.Equal(t, "https://gw.example.com", c.BaseURL())
	require.Equal(t, "https://gw.example.com/v1/models", c.endpoint("/v1/models"))
	require.Equal(t, DefaultTimeout, c.Timeout())

	_, err = New(Options{BaseURL: "gw.example.com"})
	require.Error(t, err)
	_, err = New(Options{BaseURL: "  "})
	require.Error(t, err)
}

func TestChatCompletionResolvesScopedToken(t *testing.T) {
	creds := staticSource{
		"|":               "basic-token",
		"|model:specific": "specific-token",
	}
	c, _ := newMockClient(t, creds)
	ctx := context.Background()

	resp, err := c.ChatCompletion(ctx, NewRequest("class:fast", "hi"))
	require.NoError(t, err)
	require.False(t, IsClassSelector(ResolvedModel(resp)))
	require.Equal(t, "OK", Content(resp))

	_, err = c.ChatCompletion(ctx, NewRequest("llama3:8b", "hi"))
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, StatusCode(err))
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	require.True(t, PermissionDenied(he.Body))

	resp, err = c.ChatCompletion(ctx, NewRequest("llama3:8b", "hi"), AsRole("model:specific"))
	require.NoError(t, err)
	require.Equal(t, "llama3:8b", ResolvedModel(resp))
}

func TestChatCompletionRawDoesNotFailOnStatus(t *testing.T) {
	c, _ := newMockClient(t, staticSource{"|": "basic-token"})
	ctx := context.Background()

	raw, err := c.ChatCompletionRaw(ctx, NewRequest("class:fast", "hi"), Unauthenticated())
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, raw.StatusCode)
	require.False(t, raw.OK())

	raw, err = c.ChatCompletionRaw(ctx, NewRequest("class:fast", "hi"), WithBearer("invalid.token.here"))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, raw.StatusCode)
	require.Contains(t, raw.Text(), "Invalid token")

	raw, err = c.ChatCompletionRaw(ctx, NewRequest("class:fast", "hi"))
	require.NoError(t, err)
	require.True(t, raw.OK())
	require.NotEmpty(t, raw.Header.Get("X-Runner-ID"))
}

func TestCredentialErrorIsReturnedUnchanged(t *testing.T) {
	c, _ := newMockClient(t, staticSource{})
	_, err := c.ChatCompletion(context.Background(), NewRequest("class:fast", "hi"), AsUser("nobody"))
	require.EqualError(t, err, "no token for scope")
	require.False(t, IsTransport(err))
	require.False(t, IsTimeout(err))
}

func TestListModels(t *testing.T) {
	c, _ := newMockClient(t, staticSource{"|": "basic-token"})
	list, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, list.Models)
	id, ok := FirstSpecificModel(list)
	require.True(t, ok)
	require.Equal(t, "llama3.2:3b", id)
}

func TestRequestPayloadOmitsEmptyModel(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
		heads  []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		mu.Lock()
		bodies = append(bodies, m)
		heads = append(heads, r.Header.Clone())
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m","choices":[{"message":{"role":"assistant","content":"OK"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, RunID: "run1", Credentials: staticSource{"|": "tok"}})
	require.NoError(t, err)
	_, err = c.ChatCompletion(context.Background(), NewRequest("", "hi"), WithProbeID("7"))
	require.NoError(t, err)
	_, err = c.ChatCompletion(context.Background(), NewRequest("class:big", "hi").WithMaxTokens(10))
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	_, hasModel := bodies[0]["model"]
	require.False(t, hasModel)
	require.EqualValues(t, DefaultMaxTokens, bodies[0]["max_tokens"])
	require.Equal(t, "class:big", bodies[1]["model"])
	require.EqualValues(t, 10, bodies[1]["max_tokens"])

	require.Equal(t, "Bearer tok", heads[0].Get("Authorization"))
	require.Equal(t, "run1-7", heads[0].Get("X-Request-ID"))
	require.Equal(t, "run1", heads[1].Get("X-Request-ID"))
	require.True(t, strings.HasPrefix(heads[0].Get("User-Agent"), "gwprobe/"))
}

func TestTimeoutAndTransportClassification(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	c, err := New(Options{BaseURL: slow.URL, Credentials: staticSource{"|": "tok"}})
	require.NoError(t, err)
	_, err = c.ChatCompletion(context.Background(), NewRequest("class:fast", "hi").WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	require.True(t, IsTimeout(err), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = c.ChatCompletion(ctx, NewRequest("class:fast", "hi").WithTimeout(5*time.Second))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTimeout(err))

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()
	c, err = New(Options{BaseURL: url, Credentials: staticSource{"|": "tok"}})
	require.NoError(t, err)
	_, err = c.ChatCompletion(context.Background(), NewRequest("class:fast", "hi"))
	require.True(t, IsTransport(err), "got %v", err)
}

func TestBodyClassifiers(t *testing.T) {
	tests := []struct {
		body       string
		permission bool
		capacity   bool
		class      bool
	}{
		{"Permission denied: cannot request specific models. Use class:fast or class:big.", true, false, false},
		{"No models of class 'fast' configured", false, true, true},
		{"No runners have models of class 'big'", false, true, true},
		{"No runners available", false, true, false},
		{"internal error", false, false, false},
	}
	for _, tt := range tests {
		if got := PermissionDenied(tt.body); got != tt.permission {
			t.Fatalf("PermissionDenied(%q) = %v", tt.body, got)
		}
		if got := NoCapacity(tt.body); got != tt.capacity {
			t.Fatalf("NoCapacity(%q) = %v", tt.body, got)
		}
		if got := NoModelsOfClass(tt.body); got != tt.class {
			t.Fatalf("NoModelsOfClass(%q) = %v", tt.body, got)
		}
	}
}

func TestClassHelpers(t *testing.T) {
	require.True(t, IsClassSelector("class:fast"))
	require.False(t, IsClassSelector("llama3:8b"))
	require.Equal(t, "big", ClassName(" class:big "))
	require.Equal(t, "", ClassName("llama3:8b"))
	require.Equal(t, "class:fast", ClassSelector("fast"))
	require.Equal(t, "abc", Truncate("abcdef", 3))
}
