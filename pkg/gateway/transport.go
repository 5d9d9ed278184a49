package gateway

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
)

type probeIDKey struct{}

func withProbeID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, probeIDKey{}, id)
}

// headerRoundTripper stamps every outgoing request with the harness user
// agent and a request id derived from the run id and, when present, the
// probe id carried on the request context.
type headerRoundTripper struct {
	Base      http.RoundTripper
	RunID     string
	UserAgent string
}

func (rt headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	out := req.Clone(req.Context())
	out.Header = req.Header.Clone()
	if ua := strings.TrimSpace(rt.UserAgent); ua != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", ua)
	}
	if rid := strings.TrimSpace(rt.RunID); rid != "" {
		if pid, ok := req.Context().Value(probeIDKey{}).(string); ok && pid != "" {
			rid += "-" + pid
		}
		out.Header.Set("X-Request-ID", rid)
	}
	return base.RoundTrip(out)
}

// newTransport returns the single transport shared by every probe. It is
// configured once and never mutated afterwards.
func newTransport(verifyTLS bool, maxConns int) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in via --no-verify-ssl
	}
	if maxConns > 0 {
		t.MaxIdleConnsPerHost = maxConns
	}
	return t
}
