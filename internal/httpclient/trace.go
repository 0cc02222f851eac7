package httpclient

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// UserAgent is sent with every request made through a trace client.
const UserAgent = "triviasearch"

type traceTransport struct {
	base http.RoundTripper
	name string
}

// NewTraceTransport returns a RoundTripper that logs requests at trace level.
// Response bodies are never read here; snapshot payloads are binary and can
// be large, so only status, length and content type are recorded.
func NewTraceTransport(name string, base http.RoundTripper) http.RoundTripper {
	return &traceTransport{
		base: base,
		name: name,
	}
}

// NewTraceClient returns an HTTP client that logs requests at trace level.
func NewTraceClient(name string, timeout time.Duration) *http.Client {
	return Wrap(&http.Client{Timeout: timeout}, name)
}

// Wrap applies trace logging to an existing HTTP client.
func Wrap(client *http.Client, name string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	client.Transport = NewTraceTransport(name, client.Transport)
	return client
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}

	urlStr := RedactURL(req.URL)
	start := time.Now()

	log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Msg("HTTP request")

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		log.Trace().
			Str("client", t.name).
			Str("method", req.Method).
			Str("url", urlStr).
			Dur("duration", duration).
			Err(err).
			Msg("HTTP request failed")
		return nil, err
	}

	log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int64("content_length", resp.ContentLength).
		Str("content_type", resp.Header.Get("Content-Type")).
		Msg("HTTP response")

	return resp, nil
}

// RedactURL renders u with credentials and sensitive query values masked.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	copyURL := *u
	if copyURL.User != nil {
		copyURL.User = url.User("redacted")
	}
	if copyURL.RawQuery == "" {
		return copyURL.String()
	}

	q := copyURL.Query()
	for key := range q {
		if isSensitiveQueryKey(key) {
			q.Set(key, "redacted")
		}
	}

	copyURL.RawQuery = q.Encode()
	return copyURL.String()
}

func isSensitiveQueryKey(key string) bool {
	switch strings.ToLower(key) {
	case "apikey", "api_key", "api-key", "token", "access_token", "signature", "sig", "x-amz-signature", "authorization", "auth":
		return true
	default:
		return false
	}
}
