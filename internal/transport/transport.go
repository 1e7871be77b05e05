// Package transport issues contract requests and normalizes whatever the
// underlying client returns into the canonical response shape.
package transport

import (
	"context"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is a contract's request template.
type Request struct {
	// Method defaults to GET.
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	URL    string `json:"url" yaml:"url"`
	// Headers are sent as-is; names are matched case-insensitively when
	// merged with defaults.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query   map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
	// Body is sent verbatim when it is a string or []byte and as JSON otherwise.
	Body any `json:"body,omitempty" yaml:"body,omitempty"`
	// Timeout bounds the whole exchange. Zero means no timeout.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// EffectiveMethod returns the upper-cased method, GET when unset.
func (r Request) EffectiveMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// FullURL returns URL with Query merged into its query string.
func (r Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	q := u.Query()
	for k, v := range r.Query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Clone returns a deep copy of the header and query maps.
func (r Request) Clone() Request {
	out := r
	out.Headers = maps.Clone(r.Headers)
	out.Query = maps.Clone(r.Query)
	return out
}

// Response is the canonical, transport-independent response.
type Response struct {
	URL        string            `json:"url"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	// Body is decoded JSON, raw text for other payloads, or nil when empty.
	Body    any  `json:"body,omitempty"`
	HasBody bool `json:"-"`
}

// Canonical returns the response as the map the schema validator walks.
// An absent body is omitted rather than set to null.
func (r *Response) Canonical() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}
	out := map[string]any{
		"url":        r.URL,
		"status":     r.Status,
		"statusText": r.StatusText,
		"headers":    headers,
	}
	if r.HasBody {
		out["body"] = r.Body
	}
	return out
}

// Client executes one request. Implementations must be safe for concurrent
// use when contracts are validated in parallel.
type Client interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Execute implements Client.
func (f ClientFunc) Execute(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
