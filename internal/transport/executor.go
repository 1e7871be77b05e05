package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/version"
)

// UserAgent is the User-Agent sent when a contract does not set one.
func UserAgent() string {
	return version.Name + "/" + version.Get()
}

// DefaultHeaders returns the engine's default request headers.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":     "application/json",
		"User-Agent": UserAgent(),
	}
}

// Executor wraps a Client so every response has the canonical shape,
// whichever client produced it.
type Executor struct {
	client  Client
	headers map[string]string
	timeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultTimeout sets the timeout for requests that do not set one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// Normalize wraps client in an Executor.
func Normalize(client Client, opts ...Option) *Executor {
	e := &Executor{
		client:  client,
		headers: DefaultHeaders(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Effective returns req as Execute sends it: method upper-cased, default
// headers merged in and the default timeout applied.
func (e *Executor) Effective(req Request) Request {
	req = req.Clone()
	req.Method = req.EffectiveMethod()
	req.Headers = MergeHeaders(e.headers, req.Headers)
	if req.Timeout <= 0 {
		req.Timeout = e.timeout
	}
	return req
}

// Execute sends req through the wrapped client and normalizes the result.
// Every failure is returned as a *RequestError.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	req = e.Effective(req)

	timeout := req.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := e.client.Execute(ctx, req)
	if err != nil {
		if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &RequestError{
				Method: req.Method,
				URL:    req.URL,
				Msg:    fmt.Sprintf("timeout of %s exceeded", timeout),
				Err:    errors.Join(context.DeadlineExceeded, err),
			}
		}
		var rerr *RequestError
		if errors.As(err, &rerr) {
			return nil, rerr
		}
		return nil, NewRequestError(req, err)
	}
	if resp == nil {
		return nil, NewRequestError(req, errors.New("no response"))
	}
	out, err := canonicalize(req, resp)
	if err != nil {
		return nil, NewRequestError(req, err)
	}
	return out, nil
}

func canonicalize(req Request, resp *Response) (*Response, error) {
	out := *resp
	out.Headers = make(map[string]string, len(resp.Headers))
	for k, v := range resp.Headers {
		out.Headers[strings.ToLower(k)] = v
	}
	if out.URL == "" {
		out.URL = req.FullURL()
	}
	if out.StatusText == "" {
		out.StatusText = http.StatusText(out.Status)
	}
	body, present, err := canonicalBody(resp.Body)
	if err != nil {
		return nil, err
	}
	out.Body = body
	// A client may report an explicit JSON null.
	out.HasBody = present || (resp.HasBody && resp.Body == nil)
	return &out, nil
}

// canonicalBody turns whatever a client returned into decoded JSON data
// or raw text. Byte payloads are parsed as JSON when they are valid JSON;
// typed Go values are converted to generic maps and slices.
func canonicalBody(body any) (any, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case string:
		return b, true, nil
	case json.RawMessage:
		return decodeBytes(b)
	case []byte:
		return decodeBytes(b)
	}
	if isGeneric(body) {
		return body, true, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("unsupported response body %T: %w", body, err)
	}
	v, err := decodeJSON(data)
	if err != nil {
		return nil, false, fmt.Errorf("unsupported response body %T: %w", body, err)
	}
	return v, v != nil, nil
}

func decodeBytes(data []byte) (any, bool, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false, nil
	}
	if !json.Valid(data) {
		return string(data), true, nil
	}
	v, err := decodeJSON(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// decodeJSON decodes one JSON value keeping numbers as json.Number.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// isGeneric reports whether v is already made of the types decodeJSON
// produces, at every depth.
func isGeneric(v any) bool {
	switch t := v.(type) {
	case nil, string, bool, float64, json.Number:
		return true
	case map[string]any:
		for _, item := range t {
			if !isGeneric(item) {
				return false
			}
		}
		return true
	case []any:
		for _, item := range t {
			if !isGeneric(item) {
				return false
			}
		}
		return true
	}
	return false
}

// MergeHeaders returns defaults overlaid with own. Names compare
// case-insensitively and own wins, keeping its spelling.
func MergeHeaders(defaults, own map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(own))
	seen := make(map[string]bool, len(own))
	for k, v := range own {
		out[k] = v
		seen[strings.ToLower(k)] = true
	}
	for k, v := range defaults {
		if !seen[strings.ToLower(k)] {
			out[k] = v
		}
	}
	return out
}
