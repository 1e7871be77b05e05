package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// HTTPConfig configures the built-in client.
type HTTPConfig struct {
	// MaxIdleConnsPerHost sizes the keep-alive pool per host. Zero uses
	// the net/http default.
	MaxIdleConnsPerHost int
	// Transport overrides the round tripper, mainly for tests.
	Transport http.RoundTripper
}

// HTTPClient is the built-in Client on net/http. It is safe for
// concurrent use.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates an HTTPClient. No state is shared with other
// clients.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	rt := cfg.Transport
	if rt == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.MaxIdleConnsPerHost > 0 {
			t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
		}
		rt = t
	}
	return &HTTPClient{client: &http.Client{Transport: rt}}
}

// Execute implements Client.
func (c *HTTPClient) Execute(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, NewRequestError(req, err)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.EffectiveMethod(), req.FullURL(), body)
	if err != nil {
		return nil, NewRequestError(req, err)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}
	if contentType != "" && hreq.Header.Get("Content-Type") == "" {
		hreq.Header.Set("Content-Type", contentType)
	}

	hresp, err := c.client.Do(hreq)
	if err != nil {
		return nil, NewRequestError(req, err)
	}
	defer hresp.Body.Close()

	data, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, NewRequestError(req, err)
	}

	resp := &Response{
		URL:        hreq.URL.String(),
		Status:     hresp.StatusCode,
		StatusText: http.StatusText(hresp.StatusCode),
		Headers:    make(map[string]string, len(hresp.Header)),
	}
	for k, v := range hresp.Header {
		resp.Headers[strings.ToLower(k)] = strings.Join(v, ", ")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return resp, nil
	}
	resp.HasBody = true
	if !isJSON(hresp.Header.Get("Content-Type")) {
		resp.Body = string(data)
		return resp, nil
	}
	decoded, err := decodeJSON(data)
	if err != nil {
		return nil, NewRequestError(req, fmt.Errorf("invalid JSON response body: %w", err))
	}
	resp.Body = decoded
	return resp, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

var _ Client = (*HTTPClient)(nil)
