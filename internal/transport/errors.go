package transport

import (
	"context"
	"errors"
	"net/url"
)

// RequestError is a transport-level failure: connection errors, timeouts
// and unparseable responses.
type RequestError struct {
	Method string
	URL    string
	// Msg is the transport's own message.
	Msg string
	Err error
}

// NewRequestError wraps err for the given request.
func NewRequestError(req Request, err error) *RequestError {
	return &RequestError{
		Method: req.EffectiveMethod(),
		URL:    req.URL,
		Msg:    describe(err),
		Err:    err,
	}
}

func (e *RequestError) Error() string {
	if e.Method == "" || e.URL == "" {
		return "Request failed: " + e.Msg
	}
	return "Request failed for " + e.Method + " " + e.URL + ": " + e.Msg
}

func (e *RequestError) Unwrap() error { return e.Err }

// Timeout reports whether the request exceeded its deadline.
func (e *RequestError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// describe strips the net/url wrapper so messages name the cause only.
func describe(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
