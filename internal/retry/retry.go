// Package retry decides whether a failed contract attempt is tried again
// and how long to wait first.
package retry

import (
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// Kind is the decision taken after a failed attempt.
type Kind int

const (
	// Stop ends the validation with the last failure.
	Stop Kind = iota
	// Retry issues the request again after Action.Delay.
	Retry
)

// String returns a human-readable representation of the decision.
func (k Kind) String() string {
	switch k {
	case Stop:
		return "stop"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Action is the outcome of consulting a Policy.
type Action struct {
	Kind  Kind
	Delay time.Duration
}

// StopAction is the Action that ends retrying.
var StopAction = Action{Kind: Stop}

// After returns a retry Action waiting d. Negative delays wait zero.
func After(d time.Duration) Action {
	if d < 0 {
		d = 0
	}
	return Action{Kind: Retry, Delay: d}
}

// Policy decides what happens after a failed attempt. attempt is the number
// of retries already made: 0 after the initial try.
type Policy interface {
	Next(failure error, req transport.Request, attempt int) Action
	// Budget is the maximum number of retries the policy can grant.
	Budget() int
}

// Fixed retries up to Retries times waiting Delay between attempts.
type Fixed struct {
	Retries int
	Delay   time.Duration
}

// Next implements Policy.
func (f Fixed) Next(_ error, _ transport.Request, attempt int) Action {
	if attempt >= f.Budget() {
		return StopAction
	}
	return After(f.Delay)
}

// Budget implements Policy.
func (f Fixed) Budget() int {
	if f.Retries < 0 {
		return 0
	}
	return f.Retries
}

// HandlerFunc decides on a retry for the given failure. Returning false
// stops retrying regardless of the remaining budget.
type HandlerFunc func(failure error, req transport.Request, attempt int) (time.Duration, bool)

// Dynamic delegates each decision to Handler, never granting more than
// MaxRetries retries. A nil Handler retries immediately.
type Dynamic struct {
	MaxRetries int
	Handler    HandlerFunc
}

// Next implements Policy. Handler is not called once the budget is spent.
func (d Dynamic) Next(failure error, req transport.Request, attempt int) Action {
	if attempt >= d.Budget() {
		return StopAction
	}
	if d.Handler == nil {
		return After(0)
	}
	delay, ok := d.Handler(failure, req, attempt)
	if !ok {
		return StopAction
	}
	return After(delay)
}

// Budget implements Policy.
func (d Dynamic) Budget() int {
	if d.MaxRetries < 0 {
		return 0
	}
	return d.MaxRetries
}

var (
	_ Policy = Fixed{}
	_ Policy = Dynamic{}
)
