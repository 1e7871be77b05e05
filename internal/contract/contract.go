// Package contract implements the single-contract validation pipeline:
// before hook, request, schema validation with retries, after hook.
package contract

import (
	"context"
	"sync"
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/hooks"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
	"github.com/ShayCichocki/consumer-contracts/internal/retry"
	"github.com/ShayCichocki/consumer-contracts/internal/schema"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// Options describe a contract. Name, Consumer, Request and Response are
// required.
type Options struct {
	Name     string
	Consumer string
	Request  *transport.Request
	Response schema.Schema

	Before hooks.Hook
	After  hooks.Hook

	// Retries and RetryDelay configure a fixed policy. RetryPolicy, when
	// set, takes precedence.
	Retries     int
	RetryDelay  time.Duration
	RetryPolicy *retry.Dynamic

	// Client overrides the built-in HTTP client.
	Client transport.Client
	// ValidationOptions are merged over schema.DefaultOptions.
	ValidationOptions schema.Options
	// Sleeper waits out retry delays. Defaults to a real timer.
	Sleeper retry.Sleeper
	// Source is the file the contract was loaded from, if any.
	Source string
}

// Contract is an immutable, validated contract. It may be validated
// repeatedly and concurrently.
type Contract struct {
	name     string
	consumer string
	source   string
	request  transport.Request
	response schema.Schema
	before   hooks.Hook
	after    hooks.Hook
	policy   retry.Policy
	executor *transport.Executor
	vopts    schema.Options
	sleeper  retry.Sleeper
}

var defaultClient = sync.OnceValue(func() transport.Client {
	return transport.NewHTTPClient(transport.HTTPConfig{})
})

// New validates opts and builds a Contract. A missing required property
// returns an error matching ErrInvalidContract.
func New(opts Options) (*Contract, error) {
	switch {
	case opts.Name == "":
		return nil, missingProperty("name")
	case opts.Consumer == "":
		return nil, missingProperty("consumer")
	case opts.Request == nil:
		return nil, missingProperty("request")
	case opts.Response == nil:
		return nil, missingProperty("response")
	}

	c := &Contract{
		name:     opts.Name,
		consumer: opts.Consumer,
		source:   opts.Source,
		request:  opts.Request.Clone(),
		response: opts.Response,
		before:   opts.Before,
		after:    opts.After,
		vopts:    schema.DefaultOptions().Merge(opts.ValidationOptions),
		sleeper:  opts.Sleeper,
	}
	if opts.RetryPolicy != nil {
		c.policy = *opts.RetryPolicy
	} else {
		c.policy = retry.Fixed{Retries: opts.Retries, Delay: opts.RetryDelay}
	}
	client := opts.Client
	if client == nil {
		client = defaultClient()
	}
	if exec, ok := client.(*transport.Executor); ok {
		c.executor = exec
	} else {
		c.executor = transport.Normalize(client)
	}
	if c.sleeper == nil {
		c.sleeper = retry.TimerSleeper{}
	}
	return c, nil
}

// Name returns the contract name.
func (c *Contract) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Consumer returns the consuming application's name.
func (c *Contract) Consumer() string {
	if c == nil {
		return ""
	}
	return c.consumer
}

// Source returns the file the contract came from, or "".
func (c *Contract) Source() string {
	if c == nil {
		return ""
	}
	return c.source
}

// Request returns a copy of the request template.
func (c *Contract) Request() transport.Request { return c.request.Clone() }

// Policy returns the retry policy.
func (c *Contract) Policy() retry.Policy { return c.policy }

// ValidationOptions returns the effective schema options.
func (c *Contract) ValidationOptions() schema.Options { return c.vopts }

// Outcome is the result of one validation.
type Outcome struct {
	// Response is the last response received, nil if none was.
	Response *transport.Response
	Err      error
	// Attempts counts requests issued.
	Attempts int
	Duration time.Duration
}

// Validate runs the pipeline once and returns the last response and the
// failure, nil on success.
func (c *Contract) Validate(ctx context.Context) (*transport.Response, error) {
	out := c.Run(ctx)
	return out.Response, out.Err
}

type state int

const (
	stateIdle state = iota
	stateBefore
	stateRequesting
	stateValidating
	stateRetrying
	stateAfter
	stateDone
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateBefore:
		return "before"
	case stateRequesting:
		return "requesting"
	case stateValidating:
		return "validating"
	case stateRetrying:
		return "retrying"
	case stateAfter:
		return "after"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Run executes the pipeline once, producing exactly one Outcome.
func (c *Contract) Run(ctx context.Context) Outcome {
	start := time.Now()
	logger := logging.FromContext(ctx).WithValues("consumer", c.consumer, "contract", c.name)

	var (
		out     Outcome
		st      = stateIdle
		retries int
		delay   time.Duration
	)
	for st != stateDone {
		logger.V(logging.TRACE).Info("pipeline step", "state", st.String())
		switch st {
		case stateIdle:
			st = stateBefore

		case stateBefore:
			if err := hooks.Run(ctx, hooks.PhaseBefore, c.before); err != nil {
				logger.Error(err, "Before hook failed")
				out.Err = err
				st = stateDone
				continue
			}
			st = stateRequesting

		case stateRequesting:
			out.Attempts++
			resp, err := c.executor.Execute(ctx, c.request)
			if err != nil {
				out.Err = err
				st, delay = c.decide(ctx, err, retries)
				continue
			}
			out.Response = resp
			out.Err = nil
			st = stateValidating

		case stateValidating:
			resp := out.Response
			logger.V(logging.DEBUG).Info("Response received", "url", resp.URL, "status", resp.Status, "attempt", out.Attempts)
			if f := schema.Validate(resp.Canonical(), c.response, c.vopts); f != nil {
				out.Err = schema.NewValidationError(f, resp.Status)
				st, delay = c.decide(ctx, out.Err, retries)
				continue
			}
			st = stateAfter

		case stateRetrying:
			logger.V(logging.VERBOSE).Info("Retrying contract", "retry", retries+1, "delay", delay, "reason", out.Err.Error())
			if err := c.sleeper.Sleep(ctx, delay); err != nil {
				// Cancelled while waiting: report the failure that caused the retry.
				st = stateDone
				continue
			}
			retries++
			st = stateRequesting

		case stateAfter:
			if err := hooks.Run(ctx, hooks.PhaseAfter, c.after); err != nil {
				logger.Error(err, "After hook failed")
				out.Err = err
			}
			st = stateDone
		}
	}
	out.Duration = time.Since(start)
	return out
}

// decide consults the retry policy after a failed attempt. With no budget
// the policy is not consulted at all.
func (c *Contract) decide(ctx context.Context, failure error, retries int) (state, time.Duration) {
	if c.policy.Budget() == 0 || ctx.Err() != nil {
		return stateDone, 0
	}
	action := c.policy.Next(failure, c.executor.Effective(c.request), retries)
	if action.Kind != retry.Retry {
		return stateDone, 0
	}
	return stateRetrying, action.Delay
}
