// Package runner validates batches of contracts with per-contract failure
// isolation.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/logging"
)

// DefaultConcurrency is the number of contracts validated at once.
const DefaultConcurrency = 4

// Recorder observes batch progress, typically for metrics.
type Recorder interface {
	RecordResult(r ValidationResult)
	RecordBatch(b *BatchResult)
}

// Option configures a Runner. Use With* functions to create Options.
type Option func(*Runner)

// WithConcurrency bounds concurrent validations. 1 runs sequentially;
// values below 1 are treated as 1.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n < 1 {
			n = 1
		}
		r.concurrency = n
	}
}

// WithLogger sets the logger. Without it the context logger is used.
func WithLogger(l logr.Logger) Option {
	return func(r *Runner) { r.logger = &l }
}

// WithRecorder registers a Recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// Runner validates contracts in batches.
type Runner struct {
	concurrency int
	logger      *logr.Logger
	recorder    Recorder
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates every contract once and returns results in input order.
// A failing or panicking contract never affects the others. Once ctx is
// done no further contracts are started; they are reported as not run.
func (r *Runner) Run(ctx context.Context, contracts []*contract.Contract) *BatchResult {
	logger := logging.FromContext(ctx)
	if r.logger != nil {
		logger = *r.logger
	}
	runID := uuid.New().String()[:8]
	logger = logger.WithValues("run", runID)
	ctx = logging.IntoContext(ctx, logger)

	start := time.Now()
	logger.V(logging.VERBOSE).Info("Running contracts", "count", len(contracts), "concurrency", r.concurrency)

	results := make([]ValidationResult, len(contracts))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, c := range contracts {
		if ctx.Err() != nil {
			results[i] = notRun(ctx, c)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = notRun(ctx, c)
				return nil
			}
			results[i] = r.validate(ctx, c)
			if r.recorder != nil {
				r.recorder.RecordResult(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	batch := Summarize(results)
	batch.RunID = runID
	batch.StartedAt = start
	batch.Duration = time.Since(start)
	if r.recorder != nil {
		r.recorder.RecordBatch(batch)
	}
	logger.Info("Batch finished", "passing", batch.TotalPassed, "failing", batch.TotalFailed, "duration", batch.Duration)
	return batch
}

func (r *Runner) validate(ctx context.Context, c *contract.Contract) (res ValidationResult) {
	res.Contract = c
	if c == nil {
		res.Err = &contract.ConfigurationError{Msg: "nil contract"}
		return res
	}
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("contract panicked: %v", p)
			logging.FromContext(ctx).Error(res.Err, "Recovered contract panic", "consumer", c.Consumer(), "contract", c.Name())
		}
	}()
	out := c.Run(ctx)
	res.Err = out.Err
	res.Value = out.Response
	res.Attempts = out.Attempts
	res.Duration = out.Duration
	return res
}

func notRun(ctx context.Context, c *contract.Contract) ValidationResult {
	return ValidationResult{Contract: c, Err: fmt.Errorf("contract not run: %w", context.Cause(ctx))}
}
