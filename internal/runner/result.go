package runner

import (
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/transport"
)

// ValidationResult is the outcome of one contract in a batch.
type ValidationResult struct {
	Contract *contract.Contract
	// Err is nil when the contract passed.
	Err error
	// Value is the last response received, if any.
	Value    *transport.Response
	Attempts int
	Duration time.Duration
	// ErrIndex numbers failures from 1 in report order. It is assigned by
	// the formatter, never by the runner.
	ErrIndex int
}

// Passed reports whether the contract passed.
func (r ValidationResult) Passed() bool { return r.Err == nil }

// BatchResult aggregates a batch. Failures and totals are always derived
// from Results.
type BatchResult struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Results        []ValidationResult
	Failures       []ValidationResult
	TotalCompleted int
	TotalFailed    int
	TotalPassed    int
}

// Summarize partitions results into a BatchResult.
func Summarize(results []ValidationResult) *BatchResult {
	b := &BatchResult{Results: results}
	for _, r := range results {
		if !r.Passed() {
			b.Failures = append(b.Failures, r)
		}
	}
	b.TotalCompleted = len(results)
	b.TotalFailed = len(b.Failures)
	b.TotalPassed = b.TotalCompleted - b.TotalFailed
	return b
}

// ExitCode is 0 when every contract passed and 1 otherwise.
func (b *BatchResult) ExitCode() int {
	if b.TotalFailed > 0 {
		return 1
	}
	return 0
}
