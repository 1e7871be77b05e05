// Package formatter renders batch results for the console.
package formatter

import (
	"fmt"
	"io"

	"github.com/ShayCichocki/consumer-contracts/internal/runner"
)

// Formatter writes a batch report.
type Formatter interface {
	Format(w io.Writer, b *runner.BatchResult) error
}

// New returns the formatter for format, "text" or "json".
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "", "text":
		return NewText(color), nil
	case "json":
		return NewJSON(), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// AssignErrIndices numbers failing results from 1 in result order, in both
// Results and Failures.
func AssignErrIndices(b *runner.BatchResult) {
	next := 1
	fi := 0
	for i := range b.Results {
		if b.Results[i].Passed() {
			continue
		}
		b.Results[i].ErrIndex = next
		if fi < len(b.Failures) {
			b.Failures[fi].ErrIndex = next
			fi++
		}
		next++
	}
}
