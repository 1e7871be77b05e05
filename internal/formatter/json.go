package formatter

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
)

// JSON writes the report as one JSON document.
type JSON struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSON { return &JSON{} }

type jsonReport struct {
	RunID          string       `json:"runId"`
	StartedAt      time.Time    `json:"startedAt"`
	DurationMs     int64        `json:"durationMs"`
	TotalCompleted int          `json:"totalCompleted"`
	TotalPassed    int          `json:"totalPassed"`
	TotalFailed    int          `json:"totalFailed"`
	Results        []jsonResult `json:"results"`
}

type jsonResult struct {
	Consumer   string     `json:"consumer"`
	Name       string     `json:"name"`
	Source     string     `json:"source,omitempty"`
	Passed     bool       `json:"passed"`
	Attempts   int        `json:"attempts"`
	DurationMs int64      `json:"durationMs"`
	Status     int        `json:"status,omitempty"`
	ErrIndex   int        `json:"errIndex,omitempty"`
	Error      *jsonError `json:"error,omitempty"`
}

type jsonError struct {
	Kind    contract.Kind `json:"kind"`
	Message string        `json:"message"`
	Detail  string        `json:"detail,omitempty"`
}

// Format implements Formatter.
func (JSON) Format(w io.Writer, b *runner.BatchResult) error {
	AssignErrIndices(b)
	report := jsonReport{
		RunID:          b.RunID,
		StartedAt:      b.StartedAt,
		DurationMs:     b.Duration.Milliseconds(),
		TotalCompleted: b.TotalCompleted,
		TotalPassed:    b.TotalPassed,
		TotalFailed:    b.TotalFailed,
		Results:        make([]jsonResult, 0, len(b.Results)),
	}
	for _, r := range b.Results {
		jr := jsonResult{
			Consumer:   r.Contract.Consumer(),
			Name:       r.Contract.Name(),
			Source:     r.Contract.Source(),
			Passed:     r.Passed(),
			Attempts:   r.Attempts,
			DurationMs: r.Duration.Milliseconds(),
			ErrIndex:   r.ErrIndex,
		}
		if r.Value != nil {
			jr.Status = r.Value.Status
		}
		if r.Err != nil {
			jr.Error = &jsonError{
				Kind:    contract.KindOf(r.Err),
				Message: r.Err.Error(),
				Detail:  contract.Detail(r.Err),
			}
		}
		report.Results = append(report.Results, jr)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
