package formatter

import (
	"bufio"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
)

// Text is the mocha-style console report.
type Text struct {
	green *color.Color
	red   *color.Color
	gray  *color.Color
}

// NewText creates a Text formatter. Colors are forced on or off regardless
// of the terminal.
func NewText(useColor bool) *Text {
	t := &Text{
		green: color.New(color.FgGreen),
		red:   color.New(color.FgRed),
		gray:  color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{t.green, t.red, t.gray} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// Format implements Formatter.
func (t *Text) Format(w io.Writer, b *runner.BatchResult) error {
	AssignErrIndices(b)
	bw := bufio.NewWriter(w)

	bw.WriteString("\n\n")
	for _, r := range b.Results {
		title := r.Contract.Consumer() + " – " + r.Contract.Name()
		if r.Passed() {
			bw.WriteString(" " + t.green.Sprint("✓") + " " + title + "\n")
		} else {
			bw.WriteString(" " + t.red.Sprint(strconv.Itoa(r.ErrIndex)+") "+title) + "\n")
		}
	}

	bw.WriteString("\n\n")
	bw.WriteString(t.green.Sprintf("  %d passing", b.TotalPassed) + "\n")
	if len(b.Failures) > 0 {
		bw.WriteString(t.red.Sprintf("  %d failing", b.TotalFailed) + "\n")
		bw.WriteString("\n")
		for i, f := range b.Failures {
			bw.WriteString(" " + strconv.Itoa(i+1) + ") " + f.Contract.Consumer() + " – " + f.Contract.Name() + "\n")
			bw.WriteString("    " + t.red.Sprint(f.Err.Error()) + "\n")
			if detail := contract.Detail(f.Err); detail != "" {
				bw.WriteString("     " + t.gray.Sprint(detail) + "\n")
			}
			bw.WriteString("\n")
		}
	}
	bw.WriteString("\n")
	return bw.Flush()
}
