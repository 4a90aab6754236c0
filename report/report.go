// Package report classifies every line of a descriptor text and renders the
// result as a three line report.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/lightninglabs/miniscript-shim/fn"
	"github.com/lightninglabs/miniscript-shim/shim"
)

// lineBoundary matches a single line break. A CRLF pair counts as one
// boundary.
var lineBoundary = regexp.MustCompile("\r\n|[\n\v\f\r\u0085\u2028\u2029]")

// Status tags an outcome as a classification or a reportable error.
type Status string

const (
	// StatusOK marks a successfully classified line.
	StatusOK Status = "ok"

	// StatusErr marks a line the classifier rejected.
	StatusErr Status = "err"
)

// Outcome is the result of classifying one line.
type Outcome struct {
	Status Status

	// Line is the classified segment.
	Line string

	// Value is the classification for StatusOK and the error message for
	// StatusErr.
	Value string
}

// MarshalJSON encodes the outcome as a [status, line, value] triple.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{string(o.Status), o.Line, o.Value})
}

// Classifier assigns a label to a single descriptor line. Errors wrapped in
// a *fn.CriticalError abort the run, all others are recorded.
type Classifier interface {
	ScriptType(line string) (string, error)
}

// Module is the full classification module the report is built from.
type Module interface {
	Classifier

	// DescriptorTypes returns the supported descriptor types.
	DescriptorTypes() shim.TypeTable

	// ThresholdCount returns the multisig threshold of a descriptor.
	ThresholdCount(desc string) (uint32, error)
}

// SplitLines splits the text on line boundaries.
func SplitLines(s string) []string {
	return lineBoundary.Split(s, -1)
}

// isBlank reports whether a segment has nothing to classify.
func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// ClassifyLines classifies all non-blank lines in order. The first critical
// error stops processing and is returned without any outcomes.
func ClassifyLines(lines []string, c Classifier) ([]Outcome, error) {
	lines = fn.Filter(lines, func(line string) bool {
		return !isBlank(line)
	})

	outcomes := make([]Outcome, 0, len(lines))
	err := fn.ForEachErr(lines, func(line string) error {
		label, err := c.ScriptType(line)
		switch {
		case fn.ErrorAs[*fn.CriticalError](err):
			return err

		case err != nil:
			log.Debugf("Line %q rejected: %v", line, err)

			outcomes = append(outcomes, Outcome{
				Status: StatusErr,
				Line:   line,
				Value:  err.Error(),
			})

		default:
			outcomes = append(outcomes, Outcome{
				Status: StatusOK,
				Line:   line,
				Value:  label,
			})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

// Run writes the report for the descriptor: the supported types, the per
// line outcomes and the threshold of the whole descriptor. A threshold error
// is returned after the first two lines were written.
func Run(w io.Writer, desc string, m Module) error {
	types, err := json.Marshal(m.DescriptorTypes())
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", types); err != nil {
		return err
	}

	outcomes, err := ClassifyLines(SplitLines(desc), m)
	if err != nil {
		return fmt.Errorf("classifying descriptor: %w", err)
	}
	records, err := json.Marshal(outcomes)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", records); err != nil {
		return err
	}

	threshold, err := m.ThresholdCount(desc)
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}
	_, err = fmt.Fprintf(w, "threshold: %d\n", threshold)

	return err
}
