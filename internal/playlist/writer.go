package playlist

import (
	"io"

	"github.com/nao1215/streamscout/internal/model"
)

// SummaryWriter writes a description of a finished run.
type SummaryWriter interface {
	// Write outputs the run summary and returns the number of bytes written.
	Write(run *model.Run) (int, error)
}

// baseWriter provides common functionality for summary writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// entries returns the results of run in arrival order, or discovery order
// when sorted is true.
func entries(run *model.Run, sorted bool) []model.StreamResult {
	if run.Results == nil {
		return []model.StreamResult{}
	}
	if sorted {
		return run.Results.Sorted()
	}
	return run.Results.Results()
}

// status returns a one-line run status.
func status(run *model.Run) string {
	switch {
	case run.TimedOut:
		return "TIMED OUT (partial results)"
	case run.Error != "":
		return "ERROR - " + run.Error
	default:
		return "Complete"
	}
}
