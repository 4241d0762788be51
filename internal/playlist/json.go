package playlist

import (
	"encoding/json"
	"io"

	"github.com/nao1215/streamscout/internal/model"
)

// JSONWriter outputs run summaries in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty printing with indentPrefix and indentString.
	indent       bool
	indentPrefix string
	indentString string

	// version is reported in the summary when non-empty.
	version string

	// sorted lists results in discovery order.
	sorted bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the generating version in the output.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// WithJSONDiscoveryOrder lists results in discovery order.
func WithJSONDiscoveryOrder(sorted bool) JSONWriterOption {
	return func(w *JSONWriter) {
		w.sorted = sorted
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONSummary is the document written by JSONWriter.
type JSONSummary struct {
	// Version is the streamscout version that produced the run.
	Version string `json:"version,omitempty"`

	// Run carries the run identity and timing.
	Run *model.Run `json:"run"`

	// Summary holds the counts.
	Summary model.Summary `json:"summary"`

	// Results are the resolved streams; never null.
	Results []model.StreamResult `json:"results"`

	// Unresolved lists the channels without a manifest; never null.
	Unresolved []model.Unresolved `json:"unresolved"`
}

// NewJSONSummary collects the parts of run written as JSON.
func NewJSONSummary(run *model.Run, version string, sorted bool) *JSONSummary {
	return &JSONSummary{
		Version:    version,
		Run:        run,
		Summary:    run.Summary(),
		Results:    entries(run, sorted),
		Unresolved: run.UnresolvedChannels(),
	}
}

// Write outputs the run summary as one JSON document.
func (w *JSONWriter) Write(run *model.Run) (int, error) {
	return w.writeJSON(NewJSONSummary(run, w.version, w.sorted))
}

// writeJSON encodes v followed by a newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
