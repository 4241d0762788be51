package playlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/model"
)

const ruleWidth = 70

// TextWriter outputs a human-readable run summary for terminal display.
type TextWriter struct {
	baseWriter

	// verbose adds the manifest source and trigger to each entry.
	verbose bool

	// sorted lists results in discovery order.
	sorted bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithVerbose adds extraction details to each resolved entry.
func WithVerbose(verbose bool) TextWriterOption {
	return func(w *TextWriter) {
		w.verbose = verbose
	}
}

// WithDiscoveryOrder lists results in discovery order.
func WithDiscoveryOrder(sorted bool) TextWriterOption {
	return func(w *TextWriter) {
		w.sorted = sorted
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run summary.
func (w *TextWriter) Write(run *model.Run) (int, error) {
	var sb strings.Builder
	summary := run.Summary()

	w.writeHeader(&sb, run, summary)
	w.writeCounts(&sb, summary)
	w.writeResolved(&sb, run)
	w.writeUnresolved(&sb, run)

	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the run identity, site and timing.
func (w *TextWriter) writeHeader(sb *strings.Builder, run *model.Run, summary model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                     STREAMSCOUT RUN SUMMARY\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:     %s\n", run.ID)
	fmt.Fprintf(sb, "Site:       %s\n", run.BaseURL)
	if run.Category != "" {
		fmt.Fprintf(sb, "Category:   %s (filter: %s)\n", run.Category, summary.Filter)
	}
	fmt.Fprintf(sb, "Started:    %s\n", run.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Elapsed:    %s\n", summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:     %s\n", status(run))
	if run.PlaylistPath != "" {
		fmt.Fprintf(sb, "Playlist:   %s\n", run.PlaylistPath)
	}
	sb.WriteString("\n")
}

// section writes an underlined section title.
func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *TextWriter) writeCounts(sb *strings.Builder, summary model.Summary) {
	section(sb, "COUNTS")
	fmt.Fprintf(sb, "  Discovered: %d\n", summary.Discovered)
	fmt.Fprintf(sb, "  Resolved:   %d\n", summary.Resolved)
	fmt.Fprintf(sb, "  Unresolved: %d\n", summary.Unresolved)
	sb.WriteString("\n")
}

func (w *TextWriter) writeResolved(sb *strings.Builder, run *model.Run) {
	results := entries(run, w.sorted)
	if len(results) == 0 {
		return
	}
	section(sb, "RESOLVED")
	for _, r := range results {
		fmt.Fprintf(sb, "  [+] %s\n", r.Channel.Name)
		fmt.Fprintf(sb, "      %s\n", r.ManifestURL)
		if w.verbose {
			trigger := r.Trigger
			if trigger == "" {
				trigger = "none"
			}
			fmt.Fprintf(sb, "      source: %s, trigger: %s\n", r.Source, trigger)
		}
	}
	sb.WriteString("\n")
}

// writeUnresolved lists channels without a manifest and their reasons.
func (w *TextWriter) writeUnresolved(sb *strings.Builder, run *model.Run) {
	unresolved := run.UnresolvedChannels()
	if len(unresolved) == 0 {
		return
	}
	section(sb, "UNRESOLVED")
	for _, u := range unresolved {
		if u.Reason == "" {
			fmt.Fprintf(sb, "  [-] %s (no manifest found)\n", u.Channel.Name)
			continue
		}
		fmt.Fprintf(sb, "  [-] %s: %s\n", u.Channel.Name, u.Reason)
	}
	sb.WriteString("\n")
}
