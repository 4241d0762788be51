package playlist

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/streamscout/internal/model"
)

// MarkdownWriter outputs run summaries in Markdown format.
type MarkdownWriter struct {
	baseWriter

	// sorted lists results in discovery order.
	sorted bool
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMarkdownDiscoveryOrder lists results in discovery order.
func WithMarkdownDiscoveryOrder(sorted bool) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.sorted = sorted
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run summary.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := run.Summary()

	w.writeHeader(md, run, summary)
	w.writeCounts(md, summary)
	w.writeResolved(md, run)
	w.writeUnresolved(md, run)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by streamscout*")

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run, summary model.Summary) {
	md.H1("streamscout Run")
	md.PlainText("")

	rows := [][]string{
		{"Run ID", "`" + run.ID + "`"},
		{"Site", run.BaseURL},
	}
	if run.Category != "" {
		rows = append(rows, []string{"Category", run.Category + " (" + summary.Filter + ")"})
	}
	rows = append(rows,
		[]string{"Started", run.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Elapsed", summary.Elapsed.String()},
		[]string{"Status", status(run)},
	)
	if run.PlaylistPath != "" {
		rows = append(rows, []string{"Playlist", "`" + run.PlaylistPath + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, summary model.Summary) {
	md.H2("Counts")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Channels"},
		Rows: [][]string{
			{"Discovered", strconv.Itoa(summary.Discovered)},
			{"Resolved", strconv.Itoa(summary.Resolved)},
			{"Unresolved", strconv.Itoa(summary.Unresolved)},
		},
	})
	md.PlainText("")

	if summary.Resolved+summary.Unresolved > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Resolution Outcomes"),
			piechart.WithShowData(true),
		)
		if summary.Resolved > 0 {
			chart.LabelAndIntValue("Resolved", uint64(summary.Resolved))
		}
		if summary.Unresolved > 0 {
			chart.LabelAndIntValue("Unresolved", uint64(summary.Unresolved))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case summary.Discovered == 0:
		md.Cautionf("No channels were discovered.")
	case summary.Resolved == 0:
		md.Warningf("No manifest was resolved; no playlist was written.")
	case summary.Unresolved > 0:
		md.Importantf("%d channel(s) could not be resolved.", summary.Unresolved)
	default:
		md.Tip("Every discovered channel was resolved.")
	}
	md.PlainText("")
}

// writeResolved writes the resolved streams as a table.
func (w *MarkdownWriter) writeResolved(md *markdown.Markdown, run *model.Run) {
	results := entries(run, w.sorted)
	md.H2("Resolved")
	md.PlainText("")
	if len(results) == 0 {
		md.PlainText("No streams resolved.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		trigger := r.Trigger
		if trigger == "" {
			trigger = "-"
		}
		rows[i] = []string{r.Channel.Name, "`" + r.ManifestURL + "`", r.Source, trigger}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Channel", "Manifest", "Source", "Trigger"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeUnresolved writes the unresolved channels as a table. Nothing is
// written when every channel resolved.
func (w *MarkdownWriter) writeUnresolved(md *markdown.Markdown, run *model.Run) {
	unresolved := run.UnresolvedChannels()
	if len(unresolved) == 0 {
		return
	}
	md.H2("Unresolved")
	md.PlainText("")

	rows := make([][]string, len(unresolved))
	for i, u := range unresolved {
		reason := u.Reason
		if reason == "" {
			reason = "no manifest found"
		}
		rows[i] = []string{u.Channel.Name, u.Channel.URL, reason}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Channel", "Page", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}
