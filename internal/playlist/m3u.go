package playlist

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/model"
)

// M3UHeader is the first line of every playlist.
const M3UHeader = "#EXTM3U"

// M3UWriter serializes StreamResults as an extended M3U playlist:
//
//	#EXTM3U
//	#EXTINF:-1 group-title="<group>",<name>
//	<manifest URL>
type M3UWriter struct {
	// groupLabel is written as group-title on every entry.
	groupLabel string

	// prefixes are stripped from channel names.
	prefixes []string
}

// M3UOption configures an M3UWriter.
type M3UOption func(*M3UWriter)

// WithGroupLabel sets the group-title attribute of every entry.
func WithGroupLabel(label string) M3UOption {
	return func(w *M3UWriter) {
		w.groupLabel = label
	}
}

// WithNamePrefixes sets the listing prefixes stripped from channel names.
func WithNamePrefixes(prefixes []string) M3UOption {
	return func(w *M3UWriter) {
		w.prefixes = prefixes
	}
}

// NewM3UWriter creates an M3UWriter. The default group label is the
// application name and the default prefix is config.DefaultNamePrefix.
func NewM3UWriter(opts ...M3UOption) *M3UWriter {
	w := &M3UWriter{
		groupLabel: config.AppName,
		prefixes:   []string{config.DefaultNamePrefix},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write serializes results to out in the given order.
func (w *M3UWriter) Write(out io.Writer, results []model.StreamResult) (int, error) {
	if len(results) == 0 {
		return 0, ErrEmptyResultSet
	}

	var buf bytes.Buffer
	buf.WriteString(M3UHeader)
	buf.WriteByte('\n')
	group := strings.ReplaceAll(oneLine(w.groupLabel), `"`, "'")
	for _, r := range results {
		fmt.Fprintf(&buf, "#EXTINF:-1 group-title=\"%s\",%s\n", group, w.EntryName(r.Channel.Name))
		buf.WriteString(oneLine(r.ManifestURL))
		buf.WriteByte('\n')
	}
	return out.Write(buf.Bytes())
}

// WriteFile writes the playlist to path, creating parent directories.
// An empty results slice returns ErrEmptyResultSet and leaves the
// filesystem untouched.
func (w *M3UWriter) WriteFile(path string, results []model.StreamResult) error {
	if len(results) == 0 {
		return ErrEmptyResultSet
	}

	var buf bytes.Buffer
	if _, err := w.Write(&buf, results); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create playlist directory: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write playlist: %w", err)
	}
	return nil
}

// EntryName returns the display name written for a channel: the first
// matching listing prefix is removed and whitespace trimmed.
func (w *M3UWriter) EntryName(name string) string {
	name = strings.TrimSpace(oneLine(name))
	for _, p := range w.prefixes {
		if p == "" || len(name) < len(p) {
			continue
		}
		if strings.EqualFold(name[:len(p)], p) {
			name = strings.TrimSpace(name[len(p):])
			break
		}
	}
	return name
}

// oneLine replaces line breaks so a value cannot split an entry.
func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
