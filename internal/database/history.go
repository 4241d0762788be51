package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/streamscout/internal/model"
)

// FileName is the database file created inside the data directory.
const FileName = "streamscout.db"

// HistoryDB stores runs and their per-channel outcomes in a single SQLite
// file. A run row holds the summary; every discovered channel gets one
// resolutions row, resolved or not.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging, letting the history command
	// read while a run is writing.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
// If CreateIfNotExists is false and the file is missing, the error wraps
// ErrDatabaseNotFound and nothing is created on disk.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create the file; mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; keep one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return hdb, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// createTables creates the schema when it does not exist yet.
func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		base_url TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		filter TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		discovered INTEGER NOT NULL DEFAULT 0,
		resolved INTEGER NOT NULL DEFAULT 0,
		unresolved INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		playlist_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per channel outcome. manifest_url is empty when unresolved.
	CREATE TABLE IF NOT EXISTS resolutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		channel_key TEXT NOT NULL,
		channel_name TEXT NOT NULL,
		channel_url TEXT NOT NULL,
		channel_index INTEGER NOT NULL DEFAULT 0,
		resolved INTEGER NOT NULL,
		manifest_url TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		trigger_name TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resolutions_run ON resolutions(run_id);
	CREATE INDEX IF NOT EXISTS idx_resolutions_channel ON resolutions(channel_key);
	`
	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// ChannelKey returns the stable key of a channel page URL: the hex
// SHA3-256 of the URL. Channel identity is the exact URL, so no
// normalisation is applied.
func ChannelKey(channelURL string) string {
	sum := sha3.Sum256([]byte(channelURL))
	return hex.EncodeToString(sum[:])
}

// RunRecord is a stored run.
type RunRecord struct {
	// ID is the run's UUID.
	ID string

	// BaseURL is the listing page the run started from.
	BaseURL string

	// Category is the requested category filter, empty when unfiltered.
	Category string

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// Summary holds the counts and filter outcome. Elapsed is derived
	// from the timestamps.
	Summary model.Summary

	// TimedOut is set when the global run timeout fired.
	TimedOut bool

	// Error is the fatal error of the run, if any.
	Error string

	// PlaylistPath is where the playlist was written; empty when no
	// playlist was produced.
	PlaylistPath string
}

// ResolutionRecord is a stored channel outcome.
type ResolutionRecord struct {
	// ID is the row ID.
	ID int64

	// RunID is the run the outcome belongs to.
	RunID string

	// ChannelKey is ChannelKey(Channel.URL).
	ChannelKey string

	// Channel is the discovered channel.
	Channel model.Channel

	// Resolved reports whether a manifest was found.
	Resolved bool

	// ManifestURL, Source and Trigger describe the resolved stream. They
	// are empty for unresolved channels.
	ManifestURL string
	Source      string
	Trigger     string

	// Reason is why the channel stayed unresolved.
	Reason string

	// RecordedAt is the resolution time, or the run's finish time for
	// unresolved channels.
	RecordedAt time.Time
}

// StreamResult converts a resolved record back to a StreamResult.
// The second return value is false for unresolved records.
func (r ResolutionRecord) StreamResult() (model.StreamResult, bool) {
	if !r.Resolved {
		return model.StreamResult{}, false
	}
	return model.StreamResult{
		Channel:     r.Channel,
		ManifestURL: r.ManifestURL,
		Source:      r.Source,
		Trigger:     r.Trigger,
		ResolvedAt:  r.RecordedAt,
	}, true
}

// SaveRun stores run and every channel outcome in one transaction. Saving
// the same run again replaces its previous rows.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.Run) (err error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	summary := run.Summary()
	if _, err = tx.ExecContext(ctx, `DELETE FROM resolutions WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to clear previous resolutions: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, base_url, category, filter, started_at, finished_at,
		discovered, resolved, unresolved, timed_out, error, playlist_path)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		filter = excluded.filter,
		finished_at = excluded.finished_at,
		discovered = excluded.discovered,
		resolved = excluded.resolved,
		unresolved = excluded.unresolved,
		timed_out = excluded.timed_out,
		error = excluded.error,
		playlist_path = excluded.playlist_path
	`,
		run.ID,
		run.BaseURL,
		run.Category,
		run.Filter,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		summary.Discovered,
		summary.Resolved,
		summary.Unresolved,
		boolToInt(run.TimedOut),
		run.Error,
		run.PlaylistPath,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO resolutions (run_id, channel_key, channel_name, channel_url, channel_index,
		resolved, manifest_url, source, trigger_name, reason, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare resolution insert: %w", err)
	}
	defer stmt.Close()

	if run.Results != nil {
		for _, r := range run.Results.Results() {
			if _, err = stmt.ExecContext(ctx,
				run.ID, ChannelKey(r.Channel.URL), r.Channel.Name, r.Channel.URL, r.Channel.Index,
				1, r.ManifestURL, r.Source, r.Trigger, "", formatTimestamp(r.ResolvedAt),
			); err != nil {
				return fmt.Errorf("failed to save resolution: %w", err)
			}
		}
	}
	recorded := run.FinishedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	for _, u := range run.UnresolvedChannels() {
		if _, err = stmt.ExecContext(ctx,
			run.ID, ChannelKey(u.Channel.URL), u.Channel.Name, u.Channel.URL, u.Channel.Index,
			0, "", "", "", u.Reason, formatTimestamp(recorded),
		); err != nil {
			return fmt.Errorf("failed to save resolution: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// runColumns is the column order scanRun expects.
const runColumns = `id, base_url, category, filter, started_at, finished_at,
	discovered, resolved, unresolved, timed_out, error, playlist_path`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun reads one row selected with runColumns.
func scanRun(s scanner) (RunRecord, error) {
	var (
		rec               RunRecord
		started, finished string
		timedOut          int
	)
	err := s.Scan(
		&rec.ID,
		&rec.BaseURL,
		&rec.Category,
		&rec.Summary.Filter,
		&started,
		&finished,
		&rec.Summary.Discovered,
		&rec.Summary.Resolved,
		&rec.Summary.Unresolved,
		&timedOut,
		&rec.Error,
		&rec.PlaylistPath,
	)
	if err != nil {
		return RunRecord{}, err
	}
	rec.StartedAt = parseTimestamp(started)
	rec.FinishedAt = parseTimestamp(finished)
	if !rec.FinishedAt.IsZero() {
		rec.Summary.Elapsed = rec.FinishedAt.Sub(rec.StartedAt)
	}
	rec.TimedOut = timedOut != 0
	return rec, nil
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (h *HistoryDB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// GetRun returns the run whose ID equals or starts with id. It returns
// nil when no run matches.
func (h *HistoryDB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	rec, err := scanRun(h.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if id == "" {
		return nil, nil
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE substr(id, 1, ?) = ? LIMIT 2`, len(id), id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	matches := make([]RunRecord, 0, 2)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		matches = append(matches, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
}

// resolutionColumns is the column order scanResolution expects.
const resolutionColumns = `id, run_id, channel_key, channel_name, channel_url, channel_index,
	resolved, manifest_url, source, trigger_name, reason, recorded_at`

func scanResolution(s scanner) (ResolutionRecord, error) {
	var (
		rec      ResolutionRecord
		resolved int
		recorded string
	)
	err := s.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.ChannelKey,
		&rec.Channel.Name,
		&rec.Channel.URL,
		&rec.Channel.Index,
		&resolved,
		&rec.ManifestURL,
		&rec.Source,
		&rec.Trigger,
		&rec.Reason,
		&recorded,
	)
	if err != nil {
		return ResolutionRecord{}, err
	}
	rec.Resolved = resolved != 0
	rec.RecordedAt = parseTimestamp(recorded)
	return rec, nil
}

// GetResolutions returns every channel outcome of a run in the order they
// were recorded: resolved channels in arrival order, then unresolved ones.
func (h *HistoryDB) GetResolutions(ctx context.Context, runID string) ([]ResolutionRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT `+resolutionColumns+` FROM resolutions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get resolutions: %w", err)
	}
	defer rows.Close()

	out := make([]ResolutionRecord, 0)
	for rows.Next() {
		rec, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StreamResults returns the resolved streams of a run in arrival order.
func (h *HistoryDB) StreamResults(ctx context.Context, runID string) ([]model.StreamResult, error) {
	recs, err := h.GetResolutions(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]model.StreamResult, 0, len(recs))
	for _, rec := range recs {
		if r, ok := rec.StreamResult(); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// LatestManifest returns the most recent resolved outcome for a channel
// page URL, or nil if the channel was never resolved.
func (h *HistoryDB) LatestManifest(ctx context.Context, channelURL string) (*ResolutionRecord, error) {
	rec, err := scanResolution(h.db.QueryRowContext(ctx, `
	SELECT `+resolutionColumns+` FROM resolutions
	WHERE channel_key = ? AND resolved = 1
	ORDER BY recorded_at DESC, id DESC
	LIMIT 1
	`, ChannelKey(channelURL)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest manifest: %w", err)
	}
	return &rec, nil
}

// DeleteRun removes a run and its outcomes. It reports whether a run was deleted.
func (h *HistoryDB) DeleteRun(ctx context.Context, id string) (bool, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resolutions WHERE run_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete resolutions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n > 0, nil
}

// timestampLayout sorts lexicographically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats are the formats accepted when reading timestamps back.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp returns the zero time when s matches no known format.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
