package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/streamscout/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRun(started time.Time, results ...model.StreamResult) *model.Run {
	run := model.NewRun("https://timstreams.site/", "Sports")
	run.StartedAt = started
	run.Filter = "dropdown"
	for _, r := range results {
		run.Channels = append(run.Channels, r.Channel)
		run.Results.Add(r)
	}
	run.FinishedAt = started.Add(time.Minute)
	return run
}

func stream(name, manifest string, index int, at time.Time) model.StreamResult {
	return model.StreamResult{
		Channel:     model.Channel{Name: name, URL: "https://timstreams.site/watch/" + name, Index: index},
		ManifestURL: manifest,
		Source:      model.SourceNetwork,
		Trigger:     "media-element",
		ResolvedAt:  at,
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{CreateIfNotExists: false})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		run := testRun(time.Now(), stream("espn", "https://cdn.example/espn.m3u8", 0, time.Now()))
		if err := db.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()
		got, err := db.GetRun(context.Background(), run.ID)
		if err != nil || got == nil {
			t.Fatalf("expected stored run, got %v %v", got, err)
		}
	})
}

func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists || !opts.EnableWAL {
		t.Errorf("unexpected defaults %+v", opts)
	}
}

func TestChannelKey(t *testing.T) {
	t.Parallel()

	a := ChannelKey("https://timstreams.site/watch/espn")
	if len(a) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(a))
	}
	if a != ChannelKey("https://timstreams.site/watch/espn") {
		t.Error("expected stable key")
	}
	if a == ChannelKey("https://timstreams.site/watch/ESPN") {
		t.Error("expected case-sensitive identity")
	}
}

func TestSaveRun(t *testing.T) {
	t.Parallel()

	t.Run("stores run and outcomes", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		run := testRun(now,
			stream("sky", "https://cdn.example/sky/master.m3u8", 1, now.Add(time.Second)),
			stream("espn", "https://cdn.example/espn/index.m3u8", 0, now.Add(2*time.Second)),
		)
		failed := model.Channel{Name: "euro", URL: "https://timstreams.site/watch/euro", Index: 2}
		run.Channels = append(run.Channels, failed)
		run.AddUnresolved(model.Unresolved{Channel: failed, Reason: "session fault"})
		run.PlaylistPath = "out.m3u"

		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}

		got, err := db.GetRun(ctx, run.ID)
		if err != nil || got == nil {
			t.Fatalf("expected run, got %v %v", got, err)
		}
		if got.BaseURL != run.BaseURL || got.Category != "Sports" || got.Summary.Filter != "dropdown" {
			t.Errorf("unexpected run %+v", got)
		}
		if got.Summary.Discovered != 3 || got.Summary.Resolved != 2 || got.Summary.Unresolved != 1 {
			t.Errorf("unexpected summary %+v", got.Summary)
		}
		if got.Summary.Elapsed != time.Minute || !got.StartedAt.Equal(now) {
			t.Errorf("unexpected timing %v %v", got.StartedAt, got.Summary.Elapsed)
		}
		if got.PlaylistPath != "out.m3u" || got.TimedOut {
			t.Errorf("unexpected run %+v", got)
		}

		recs, err := db.GetResolutions(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get resolutions: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 outcomes, got %d", len(recs))
		}
		if recs[0].Channel.Name != "sky" || !recs[0].Resolved || recs[0].Trigger != "media-element" {
			t.Errorf("unexpected first outcome %+v", recs[0])
		}
		if recs[2].Resolved || recs[2].Reason != "session fault" || recs[2].ManifestURL != "" {
			t.Errorf("unexpected unresolved outcome %+v", recs[2])
		}
		if recs[1].ChannelKey != ChannelKey("https://timstreams.site/watch/espn") {
			t.Error("expected channel key of page URL")
		}

		streams, err := db.StreamResults(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get streams: %v", err)
		}
		if len(streams) != 2 || streams[1].ManifestURL != "https://cdn.example/espn/index.m3u8" {
			t.Errorf("unexpected streams %+v", streams)
		}
		if streams[1].Channel.Index != 0 {
			t.Error("expected discovery index to survive")
		}
	})

	t.Run("saving again replaces outcomes", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		run := testRun(time.Now(), stream("espn", "https://cdn.example/espn.m3u8", 0, time.Now()))

		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		run.TimedOut = true
		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run again: %v", err)
		}

		recs, err := db.GetResolutions(ctx, run.ID)
		if err != nil {
			t.Fatalf("failed to get resolutions: %v", err)
		}
		if len(recs) != 1 {
			t.Errorf("expected 1 outcome, got %d", len(recs))
		}
		got, err := db.GetRun(ctx, run.ID)
		if err != nil || got == nil || !got.TimedOut {
			t.Errorf("expected updated run, got %+v %v", got, err)
		}
	})
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ids := make([]string, 0, 3)
	for i := range 3 {
		run := testRun(base.Add(time.Duration(i)*time.Hour))
		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		ids = append(ids, run.ID)
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].ID != ids[2] || runs[2].ID != ids[0] {
		t.Error("expected newest first")
	}

	limited, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d", len(limited))
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	t.Run("missing run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		got, err := db.GetRun(context.Background(), "does-not-exist")
		if err != nil || got != nil {
			t.Errorf("expected nil, got %v %v", got, err)
		}
	})

	t.Run("unique prefix", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run := testRun(time.Now())
		if err := db.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		got, err := db.GetRun(context.Background(), run.ID[:8])
		if err != nil || got == nil || got.ID != run.ID {
			t.Errorf("expected prefix match, got %v %v", got, err)
		}
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		for _, id := range []string{"abc-1", "abc-2"} {
			run := testRun(time.Now())
			run.ID = id
			if err := db.SaveRun(context.Background(), run); err != nil {
				t.Fatalf("failed to save run: %v", err)
			}
		}
		if _, err := db.GetRun(context.Background(), "abc"); !errors.Is(err, ErrAmbiguousRunID) {
			t.Errorf("expected ErrAmbiguousRunID, got %v", err)
		}
	})
}

func TestLatestManifest(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := testRun(base, stream("espn", "https://cdn.example/old.m3u8", 0, base))
	newer := testRun(base.Add(time.Hour), stream("espn", "https://cdn.example/new.m3u8", 0, base.Add(time.Hour)))
	for _, run := range []*model.Run{newer, older} {
		if err := db.SaveRun(ctx, run); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}

	got, err := db.LatestManifest(ctx, "https://timstreams.site/watch/espn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.ManifestURL != "https://cdn.example/new.m3u8" || got.RunID != newer.ID {
		t.Errorf("expected newest manifest, got %+v", got)
	}

	missing, err := db.LatestManifest(ctx, "https://timstreams.site/watch/unknown")
	if err != nil || missing != nil {
		t.Errorf("expected nil, got %v %v", missing, err)
	}
}

func TestDeleteRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	run := testRun(time.Now(), stream("espn", "https://cdn.example/espn.m3u8", 0, time.Now()))
	if err := db.SaveRun(ctx, run); err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	deleted, err := db.DeleteRun(ctx, run.ID)
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got %v %v", deleted, err)
	}
	recs, err := db.GetResolutions(ctx, run.ID)
	if err != nil || len(recs) != 0 {
		t.Errorf("expected outcomes removed, got %d %v", len(recs), err)
	}
	again, err := db.DeleteRun(ctx, run.ID)
	if err != nil || again {
		t.Errorf("expected no second deletion, got %v %v", again, err)
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC)
	if got := parseTimestamp(formatTimestamp(ts)); !got.Equal(ts) {
		t.Errorf("round trip = %v, want %v", got, ts)
	}
	if got := parseTimestamp("2026-01-02 03:04:05"); got.IsZero() {
		t.Error("expected SQLite datetime to parse")
	}
	if !parseTimestamp("garbage").IsZero() || !parseTimestamp("").IsZero() {
		t.Error("expected zero time")
	}
	if formatTimestamp(time.Time{}) != "" {
		t.Error("expected empty string for zero time")
	}
}
