package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/database"
	"github.com/nao1215/streamscout/internal/playlist"
	"github.com/spf13/cobra"
)

// shortIDLength is how much of a run ID the listings print. Any unique
// prefix is accepted where a run ID is expected.
const shortIDLength = 8

// ErrRunNotFound is returned when no stored run matches a run ID.
var ErrRunNotFound = errors.New("run not found")

// NewHistoryCmd creates the history command and its subcommands.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs stored in the history database",
		Long: `History reads the runs recorded by 'streamscout run'.

Run IDs may be abbreviated to any unique prefix.

Examples:
  # List the most recent runs
  streamscout history list

  # Show the channels of a run
  streamscout history show 1a2b3c4d

  # Write the playlist of a past run again
  streamscout history show 1a2b3c4d --export old.m3u

  # Latest manifest recorded for a channel page
  streamscout history latest https://timstreams.site/watch/news

  # Remove a run
  streamscout history delete 1a2b3c4d`,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryLatestCmd())
	cmd.AddCommand(newHistoryDeleteCmd())

	return cmd
}

// openHistory opens the existing history database named by --db-dir.
func openHistory(cmd *cobra.Command) (*database.HistoryDB, error) {
	dir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dir, opts)
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			return nil, fmt.Errorf("%w (use 'streamscout run' to record a run first)", err)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// findRun resolves a run ID or prefix.
func findRun(ctx context.Context, db *database.HistoryDB, id string) (*database.RunRecord, error) {
	rec, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return rec, nil
}

// newHistoryListCmd creates the history list subcommand.
func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List past runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printRunList(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 lists all)")
	return cmd
}

// printRunList writes runs as a table.
func printRunList(w io.Writer, runs []database.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in the history database.")
		fmt.Fprintln(w, "\nUse 'streamscout run' to record one.")
		return nil
	}

	fmt.Fprintf(w, "Runs (%d):\n\n", len(runs))
	fmt.Fprintf(w, "  %-8s  %-16s  %-24s  %-10s  %-9s  %s\n",
		"ID", "Started", "Site", "Discovered", "Resolved", "Status")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 86))
	for _, r := range runs {
		fmt.Fprintf(w, "  %-8s  %-16s  %-24s  %-10d  %-9d  %s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			siteLabel(r),
			r.Summary.Discovered,
			r.Summary.Resolved,
			runStatus(r),
		)
	}
	fmt.Fprintln(w, "\nUse 'streamscout history show <id>' to see the channels of a run.")
	return nil
}

// newHistoryShowCmd creates the history show subcommand.
func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the channels of a past run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	cmd.Flags().BoolP("json", "j", false, "Output the run as JSON")
	cmd.Flags().StringP("export", "e", "",
		"Write the run's resolved streams to an M3U playlist at this path")
	cmd.Flags().StringP("group-label", "g", "",
		"Playlist group-title for --export (default: derived from the site and category)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path used to resolve the site profile for --export")
	return cmd
}

// runHistoryShow prints one run and, with --export, rewrites its
// playlist from the stored outcomes.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	exportPath, err := cmd.Flags().GetString("export")
	if err != nil {
		return err
	}

	db, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	rec, err := findRun(ctx, db, args[0])
	if err != nil {
		return err
	}
	resolutions, err := db.GetResolutions(ctx, rec.ID)
	if err != nil {
		return err
	}

	// Export before printing so a failed export is the command's error.
	if exportPath != "" {
		if err := exportRun(cmd, db, rec, exportPath); err != nil {
			return err
		}
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), struct {
			Run         *database.RunRecord         `json:"run"`
			Resolutions []database.ResolutionRecord `json:"resolutions"`
		}{rec, resolutions})
	}
	printRun(cmd.OutOrStdout(), rec, resolutions)
	return nil
}

// printRun writes a run and its channel outcomes in text form.
func printRun(w io.Writer, rec *database.RunRecord, resolutions []database.ResolutionRecord) {
	fmt.Fprintf(w, "Run %s\n", rec.ID)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "\nSite:       %s\n", rec.BaseURL)
	if rec.Category != "" {
		fmt.Fprintf(w, "Category:   %s (filter: %s)\n", rec.Category, rec.Summary.Filter)
	}
	fmt.Fprintf(w, "Started:    %s\n", rec.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Elapsed:    %s\n", rec.Summary.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Status:     %s\n", runStatus(*rec))
	if rec.PlaylistPath != "" {
		fmt.Fprintf(w, "Playlist:   %s\n", rec.PlaylistPath)
	}
	fmt.Fprintf(w, "\nDiscovered: %d  Resolved: %d  Unresolved: %d\n",
		rec.Summary.Discovered, rec.Summary.Resolved, rec.Summary.Unresolved)

	if len(resolutions) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, r := range resolutions {
		if r.Resolved {
			fmt.Fprintf(w, "  [+] %s\n      %s\n", r.Channel.Name, r.ManifestURL)
			continue
		}
		reason := r.Reason
		if reason == "" {
			reason = "no manifest found"
		}
		fmt.Fprintf(w, "  [-] %s (%s)\n", r.Channel.Name, reason)
	}
}

// exportRun writes the resolved streams of rec as a playlist. The group
// label and name prefixes come from the site profile of the run's base URL.
func exportRun(cmd *cobra.Command, db *database.HistoryDB, rec *database.RunRecord, path string) error {
	cfg := config.NewConfig()
	cfg.BaseURL = rec.BaseURL
	cfg.Category = rec.Category

	var err error
	if cfg.GroupLabel, err = cmd.Flags().GetString("group-label"); err != nil {
		return err
	}
	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return err
	}
	var file *config.File
	if found := config.FindConfigFile(cfg.ConfigFilePath); found != "" {
		if file, err = config.LoadConfigFile(found); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", found, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	cfg.Apply(file)

	results, err := db.StreamResults(cmd.Context(), rec.ID)
	if err != nil {
		return err
	}
	writer := playlist.NewM3UWriter(
		playlist.WithGroupLabel(cfg.EffectiveGroupLabel()),
		playlist.WithNamePrefixes(cfg.Site.NamePrefixes),
	)
	if err := writer.WriteFile(path, results); err != nil {
		return fmt.Errorf("failed to export run %s: %w", shortID(rec.ID), err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d stream(s) to %s\n", len(results), path)
	return nil
}

func newHistoryLatestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest <channel-url>",
		Short: "Print the most recent manifest recorded for a channel page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.LatestManifest(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no manifest recorded for %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.ManifestURL)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s, run %s, recorded %s\n",
				rec.Channel.Name, shortID(rec.RunID), rec.RecordedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	return cmd
}

// newHistoryDeleteCmd creates the history delete subcommand.
func newHistoryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Remove a run and its channels from the history database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			rec, err := findRun(ctx, db, args[0])
			if err != nil {
				return err
			}
			deleted, err := db.DeleteRun(ctx, rec.ID)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("%w: %s", ErrRunNotFound, args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", rec.ID)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// shortID truncates a run ID for display.
func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func siteLabel(r database.RunRecord) string {
	label := strings.TrimPrefix(strings.TrimPrefix(r.BaseURL, "https://"), "http://")
	label = strings.TrimSuffix(label, "/")
	if r.Category != "" {
		label += " [" + r.Category + "]"
	}
	if len(label) > 24 {
		label = label[:21] + "..."
	}
	return label
}

// runStatus is the one-word outcome shown in run lists.
func runStatus(r database.RunRecord) string {
	switch {
	case r.TimedOut:
		return "timed out"
	case r.Error != "":
		return "failed"
	default:
		return "complete"
	}
}
