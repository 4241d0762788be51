package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/database"
	"github.com/nao1215/streamscout/internal/egress"
	"github.com/nao1215/streamscout/internal/log"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/pipeline"
	"github.com/nao1215/streamscout/internal/playlist"
	"github.com/nao1215/streamscout/internal/resolver"
	"github.com/spf13/cobra"
)

// ErrRunTimedOut is returned when the run hits --run-timeout. Channels
// resolved before the deadline are still written.
var ErrRunTimedOut = errors.New("run timed out")

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover channels and write an M3U playlist",
		Long: `Run opens the listing site, collects every channel page and resolves each
channel's HLS manifest in its own headless Chrome. Resolved channels are
written to an M3U playlist and the run is recorded in the history database.

A channel that cannot be resolved is reported and skipped; it never stops
the run. When --run-timeout expires, the channels resolved so far are
still written.

Examples:
  # Resolve every channel on the default listing site
  streamscout run

  # Only sports channels, four browsers at a time
  streamscout run --category Sports --width 4 -o sports.m3u

  # Route every browser through a SOCKS5 proxy
  streamscout run --proxy socks5://127.0.0.1:9050

  # Route every browser through an embedded Tor daemon
  streamscout run --tor

  # JSON run summary written to a file
  streamscout run --json --summary-file run.json

Configuration file (.streamscout) example:
  sites:
    timstreams.site:
      category: "Sports"
      groupLabel: "Timstreams"`,
		Args: cobra.NoArgs,
		RunE: runRunCmd,
	}

	// Listing flags
	cmd.Flags().StringP("base-url", "u", config.DefaultBaseURL,
		"Listing site entry point")
	cmd.Flags().String("category", "",
		"Category filter applied on the listing page (e.g. Sports)")
	cmd.Flags().StringSlice("block", nil,
		"Additional link blocklist substrings (repeatable)")

	// Pool and timing flags
	cmd.Flags().IntP("width", "w", config.DefaultPoolWidth,
		"Number of channels resolved concurrently")
	cmd.Flags().Duration("wait-timeout", config.DefaultWaitTimeout,
		"Timeout for each element wait during discovery")
	cmd.Flags().DurationP("channel-timeout", "t", config.DefaultChannelTimeout,
		"Timeout for resolving a single channel")
	cmd.Flags().DurationP("run-timeout", "T", config.DefaultRunTimeout,
		"Timeout for the whole run")
	cmd.Flags().Duration("op-timeout", config.DefaultOpTimeout,
		"Timeout for a single browser operation")
	cmd.Flags().Duration("sniff-budget", config.DefaultSniffBudget,
		"How long the network log is watched for a manifest")
	cmd.Flags().Duration("sniff-interval", config.DefaultSniffInterval,
		"Network log polling interval")
	cmd.Flags().Duration("page-settle", config.DefaultPageSettle,
		"Pause after loading a channel page")
	cmd.Flags().Duration("frame-settle", config.DefaultFrameSettle,
		"Pause after entering an embedded player")
	cmd.Flags().Duration("grid-settle", config.DefaultGridSettle,
		"Pause after opening the channel grid")
	cmd.Flags().Duration("filter-settle", config.DefaultFilterSettle,
		"Pause after applying the category filter")

	// Playlist flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputFile,
		"Playlist file path (creates directories if needed)")
	cmd.Flags().StringP("group-label", "g", "",
		"Playlist group-title (default: derived from the site and category)")
	cmd.Flags().Bool("discovery-order", false,
		"Write playlist entries in discovery order instead of resolution order")

	// Browser flags
	cmd.Flags().Bool("headless", true,
		"Run Chrome without a window")
	cmd.Flags().String("chrome-path", "",
		"Chrome executable path (default: search PATH)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"Browser user agent")

	// Egress flags
	cmd.Flags().StringP("proxy", "p", "",
		"Route browser traffic through a proxy (socks5://host:port or http://host:port)")
	cmd.Flags().Bool("tor", false,
		"Route browser traffic through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// History flags
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the history database")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .streamscout in current or home directory)")

	// Summary flags
	cmd.Flags().BoolP("json", "j", false,
		"Print the run summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the run summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("summary-file", "s", "",
		"Write the run summary to a file instead of stdout")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, _ []string) error {
	// Build and validate configuration
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, logJSON)
	slog.SetDefault(logger)

	// Interrupts cancel the run; finished channels are still written.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proxyURL, release, err := prepareEgress(ctx, cfg, cmd.ErrOrStderr(), logger)
	if err != nil {
		return err
	}
	defer release()

	// Every channel gets its own browser from this launcher.
	launcher := browser.NewLauncher(
		browser.WithHeadless(cfg.Headless),
		browser.WithExecPath(cfg.ChromePath),
		browser.WithUserAgent(cfg.UserAgent),
		browser.WithProxy(proxyURL),
		browser.WithOpTimeout(cfg.OpTimeout),
		browser.WithLogger(logger),
	)

	_, err = runStreams(ctx, cfg, launcher, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
	return err
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	// Get flag values
	var err error
	strs := []struct {
		name string
		dst  *string
	}{
		{"base-url", &cfg.BaseURL},
		{"category", &cfg.Category},
		{"output", &cfg.OutputFile},
		{"group-label", &cfg.GroupLabel},
		{"chrome-path", &cfg.ChromePath},
		{"user-agent", &cfg.UserAgent},
		{"proxy", &cfg.ProxyAddress},
		{"db-dir", &cfg.DBDir},
		{"config", &cfg.ConfigFilePath},
		{"summary-file", &cfg.SummaryFile},
	}
	for _, f := range strs {
		if *f.dst, err = flags.GetString(f.name); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"wait-timeout", &cfg.WaitTimeout},
		{"channel-timeout", &cfg.ChannelTimeout},
		{"run-timeout", &cfg.RunTimeout},
		{"op-timeout", &cfg.OpTimeout},
		{"sniff-budget", &cfg.SniffBudget},
		{"sniff-interval", &cfg.SniffInterval},
		{"page-settle", &cfg.PageSettle},
		{"frame-settle", &cfg.FrameSettle},
		{"grid-settle", &cfg.GridSettle},
		{"filter-settle", &cfg.FilterSettle},
		{"tor-timeout", &cfg.TorStartupTimeout},
	}
	for _, f := range durations {
		if *f.dst, err = flags.GetDuration(f.name); err != nil {
			return nil, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"discovery-order", &cfg.DiscoveryOrder},
		{"headless", &cfg.Headless},
		{"tor", &cfg.UseTor},
		{"json", &cfg.JSONSummary},
		{"markdown", &cfg.MarkdownSummary},
	}
	for _, f := range bools {
		if *f.dst, err = flags.GetBool(f.name); err != nil {
			return nil, err
		}
	}

	if cfg.PoolWidth, err = flags.GetInt("width"); err != nil {
		return nil, err
	}

	extra, err := flags.GetStringSlice("block")
	if err != nil {
		return nil, err
	}
	cfg.Blocklist = append(cfg.Blocklist, extra...)

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	cfg.Verbose = getVerboseFlag(cmd)

	// An explicit config path must exist; otherwise a missing file just
	// means the built-in site profile.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	var file *config.File
	switch {
	case configPath != "":
		if file, err = config.LoadConfigFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}
	cfg.Apply(file)

	return cfg, nil
}

// setupLogger creates the redacting logger for a run.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return log.NewSecureJSONLogger(w, verbose)
	}
	return log.NewSecureLogger(w, verbose)
}

// prepareEgress sets up the browser egress and returns the proxy URL to
// hand to Chrome, or "" for a direct connection. release must be called
// once the browsers are gone.
func prepareEgress(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (string, func(), error) {
	noop := func() {}
	if cfg.ProxyAddress == "" && !cfg.UseTor {
		return "", noop, nil
	}

	target, err := egress.TargetAddr(cfg.BaseURL)
	if err != nil {
		return "", noop, err
	}

	if cfg.ProxyAddress != "" {
		p, err := egress.ParseProxy(cfg.ProxyAddress)
		if err != nil {
			return "", noop, err
		}
		if err := verifyProxy(ctx, p, target, logger); err != nil {
			return "", noop, fmt.Errorf("proxy check failed: %w (make sure a proxy is running at %s)", err, p.Addr)
		}
		return p.URL(), noop, nil
	}

	return startEmbeddedTor(ctx, cfg, target, out, logger)
}

// verifyProxy checks that p speaks its protocol. Failing to reach the
// listing site through it is only a warning: the site may block clients
// that are not browsers.
func verifyProxy(ctx context.Context, p egress.Proxy, target string, logger *slog.Logger) error {
	if status := p.Check(ctx, target); status != egress.ProxyStatusOK {
		return status.Error()
	}
	if err := p.Reach(ctx, target); err != nil {
		logger.Warn("listing site not reachable through proxy", "proxy", p.String(), "error", err)
	}
	logger.Info("proxy connection verified", "proxy", p.String())
	return nil
}

// startEmbeddedTor starts an embedded Tor daemon and returns its SOCKS
// proxy URL.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, target string, out io.Writer, logger *slog.Logger) (string, func(), error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	tor := egress.NewEmbeddedTor(
		egress.WithStartupTimeout(cfg.TorStartupTimeout),
		egress.WithTorLogger(logger),
	)
	if err := tor.Start(ctx); err != nil {
		return "", func() {}, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	release := func() {
		logger.Info("stopping embedded Tor daemon")
		if err := tor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	p, err := tor.Proxy()
	if err == nil {
		err = verifyProxy(ctx, p, target, logger)
	}
	if err != nil {
		release()
		return "", func() {}, fmt.Errorf("embedded Tor proxy check failed: %w", err)
	}

	fmt.Fprintf(out, "Embedded Tor daemon started, SOCKS proxy: %s\n\n", tor.SocksAddr())
	return p.URL(), release, nil
}

// runStreams executes one run against factory, prints the summary and
// returns the finished run.
func runStreams(ctx context.Context, cfg *config.Config, factory browser.Factory, stdout, stderr io.Writer, logger *slog.Logger) (*model.Run, error) {
	var store pipeline.RunStore
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		store = db
		logger.Debug("history database opened", "path", db.Path())
	}

	p, err := pipeline.DefaultPipeline(cfg, factory, store, logger,
		pipeline.WithProgress(progressPrinter(stderr)),
	)
	if err != nil {
		return nil, err
	}

	// Global run deadline
	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	fmt.Fprintf(stderr, "Scanning %s (width %d)...\n", cfg.BaseURL, cfg.PoolWidth)
	run := model.NewRun(cfg.BaseURL, cfg.Category)
	runErr := p.Execute(ctx, run)

	// The summary is printed even for failed or timed-out runs.
	if err := outputSummary(cfg, run, stdout); err != nil {
		logger.Error("failed to write run summary", "error", err)
	}

	if run.TimedOut {
		return run, fmt.Errorf("%w after %s (%d channels resolved before the deadline)",
			ErrRunTimedOut, cfg.RunTimeout, run.Results.Len())
	}
	return run, runErr
}

// progressPrinter reports every finished channel on w.
func progressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(done, total int, res resolver.Resolution) {
		status := res.State.String()
		if res.Err != nil {
			status += ": " + log.RedactURLs(res.Err.Error())
		}
		fmt.Fprintf(w, "[%d/%d] %s (%s)\n", done, total, res.Channel.Name, status)
	}
}

// outputSummary writes the run summary in the requested format.
func outputSummary(cfg *config.Config, run *model.Run, stdout io.Writer) error {
	out := stdout
	if cfg.SummaryFile != "" {
		if dir := filepath.Dir(cfg.SummaryFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create summary directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.SummaryFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create summary file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w playlist.SummaryWriter
	switch {
	case cfg.JSONSummary:
		w = playlist.NewJSONWriter(out,
			playlist.WithPrettyPrint(),
			playlist.WithVersion(getVersion()),
			playlist.WithJSONDiscoveryOrder(cfg.DiscoveryOrder),
		)
	case cfg.MarkdownSummary:
		w = playlist.NewMarkdownWriter(out, playlist.WithMarkdownDiscoveryOrder(cfg.DiscoveryOrder))
	default:
		w = playlist.NewTextWriter(out,
			playlist.WithVerbose(cfg.Verbose),
			playlist.WithDiscoveryOrder(cfg.DiscoveryOrder),
		)
	}
	_, err := w.Write(run)
	return err
}
