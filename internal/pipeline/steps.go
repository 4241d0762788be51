package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/discovery"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/playlist"
	"github.com/nao1215/streamscout/internal/resolver"
)

// Step names as recorded in Run.PerformedSteps and the history database.
const (
	// StepDiscover enumerates the listing site.
	StepDiscover = "discover"

	// StepResolve runs the worker pool over the discovered channels.
	StepResolve = "resolve"

	// StepWrite writes the M3U playlist.
	StepWrite = "write_playlist"

	// StepPersist stores the run in the history database.
	StepPersist = "persist"
)

// DiscoverStep enumerates the channels of the listing site on a session of
// its own. Discovery failures are fatal.
type DiscoverStep struct {
	// factory launches the discovery session.
	factory browser.Factory

	// discoverer walks the listing page.
	discoverer *discovery.Discoverer

	// logger is used for structured logging.
	logger *slog.Logger
}

// NewDiscoverStep creates a discovery step.
func NewDiscoverStep(factory browser.Factory, d *discovery.Discoverer, logger *slog.Logger) *DiscoverStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoverStep{factory: factory, discoverer: d, logger: logger}
}

// Name returns the step name.
func (s *DiscoverStep) Name() string {
	return StepDiscover
}

// Do executes the discovery step. The discovered channels and the filter
// outcome are stored on run; ErrEmptyResult and navigation failures are
// returned as they are.
func (s *DiscoverStep) Do(ctx context.Context, run *model.Run) error {
	sess, err := s.factory.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", browser.ErrSessionFault, err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Debug("discovery session close failed", "error", err)
		}
	}()

	result, err := s.discoverer.Discover(ctx, sess)
	if err != nil {
		return err
	}
	run.Channels = result.Channels
	run.Filter = result.Filter.String()
	return nil
}

// ProgressFunc is called after each channel is resolved. done counts the
// channels finished so far, including res.
type ProgressFunc func(done, total int, res resolver.Resolution)

// ResolveStep resolves every discovered channel through the pool and
// aggregates the outcomes.
type ResolveStep struct {
	// pool runs the per-channel units.
	pool *Pool

	// progress, when set, is called once per finished channel.
	progress ProgressFunc

	// logger is used for structured logging.
	logger *slog.Logger
}

// ResolveStepOption is a function that configures a ResolveStep.
type ResolveStepOption func(*ResolveStep)

// WithProgress sets a callback invoked as each channel completes.
// Calls are serialized by the pool and arrive in completion order.
func WithProgress(fn ProgressFunc) ResolveStepOption {
	return func(s *ResolveStep) {
		s.progress = fn
	}
}

// WithResolveLogger sets the step logger.
// If not set, slog.Default() is used.
func WithResolveLogger(logger *slog.Logger) ResolveStepOption {
	return func(s *ResolveStep) {
		s.logger = logger
	}
}

// NewResolveStep creates a resolution step.
func NewResolveStep(pool *Pool, opts ...ResolveStepOption) *ResolveStep {
	s := &ResolveStep{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Name returns the step name.
func (s *ResolveStep) Name() string {
	return StepResolve
}

// Do executes the resolution step. Resolved channels go to run.Results,
// the rest to the run's unresolved list. Cancellation is not an error of
// this step; the pipeline reports it.
func (s *ResolveStep) Do(ctx context.Context, run *model.Run) error {
	total := len(run.Channels)
	done := 0

	err := s.pool.Process(ctx, run.Channels, func(res resolver.Resolution) {
		done++
		if result, ok := res.Result(); ok {
			if !run.Results.Add(result) {
				s.logger.Warn("duplicate result dropped", "channel", res.Channel.URL)
			}
		} else {
			u := model.Unresolved{Channel: res.Channel}
			if res.Err != nil {
				u.Reason = res.Err.Error()
			}
			run.AddUnresolved(u)
			s.logger.Info("channel unresolved", "channel", res.Channel.Name, "reason", u.Reason)
		}
		if s.progress != nil {
			s.progress(done, total, res)
		}
	})
	run.FinishedAt = time.Now()

	summary := run.Summary()
	s.logger.Info("resolution summary",
		"discovered", summary.Discovered,
		"resolved", summary.Resolved,
		"unresolved", summary.Unresolved,
	)
	if err != nil {
		s.logger.Warn("resolution cut short", "reason", err)
	}
	return nil
}

// RunStore persists a finished run. *database.HistoryDB implements it.
type RunStore interface {
	// SaveRun stores run together with its channel outcomes.
	SaveRun(ctx context.Context, run *model.Run) error
}

// PersistStep records the run in the history store. It runs even after the
// run context ends. Storage failures are logged, not fatal.
type PersistStep struct {
	// store receives the run; nil disables persistence.
	store RunStore

	// logger is used for structured logging.
	logger *slog.Logger
}

// NewPersistStep creates a persist step. A nil store makes it a no-op.
func NewPersistStep(store RunStore, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return StepPersist
}

// Final reports that the step runs after cancellation.
func (s *PersistStep) Final() bool {
	return true
}

// Do executes the persist step.
func (s *PersistStep) Do(ctx context.Context, run *model.Run) error {
	if s.store == nil {
		return nil
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.logger.Warn("failed to save run to history", "run_id", run.ID, "error", err)
		return nil
	}
	s.logger.Debug("run saved to history", "run_id", run.ID)
	return nil
}

// WriteStep serializes the resolved streams as an M3U playlist. It runs
// even after the run context ends, so partial results are kept.
type WriteStep struct {
	// writer renders the playlist entries.
	writer *playlist.M3UWriter

	// path is the playlist destination.
	path string

	// discoveryOrder writes entries in discovery order instead of
	// arrival order.
	discoveryOrder bool

	// logger is used for structured logging.
	logger *slog.Logger
}

// NewWriteStep creates a playlist step writing to path.
func NewWriteStep(writer *playlist.M3UWriter, path string, discoveryOrder bool, logger *slog.Logger) *WriteStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &WriteStep{writer: writer, path: path, discoveryOrder: discoveryOrder, logger: logger}
}

// Name returns the step name.
func (s *WriteStep) Name() string {
	return StepWrite
}

// Final reports that the step runs after cancellation.
func (s *WriteStep) Final() bool {
	return true
}

// Do executes the playlist step. An empty result set writes nothing and
// only warns.
func (s *WriteStep) Do(_ context.Context, run *model.Run) error {
	results := run.Results.Results()
	if s.discoveryOrder {
		results = run.Results.Sorted()
	}

	if err := s.writer.WriteFile(s.path, results); err != nil {
		if errors.Is(err, playlist.ErrEmptyResultSet) {
			s.logger.Warn("playlist not written", "reason", err)
			return nil
		}
		return fmt.Errorf("failed to write playlist: %w", err)
	}

	run.PlaylistPath = s.path
	s.logger.Info("playlist written", "path", s.path, "entries", len(results))
	return nil
}

// DefaultPipeline builds the standard run: discover, resolve, write and
// persist, configured from cfg. store may be nil.
func DefaultPipeline(cfg *config.Config, factory browser.Factory, store RunStore, logger *slog.Logger, opts ...ResolveStepOption) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Discovery and resolution log through the run logger.
	d, err := discovery.New(cfg.BaseURL,
		discovery.WithSite(cfg.Site),
		discovery.WithCategory(cfg.Category),
		discovery.WithBlocklist(cfg.Blocklist),
		discovery.WithWaitTimeout(cfg.WaitTimeout),
		discovery.WithSettle(cfg.GridSettle, cfg.FilterSettle),
		discovery.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	resOpts := []resolver.Option{
		resolver.WithSettle(cfg.PageSettle, cfg.FrameSettle),
		resolver.WithSniff(cfg.SniffBudget, cfg.SniffInterval),
		resolver.WithLogger(logger),
	}
	if len(cfg.Site.PreferredMarkers) > 0 {
		resOpts = append(resOpts, resolver.WithPreferredMarkers(cfg.Site.PreferredMarkers))
	}
	res := resolver.New(resOpts...)

	pool := NewPool(factory, res,
		WithWidth(cfg.PoolWidth),
		WithUnitTimeout(cfg.ChannelTimeout),
		WithPoolLogger(logger),
	)

	writer := playlist.NewM3UWriter(
		playlist.WithGroupLabel(cfg.EffectiveGroupLabel()),
		playlist.WithNamePrefixes(cfg.Site.NamePrefixes),
	)

	// Write and persist are final steps; they run after a timeout too.
	p := New(WithLogger(logger))
	p.AddSteps(
		NewDiscoverStep(factory, d, logger),
		NewResolveStep(pool, append([]ResolveStepOption{WithResolveLogger(logger)}, opts...)...),
		NewWriteStep(writer, cfg.OutputFile, cfg.DiscoveryOrder, logger),
		NewPersistStep(store, logger),
	)
	return p, nil
}
