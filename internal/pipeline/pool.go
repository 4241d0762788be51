package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// ChannelResolver resolves one channel on a session it does not own.
// *resolver.Resolver implements it.
type ChannelResolver interface {
	Resolve(ctx context.Context, sess browser.Session, ch model.Channel) resolver.Resolution
}

// Pool resolves channels concurrently. Every unit owns a fresh browser
// session, so a crash or hang in one unit never reaches another.
type Pool struct {
	// factory launches one session per unit.
	factory browser.Factory

	// resolver runs the cascade on a unit's session.
	resolver ChannelResolver

	// width is the maximum number of units in flight.
	width int

	// unitTimeout bounds a single unit from session launch to close.
	unitTimeout time.Duration

	// logger is used for structured logging.
	logger *slog.Logger
}

// PoolOption is a function that configures a Pool.
type PoolOption func(*Pool)

// WithWidth sets the maximum number of concurrent units.
// Non-positive values keep the default.
func WithWidth(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.width = n
		}
	}
}

// WithUnitTimeout bounds one unit, including session launch and teardown.
// A unit past its deadline is reported Unresolved with
// context.DeadlineExceeded. Non-positive values keep the default.
func WithUnitTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.unitTimeout = d
		}
	}
}

// WithPoolLogger sets the pool logger.
// If not set, slog.Default() is used.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// NewPool creates a Pool drawing sessions from factory and resolving them
// with res. Width and unit timeout default to the config package values.
func NewPool(factory browser.Factory, res ChannelResolver, opts ...PoolOption) *Pool {
	p := &Pool{
		factory:     factory,
		resolver:    res,
		width:       config.DefaultPoolWidth,
		unitTimeout: config.DefaultChannelTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Width returns the concurrency limit.
func (p *Pool) Width() int {
	return p.width
}

// Process resolves every channel and calls callback once per channel in
// completion order. Calls to callback are serialized.
//
// Once ctx is done no new unit starts; each channel not yet started is
// reported Unresolved with the context error. Process returns ctx.Err()
// in that case and nil otherwise.
func (p *Pool) Process(ctx context.Context, channels []model.Channel, callback func(resolver.Resolution)) error {
	p.logger.Info("starting resolution",
		"channels", len(channels),
		"width", p.width,
	)
	startTime := time.Now()

	// Serialize callbacks so the aggregator needs no locking of its own.
	var mu sync.Mutex
	report := func(res resolver.Resolution) {
		mu.Lock()
		defer mu.Unlock()
		if callback != nil {
			callback(res)
		}
	}

	var g errgroup.Group
	g.SetLimit(p.width)

	for _, ch := range channels {
		g.Go(func() error {
			// Units never fail the group; outcomes travel through report.
			report(p.unit(ctx, ch))
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // units always return nil

	p.logger.Info("resolution complete",
		"channels", len(channels),
		"elapsed", time.Since(startTime),
	)
	return ctx.Err()
}

// unit resolves ch on its own session. Close runs before the panic is
// recovered, so a crashing resolver still releases its browser.
func (p *Pool) unit(ctx context.Context, ch model.Channel) (res resolver.Resolution) {
	if err := ctx.Err(); err != nil {
		return resolver.Failed(ch, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.unitTimeout)
	defer cancel()

	logger := p.logger.With("channel", ch.Name)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("resolution unit crashed", "panic", fmt.Sprint(r))
			res = resolver.Failed(ch, fmt.Errorf("%w: %v", browser.ErrSessionFault, r))
		}
	}()

	// The session belongs to this unit alone and is closed on every path.
	sess, err := p.factory.NewSession(ctx)
	if err != nil {
		logger.Warn("browser session unavailable", "error", err)
		return resolver.Failed(ch, fmt.Errorf("%w: %w", browser.ErrSessionFault, err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("session close failed", "error", err)
		}
	}()

	logger.Debug("resolving channel", "index", ch.Index+1)
	return p.resolver.Resolve(ctx, sess, ch)
}
