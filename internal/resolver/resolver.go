package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/config"
	"github.com/nao1215/streamscout/internal/model"
)

// DefaultPreferredMarkers identify master playlists and signed URLs. A
// network candidate containing one ends sniffing immediately.
var DefaultPreferredMarkers = []string{"master", "index", "playlist", "token", "auth"}

// Resolver runs the resolution cascade. It holds no per-channel state and
// is safe for concurrent use with distinct sessions.
type Resolver struct {
	// pageSettle and frameSettle are pauses after loading a page and
	// after entering an embedded player.
	pageSettle  time.Duration
	frameSettle time.Duration

	// sniffBudget bounds how long the network log is watched per document;
	// sniffInterval is the polling period.
	sniffBudget   time.Duration
	sniffInterval time.Duration

	// preferred holds lower-cased markers that win manifest selection.
	preferred []string

	// triggers run in order until one starts playback.
	triggers []trigger

	// extractors read manifests from the page source when sniffing fails.
	extractors []extractor

	// logger is used for debug output.
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSettle sets the pauses after page load and after frame entry.
func WithSettle(page, frame time.Duration) Option {
	return func(r *Resolver) {
		r.pageSettle = page
		r.frameSettle = frame
	}
}

// WithSniff sets the network polling budget and interval.
func WithSniff(budget, interval time.Duration) Option {
	return func(r *Resolver) {
		if budget > 0 {
			r.sniffBudget = budget
		}
		if interval > 0 {
			r.sniffInterval = interval
		}
	}
}

// WithPreferredMarkers replaces the preferred URL markers.
func WithPreferredMarkers(markers []string) Option {
	return func(r *Resolver) {
		r.preferred = make([]string, 0, len(markers))
		for _, m := range markers {
			if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
				r.preferred = append(r.preferred, m)
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		pageSettle:    config.DefaultPageSettle,
		frameSettle:   config.DefaultFrameSettle,
		sniffBudget:   config.DefaultSniffBudget,
		sniffInterval: config.DefaultSniffInterval,
		preferred:     DefaultPreferredMarkers,
		triggers:      defaultTriggers(),
		extractors:    defaultExtractors(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve runs the cascade for ch on sess. It never returns a bare error;
// failures are reported through Resolution.Err. The caller owns sess.
func (r *Resolver) Resolve(ctx context.Context, sess browser.Session, ch model.Channel) Resolution {
	res := Resolution{Channel: ch}
	res.advance(StateInit)
	logger := r.logger.With("channel", ch.Name, "url", ch.URL)

	// Start a fresh visit so requests from the previous channel are ignored.
	sess.ClearNetworkLog()
	if err := sess.Navigate(ctx, ch.URL); err != nil {
		res.fail(fmt.Errorf("%w: %w", ErrChannelResolution, err))
		logger.Warn("channel page unavailable", "error", err)
		return res
	}
	res.advance(StatePageLoaded)
	if err := sleep(ctx, r.pageSettle); err != nil {
		res.fail(fmt.Errorf("%w: %w", ErrChannelResolution, err))
		return res
	}

	c := &cascade{}
	if u, err := url.Parse(ch.URL); err == nil {
		c.pageURL = u
	}

	// Embedded player, if any. Triggers and sniffing run inside it.
	if src, ok := r.enterFrame(ctx, sess, logger); ok {
		c.frameSrc = src
		res.advance(StateFrameEntered)
		defer func() {
			if err := sess.ExitFrame(context.WithoutCancel(ctx)); err != nil {
				logger.Debug("frame exit failed", "error", err)
			}
		}()
		if err := sleep(ctx, r.frameSettle); err != nil {
			res.fail(fmt.Errorf("%w: %w", ErrChannelResolution, err))
			return res
		}
	}

	// A failed trigger does not end the cascade.
	res.Trigger = r.triggerPlayback(ctx, sess, logger)
	res.advance(StatePlaybackTriggered)

	res.advance(StateSniffing)
	if manifest, ok := r.sniff(ctx, sess); ok {
		res.resolve(manifest, model.SourceNetwork)
		logger.Info("manifest found", "manifest", manifest, "source", res.Source)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.fail(fmt.Errorf("%w: %w", ErrChannelResolution, err))
		return res
	}

	// Fall back to the page source.
	for _, e := range r.extractors {
		if manifest, ok := e.Extract(ctx, sess, c); ok {
			res.resolve(manifest, e.Name())
			logger.Info("manifest found", "manifest", manifest, "source", res.Source)
			return res
		}
	}

	res.advance(StateUnresolved)
	logger.Info("no manifest found")
	return res
}

// enterFrame enters the first iframe and returns its src.
func (r *Resolver) enterFrame(ctx context.Context, sess browser.Session, logger *slog.Logger) (string, bool) {
	frames, err := sess.FindElements(ctx, browser.Tag("iframe"))
	if err != nil || len(frames) == 0 {
		return "", false
	}
	src, _, _ := sess.Attribute(ctx, frames[0], "src")
	if err := sess.EnterFrame(ctx, frames[0]); err != nil {
		logger.Debug("frame entry failed, staying on page", "src", src, "error", err)
		return "", false
	}
	return src, true
}

// triggerPlayback runs the triggers in order and returns the name of the
// first that succeeded, or "".
func (r *Resolver) triggerPlayback(ctx context.Context, sess browser.Session, logger *slog.Logger) string {
	for _, t := range r.triggers {
		ok, err := t.Attempt(ctx, sess)
		if err != nil {
			logger.Debug("playback trigger failed", "trigger", t.Name(), "error", err)
			continue
		}
		if ok {
			logger.Debug("playback triggered", "trigger", t.Name())
			return t.Name()
		}
	}
	return ""
}

// sniff polls the network log until a preferred manifest appears or the
// budget runs out. The first non-preferred manifest is kept as fallback.
func (r *Resolver) sniff(ctx context.Context, sess browser.Session) (string, bool) {
	deadline := time.Now().Add(r.sniffBudget)
	fallback := ""
	for {
		for _, req := range sess.NetworkLog() {
			if !req.HasResponse || !isManifest(req.URL) {
				continue
			}
			if r.isPreferred(req.URL) {
				return req.URL, true
			}
			if fallback == "" {
				fallback = req.URL
			}
		}

		// Poll again until the budget is spent.
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := sleep(ctx, min(r.sniffInterval, remaining)); err != nil {
			break
		}
	}
	return fallback, fallback != ""
}

// isPreferred reports whether raw contains a preferred marker. Markers are
// stored lower-cased.
func (r *Resolver) isPreferred(raw string) bool {
	lower := strings.ToLower(raw)
	for _, m := range r.preferred {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
