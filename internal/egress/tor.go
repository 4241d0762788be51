package egress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds how long Start waits for the daemon to
// bootstrap. The first bootstrap on a fresh data directory is the slow one.
const DefaultTorStartupTimeout = 3 * time.Minute

// EmbeddedTor runs a private Tor daemon whose SOCKS port is handed to
// every browser session as its proxy.
type EmbeddedTor struct {
	mu      sync.Mutex
	process *tornago.TorProcess
	timeout time.Duration
	logger  *slog.Logger
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout overrides DefaultTorStartupTimeout. Non-positive
// values are ignored.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithTorLogger sets the logger.
func WithTorLogger(logger *slog.Logger) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.logger = logger
	}
}

// NewEmbeddedTor returns an unstarted daemon.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{timeout: DefaultTorStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// launchResult carries the outcome of the startup goroutine.
type launchResult struct {
	process *tornago.TorProcess
	err     error
}

// Start launches the daemon on OS-assigned ports. It returns once Tor has
// bootstrapped, the startup timeout elapses or ctx is done; in the last
// case a daemon that comes up late is stopped again.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process != nil {
		return nil
	}

	cfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	e.logger.Info("bootstrapping embedded Tor", "timeout", e.timeout)
	done := make(chan launchResult, 1)
	go func() {
		process, err := tornago.StartTorDaemon(cfg)
		done <- launchResult{process: process, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("failed to start embedded Tor daemon: %w", res.err)
		}
		e.process = res.process
		e.logger.Info("embedded Tor ready", "socks", res.process.SocksAddr())
		return nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.process != nil {
				_ = res.process.Stop() //nolint:errcheck // nothing to report to
			}
		}()
		return ctx.Err()
	}
}

// Stop shuts the daemon down. Stopping an unstarted or stopped daemon is
// a no-op.
func (e *EmbeddedTor) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	return err
}

// SocksAddr returns the SOCKS address, or "" when the daemon is not running.
func (e *EmbeddedTor) SocksAddr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.process == nil {
		return ""
	}
	return e.process.SocksAddr()
}

// Proxy returns the daemon's SOCKS port as a browser proxy.
func (e *EmbeddedTor) Proxy() (Proxy, error) {
	addr := e.SocksAddr()
	if addr == "" {
		return Proxy{}, ErrTorNotRunning
	}
	return Proxy{Scheme: SchemeSOCKS5, Addr: addr}, nil
}
