package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/browser/browsertest"
	"github.com/nao1215/streamscout/internal/model"
	"github.com/nao1215/streamscout/internal/resolver"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func channelURL(i int) string {
	return fmt.Sprintf("https://timstreams.site/watch/ch%d", i)
}

func manifestURL(i int) string {
	return fmt.Sprintf("https://cdn.example/ch%d/master.m3u8", i)
}

// channelPage is a channel page whose manifest is requested on load.
func channelPage(i int) *browsertest.Page {
	return &browsertest.Page{
		URL:      channelURL(i),
		Requests: []browser.NetworkRequest{{URL: manifestURL(i), HasResponse: true}},
	}
}

func channels(n int) []model.Channel {
	out := make([]model.Channel, n)
	for i := range out {
		out[i] = model.Channel{Name: fmt.Sprintf("Channel %d", i), URL: channelURL(i), Index: i}
	}
	return out
}

func channelSite(n int) *browsertest.Site {
	site := browsertest.NewSite()
	for i := range n {
		site.Add(channelPage(i))
	}
	return site
}

func testResolver() *resolver.Resolver {
	return resolver.New(
		resolver.WithLogger(quietLogger()),
		resolver.WithSettle(0, 0),
		resolver.WithSniff(30*time.Millisecond, 5*time.Millisecond),
	)
}

// collect runs the pool and returns the outcomes keyed by channel URL.
func collect(t *testing.T, ctx context.Context, p *Pool, chs []model.Channel) (map[string]resolver.Resolution, error) {
	t.Helper()
	var mu sync.Mutex
	out := make(map[string]resolver.Resolution)
	err := p.Process(ctx, chs, func(res resolver.Resolution) {
		mu.Lock()
		defer mu.Unlock()
		if _, dup := out[res.Channel.URL]; dup {
			t.Errorf("channel %s reported twice", res.Channel.URL)
		}
		out[res.Channel.URL] = res
	})
	return out, err
}

func resolvedManifests(outcomes map[string]resolver.Resolution) []string {
	out := make([]string, 0, len(outcomes))
	for _, res := range outcomes {
		if res.Resolved() {
			out = append(out, res.ManifestURL)
		}
	}
	slices.Sort(out)
	return out
}

func TestNewPool(t *testing.T) {
	t.Parallel()

	t.Run("creates pool with defaults", func(t *testing.T) {
		t.Parallel()

		p := NewPool(browsertest.NewFactory(browsertest.NewSite()), testResolver())
		if p.Width() != 3 {
			t.Errorf("expected default width 3, got %d", p.Width())
		}
		if p.unitTimeout != 2*time.Minute {
			t.Errorf("expected default unit timeout 2m, got %v", p.unitTimeout)
		}
		if p.logger == nil {
			t.Error("expected non-nil logger")
		}
	})

	t.Run("ignores non-positive values", func(t *testing.T) {
		t.Parallel()

		p := NewPool(browsertest.NewFactory(browsertest.NewSite()), testResolver(),
			WithWidth(0),
			WithUnitTimeout(-time.Second),
		)
		if p.Width() != 3 {
			t.Errorf("expected width 3, got %d", p.Width())
		}
		if p.unitTimeout != 2*time.Minute {
			t.Errorf("expected unit timeout 2m, got %v", p.unitTimeout)
		}
	})

	t.Run("applies options", func(t *testing.T) {
		t.Parallel()

		p := NewPool(browsertest.NewFactory(browsertest.NewSite()), testResolver(),
			WithWidth(7),
			WithUnitTimeout(time.Second),
		)
		if p.Width() != 7 || p.unitTimeout != time.Second {
			t.Errorf("options not applied: width=%d timeout=%v", p.Width(), p.unitTimeout)
		}
	})
}

func TestPoolProcess(t *testing.T) {
	t.Parallel()

	t.Run("width does not change the result set", func(t *testing.T) {
		t.Parallel()

		var sets [][]string
		for _, width := range []int{1, 5} {
			factory := browsertest.NewFactory(channelSite(10))
			p := NewPool(factory, testResolver(), WithWidth(width), WithPoolLogger(quietLogger()))

			outcomes, err := collect(t, context.Background(), p, channels(10))
			if err != nil {
				t.Fatalf("width %d: unexpected error: %v", width, err)
			}
			if len(outcomes) != 10 {
				t.Fatalf("width %d: expected 10 outcomes, got %d", width, len(outcomes))
			}
			sets = append(sets, resolvedManifests(outcomes))
		}

		if len(sets[0]) != 10 {
			t.Fatalf("expected 10 resolved manifests, got %d", len(sets[0]))
		}
		if !slices.Equal(sets[0], sets[1]) {
			t.Errorf("result sets differ:\nN=1: %v\nN=5: %v", sets[0], sets[1])
		}
	})

	t.Run("respects width and closes every session", func(t *testing.T) {
		t.Parallel()

		site := channelSite(8)
		for _, page := range site.Pages {
			page.Delay = 20 * time.Millisecond
		}
		factory := browsertest.NewFactory(site)
		p := NewPool(factory, testResolver(), WithWidth(2), WithPoolLogger(quietLogger()))

		if _, err := collect(t, context.Background(), p, channels(8)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := factory.MaxActive(); got > 2 || got < 1 {
			t.Errorf("max active sessions = %d, expected 1..2", got)
		}
		if got := factory.Active(); got != 0 {
			t.Errorf("expected all sessions closed, %d still active", got)
		}
		sessions := factory.Sessions()
		if len(sessions) != 8 {
			t.Fatalf("expected one session per channel, got %d", len(sessions))
		}
		for i, s := range sessions {
			if s.Closes() != 1 {
				t.Errorf("session %d closed %d times", i, s.Closes())
			}
		}
	})

	t.Run("panic is isolated to its channel", func(t *testing.T) {
		t.Parallel()

		site := channelSite(4)
		site.Pages[channelURL(2)].Panic = true
		factory := browsertest.NewFactory(site)
		p := NewPool(factory, testResolver(), WithWidth(2), WithPoolLogger(quietLogger()))

		outcomes, err := collect(t, context.Background(), p, channels(4))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		crashed := outcomes[channelURL(2)]
		if crashed.State != resolver.StateUnresolved {
			t.Errorf("expected crashed channel unresolved, got %s", crashed.State)
		}
		if !errors.Is(crashed.Err, browser.ErrSessionFault) {
			t.Errorf("expected ErrSessionFault, got %v", crashed.Err)
		}
		if got := len(resolvedManifests(outcomes)); got != 3 {
			t.Errorf("expected 3 resolved channels, got %d", got)
		}
		if factory.Active() != 0 {
			t.Error("expected the crashed session to be closed")
		}
	})

	t.Run("session launch failure is isolated", func(t *testing.T) {
		t.Parallel()

		factory := browsertest.NewFactory(channelSite(5))
		factory.Fail = func(n int) error {
			if n == 3 {
				return errors.New("chrome not found")
			}
			return nil
		}
		p := NewPool(factory, testResolver(), WithWidth(2), WithPoolLogger(quietLogger()))

		outcomes, err := collect(t, context.Background(), p, channels(5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		faults := 0
		for _, res := range outcomes {
			if errors.Is(res.Err, browser.ErrSessionFault) {
				faults++
			}
		}
		if faults != 1 {
			t.Errorf("expected 1 session fault, got %d", faults)
		}
		if got := len(resolvedManifests(outcomes)); got != 4 {
			t.Errorf("expected 4 resolved channels, got %d", got)
		}
	})

	t.Run("unit timeout yields unresolved", func(t *testing.T) {
		t.Parallel()

		site := channelSite(2)
		site.Pages[channelURL(1)].Delay = 5 * time.Second
		factory := browsertest.NewFactory(site)
		p := NewPool(factory, testResolver(),
			WithWidth(2),
			WithUnitTimeout(50*time.Millisecond),
			WithPoolLogger(quietLogger()),
		)

		start := time.Now()
		outcomes, err := collect(t, context.Background(), p, channels(2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("hung unit was not cut short: %v", elapsed)
		}

		hung := outcomes[channelURL(1)]
		if hung.Resolved() || !errors.Is(hung.Err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got state=%s err=%v", hung.State, hung.Err)
		}
		if !outcomes[channelURL(0)].Resolved() {
			t.Error("expected the healthy channel to resolve")
		}
	})

	t.Run("cancelled context reports every channel", func(t *testing.T) {
		t.Parallel()

		factory := browsertest.NewFactory(channelSite(4))
		p := NewPool(factory, testResolver(), WithWidth(2), WithPoolLogger(quietLogger()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		outcomes, err := collect(t, ctx, p, channels(4))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if len(outcomes) != 4 {
			t.Fatalf("expected 4 outcomes, got %d", len(outcomes))
		}
		for u, res := range outcomes {
			if res.Resolved() || !errors.Is(res.Err, context.Canceled) {
				t.Errorf("%s: expected canceled, got state=%s err=%v", u, res.State, res.Err)
			}
		}
		if len(factory.Sessions()) != 0 {
			t.Errorf("expected no sessions after cancellation, got %d", len(factory.Sessions()))
		}
	})

	t.Run("nil callback is allowed", func(t *testing.T) {
		t.Parallel()

		p := NewPool(browsertest.NewFactory(channelSite(1)), testResolver(), WithPoolLogger(quietLogger()))
		if err := p.Process(context.Background(), channels(1), nil); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
