package browsertest

import (
	"context"
	"errors"
	"testing"

	"github.com/nao1215/streamscout/internal/browser"
)

func TestMatchSelector(t *testing.T) {
	t.Parallel()

	el := &Element{
		Tag:     "button",
		Classes: []string{"btn", "btn-watch"},
		Attrs:   map[string]string{"aria-label": "Play", "onclick": "go()"},
	}

	tests := []struct {
		sel  string
		want bool
	}{
		{sel: ".btn-watch", want: true},
		{sel: "button.btn.btn-watch", want: true},
		{sel: "a.btn-watch", want: false},
		{sel: ".missing", want: false},
		{sel: `[aria-label="Play"]`, want: true},
		{sel: `[aria-label="Pause"]`, want: false},
		{sel: "button[onclick]", want: true},
		{sel: "*", want: true},
		{sel: "", want: false},
		{sel: "[broken", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			t.Parallel()
			if got := matchSelector(el, tt.sel); got != tt.want {
				t.Errorf("matchSelector(%q) = %v, want %v", tt.sel, got, tt.want)
			}
		})
	}

	if !matches(el, browser.CSS("a.other, .btn")) {
		t.Error("expected selector list to match on its second entry")
	}
}

func TestSession(t *testing.T) {
	t.Parallel()

	newSite := func() *Site {
		frame := &Page{
			URL:      "https://player.example/embed",
			Elements: []*Element{{Tag: "video"}},
			Requests: []browser.NetworkRequest{{URL: "https://player.example/player.js", HasResponse: true}},
		}
		return NewSite(&Page{
			URL: "https://site.example/",
			Elements: []*Element{
				{Tag: "iframe", Frame: frame},
				{Tag: "a", Text: "Open 24/7 Channels", Attrs: map[string]string{"href": "/x"}},
			},
			Source:   "<html></html>",
			Requests: []browser.NetworkRequest{{URL: "https://site.example/", HasResponse: true}},
			Deferred: []Deferred{{AfterPolls: 2, Request: browser.NetworkRequest{URL: "https://cdn.example/late.m3u8", HasResponse: true}}},
		}, &Page{URL: "https://site.example/broken", NavigateErr: errors.New("boom")})
	}

	t.Run("navigate logs requests", func(t *testing.T) {
		t.Parallel()
		s := NewSession(newSite())
		if err := s.Navigate(context.Background(), "https://site.example/"); err != nil {
			t.Fatal(err)
		}
		if got := s.NetworkLog(); len(got) != 1 {
			t.Errorf("expected 1 request, got %d", len(got))
		}
		if got := s.NetworkLog(); len(got) != 2 {
			t.Errorf("expected deferred request on second poll, got %d", len(got))
		}
	})

	t.Run("unknown and failing pages", func(t *testing.T) {
		t.Parallel()
		s := NewSession(newSite())
		if err := s.Navigate(context.Background(), "https://site.example/none"); !errors.Is(err, browser.ErrNavigation) {
			t.Errorf("expected ErrNavigation, got %v", err)
		}
		if err := s.Navigate(context.Background(), "https://site.example/broken"); !errors.Is(err, browser.ErrNavigation) {
			t.Errorf("expected ErrNavigation, got %v", err)
		}
	})

	t.Run("frames scope lookups", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		s := NewSession(newSite())
		if err := s.Navigate(ctx, "https://site.example/"); err != nil {
			t.Fatal(err)
		}
		frames, _ := s.FindElements(ctx, browser.Tag("iframe"))
		if len(frames) != 1 {
			t.Fatalf("expected 1 iframe, got %d", len(frames))
		}
		if err := s.EnterFrame(ctx, frames[0]); err != nil {
			t.Fatal(err)
		}
		if videos, _ := s.FindElements(ctx, browser.Tag("video")); len(videos) != 1 {
			t.Errorf("expected video inside frame, got %d", len(videos))
		}
		if !s.InFrame() {
			t.Error("expected frame scope")
		}
		if err := s.ExitFrame(ctx); err != nil {
			t.Fatal(err)
		}
		if videos, _ := s.FindElements(ctx, browser.Tag("video")); len(videos) != 0 {
			t.Errorf("expected no video at top level, got %d", len(videos))
		}
		if links, _ := s.FindElements(ctx, browser.TextContains("24/7 Channels")); len(links) != 1 {
			t.Errorf("expected text match, got %d", len(links))
		}
	})

	t.Run("click runs handler", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		clicked := false
		site := NewSite(&Page{URL: "https://site.example/", Elements: []*Element{
			{Tag: "button", OnClick: func(s *Session) { clicked = true }},
		}})
		s := NewSession(site)
		if err := s.Navigate(ctx, "https://site.example/"); err != nil {
			t.Fatal(err)
		}
		buttons, _ := s.FindElements(ctx, browser.Tag("button"))
		if err := browser.Click(ctx, s, buttons[0]); err != nil {
			t.Fatal(err)
		}
		if !clicked {
			t.Error("expected OnClick to run")
		}
	})

	t.Run("registered script handler", func(t *testing.T) {
		t.Parallel()
		site := NewSite()
		site.Handle("return 1;", func(*Session, []any) (any, error) { return 1.0, nil })
		s := NewSession(site)
		got, err := s.RunScript(context.Background(), "return 1;")
		if err != nil || got != 1.0 {
			t.Errorf("expected 1, got %v %v", got, err)
		}
		if got, err := s.RunScript(context.Background(), "unknown"); got != nil || err != nil {
			t.Errorf("expected nil for unknown script, got %v %v", got, err)
		}
	})
}

func TestFactory(t *testing.T) {
	t.Parallel()

	t.Run("tracks active sessions", func(t *testing.T) {
		t.Parallel()
		f := NewFactory(NewSite())
		a, _ := f.NewSession(context.Background())
		b, _ := f.NewSession(context.Background())
		if f.Active() != 2 || f.MaxActive() != 2 {
			t.Errorf("expected 2 active, got %d/%d", f.Active(), f.MaxActive())
		}
		_ = a.Close()
		_ = a.Close()
		_ = b.Close()
		if f.Active() != 0 {
			t.Errorf("expected 0 active, got %d", f.Active())
		}
		if f.Sessions()[0].Closes() != 2 {
			t.Errorf("expected close count 2, got %d", f.Sessions()[0].Closes())
		}
	})

	t.Run("fail hook", func(t *testing.T) {
		t.Parallel()
		f := NewFactory(NewSite())
		f.Fail = func(n int) error {
			if n == 1 {
				return browser.ErrSessionFault
			}
			return nil
		}
		if _, err := f.NewSession(context.Background()); !errors.Is(err, browser.ErrSessionFault) {
			t.Errorf("expected ErrSessionFault, got %v", err)
		}
		if _, err := f.NewSession(context.Background()); err != nil {
			t.Errorf("expected second session to succeed, got %v", err)
		}
		if len(f.Sessions()) != 1 {
			t.Errorf("expected one live session, got %d", len(f.Sessions()))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := NewFactory(NewSite()).NewSession(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
