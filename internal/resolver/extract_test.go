package resolver

import (
	"net/url"
	"testing"
)

func TestIsManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want bool
	}{
		{"https://cdn.example/live/master.m3u8", true},
		{"HTTP://CDN.EXAMPLE/LIVE.M3U8?x=1", true},
		{"https://cdn.example/live/seg001.ts", false},
		{"blob:https://player.example/master.m3u8", false},
		{"/relative/master.m3u8", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isManifest(tt.raw); got != tt.want {
			t.Errorf("isManifest(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeManifest(t *testing.T) {
	t.Parallel()

	t.Run("decodes", func(t *testing.T) {
		t.Parallel()
		got, ok := decodeManifest("https%3A%2F%2Fcdn.example%2Fx.m3u8")
		if !ok || got != "https://cdn.example/x.m3u8" {
			t.Errorf("got %q %v", got, ok)
		}
	})

	t.Run("invalid escape", func(t *testing.T) {
		t.Parallel()
		if _, ok := decodeManifest("https%3A%2F%2Fcdn.example%2Fx%ZZ.m3u8"); ok {
			t.Error("expected failure")
		}
	})

	t.Run("truncates at quote", func(t *testing.T) {
		t.Parallel()
		got, ok := decodeManifest("https%3A%2F%2Fcdn.example%2Fa.m3u8%22%3Ex")
		if !ok || got != "https://cdn.example/a.m3u8" {
			t.Errorf("got %q %v", got, ok)
		}
	})
}

func TestCascadeAbsolute(t *testing.T) {
	t.Parallel()

	page, err := url.Parse("https://timstreams.site/watch/espn")
	if err != nil {
		t.Fatal(err)
	}
	c := &cascade{pageURL: page}

	tests := []struct {
		src  string
		want string
		ok   bool
	}{
		{"https://cdn.example/live.m3u8", "https://cdn.example/live.m3u8", true},
		{"/hls/espn.m3u8", "https://timstreams.site/hls/espn.m3u8", true},
		{"//cdn.example/a.m3u8", "https://cdn.example/a.m3u8", true},
		{"https://player.example/embed/espn", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, ok := c.absolute(tt.src)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("absolute(%q) = %q %v, want %q %v", tt.src, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMediaSources(t *testing.T) {
	t.Parallel()

	doc := `<html><body>
<iframe src="https://player.example/embed/1"></iframe>
<video data-src="/hls/one.m3u8"><source src="https://cdn.example/two.m3u8"></video>
<img src="https://cdn.example/poster.jpg">
<embed data-url="https://cdn.example/three.m3u8">
</body></html>`

	got := mediaSources(doc)
	want := []string{
		"https://player.example/embed/1",
		"/hls/one.m3u8",
		"https://cdn.example/two.m3u8",
		"https://cdn.example/three.m3u8",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("source %d = %q, want %q", i, got[i], want[i])
		}
	}

	if mediaSources("") != nil {
		t.Error("expected nil for empty document")
	}
}

func TestManifestPatterns(t *testing.T) {
	t.Parallel()

	text := `player.setup({file: "https://cdn.example/a/b.m3u8?st=1"}); <a href='x'>`
	if got := manifestPattern.FindString(text); got != "https://cdn.example/a/b.m3u8?st=1" {
		t.Errorf("literal match = %q", got)
	}

	encoded := `?u=HTTPS%3A%2F%2Fcdn.example%2Fz.m3u8&x=1`
	if got := encodedManifestPattern.FindString(encoded); got != "HTTPS%3A%2F%2Fcdn.example%2Fz.m3u8" {
		t.Errorf("encoded match = %q", got)
	}
}
