package resolver

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/streamscout/internal/browser"
	"github.com/nao1215/streamscout/internal/model"
	"golang.org/x/net/html"
)

var (
	// manifestPattern matches a literal manifest URL in page text.
	manifestPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+?\.m3u8[^\s"'<>\\]*`)

	// encodedManifestPattern matches a percent-encoded manifest URL, as found
	// in player query strings such as ?src=https%3A%2F%2F...
	encodedManifestPattern = regexp.MustCompile(`(?i)https?%3A%2F%2F[^\s"'<>&]+?\.m3u8[^\s"'<>&]*`)
)

// isManifest reports whether raw is an absolute http(s) URL mentioning .m3u8.
func isManifest(raw string) bool {
	lower := strings.ToLower(raw)
	return (strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")) &&
		strings.Contains(lower, ".m3u8")
}

// cascade holds per-channel values shared by the extractors.
type cascade struct {
	// pageURL is the channel page; relative URLs resolve against it.
	pageURL *url.URL

	// frameSrc is the src of the first embedded player, if any.
	frameSrc string

	// loaded is set once src holds the page source.
	loaded bool
	src    string
}

// source returns the rendered document once per channel.
func (c *cascade) source(ctx context.Context, sess browser.Session) string {
	if !c.loaded {
		c.loaded = true
		c.src, _ = sess.Source(ctx)
	}
	return c.src
}

// extractor inspects the rendered document for a manifest.
type extractor interface {
	Name() string
	Extract(ctx context.Context, sess browser.Session, c *cascade) (string, bool)
}

// defaultExtractors returns the source extractors in the order they run.
func defaultExtractors() []extractor {
	return []extractor{
		documentExtractor{},
		encodedExtractor{},
		frameSourceExtractor{},
	}
}

// documentExtractor finds a literal manifest URL in the source. JSON escaped
// slashes are unescaped first.
type documentExtractor struct{}

func (documentExtractor) Name() string { return model.SourceDocument }

func (documentExtractor) Extract(ctx context.Context, sess browser.Session, c *cascade) (string, bool) {
	text := strings.ReplaceAll(c.source(ctx, sess), `\/`, "/")
	m := manifestPattern.FindString(text)
	return html.UnescapeString(m), m != ""
}

// encodedExtractor finds a percent-encoded manifest URL and decodes it.
type encodedExtractor struct{}

func (encodedExtractor) Name() string { return model.SourceEncoded }

func (encodedExtractor) Extract(ctx context.Context, sess browser.Session, c *cascade) (string, bool) {
	for _, m := range encodedManifestPattern.FindAllString(c.source(ctx, sess), -1) {
		if decoded, ok := decodeManifest(m); ok {
			return decoded, true
		}
	}
	return "", false
}

// decodeManifest percent-decodes an encoded manifest URL.
func decodeManifest(encoded string) (string, bool) {
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return "", false
	}
	if i := strings.IndexAny(decoded, "\"'<> "); i >= 0 {
		decoded = decoded[:i]
	}
	if !isManifest(decoded) {
		return "", false
	}
	if _, err := url.Parse(decoded); err != nil {
		return "", false
	}
	return decoded, true
}

// frameSourceExtractor checks frame and media src attributes: the entered
// frame first, then elements in scope, then the parsed source.
type frameSourceExtractor struct{}

func (frameSourceExtractor) Name() string { return model.SourceFrame }

func (frameSourceExtractor) Extract(ctx context.Context, sess browser.Session, c *cascade) (string, bool) {
	if u, ok := c.absolute(c.frameSrc); ok {
		return u, true
	}

	els, err := sess.FindElements(ctx, browser.CSS("iframe, video, source"))
	if err == nil {
		for _, el := range els {
			src, ok, err := sess.Attribute(ctx, el, "src")
			if err != nil || !ok {
				continue
			}
			if u, ok := c.absolute(src); ok {
				return u, true
			}
		}
	}

	for _, src := range mediaSources(c.source(ctx, sess)) {
		if u, ok := c.absolute(src); ok {
			return u, true
		}
	}
	return "", false
}

// absolute resolves src against the page and accepts manifest URLs only.
func (c *cascade) absolute(src string) (string, bool) {
	src = strings.TrimSpace(src)
	if src == "" || !strings.Contains(strings.ToLower(src), ".m3u8") {
		return "", false
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	resolved := src
	if c.pageURL != nil {
		resolved = c.pageURL.ResolveReference(ref).String()
	}
	return resolved, isManifest(resolved)
}

// mediaSources walks the document and returns src-like attributes of frame
// and media elements in document order.
func mediaSources(document string) []string {
	if document == "" {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil
	}

	out := make([]string, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "iframe", "video", "audio", "source", "embed":
				for _, key := range []string{"src", "data-src", "data-url"} {
					if v := getAttr(n, key); v != "" {
						out = append(out, v)
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
