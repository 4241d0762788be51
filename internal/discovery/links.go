package discovery

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// quotedPattern captures the first single- or double-quoted substring,
// e.g. the target of onclick="location.href='/watch/espn'".
var quotedPattern = regexp.MustCompile(`['"](.*?)['"]`)

// actionTarget extracts the navigation target from an action attribute.
func actionTarget(action string) string {
	m := quotedPattern.FindStringSubmatch(action)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// resolveURL resolves ref against base and returns an absolute http(s) URL
// without fragment. Non-navigational references are rejected.
func resolveURL(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	lower := strings.ToLower(ref)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// sameHost reports whether raw points at base's host, ignoring "www.".
func sameHost(base *url.URL, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	strip := func(h string) string { return strings.TrimPrefix(strings.ToLower(h), "www.") }
	return strip(u.Hostname()) == strip(base.Hostname())
}

// isBase reports whether raw is the listing page itself.
func isBase(base *url.URL, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := strings.TrimSuffix(u.Path, "/")
	bp := strings.TrimSuffix(base.Path, "/")
	return sameHost(base, raw) && p == bp && u.RawQuery == base.RawQuery
}

// cleanName strips the first matching listing prefix and surrounding space.
func cleanName(name string, prefixes []string) string {
	name = strings.Join(strings.Fields(name), " ")
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(name, p) {
			name = strings.TrimSpace(strings.TrimPrefix(name, p))
			break
		}
	}
	return name
}

// nameFromURL derives a display name from the last path segment.
func nameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	seg := path.Base(strings.TrimSuffix(u.Path, "/"))
	if seg == "." || seg == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	return strings.TrimSpace(strings.NewReplacer("-", " ", "_", " ").Replace(seg))
}

// Blocklist rejects links whose URL or text contains any entry,
// case-insensitively.
type Blocklist struct {
	entries []string
}

// NewBlocklist builds a Blocklist. Blank entries are ignored.
func NewBlocklist(entries []string) Blocklist {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out = append(out, e)
		}
	}
	return Blocklist{entries: out}
}

// Blocked reports whether a candidate must be discarded.
func (b Blocklist) Blocked(link, text string) bool {
	link = strings.ToLower(link)
	text = strings.ToLower(text)
	for _, e := range b.entries {
		if strings.Contains(link, e) || strings.Contains(text, e) {
			return true
		}
	}
	return false
}
