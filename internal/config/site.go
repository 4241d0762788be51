package config

import "strings"

// Built-in listing profile values. They match the markup of the default site.
const (
	DefaultGridControlText = "24/7 Channels"
	DefaultWatchSelector   = ".btn-watch"
	DefaultActionAttribute = "onclick"
	DefaultHeadingSelector = "h3"
	DefaultNamePrefix      = "24/7:"
)

// SiteConfig describes how channels are laid out on one listing site.
// Zero values in a file entry mean "inherit".
type SiteConfig struct {
	// GridControlText is the text of the control that opens the channel grid.
	GridControlText string `yaml:"gridControlText,omitempty"`

	// SkipGridControl disables the grid control step for sites that render
	// the grid directly.
	SkipGridControl bool `yaml:"skipGridControl,omitempty"`

	// WatchSelector is the CSS selector of per-channel watch affordances.
	WatchSelector string `yaml:"watchSelector,omitempty"`

	// ActionAttribute holds the navigation target of a watch affordance.
	// The first quoted substring of its value is used.
	ActionAttribute string `yaml:"actionAttribute,omitempty"`

	// HeadingSelector locates the channel name next to a watch affordance.
	HeadingSelector string `yaml:"headingSelector,omitempty"`

	// NamePrefixes are stripped from channel names.
	NamePrefixes []string `yaml:"namePrefixes,omitempty"`

	// Category is the default category filter for this site.
	Category string `yaml:"category,omitempty"`

	// GroupLabel is the playlist group-title for this site.
	GroupLabel string `yaml:"groupLabel,omitempty"`

	// PreferredMarkers replace the built-in URL markers (master, index,
	// playlist, ...) that end sniffing as soon as a manifest containing one
	// is answered. Matching is case-insensitive.
	PreferredMarkers []string `yaml:"preferredMarkers,omitempty"`

	// Blocklist extends the link blocklist for this site.
	Blocklist []string `yaml:"blocklist,omitempty"`
}

// DefaultSiteConfig returns the built-in listing profile.
func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		GridControlText: DefaultGridControlText,
		WatchSelector:   DefaultWatchSelector,
		ActionAttribute: DefaultActionAttribute,
		HeadingSelector: DefaultHeadingSelector,
		NamePrefixes:    []string{DefaultNamePrefix},
	}
}

// File represents the structure of the .streamscout configuration file.
type File struct {
	// Sites maps listing hosts (without "www.") to their profiles.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults is applied to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the effective profile for a host: the built-in
// profile, overlaid with the file defaults, overlaid with the host entry.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := DefaultSiteConfig().overlay(cf.Defaults)

	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if siteConfig, ok := cf.Sites[host]; ok {
		result = result.overlay(siteConfig)
	}

	return result
}

// overlay returns s with every non-zero field of o applied. Blocklists
// accumulate; the other list fields are replaced.
func (s SiteConfig) overlay(o SiteConfig) SiteConfig {
	if o.GridControlText != "" {
		s.GridControlText = o.GridControlText
	}
	if o.SkipGridControl {
		s.SkipGridControl = true
	}
	if o.WatchSelector != "" {
		s.WatchSelector = o.WatchSelector
	}
	if o.ActionAttribute != "" {
		s.ActionAttribute = o.ActionAttribute
	}
	if o.HeadingSelector != "" {
		s.HeadingSelector = o.HeadingSelector
	}
	if len(o.NamePrefixes) > 0 {
		s.NamePrefixes = append([]string(nil), o.NamePrefixes...)
	}
	if o.Category != "" {
		s.Category = o.Category
	}
	if o.GroupLabel != "" {
		s.GroupLabel = o.GroupLabel
	}
	if len(o.PreferredMarkers) > 0 {
		s.PreferredMarkers = append([]string(nil), o.PreferredMarkers...)
	}
	if len(o.Blocklist) > 0 {
		merged := make([]string, 0, len(s.Blocklist)+len(o.Blocklist))
		merged = append(merged, s.Blocklist...)
		merged = append(merged, o.Blocklist...)
		s.Blocklist = merged
	}
	return s
}
