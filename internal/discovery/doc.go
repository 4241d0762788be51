// Package discovery finds channel pages on a dynamically rendered listing site.
//
// Discover opens the channel grid, optionally narrows it to one category
// and collects candidates from two sources: the site's per-channel watch
// affordances and plain hyperlinks. Candidates are blocklisted, deduplicated
// by absolute URL and returned in discovery order.
//
// Filtering is best effort. A dropdown option is tried first, then a control
// labelled with the category, then a keyword match against card text. When
// all of them fail the unfiltered set is returned and ErrFilterApplication
// is logged.
package discovery
