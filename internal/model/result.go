package model

import (
	"slices"
	"sync"
	"time"
)

// Extraction sources recorded on a StreamResult.
const (
	// SourceNetwork means the manifest was observed in the network log.
	SourceNetwork = "network"

	// SourceDocument means the manifest was found literally in the rendered source.
	SourceDocument = "document"

	// SourceEncoded means the manifest was found percent-encoded in the rendered source.
	SourceEncoded = "document-encoded"

	// SourceFrame means the manifest was the src of an embedded frame or media element.
	SourceFrame = "frame-src"
)

// StreamResult is the resolved manifest for one channel.
type StreamResult struct {
	Channel     Channel   `json:"channel"`
	ManifestURL string    `json:"manifest_url"`
	Source      string    `json:"source"`
	Trigger     string    `json:"trigger,omitempty"`
	ResolvedAt  time.Time `json:"resolved_at"`
}

// ResultSet is an append-only, concurrency-safe collection of StreamResults
// holding at most one result per channel URL. Results keep their arrival
// order.
type ResultSet struct {
	mu      sync.Mutex
	results []StreamResult

	// seen holds the channel URLs already in results.
	seen map[string]struct{}
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{
		results: make([]StreamResult, 0),
		seen:    make(map[string]struct{}),
	}
}

// Add appends r unless a result for the same channel URL is already
// present. The first result wins; Add reports whether r was kept.
func (rs *ResultSet) Add(r StreamResult) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.seen == nil {
		rs.seen = make(map[string]struct{})
	}
	if _, dup := rs.seen[r.Channel.URL]; dup {
		return false
	}
	rs.seen[r.Channel.URL] = struct{}{}
	rs.results = append(rs.results, r)
	return true
}

// Len returns the number of results.
func (rs *ResultSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.results)
}

// Results returns a copy of the results in arrival order.
func (rs *ResultSet) Results() []StreamResult {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return slices.Clone(rs.results)
}

// Sorted returns a copy of the results in discovery order.
func (rs *ResultSet) Sorted() []StreamResult {
	out := rs.Results()
	slices.SortStableFunc(out, func(a, b StreamResult) int {
		return a.Channel.Index - b.Channel.Index
	})
	return out
}
