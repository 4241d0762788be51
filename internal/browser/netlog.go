package browser

import "sync"

// RequestLog is a concurrency-safe, ordered network request log.
// Entries are keyed by the protocol request ID so a later response marks
// the request it belongs to. Clear starts a new visit: every ID seen
// before it is forgotten.
type RequestLog struct {
	mu sync.Mutex

	// entries holds the requests of the current visit in arrival order.
	entries []NetworkRequest

	// index maps a request ID to its latest entry.
	index map[string]int
}

// NewRequestLog creates an empty log.
func NewRequestLog() *RequestLog {
	return &RequestLog{index: make(map[string]int)}
}

// Record appends a request. A repeated ID (a redirect hop) appends a new
// entry that later responses apply to.
func (l *RequestLog) Record(id, url string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, NetworkRequest{URL: url})
	if id != "" {
		l.index[id] = len(l.entries) - 1
	}
}

// MarkResponse flags the request with the given ID as answered. IDs not
// recorded since the last Clear are ignored, so a late response for the
// previous document never enters the current visit's log.
func (l *RequestLog) MarkResponse(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[id]; ok && id != "" {
		l.entries[i].HasResponse = true
	}
}

// Add appends a complete entry.
func (l *RequestLog) Add(req NetworkRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, req)
}

// Snapshot returns a copy of the entries in arrival order.
func (l *RequestLog) Snapshot() []NetworkRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]NetworkRequest, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear removes every entry.
func (l *RequestLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.index = make(map[string]int)
}
