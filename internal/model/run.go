package model

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Unresolved records a channel for which no manifest was found.
// Reason is empty when the cascade simply found nothing.
type Unresolved struct {
	Channel Channel `json:"channel"`
	Reason  string  `json:"reason,omitempty"`
}

// Summary is the outcome of a run.
type Summary struct {
	Discovered int           `json:"discovered"`
	Resolved   int           `json:"resolved"`
	Unresolved int           `json:"unresolved"`
	Filter     string        `json:"filter"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Run is the state of one discovery-and-resolution run. It flows through
// the pipeline steps, each of which fills in its part.
type Run struct {
	// ID uniquely identifies the run in the history database.
	ID string `json:"id"`

	BaseURL  string `json:"base_url"`
	Category string `json:"category,omitempty"`

	// Filter describes how the category filter was applied.
	Filter string `json:"filter"`

	Channels []Channel  `json:"channels"`
	Results  *ResultSet `json:"-"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// PlaylistPath is set when a playlist file was written.
	PlaylistPath string `json:"playlist_path,omitempty"`

	// TimedOut is true if the run hit its global timeout.
	TimedOut bool `json:"timed_out"`

	// Error holds the error that aborted the run, if any.
	Error string `json:"error,omitempty"`

	// PerformedSteps lists the pipeline steps that completed.
	PerformedSteps []string `json:"performed_steps"`

	mu         sync.Mutex
	unresolved []Unresolved
}

// NewRun creates a Run with a fresh ID.
func NewRun(baseURL, category string) *Run {
	return &Run{
		ID:             uuid.NewString(),
		BaseURL:        baseURL,
		Category:       category,
		Results:        NewResultSet(),
		StartedAt:      time.Now(),
		PerformedSteps: make([]string, 0),
	}
}

// AddUnresolved records an unresolved channel. It is safe for concurrent use.
func (r *Run) AddUnresolved(u Unresolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unresolved = append(r.unresolved, u)
}

// UnresolvedChannels returns a copy of the unresolved channels in arrival order.
func (r *Run) UnresolvedChannels() []Unresolved {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Unresolved, len(r.unresolved))
	copy(out, r.unresolved)
	return out
}

// Summary computes the run summary.
func (r *Run) Summary() Summary {
	elapsed := time.Duration(0)
	if !r.FinishedAt.IsZero() {
		elapsed = r.FinishedAt.Sub(r.StartedAt)
	}
	return Summary{
		Discovered: len(r.Channels),
		Resolved:   r.Results.Len(),
		Unresolved: len(r.UnresolvedChannels()),
		Filter:     r.Filter,
		Elapsed:    elapsed,
	}
}

// AddStep records a completed pipeline step.
func (r *Run) AddStep(name string) {
	r.PerformedSteps = append(r.PerformedSteps, name)
}
