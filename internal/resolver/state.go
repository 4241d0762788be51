package resolver

import (
	"time"

	"github.com/nao1215/streamscout/internal/model"
)

// State is a resolution state.
type State int

const (
	StateInit State = iota
	StatePageLoaded
	StateFrameEntered
	StatePlaybackTriggered
	StateSniffing
	StateResolved
	StateUnresolved
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePageLoaded:
		return "page-loaded"
	case StateFrameEntered:
		return "frame-entered"
	case StatePlaybackTriggered:
		return "playback-triggered"
	case StateSniffing:
		return "sniffing"
	case StateResolved:
		return "resolved"
	case StateUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of resolving one channel.
type Resolution struct {
	// Channel is the channel being resolved.
	Channel model.Channel

	// State is the current state; terminal once Resolved or Unresolved.
	State State

	// ManifestURL is the chosen manifest when resolved.
	ManifestURL string

	// Source is one of the model.Source* constants when resolved.
	Source string

	// Trigger names the playback trigger that succeeded, if any.
	Trigger string

	// Path lists every state entered, in order.
	Path []State

	// Err is set when the cascade was cut short. An Unresolved outcome
	// with a nil Err means nothing was found.
	Err error
}

// Resolved reports whether a manifest was found.
func (r Resolution) Resolved() bool {
	return r.State == StateResolved
}

// Result converts a resolved outcome to a StreamResult.
func (r Resolution) Result() (model.StreamResult, bool) {
	if !r.Resolved() {
		return model.StreamResult{}, false
	}
	return model.StreamResult{
		Channel:     r.Channel,
		ManifestURL: r.ManifestURL,
		Source:      r.Source,
		Trigger:     r.Trigger,
		ResolvedAt:  time.Now(),
	}, true
}

// advance moves to s and records it in the path.
func (r *Resolution) advance(s State) {
	r.State = s
	r.Path = append(r.Path, s)
}

func (r *Resolution) resolve(manifest, source string) {
	r.ManifestURL = manifest
	r.Source = source
	r.advance(StateResolved)
}

func (r *Resolution) fail(err error) {
	r.Err = err
	r.advance(StateUnresolved)
}

// Failed returns an Unresolved outcome for a channel whose cascade never
// ran, such as after a session fault or cancellation.
func Failed(ch model.Channel, err error) Resolution {
	r := Resolution{Channel: ch}
	r.fail(err)
	return r
}
