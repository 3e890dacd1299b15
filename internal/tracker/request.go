// Package tracker maintains the pending waveform requests created from
// picks. Each request waits for its time window to be covered by buffered
// data, moving waiting -> partial -> complete as data arrives, or to
// expired when the window can no longer be satisfied.
package tracker

import (
	"sync/atomic"
	"time"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

// Status is the lifecycle state of a pending request.
type Status int

const (
	// StatusWaiting means no data for the window has been seen yet.
	StatusWaiting Status = iota

	// StatusPartial means some but not all of the window is covered.
	StatusPartial

	// StatusComplete means every component's window is fully covered and
	// the request has been exported.
	StatusComplete

	// StatusExpired means the request aged out before completion.
	StatusExpired
)

// String returns the lowercase state name.
func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusPartial:
		return "partial"
	case StatusComplete:
		return "complete"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusExpired
}

// Request is one pending waveform window derived from a pick. It tracks
// the window across all components of the pick's stream.
//
// Request fields are written only under the coordinator's per-stream
// serialization; Status transitions go through Transition so illegal
// moves fail loudly instead of corrupting state.
type Request struct {
	// ID is the request identifier, inherited from the pick.
	ID string

	// Pick is the originating pick.
	Pick waveform.Pick

	// Window is the requested half-open time window, shared by all
	// components.
	Window waveform.TimeWindow

	// Components are the component letters to collect.
	Components string

	// CreatedAt is when the request was registered.
	CreatedAt waveform.Time

	// ExpiresAt is the wall-clock deadline after which the request is
	// expired regardless of buffer state.
	ExpiresAt waveform.Time

	// BackfillStarted is set once an archive backfill has been launched,
	// so a request triggers at most one.
	BackfillStarted bool

	// cancelled may be flipped from any goroutine; the coordinator drops
	// the request on its next evaluation pass.
	cancelled atomic.Bool

	status Status
}

// NewRequest builds a request for a pick using the given window rolls and
// expiry.
func NewRequest(p waveform.Pick, components string, preRoll, postRoll, expireAfter time.Duration) *Request {
	now := waveform.Now()
	return &Request{
		ID:         p.ID,
		Pick:       p,
		Window:     waveform.Window(p.Time.Add(-preRoll), p.Time.Add(postRoll)),
		Components: components,
		CreatedAt:  now,
		ExpiresAt:  now.Add(expireAfter),
		status:     StatusWaiting,
	}
}

// Status returns the current lifecycle state.
func (r *Request) Status() Status {
	return r.status
}

// Transition moves the request to a new state. Legal moves only go
// forward: waiting -> partial -> complete, and any non-terminal state ->
// expired. Re-asserting the current state is a no-op.
func (r *Request) Transition(to Status) error {
	from := r.status
	if to == from {
		return nil
	}

	legal := false
	switch to {
	case StatusPartial:
		legal = from == StatusWaiting
	case StatusComplete:
		legal = from == StatusWaiting || from == StatusPartial
	case StatusExpired:
		legal = !from.Terminal()
	}
	if !legal {
		return errors.Wrapf(errors.ErrInvalidTransition, "request %s: %s -> %s", r.ID, from, to)
	}

	r.status = to
	return nil
}

// Cancel marks the request for removal. Safe to call from any goroutine,
// including concurrently with an in-flight transition; the request is
// dropped on the next evaluation pass instead of being torn down in
// place.
func (r *Request) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (r *Request) Cancelled() bool {
	return r.cancelled.Load()
}

// ExpiredAt reports whether the request's wall-clock deadline has passed.
func (r *Request) ExpiredAt(now waveform.Time) bool {
	return now >= r.ExpiresAt
}

// Channels returns the per-component channel identifiers of the window.
func (r *Request) Channels() []waveform.ChannelID {
	chans := make([]waveform.ChannelID, 0, len(r.Components))
	for i := 0; i < len(r.Components); i++ {
		chans = append(chans, r.Pick.Stream.Component(r.Components[i]))
	}
	return chans
}

// Age returns how long the request has been pending.
func (r *Request) Age(now waveform.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
