package tracker

import (
	"sync"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

// Tracker indexes pending requests by ID and by stream. All methods are
// safe for concurrent use; mutation of a Request's own fields stays under
// the coordinator's per-stream serialization.
type Tracker struct {
	mu       sync.RWMutex
	byID     map[string]*Request
	byStream map[waveform.StreamID][]*Request
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		byID:     make(map[string]*Request),
		byStream: make(map[waveform.StreamID][]*Request),
	}
}

// Add registers a request. A request with the same ID already pending is
// rejected: re-sent picks must not reset an in-flight window.
func (t *Tracker) Add(r *Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[r.ID]; exists {
		return errors.Wrapf(errors.ErrDuplicatePick, "pick %s", r.ID)
	}

	t.byID[r.ID] = r
	stream := r.Pick.Stream
	t.byStream[stream] = append(t.byStream[stream], r)
	return nil
}

// Get returns the request with the given ID.
func (t *Tracker) Get(id string) (*Request, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byID[id]
	return r, ok
}

// ForStream returns the pending requests on one stream. The returned
// slice is a copy; the requests themselves are shared.
func (t *Tracker) ForStream(stream waveform.StreamID) []*Request {
	t.mu.RLock()
	defer t.mu.RUnlock()
	reqs := t.byStream[stream]
	if len(reqs) == 0 {
		return nil
	}
	return append([]*Request(nil), reqs...)
}

// All returns every pending request.
func (t *Tracker) All() []*Request {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Request, 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	return out
}

// Streams returns the streams that currently have pending requests.
func (t *Tracker) Streams() []waveform.StreamID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]waveform.StreamID, 0, len(t.byStream))
	for s := range t.byStream {
		out = append(out, s)
	}
	return out
}

// Remove drops a request from both indexes, normally after it reached a
// terminal state.
func (t *Tracker) Remove(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.byID[id]
	if !ok {
		return errors.Wrapf(errors.ErrRequestNotFound, "request %s", id)
	}
	delete(t.byID, id)

	stream := r.Pick.Stream
	reqs := t.byStream[stream]
	for i, cand := range reqs {
		if cand.ID == id {
			reqs = append(reqs[:i], reqs[i+1:]...)
			break
		}
	}
	if len(reqs) == 0 {
		delete(t.byStream, stream)
	} else {
		t.byStream[stream] = reqs
	}
	return nil
}

// Len returns the number of pending requests.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}
