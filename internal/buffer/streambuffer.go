package buffer

import (
	"sync"
	"time"

	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/waveform"
)

// StreamBuffer holds the channel buffers of all streams of interest and
// enforces the retention horizon. All methods are safe for concurrent use.
type StreamBuffer struct {
	mu       sync.Mutex
	channels map[waveform.ChannelID]*ChannelBuffer

	horizon time.Duration

	log interface {
		Debug(msg string, args ...any)
		Info(msg string, args ...any)
	}
}

// NewStreamBuffer creates a buffer with the given retention horizon.
func NewStreamBuffer(horizon time.Duration) *StreamBuffer {
	return &StreamBuffer{
		channels: make(map[waveform.ChannelID]*ChannelBuffer),
		horizon:  horizon,
		log:      logging.Component("buffer"),
	}
}

// Ingest stores one segment and evicts anything on the same channel that
// fell behind the retention horizon. Returns the ticks of new coverage.
func (sb *StreamBuffer) Ingest(seg waveform.Segment) (int64, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	cb, ok := sb.channels[seg.Channel]
	if !ok {
		cb = NewChannelBuffer(seg.Channel)
		sb.channels[seg.Channel] = cb
	}

	added, err := cb.Insert(seg)
	if err != nil {
		return 0, err
	}

	// Inline eviction keeps a hot channel bounded even between sweeps.
	cutoff := waveform.Now().Add(-sb.horizon)
	cb.EvictBefore(cutoff)

	return added, nil
}

// Coverage returns the covered ticks of w on one channel.
func (sb *StreamBuffer) Coverage(ch waveform.ChannelID, w waveform.TimeWindow) int64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	cb, ok := sb.channels[ch]
	if !ok {
		return 0
	}
	return cb.Coverage(w)
}

// Uncovered returns the gaps of w on one channel. A channel never heard
// from is one single gap spanning the whole window.
func (sb *StreamBuffer) Uncovered(ch waveform.ChannelID, w waveform.TimeWindow) []waveform.TimeWindow {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	cb, ok := sb.channels[ch]
	if !ok {
		if !w.Valid() {
			return nil
		}
		return []waveform.TimeWindow{w}
	}
	return cb.Uncovered(w)
}

// Segments returns copies of one channel's data trimmed to w.
func (sb *StreamBuffer) Segments(ch waveform.ChannelID, w waveform.TimeWindow) []waveform.Segment {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	cb, ok := sb.channels[ch]
	if !ok {
		return nil
	}
	return cb.Segments(w)
}

// Frontier returns the acquisition frontier of a stream: the newest data
// end across the stream's components. The second return value is false
// when no component has any data yet.
func (sb *StreamBuffer) Frontier(stream waveform.StreamID, components string) (waveform.Time, bool) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	var frontier waveform.Time
	found := false
	for i := 0; i < len(components); i++ {
		cb, ok := sb.channels[stream.Component(components[i])]
		if !ok {
			continue
		}
		if end, ok := cb.End(); ok && (!found || end > frontier) {
			frontier = end
			found = true
		}
	}
	return frontier, found
}

// Sweep evicts data older than the retention horizon on every channel and
// returns the total ticks evicted. Runs periodically in addition to the
// inline eviction on ingest, so idle channels drain too.
func (sb *StreamBuffer) Sweep() int64 {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	cutoff := waveform.Now().Add(-sb.horizon)

	var evicted int64
	for ch, cb := range sb.channels {
		n := cb.EvictBefore(cutoff)
		evicted += n
		if n > 0 {
			sb.log.Debug("evicted expired data", "channel", ch.String(), "ticks", n)
		}
	}
	if evicted > 0 {
		sb.log.Debug("retention sweep complete", "evicted_ticks", evicted)
	}
	return evicted
}

// Stats describes the buffer's current footprint.
type Stats struct {
	Channels      int
	Segments      int
	BufferedTicks int64
}

// Stats returns a snapshot of the buffer footprint.
func (sb *StreamBuffer) Stats() Stats {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	var s Stats
	s.Channels = len(sb.channels)
	for _, cb := range sb.channels {
		s.Segments += cb.SegmentCount()
		s.BufferedTicks += cb.Ticks()
	}
	return s
}
