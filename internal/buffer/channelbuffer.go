// Package buffer implements the streaming waveform buffer.
//
// The buffer holds recent waveform data per channel as an ordered list of
// non-overlapping segments. Writes follow first-write-wins semantics: a
// range that is already covered is never replaced, and an incoming segment
// is clipped to the still-uncovered parts of its window. Memory is bounded
// by a retention horizon; data older than the horizon is evicted.
package buffer

import (
	"sort"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

// ChannelBuffer holds the buffered segments of one channel, ordered by
// start time, non-overlapping, with contiguous same-rate neighbors merged.
//
// ChannelBuffer is not safe for concurrent use; StreamBuffer serializes
// access.
type ChannelBuffer struct {
	channel  waveform.ChannelID
	segments []waveform.Segment
}

// NewChannelBuffer creates an empty buffer for one channel.
func NewChannelBuffer(ch waveform.ChannelID) *ChannelBuffer {
	return &ChannelBuffer{channel: ch}
}

// Channel returns the channel this buffer holds data for.
func (b *ChannelBuffer) Channel() waveform.ChannelID {
	return b.channel
}

// Insert adds a segment to the buffer. Ranges already covered keep their
// existing data: the incoming segment is clipped to the uncovered parts of
// its window and only those parts are stored. Returns the number of ticks
// of new coverage added; ErrDuplicateSegment means the whole window was
// already covered.
func (b *ChannelBuffer) Insert(seg waveform.Segment) (int64, error) {
	if len(seg.Samples) == 0 || seg.SampleRate <= 0 {
		return 0, errors.Wrapf(errors.ErrBadRecord, "channel %s: empty segment", b.channel)
	}

	w := seg.Window()
	holes := b.Uncovered(w)
	if len(holes) == 0 {
		return 0, errors.Wrapf(errors.ErrDuplicateSegment, "channel %s: %v", b.channel, w)
	}

	var added int64
	for _, hole := range holes {
		piece, ok := seg.Slice(hole)
		if !ok {
			// The hole is narrower than one sample interval.
			continue
		}
		b.insertSorted(piece)
		added += piece.Window().Ticks()
	}
	if added == 0 {
		return 0, errors.Wrapf(errors.ErrDuplicateSegment, "channel %s: %v", b.channel, w)
	}

	b.coalesce()
	return added, nil
}

// insertSorted places a piece at its sorted position. Pieces come from
// uncovered holes, so they never overlap an existing segment.
func (b *ChannelBuffer) insertSorted(piece waveform.Segment) {
	i := sort.Search(len(b.segments), func(i int) bool {
		return b.segments[i].Start >= piece.Start
	})
	b.segments = append(b.segments, waveform.Segment{})
	copy(b.segments[i+1:], b.segments[i:])
	b.segments[i] = piece
}

// coalesce merges adjacent segments that continue each other at the same
// sample rate, so long uninterrupted streams stay one segment each.
func (b *ChannelBuffer) coalesce() {
	if len(b.segments) < 2 {
		return
	}

	out := b.segments[:1]
	for _, seg := range b.segments[1:] {
		last := &out[len(out)-1]
		if last.ContiguousWith(&seg) {
			last.Samples = append(last.Samples, seg.Samples...)
		} else {
			out = append(out, seg)
		}
	}
	b.segments = out
}

// EvictBefore removes all data older than t. A segment straddling t is
// trimmed, not dropped. Returns the number of ticks evicted.
func (b *ChannelBuffer) EvictBefore(t waveform.Time) int64 {
	var evicted int64
	kept := b.segments[:0]
	for _, seg := range b.segments {
		switch {
		case seg.End() <= t:
			evicted += seg.Window().Ticks()
		case seg.Start >= t:
			kept = append(kept, seg)
		default:
			trimmed, ok := seg.Slice(waveform.Window(t, seg.End()))
			if ok {
				evicted += seg.Window().Ticks() - trimmed.Window().Ticks()
				kept = append(kept, trimmed)
			} else {
				evicted += seg.Window().Ticks()
			}
		}
	}
	b.segments = kept
	return evicted
}

// Coverage returns how many ticks of w are covered by buffered data.
// The window is complete when Coverage(w) == w.Ticks().
func (b *ChannelBuffer) Coverage(w waveform.TimeWindow) int64 {
	var covered int64
	for _, seg := range b.segments {
		if is, ok := seg.Window().Intersect(w); ok {
			covered += is.Ticks()
		}
	}
	return covered
}

// Uncovered returns the sub-windows of w with no buffered data, in order.
// An empty result means w is fully covered.
func (b *ChannelBuffer) Uncovered(w waveform.TimeWindow) []waveform.TimeWindow {
	if !w.Valid() {
		return nil
	}

	var holes []waveform.TimeWindow
	cursor := w.Start
	for _, seg := range b.segments {
		sw := seg.Window()
		if sw.End <= cursor {
			continue
		}
		if sw.Start >= w.End {
			break
		}
		if sw.Start > cursor {
			holes = append(holes, waveform.Window(cursor, minTime(sw.Start, w.End)))
		}
		if sw.End > cursor {
			cursor = sw.End
		}
	}
	if cursor < w.End {
		holes = append(holes, waveform.Window(cursor, w.End))
	}
	return holes
}

// Segments returns copies of the buffered segments trimmed to w, in time
// order. The copies are safe to hold after further buffer mutation.
func (b *ChannelBuffer) Segments(w waveform.TimeWindow) []waveform.Segment {
	var out []waveform.Segment
	for _, seg := range b.segments {
		if piece, ok := seg.Slice(w); ok {
			out = append(out, piece)
		}
	}
	return out
}

// Span returns the window from the oldest buffered sample to the newest
// end. The second return value is false when the buffer is empty.
func (b *ChannelBuffer) Span() (waveform.TimeWindow, bool) {
	if len(b.segments) == 0 {
		return waveform.TimeWindow{}, false
	}
	return waveform.Window(b.segments[0].Start, b.segments[len(b.segments)-1].End()), true
}

// End returns the exclusive end of the newest buffered data.
func (b *ChannelBuffer) End() (waveform.Time, bool) {
	if len(b.segments) == 0 {
		return 0, false
	}
	return b.segments[len(b.segments)-1].End(), true
}

// SegmentCount returns the number of stored segments, i.e. the number of
// distinct contiguous runs.
func (b *ChannelBuffer) SegmentCount() int {
	return len(b.segments)
}

// Ticks returns the total buffered coverage.
func (b *ChannelBuffer) Ticks() int64 {
	var total int64
	for _, seg := range b.segments {
		total += seg.Window().Ticks()
	}
	return total
}

func minTime(a, b waveform.Time) waveform.Time {
	if a < b {
		return a
	}
	return b
}
