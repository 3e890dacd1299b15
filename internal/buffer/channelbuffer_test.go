package buffer

import (
	"testing"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

var testChannel = waveform.ChannelID{
	Stream:    waveform.StreamID{Network: "GE", Station: "APE", Location: "--", Channel: "BH"},
	Component: "Z",
}

// sec converts seconds to ticks.
func sec(s int64) waveform.Time {
	return waveform.Time(s * waveform.TicksPerSecond)
}

// segment builds a 100 Hz segment covering [start, start+lengthSec).
func segment(start, lengthSec int64) waveform.Segment {
	n := int(lengthSec * 100)
	return waveform.Segment{
		Channel:    testChannel,
		Start:      sec(start),
		SampleRate: 100,
		Samples:    make([]float64, n),
	}
}

func window(start, end int64) waveform.TimeWindow {
	return waveform.Window(sec(start), sec(end))
}

func TestInsertAndCoverage(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	added, err := b.Insert(segment(100, 60))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if added != window(100, 160).Ticks() {
		t.Errorf("added = %d, want %d", added, window(100, 160).Ticks())
	}

	w := window(100, 160)
	if got := b.Coverage(w); got != w.Ticks() {
		t.Errorf("Coverage = %d, want full %d", got, w.Ticks())
	}
	if got := b.Coverage(window(0, 100)); got != 0 {
		t.Errorf("Coverage outside = %d, want 0", got)
	}
}

func TestWindowCompletesAcrossSegments(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	// Two buffered segments [50,150) and [150,250) together cover the
	// pending window [70,220) even though neither covers it alone.
	if _, err := b.Insert(segment(50, 100)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := b.Insert(segment(150, 100)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	w := window(70, 220)
	if got := b.Coverage(w); got != w.Ticks() {
		t.Errorf("Coverage = %d, want full %d", got, w.Ticks())
	}
	if holes := b.Uncovered(w); len(holes) != 0 {
		t.Errorf("Uncovered = %v, want none", holes)
	}
}

func TestFirstWriteWins(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	first := segment(100, 60)
	for i := range first.Samples {
		first.Samples[i] = 1
	}
	if _, err := b.Insert(first); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Overlapping rewrite: only [160,200) is new; [120,160) keeps the
	// original samples.
	second := segment(120, 80)
	for i := range second.Samples {
		second.Samples[i] = 2
	}
	added, err := b.Insert(second)
	if err != nil {
		t.Fatalf("Insert overlap: %v", err)
	}
	if want := window(160, 200).Ticks(); added != want {
		t.Errorf("added = %d, want %d", added, want)
	}

	segs := b.Segments(window(120, 160))
	if len(segs) != 1 {
		t.Fatalf("Segments = %d, want 1", len(segs))
	}
	for i, s := range segs[0].Samples {
		if s != 1 {
			t.Fatalf("sample %d = %v, want original value 1", i, s)
		}
	}
}

func TestInsertDuplicate(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	if _, err := b.Insert(segment(100, 60)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	_, err := b.Insert(segment(110, 30))
	if !errors.Is(err, errors.ErrDuplicateSegment) {
		t.Errorf("err = %v, want ErrDuplicateSegment", err)
	}
}

func TestCoalesceContiguous(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	// Out of order arrival; all contiguous at the same rate.
	for _, start := range []int64{160, 100, 130} {
		if _, err := b.Insert(segment(start, 30)); err != nil {
			t.Fatalf("Insert %d: %v", start, err)
		}
	}

	if n := b.SegmentCount(); n != 1 {
		t.Errorf("SegmentCount = %d, want 1 after coalescing", n)
	}
	span, ok := b.Span()
	if !ok || span != window(100, 190) {
		t.Errorf("Span = %v, %v, want [100s,190s)", span, ok)
	}
}

func TestGapStaysSplit(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	if _, err := b.Insert(segment(100, 30)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Insert(segment(140, 30)); err != nil {
		t.Fatal(err)
	}

	if n := b.SegmentCount(); n != 2 {
		t.Errorf("SegmentCount = %d, want 2 across a gap", n)
	}

	holes := b.Uncovered(window(100, 170))
	if len(holes) != 1 || holes[0] != window(130, 140) {
		t.Errorf("Uncovered = %v, want [130s,140s)", holes)
	}
}

func TestUncoveredEdges(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	if _, err := b.Insert(segment(100, 50)); err != nil {
		t.Fatal(err)
	}

	holes := b.Uncovered(window(80, 180))
	want := []waveform.TimeWindow{window(80, 100), window(150, 180)}
	if len(holes) != len(want) {
		t.Fatalf("Uncovered = %v, want %v", holes, want)
	}
	for i := range want {
		if holes[i] != want[i] {
			t.Errorf("hole %d = %v, want %v", i, holes[i], want[i])
		}
	}

	// Empty buffer: the whole window is one hole.
	empty := NewChannelBuffer(testChannel)
	holes = empty.Uncovered(window(0, 10))
	if len(holes) != 1 || holes[0] != window(0, 10) {
		t.Errorf("Uncovered on empty = %v", holes)
	}
}

func TestEvictBefore(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	if _, err := b.Insert(segment(100, 100)); err != nil {
		t.Fatal(err)
	}

	evicted := b.EvictBefore(sec(150))
	if want := window(100, 150).Ticks(); evicted != want {
		t.Errorf("evicted = %d, want %d", evicted, want)
	}

	span, ok := b.Span()
	if !ok || span != window(150, 200) {
		t.Errorf("Span = %v, want [150s,200s)", span)
	}

	// Fully expired segment disappears.
	evicted = b.EvictBefore(sec(300))
	if want := window(150, 200).Ticks(); evicted != want {
		t.Errorf("evicted = %d, want %d", evicted, want)
	}
	if _, ok := b.Span(); ok {
		t.Error("Span on empty buffer should report no data")
	}
}

func TestSegmentsTrimmedToWindow(t *testing.T) {
	b := NewChannelBuffer(testChannel)

	if _, err := b.Insert(segment(50, 100)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Insert(segment(150, 100)); err != nil {
		t.Fatal(err)
	}

	w := window(70, 220)
	segs := b.Segments(w)

	var total int64
	for _, s := range segs {
		sw := s.Window()
		if sw.Start < w.Start || sw.End > w.End {
			t.Errorf("segment %v exceeds window %v", sw, w)
		}
		total += sw.Ticks()
	}
	if total != w.Ticks() {
		t.Errorf("trimmed coverage = %d, want %d", total, w.Ticks())
	}
}
