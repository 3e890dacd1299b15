package archive

import (
	"testing"

	"github.com/seistack/pickwave/internal/waveform"
)

var testChannel = waveform.ChannelID{
	Stream:    waveform.StreamID{Network: "GE", Station: "APE", Location: "--", Channel: "BH"},
	Component: "Z",
}

// rowsAt builds n rows at 100 Hz starting at the given tick.
func rowsAt(start int64, n int) []SampleRow {
	const interval = 10_000 // 100 Hz in ticks
	rows := make([]SampleRow, n)
	for i := range rows {
		rows[i] = SampleRow{
			Channel: testChannel.String(),
			Time:    start + int64(i)*interval,
			Rate:    100,
			Value:   float64(i),
		}
	}
	return rows
}

func TestRowsToSegmentsContiguous(t *testing.T) {
	rows := rowsAt(1_000_000, 500)

	segs := rowsToSegments(testChannel, rows)
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1", len(segs))
	}

	seg := segs[0]
	if seg.Start != waveform.Time(1_000_000) {
		t.Errorf("Start = %d", seg.Start)
	}
	if len(seg.Samples) != 500 {
		t.Errorf("samples = %d, want 500", len(seg.Samples))
	}
	if seg.End() != waveform.Time(1_000_000+500*10_000) {
		t.Errorf("End = %d", seg.End())
	}
	if seg.Samples[0] != 0 || seg.Samples[499] != 499 {
		t.Errorf("sample values lost in reassembly")
	}
}

func TestRowsToSegmentsGap(t *testing.T) {
	rows := rowsAt(1_000_000, 100)
	// One second of missing data, then more rows.
	rows = append(rows, rowsAt(1_000_000+100*10_000+1_000_000, 100)...)

	segs := rowsToSegments(testChannel, rows)
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2 across the gap", len(segs))
	}
	if len(segs[0].Samples) != 100 || len(segs[1].Samples) != 100 {
		t.Errorf("split = %d/%d, want 100/100", len(segs[0].Samples), len(segs[1].Samples))
	}
	if segs[0].End() == segs[1].Start {
		t.Error("gap vanished: segments are contiguous")
	}
}

func TestRowsToSegmentsRateChange(t *testing.T) {
	rows := rowsAt(1_000_000, 50)
	next := rowsAt(1_000_000+50*10_000, 50)
	for i := range next {
		next[i].Rate = 50
	}
	rows = append(rows, next...)

	segs := rowsToSegments(testChannel, rows)
	if len(segs) != 2 {
		t.Fatalf("segments = %d, want 2 across a rate change", len(segs))
	}
	if segs[0].SampleRate != 100 || segs[1].SampleRate != 50 {
		t.Errorf("rates = %v/%v", segs[0].SampleRate, segs[1].SampleRate)
	}
}

func TestRowsToSegmentsJitter(t *testing.T) {
	rows := rowsAt(1_000_000, 100)
	// Sub-half-interval timestamp jitter must not split the segment.
	for i := range rows {
		if i%3 == 1 {
			rows[i].Time += 2_000
		}
	}

	segs := rowsToSegments(testChannel, rows)
	if len(segs) != 1 {
		t.Fatalf("segments = %d, want 1 despite jitter", len(segs))
	}
}

func TestRowsToSegmentsEmpty(t *testing.T) {
	if segs := rowsToSegments(testChannel, nil); segs != nil {
		t.Errorf("segments = %v, want nil", segs)
	}
}

func TestSortRows(t *testing.T) {
	rows := []SampleRow{{Time: 30}, {Time: 10}, {Time: 20}}
	sortRows(rows)
	for i, want := range []int64{10, 20, 30} {
		if rows[i].Time != want {
			t.Errorf("rows[%d].Time = %d, want %d", i, rows[i].Time, want)
		}
	}
}
