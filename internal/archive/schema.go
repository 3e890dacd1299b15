// Package archive reads historical waveform data from a parquet archive.
//
// The archive holds one row per sample: (channel, time, rate, value),
// partitioned into files however the archiving process saw fit. Queries
// go through DuckDB's read_parquet, which handles partition pruning and
// predicate pushdown, so a window fetch touches only the relevant files.
package archive

import (
	"math"
	"sort"

	"github.com/seistack/pickwave/internal/waveform"
)

// SampleRow is one archived sample.
type SampleRow struct {
	// Channel is the "NET.STA.LOC.CHAC" channel code.
	Channel string `parquet:"channel,dict"`

	// Time is the sample timestamp in microsecond ticks.
	Time int64 `parquet:"time"`

	// Rate is the sample rate in Hz.
	Rate float64 `parquet:"rate"`

	// Value is the sample value in counts.
	Value float64 `parquet:"value"`
}

// rateTolerance absorbs float jitter when comparing sample spacings.
const rateTolerance = 0.5

// rowsToSegments reassembles per-sample rows into contiguous segments.
// Rows must be sorted by time and belong to one channel. A spacing that
// deviates from the nominal interval by more than half a tick starts a
// new segment, so archive gaps stay gaps.
func rowsToSegments(ch waveform.ChannelID, rows []SampleRow) []waveform.Segment {
	if len(rows) == 0 {
		return nil
	}

	var segs []waveform.Segment
	cur := waveform.Segment{
		Channel:    ch,
		Start:      waveform.Time(rows[0].Time),
		SampleRate: rows[0].Rate,
		Samples:    []float64{rows[0].Value},
	}

	for _, row := range rows[1:] {
		interval := float64(waveform.TicksPerSecond) / cur.SampleRate
		expected := float64(cur.Start) + float64(len(cur.Samples))*interval

		if row.Rate != cur.SampleRate || math.Abs(float64(row.Time)-expected) > interval*rateTolerance {
			segs = append(segs, cur)
			cur = waveform.Segment{
				Channel:    ch,
				Start:      waveform.Time(row.Time),
				SampleRate: row.Rate,
				Samples:    nil,
			}
		}
		cur.Samples = append(cur.Samples, row.Value)
	}

	return append(segs, cur)
}

// sortRows orders rows by timestamp. DuckDB returns them ordered already;
// this is a safety net for hand-built row sets.
func sortRows(rows []SampleRow) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
}
