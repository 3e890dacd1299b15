package waveform

import "time"

// Time is an absolute timestamp in microseconds since the Unix epoch.
// Microsecond ticks give sub-sample precision for any realistic
// digitizer rate while keeping arithmetic exact (int64, no float drift).
type Time int64

// TicksPerSecond is the Time resolution.
const TicksPerSecond = 1_000_000

// Now returns the current time as microsecond ticks.
func Now() Time {
	return At(time.Now())
}

// At converts a time.Time to ticks.
func At(t time.Time) Time {
	return Time(t.UnixMicro())
}

// Std converts ticks back to a time.Time in UTC.
func (t Time) Std() time.Time {
	return time.UnixMicro(int64(t)).UTC()
}

// Add returns t shifted by a duration.
func (t Time) Add(d time.Duration) Time {
	return t + Time(d.Microseconds())
}

// Sub returns the duration t-u.
func (t Time) Sub(u Time) time.Duration {
	return time.Duration(t-u) * time.Microsecond
}

// TimeWindow is a half-open interval [Start, End) of absolute time.
type TimeWindow struct {
	Start Time
	End   Time
}

// Window constructs a TimeWindow.
func Window(start, end Time) TimeWindow {
	return TimeWindow{Start: start, End: end}
}

// Valid reports whether the window is non-empty and well-ordered.
func (w TimeWindow) Valid() bool {
	return w.Start < w.End
}

// Ticks returns the window length in microsecond ticks.
func (w TimeWindow) Ticks() int64 {
	if !w.Valid() {
		return 0
	}
	return int64(w.End - w.Start)
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return time.Duration(w.Ticks()) * time.Microsecond
}

// Contains reports whether t lies within [Start, End).
func (w TimeWindow) Contains(t Time) bool {
	return t >= w.Start && t < w.End
}

// Overlaps reports whether the two windows share at least one tick.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start < o.End && o.Start < w.End
}

// Intersect returns the overlapping part of two windows.
// The second return value is false if they do not overlap.
func (w TimeWindow) Intersect(o TimeWindow) (TimeWindow, bool) {
	r := TimeWindow{Start: maxTime(w.Start, o.Start), End: minTime(w.End, o.End)}
	if !r.Valid() {
		return TimeWindow{}, false
	}
	return r, true
}

func minTime(a, b Time) Time {
	if a < b {
		return a
	}
	return b
}

func maxTime(a, b Time) Time {
	if a > b {
		return a
	}
	return b
}
