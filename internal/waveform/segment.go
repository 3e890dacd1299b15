package waveform

import "math"

// Segment is a contiguous run of equally spaced samples on one channel.
// Start is the timestamp of the first sample; the segment covers the
// half-open window [Start, End()) where End is derived from the sample
// count and rate.
type Segment struct {
	Channel    ChannelID
	Start      Time
	SampleRate float64 // samples per second
	Samples    []float64
}

// tickInterval returns the spacing between samples in ticks.
func (s *Segment) tickInterval() float64 {
	return TicksPerSecond / s.SampleRate
}

// End returns the timestamp one sample interval past the last sample,
// i.e. the exclusive end of the covered window.
func (s *Segment) End() Time {
	return s.Start + Time(math.Round(float64(len(s.Samples))*s.tickInterval()))
}

// Window returns the covered half-open window.
func (s *Segment) Window() TimeWindow {
	return TimeWindow{Start: s.Start, End: s.End()}
}

// SampleTime returns the timestamp of sample i.
func (s *Segment) SampleTime(i int) Time {
	return s.Start + Time(math.Round(float64(i)*s.tickInterval()))
}

// Slice returns a copy of the segment trimmed to the given window,
// keeping exactly the samples whose timestamps fall in [w.Start, w.End).
// The second return value is false when no samples remain.
func (s *Segment) Slice(w TimeWindow) (Segment, bool) {
	if len(s.Samples) == 0 || !w.Valid() || !s.Window().Overlaps(w) {
		return Segment{}, false
	}

	dt := s.tickInterval()

	lo := 0
	if w.Start > s.Start {
		lo = int(math.Ceil(float64(w.Start-s.Start) / dt))
	}
	hi := len(s.Samples)
	if w.End < s.End() {
		hi = int(math.Ceil(float64(w.End-s.Start) / dt))
	}
	if lo >= hi {
		return Segment{}, false
	}

	out := Segment{
		Channel:    s.Channel,
		Start:      s.SampleTime(lo),
		SampleRate: s.SampleRate,
		Samples:    append([]float64(nil), s.Samples[lo:hi]...),
	}
	return out, true
}

// ContiguousWith reports whether o continues s without a gap or overlap,
// at the same rate. Rates are compared exactly: mixed-rate data is never
// merged.
func (s *Segment) ContiguousWith(o *Segment) bool {
	return s.Channel == o.Channel &&
		s.SampleRate == o.SampleRate &&
		s.End() == o.Start
}

// Gap is a missing range of data on one channel, reported when a pending
// window expires before it could be completed.
type Gap struct {
	Channel ChannelID
	Window  TimeWindow
}
