// Package waveform defines the core data model shared by all pickwave
// components: microsecond timestamps, half-open time windows, stream and
// channel identifiers, waveform segments and phase picks.
//
// All time comparisons in pickwave use closed-open interval semantics
// [start, end): a window contains its start tick and excludes its end tick.
package waveform
