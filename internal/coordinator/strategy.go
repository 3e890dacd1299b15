package coordinator

import (
	"context"
	"time"

	"github.com/seistack/pickwave/internal/ingest"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/waveform"
)

// Strategy is how windows get filled with data. The streaming strategy
// consumes a live record feed and completes windows from the buffer as
// data arrives; the polling strategy has no feed and fetches due windows
// from the archive on a fixed tick. The coordinator does not care which
// one is running.
type Strategy interface {
	// Name identifies the strategy in logs and status output.
	Name() string

	// Run drives the strategy until ctx is done.
	Run(ctx context.Context) error
}

// StreamingStrategy feeds live records into the coordinator.
type StreamingStrategy struct {
	source ingest.Source
	coord  *Coordinator
}

// NewStreamingStrategy creates the streaming strategy over a record
// source.
func NewStreamingStrategy(source ingest.Source, coord *Coordinator) *StreamingStrategy {
	return &StreamingStrategy{source: source, coord: coord}
}

// Name implements Strategy.
func (s *StreamingStrategy) Name() string { return "streaming" }

// Run implements Strategy. Every record goes through the coordinator so
// pending windows are re-evaluated as their data arrives.
func (s *StreamingStrategy) Run(ctx context.Context) error {
	return s.source.Run(ctx, func(seg waveform.Segment) {
		s.coord.Ingest(ctx, seg)
	})
}

// PollingStrategy re-evaluates pending requests against the archive on a
// fixed interval.
type PollingStrategy struct {
	coord    *Coordinator
	interval time.Duration
}

// NewPollingStrategy creates the polling strategy.
func NewPollingStrategy(coord *Coordinator, interval time.Duration) *PollingStrategy {
	return &PollingStrategy{coord: coord, interval: interval}
}

// Name implements Strategy.
func (p *PollingStrategy) Name() string { return "polling" }

// Run implements Strategy.
func (p *PollingStrategy) Run(ctx context.Context) error {
	log := logging.Component("coordinator")
	log.Info("polling started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.coord.PollOnce(ctx)
		}
	}
}
