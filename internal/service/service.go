// Package service wires the pickwave components together and manages
// their lifecycle.
package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seistack/pickwave/internal/archive"
	"github.com/seistack/pickwave/internal/buffer"
	"github.com/seistack/pickwave/internal/coordinator"
	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/export"
	"github.com/seistack/pickwave/internal/ingest"
	"github.com/seistack/pickwave/internal/listener"
	"github.com/seistack/pickwave/internal/loader"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/observability"
	"github.com/seistack/pickwave/internal/tracker"
	"github.com/seistack/pickwave/internal/waveform"
)

// Service is the assembled daemon: pick feed, buffer, coordinator,
// strategy, cleanup loop and metrics listener.
type Service struct {
	cfg *loader.Config

	feed     listener.Feed
	buffer   *buffer.StreamBuffer
	tracker  *tracker.Tracker
	coord    *coordinator.Coordinator
	strategy coordinator.Strategy
	fetcher  *archive.Fetcher
	metrics  *observability.Metrics

	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	startTime time.Time

	log *slog.Logger
}

// New assembles a service from configuration.
func New(cfg *loader.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inventory, err := cfg.Inventory()
	if err != nil {
		return nil, err
	}

	sink, err := export.NewDirectorySink(cfg.Export.Dir, cfg.Export.Compression)
	if err != nil {
		return nil, err
	}

	var fetcher *archive.Fetcher
	if cfg.Archive.DataDir != "" {
		fetcher, err = archive.NewFetcher(archive.Options{
			DataDir:       cfg.Archive.DataDir,
			MemoryLimit:   cfg.Archive.MemoryLimit,
			FetchTimeout:  cfg.Archive.FetchTimeout.Duration(),
			MaxConcurrent: cfg.Archive.MaxConcurrent,
		})
		if err != nil {
			return nil, err
		}
	}

	metrics := observability.New()
	buf := buffer.NewStreamBuffer(cfg.Buffer.RetentionHorizon.Duration())
	trk := tracker.New()

	opts := coordinator.Options{
		Inventory:        inventory,
		Blacklisted:      cfg.Blacklisted,
		PreRoll:          cfg.Window.PreRoll.Duration(),
		PostRoll:         cfg.Window.PostRoll.Duration(),
		ExpireAfter:      cfg.Window.ExpireAfter.Duration(),
		RetentionHorizon: cfg.Buffer.RetentionHorizon.Duration(),
	}
	if fetcher != nil {
		opts.Fetcher = fetcher
	}

	coord := coordinator.New(opts, buf, trk, sink, metrics)

	var strategy coordinator.Strategy
	switch cfg.Acquisition.Mode {
	case loader.ModeStreaming:
		source := ingest.NewTCPSource(
			cfg.Acquisition.Address,
			cfg.Acquisition.DialTimeout.Duration(),
			cfg.Acquisition.ReadTimeout.Duration(),
		)
		strategy = coordinator.NewStreamingStrategy(source, coord)
	case loader.ModePolling:
		strategy = coordinator.NewPollingStrategy(coord, cfg.Poll.Interval.Duration())
	}

	feed := listener.NewMQTTFeed(listener.Options{
		Broker:         cfg.Feed.Broker,
		Topic:          cfg.Feed.Topic,
		ClientID:       cfg.Feed.ClientID,
		Username:       cfg.Feed.Username,
		Password:       cfg.Feed.Password,
		ConnectTimeout: cfg.Feed.ConnectTimeout.Duration(),
		QueueSize:      cfg.Feed.QueueSize,
	})

	return &Service{
		cfg:      cfg,
		feed:     feed,
		buffer:   buf,
		tracker:  trk,
		coord:    coord,
		strategy: strategy,
		fetcher:  fetcher,
		metrics:  metrics,
		log:      logging.Component("service"),
	}, nil
}

// Start connects the feed and launches all loops. Non-blocking; use Wait
// or Stop afterwards.
func (s *Service) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.startTime = time.Now()

	if err := s.feed.Connect(ctx); err != nil {
		s.running.Store(false)
		cancel()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.pickLoop(ctx) })
	g.Go(func() error { return s.strategy.Run(ctx) })
	g.Go(func() error { return s.cleanupLoop(ctx) })
	g.Go(func() error { return s.metrics.Serve(ctx, s.cfg.Metrics.Listen) })

	go func() {
		defer close(s.done)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("service loop failed", "error", err)
		}
	}()

	s.log.Info("service started",
		"mode", s.strategy.Name(),
		"streams", len(s.cfg.Streams),
		"export_dir", s.cfg.Export.Dir)
	return nil
}

// pickLoop consumes the pick feed until the context ends or the feed
// closes.
func (s *Service) pickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pick, ok := <-s.feed.Picks():
			if !ok {
				return errors.ErrFeedClosed
			}
			if err := s.coord.HandlePick(ctx, pick); err != nil {
				s.log.Error("pick handling failed", "pick_id", pick.ID, "error", err)
			}
		}
	}
}

// cleanupLoop runs the retention and expiry sweep.
func (s *Service) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Buffer.CleanupInterval.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.coord.Sweep(ctx)
		}
	}
}

// Wait blocks until all loops have stopped.
func (s *Service) Wait() {
	if s.done != nil {
		<-s.done
	}
}

// Stop shuts the service down and waits for the loops to drain.
func (s *Service) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return errors.ErrNotRunning
	}

	s.log.Info("stopping", "pending_requests", s.tracker.Len())

	s.cancel()
	s.feed.Close()
	s.Wait()

	if s.fetcher != nil {
		s.fetcher.Close()
	}

	s.log.Info("stopped", "uptime", time.Since(s.startTime).Round(time.Second))
	return nil
}

// StatusReport is a point-in-time operational snapshot.
type StatusReport struct {
	Mode            string
	Uptime          time.Duration
	PendingRequests int
	BufferChannels  int
	BufferedTicks   int64
	LatencyP50      float64
	LatencyP90      float64
	LatencyP99      float64
}

// Status returns a snapshot for logging or debugging.
func (s *Service) Status() StatusReport {
	stats := s.buffer.Stats()
	p50, p90, p99 := s.metrics.LatencyQuantiles()
	return StatusReport{
		Mode:            s.strategy.Name(),
		Uptime:          time.Since(s.startTime),
		PendingRequests: s.tracker.Len(),
		BufferChannels:  stats.Channels,
		BufferedTicks:   stats.BufferedTicks,
		LatencyP50:      p50,
		LatencyP90:      p90,
		LatencyP99:      p99,
	}
}

// HandlePick injects a pick directly, bypassing the feed. Used by tests
// and by replay tooling.
func (s *Service) HandlePick(ctx context.Context, p waveform.Pick) error {
	return s.coord.HandlePick(ctx, p)
}

// Cancel drops a pending request by pick ID.
func (s *Service) Cancel(id string) error {
	return s.coord.Cancel(id)
}
