// Package coordinator connects picks, the streaming buffer, the pending
// request tracker, the archive and the export sink.
//
// All decisions about one stream happen under that stream's lock, so a
// segment arriving while a request is being expired cannot race: whoever
// takes the lock first wins, and a window that is completable is always
// completed rather than expired.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seistack/pickwave/internal/buffer"
	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/export"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/observability"
	"github.com/seistack/pickwave/internal/tracker"
	"github.com/seistack/pickwave/internal/waveform"
)

// Sink receives completed windows and gap reports.
type Sink interface {
	Export(ctx context.Context, res export.Result) (string, error)
	ReportGaps(ctx context.Context, res export.Result, gaps []waveform.Gap) (string, error)
}

// ArchiveFetcher reads historical waveform windows.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, ch waveform.ChannelID, w waveform.TimeWindow) ([]waveform.Segment, error)
}

// Options configures the coordinator.
type Options struct {
	// Inventory maps each stream of interest to its component letters.
	Inventory map[waveform.StreamID]string

	// Blacklisted reports whether a stream's station is excluded.
	Blacklisted func(waveform.StreamID) bool

	// PreRoll and PostRoll define the window around each pick.
	PreRoll  time.Duration
	PostRoll time.Duration

	// ExpireAfter is the wall-clock deadline for incomplete requests.
	ExpireAfter time.Duration

	// RetentionHorizon mirrors the buffer's horizon; windows ending more
	// than half a horizon behind the acquisition frontier go straight to
	// the archive, since the live feed will never deliver them.
	RetentionHorizon time.Duration

	// Fetcher is the archive; nil disables backfill.
	Fetcher ArchiveFetcher
}

// Coordinator drives the request lifecycle.
type Coordinator struct {
	opts    Options
	buffer  *buffer.StreamBuffer
	tracker *tracker.Tracker
	sink    Sink
	metrics *observability.Metrics
	log     *slog.Logger

	// locks serializes all evaluation per stream.
	locks sync.Map // waveform.StreamID -> *sync.Mutex
}

// New creates a coordinator.
func New(opts Options, buf *buffer.StreamBuffer, trk *tracker.Tracker, sink Sink, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		opts:    opts,
		buffer:  buf,
		tracker: trk,
		sink:    sink,
		metrics: metrics,
		log:     logging.Component("coordinator"),
	}
}

func (c *Coordinator) streamLock(s waveform.StreamID) *sync.Mutex {
	mu, _ := c.locks.LoadOrStore(s, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// HandlePick registers a request for a pick and evaluates it immediately,
// since the buffer may already hold the whole window.
func (c *Coordinator) HandlePick(ctx context.Context, p waveform.Pick) error {
	c.metrics.PicksReceived.Inc()

	// The identifiers ride on the context so goroutines spawned during
	// evaluation (archive backfill) log them too.
	ctx = logging.ContextWithPickID(ctx, p.ID)
	ctx = logging.ContextWithStream(ctx, p.Stream.String())

	log := c.log.With("pick_id", p.ID, "stream", p.Stream.String())

	if c.opts.Blacklisted != nil && c.opts.Blacklisted(p.Stream) {
		c.metrics.PicksBlacklisted.Inc()
		log.Debug("pick skipped, station blacklisted")
		return nil
	}

	components, ok := c.opts.Inventory[p.Stream]
	if !ok {
		c.metrics.PicksUnknown.Inc()
		log.Debug("pick skipped, stream not in inventory")
		return nil
	}

	req := tracker.NewRequest(p, components, c.opts.PreRoll, c.opts.PostRoll, c.opts.ExpireAfter)

	mu := c.streamLock(p.Stream)
	mu.Lock()
	defer mu.Unlock()

	if err := c.tracker.Add(req); err != nil {
		if errors.Is(err, errors.ErrDuplicatePick) {
			log.Debug("pick already registered")
			return nil
		}
		return err
	}
	c.metrics.RequestsPending.Set(float64(c.tracker.Len()))

	log.Info("request registered",
		"window_start", req.Window.Start.Std(),
		"window_end", req.Window.End.Std(),
		"components", components)

	c.evaluateLocked(ctx, req, waveform.Now())
	return nil
}

// Ingest stores one segment and re-evaluates the pending requests of its
// stream. Duplicate coverage is not an error at this level; re-sent data
// is routine on real telemetry links.
func (c *Coordinator) Ingest(ctx context.Context, seg waveform.Segment) {
	if _, err := c.buffer.Ingest(seg); err != nil {
		if !errors.Is(err, errors.ErrDuplicateSegment) {
			c.log.Warn("segment rejected", "channel", seg.Channel.String(), "error", err)
		}
		return
	}
	c.metrics.SegmentsIngested.Inc()

	c.EvaluateStream(ctx, seg.Channel.Stream)
}

// EvaluateStream re-checks every pending request on one stream.
func (c *Coordinator) EvaluateStream(ctx context.Context, stream waveform.StreamID) {
	reqs := c.tracker.ForStream(stream)
	if len(reqs) == 0 {
		return
	}

	mu := c.streamLock(stream)
	mu.Lock()
	defer mu.Unlock()

	now := waveform.Now()
	for _, req := range reqs {
		c.evaluateLocked(ctx, req, now)
	}
}

// evaluateLocked decides one request's fate. Caller holds the stream
// lock. Completion is checked before expiry, so a request whose data and
// deadline arrive together completes.
func (c *Coordinator) evaluateLocked(ctx context.Context, req *tracker.Request, now waveform.Time) {
	if req.Status().Terminal() {
		return
	}

	if req.Cancelled() {
		c.removeLocked(req)
		c.log.Info("request cancelled", "pick_id", req.ID)
		return
	}

	// One Uncovered snapshot per channel decides completion and, on
	// expiry, becomes the gap report, so the two cannot disagree.
	channels := req.Channels()
	holes := make(map[waveform.ChannelID][]waveform.TimeWindow, len(channels))
	var missing int64
	for _, ch := range channels {
		u := c.buffer.Uncovered(ch, req.Window)
		if len(u) == 0 {
			continue
		}
		holes[ch] = u
		for _, h := range u {
			missing += h.Ticks()
		}
	}

	switch {
	case len(holes) == 0:
		c.completeLocked(ctx, req, now)
	case c.unreachableLocked(req, holes, now):
		// A request hitting its deadline while still partial gets one
		// archive attempt before the gap is reported; it stays pending
		// until the fetch lands and the stream is re-evaluated.
		if c.opts.Fetcher != nil && !req.BackfillStarted {
			c.startBackfillLocked(ctx, req, "deadline reached")
			return
		}
		c.expireLocked(ctx, req, holes, now)
	default:
		covered := int64(len(channels))*req.Window.Ticks() - missing
		if covered > 0 && req.Status() == tracker.StatusWaiting {
			if err := req.Transition(tracker.StatusPartial); err == nil {
				c.log.Debug("request partial", "pick_id", req.ID, "covered_ticks", covered)
			}
		}
		c.maybeBackfillLocked(ctx, req)
	}
}

// unreachableLocked reports whether an incomplete request can never be
// satisfied from the live feed: its wall-clock deadline has passed, or a
// missing range has scrolled past the retention horizon and no archive
// exists to backfill it. With an archive configured, horizon loss is not
// terminal, and even a passed deadline first gets one archive attempt.
func (c *Coordinator) unreachableLocked(req *tracker.Request, holes map[waveform.ChannelID][]waveform.TimeWindow, now waveform.Time) bool {
	if req.ExpiredAt(now) {
		return true
	}
	if c.opts.Fetcher != nil {
		return false
	}

	cutoff := now.Add(-c.opts.RetentionHorizon)
	for _, hs := range holes {
		for _, hole := range hs {
			if hole.Start < cutoff {
				return true
			}
		}
	}
	return false
}

func (c *Coordinator) completeLocked(ctx context.Context, req *tracker.Request, now waveform.Time) {
	if err := req.Transition(tracker.StatusComplete); err != nil {
		c.log.Error("illegal completion", "pick_id", req.ID, "error", err)
		return
	}

	res := c.buildResult(req)
	dir, err := c.sink.Export(ctx, res)
	if err != nil {
		c.metrics.ExportFails.Inc()
		c.log.Error("export failed", "pick_id", req.ID, "error", err)
		// The request stays complete and is dropped; re-running it would
		// re-export a window the consumer may have partially seen.
	}

	latency := now.Sub(req.Pick.CreatedAt)
	c.metrics.RequestsComplete.Inc()
	c.metrics.ObserveExportLatency(latency)
	c.removeLocked(req)

	c.log.Info("request complete",
		"pick_id", req.ID,
		"stream", req.Pick.Stream.String(),
		"dir", dir,
		"latency", latency)
}

func (c *Coordinator) expireLocked(ctx context.Context, req *tracker.Request, holes map[waveform.ChannelID][]waveform.TimeWindow, now waveform.Time) {
	if err := req.Transition(tracker.StatusExpired); err != nil {
		c.log.Error("illegal expiry", "pick_id", req.ID, "error", err)
		return
	}

	var gaps []waveform.Gap
	for _, ch := range req.Channels() {
		for _, hole := range holes[ch] {
			gaps = append(gaps, waveform.Gap{Channel: ch, Window: hole})
		}
	}

	res := c.buildResult(req)
	dir, err := c.sink.ReportGaps(ctx, res, gaps)
	if err != nil {
		c.metrics.ExportFails.Inc()
		c.log.Error("gap report failed", "pick_id", req.ID, "error", err)
	}

	c.metrics.RequestsExpired.Inc()
	c.removeLocked(req)

	c.log.Warn("request expired",
		"pick_id", req.ID,
		"stream", req.Pick.Stream.String(),
		"age", req.Age(now),
		"gaps", len(gaps),
		"dir", dir)
}

// buildResult collects the buffered segments of all components trimmed to
// the request window. Caller holds the stream lock.
func (c *Coordinator) buildResult(req *tracker.Request) export.Result {
	var segs []waveform.Segment
	for _, ch := range req.Channels() {
		segs = append(segs, c.buffer.Segments(ch, req.Window)...)
	}
	return export.Result{
		Pick:     req.Pick,
		Window:   req.Window,
		Segments: segs,
	}
}

func (c *Coordinator) removeLocked(req *tracker.Request) {
	if err := c.tracker.Remove(req.ID); err != nil {
		c.log.Error("remove failed", "pick_id", req.ID, "error", err)
	}
	c.metrics.RequestsPending.Set(float64(c.tracker.Len()))
}

// maybeBackfillLocked launches one archive backfill for a request whose
// window lies too far behind the acquisition frontier for the live feed
// to ever deliver it. At most one backfill per request.
func (c *Coordinator) maybeBackfillLocked(ctx context.Context, req *tracker.Request) {
	if c.opts.Fetcher == nil || req.BackfillStarted {
		return
	}
	if !c.windowBeyondFeed(req) {
		return
	}
	c.startBackfillLocked(ctx, req, "window beyond feed")
}

// startBackfillLocked marks the request and launches the archive fetch
// outside the stream lock. Results come back through Ingest, and the
// stream is re-evaluated afterwards even when the archive has nothing,
// so a fruitless fetch still resolves the request instead of stalling it.
func (c *Coordinator) startBackfillLocked(ctx context.Context, req *tracker.Request, reason string) {
	req.BackfillStarted = true

	c.metrics.ArchiveFetches.Inc()
	c.log.Info("archive backfill started",
		"pick_id", req.ID,
		"stream", req.Pick.Stream.String(),
		"reason", reason)

	go func() {
		c.backfill(ctx, req.Channels(), req.Window)
		c.EvaluateStream(ctx, req.Pick.Stream)
	}()
}

// windowBeyondFeed reports whether the live feed cannot be expected to
// deliver the request's window: either no live data has been seen at all,
// or the window ends more than half a retention horizon behind the
// acquisition frontier.
func (c *Coordinator) windowBeyondFeed(req *tracker.Request) bool {
	frontier, ok := c.buffer.Frontier(req.Pick.Stream, req.Components)
	if !ok {
		return true
	}
	cutoff := frontier.Add(-c.opts.RetentionHorizon / 2)
	return req.Window.End < cutoff
}

// backfill fetches a window from the archive for all components and
// ingests whatever comes back.
func (c *Coordinator) backfill(ctx context.Context, channels []waveform.ChannelID, w waveform.TimeWindow) {
	g, ctx := errgroup.WithContext(ctx)

	results := make([][]waveform.Segment, len(channels))
	for i, ch := range channels {
		g.Go(func() error {
			segs, err := c.opts.Fetcher.Fetch(ctx, ch, w)
			if err != nil {
				return errors.Wrapf(err, "channel %s", ch)
			}
			results[i] = segs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.metrics.ArchiveFetchFails.Inc()
		logging.WithContext(ctx).With("component", "coordinator").
			Warn("archive backfill failed", "error", err)
		// Partial results still get ingested below; the request expires
		// normally if they are not enough.
	}

	for _, segs := range results {
		for _, seg := range segs {
			c.Ingest(ctx, seg)
		}
	}
}

// Sweep expires aged requests and runs the buffer retention sweep. Runs
// on the cleanup tick so quiet streams cannot pin requests forever.
func (c *Coordinator) Sweep(ctx context.Context) {
	evicted := c.buffer.Sweep()
	if evicted > 0 {
		c.metrics.TicksEvicted.Add(float64(evicted))
	}
	c.metrics.TicksBuffered.Set(float64(c.buffer.Stats().BufferedTicks))

	for _, stream := range c.tracker.Streams() {
		c.EvaluateStream(ctx, stream)
	}
}

// PollOnce evaluates every pending request against the archive. Used in
// polling mode, where there is no live feed: a request whose window has
// fully elapsed is fetched and completed from the archive directly.
func (c *Coordinator) PollOnce(ctx context.Context) {
	now := waveform.Now()

	for _, req := range c.tracker.All() {
		if req.Window.End > now {
			// Window still open; data cannot exist yet.
			continue
		}

		mu := c.streamLock(req.Pick.Stream)
		mu.Lock()
		terminal := req.Status().Terminal()
		mu.Unlock()
		if terminal {
			continue
		}

		// Refetching every tick is safe: first-write-wins dedup makes
		// re-ingested coverage a no-op, and archives fill in over time.
		if c.opts.Fetcher != nil {
			c.metrics.ArchiveFetches.Inc()
			c.backfill(ctx, req.Channels(), req.Window)
		}

		mu.Lock()
		// The fetch above was this request's archive attempt; expiry must
		// not launch a second one.
		if c.opts.Fetcher != nil {
			req.BackfillStarted = true
		}
		c.evaluateLocked(ctx, req, waveform.Now())
		mu.Unlock()
	}
}

// Cancel marks a request for removal. Safe to call from any goroutine;
// the request is dropped on its next evaluation pass.
func (c *Coordinator) Cancel(id string) error {
	req, ok := c.tracker.Get(id)
	if !ok {
		return errors.Wrapf(errors.ErrRequestNotFound, "request %s", id)
	}
	req.Cancel()
	return nil
}

// Pending returns the number of pending requests.
func (c *Coordinator) Pending() int {
	return c.tracker.Len()
}
