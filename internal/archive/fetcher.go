package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"golang.org/x/sync/semaphore"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/waveform"
)

// Options configures the archive fetcher.
type Options struct {
	// DataDir is the root of the parquet archive.
	DataDir string

	// MemoryLimit caps DuckDB memory, e.g. "1GB".
	MemoryLimit string

	// FetchTimeout bounds one window fetch.
	FetchTimeout time.Duration

	// MaxConcurrent limits parallel fetches.
	MaxConcurrent int
}

// Fetcher reads waveform windows from the parquet archive through an
// in-process DuckDB instance. Safe for concurrent use; the semaphore
// keeps heavy archive scans from starving everything else.
type Fetcher struct {
	db   *sql.DB
	glob string
	opts Options
	sem  *semaphore.Weighted
	log  *slog.Logger
}

// NewFetcher opens an in-memory DuckDB for querying the archive.
func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.DataDir == "" {
		return nil, errors.Wrap(errors.ErrArchiveUnavailable, "no data directory configured")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "open duckdb")
	}

	if opts.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "set memory limit")
		}
	}

	return &Fetcher{
		db:   db,
		glob: filepath.Join(opts.DataDir, "**", "*.parquet"),
		opts: opts,
		sem:  semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		log:  logging.Component("archive"),
	}, nil
}

// Fetch returns the archived segments of one channel overlapping w.
// Returns no error and no segments when the archive simply has no data
// there; errors mean the archive could not be read at all.
func (f *Fetcher) Fetch(ctx context.Context, ch waveform.ChannelID, w waveform.TimeWindow) ([]waveform.Segment, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "archive fetch")
	}
	defer f.sem.Release(1)

	if f.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()

	query := fmt.Sprintf(`
		SELECT time, rate, value
		FROM read_parquet('%s')
		WHERE channel = ? AND time >= ? AND time < ?
		ORDER BY time`, f.glob)

	rows, err := f.db.QueryContext(ctx, query, ch.String(), int64(w.Start), int64(w.End))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrArchiveUnavailable, "channel %s: %v", ch, err)
	}
	defer rows.Close()

	var samples []SampleRow
	for rows.Next() {
		var row SampleRow
		if err := rows.Scan(&row.Time, &row.Rate, &row.Value); err != nil {
			return nil, errors.Wrap(err, "scan archive row")
		}
		samples = append(samples, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrArchiveUnavailable, "channel %s: %v", ch, err)
	}

	segs := rowsToSegments(ch, samples)
	f.log.Debug("archive fetch",
		"channel", ch.String(),
		"window", w.Duration(),
		"samples", len(samples),
		"segments", len(segs),
		"elapsed", time.Since(start))

	return segs, nil
}

// Close releases the DuckDB instance.
func (f *Fetcher) Close() error {
	return f.db.Close()
}
