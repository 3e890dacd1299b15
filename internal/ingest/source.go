package ingest

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/waveform"
)

// Source delivers waveform segments from an acquisition feed.
type Source interface {
	// Run reads records and calls handle for each until ctx is done.
	// Reconnects internally; only a cancelled context ends the loop.
	Run(ctx context.Context, handle func(waveform.Segment)) error
}

// TCPSource reads length-prefixed waveform records from a TCP stream and
// redials with backoff on any read error. A stream silent longer than the
// read timeout is treated as dead.
type TCPSource struct {
	addr        string
	dialTimeout time.Duration
	readTimeout time.Duration
	log         *slog.Logger
}

// NewTCPSource creates a source for the given "host:port" address.
func NewTCPSource(addr string, dialTimeout, readTimeout time.Duration) *TCPSource {
	return &TCPSource{
		addr:        addr,
		dialTimeout: dialTimeout,
		readTimeout: readTimeout,
		log:         logging.Component("ingest"),
	}
}

// Run implements Source.
func (s *TCPSource) Run(ctx context.Context, handle func(waveform.Segment)) error {
	backoff := time.Second
	const maxBackoff = time.Minute

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.log.Warn("dial failed, retrying", "address", s.addr, "backoff", backoff, "error", err)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		s.log.Info("record feed connected", "address", s.addr)
		backoff = time.Second

		err = s.readLoop(ctx, conn, handle)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("record feed lost, redialing", "address", s.addr, "error", err)
	}
}

func (s *TCPSource) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: s.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrConnectionFailed, "%s: %v", s.addr, err)
	}
	return conn, nil
}

// readLoop decodes frames until the connection dies. A single corrupt
// frame poisons the byte stream, so the whole connection is dropped and
// redialed rather than attempting to resynchronize.
func (s *TCPSource) readLoop(ctx context.Context, conn net.Conn, handle func(waveform.Segment)) error {
	// Unblock the read when the context is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		if s.readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
				return err
			}
		}

		seg, err := ReadRecord(conn)
		if err != nil {
			if err == io.EOF {
				return errors.ErrSourceClosed
			}
			return err
		}
		handle(seg)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
