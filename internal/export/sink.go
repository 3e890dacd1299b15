// Package export writes completed waveform windows to disk.
//
// Each exported window gets its own numbered directory under the export
// root, counting up from the highest existing number so restarts never
// overwrite earlier exports:
//
//	export/
//	  000000041/
//	    pick.yaml          pick and window metadata
//	    GE.APE.--.BHZ.parquet
//	    GE.APE.--.BHN.parquet
//	    GE.APE.--.BHE.parquet
//
// Expired windows are written the same way with the partial data that was
// collected plus a gap.yaml naming the missing ranges.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"gopkg.in/yaml.v3"

	"github.com/seistack/pickwave/internal/archive"
	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/waveform"
)

// Result is one window ready for export: the originating pick, the
// requested window, and the collected segments across all components,
// already trimmed to the window.
type Result struct {
	Pick     waveform.Pick
	Window   waveform.TimeWindow
	Segments []waveform.Segment
}

// DirectorySink writes results to numbered directories.
type DirectorySink struct {
	root  string
	codec compress.Codec
	log   *slog.Logger

	mu   sync.Mutex
	next int
}

// NewDirectorySink creates a sink rooted at dir, resuming the directory
// numbering from whatever already exists there.
func NewDirectorySink(dir, compression string) (*DirectorySink, error) {
	codec, err := codecFor(compression)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(errors.ErrExportFailed, "create export root: %v", err)
	}

	next, err := nextNumber(dir)
	if err != nil {
		return nil, err
	}

	return &DirectorySink{
		root:  dir,
		codec: codec,
		log:   logging.Component("export"),
		next:  next,
	}, nil
}

var exportDirPattern = regexp.MustCompile(`^\d{9}$`)

// nextNumber scans existing export directories and returns one past the
// highest, so numbering survives restarts.
func nextNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrExportFailed, "scan export root: %v", err)
	}

	next := 0
	for _, e := range entries {
		if !e.IsDir() || !exportDirPattern.MatchString(e.Name()) {
			continue
		}
		n, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}

// Export writes one completed window. Returns the created directory.
func (s *DirectorySink) Export(ctx context.Context, res Result) (string, error) {
	return s.write(ctx, res, nil)
}

// ReportGaps writes an expired window: whatever partial data was
// collected plus a gap.yaml naming the uncovered ranges.
func (s *DirectorySink) ReportGaps(ctx context.Context, res Result, gaps []waveform.Gap) (string, error) {
	return s.write(ctx, res, gaps)
}

func (s *DirectorySink) write(ctx context.Context, res Result, gaps []waveform.Gap) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := s.claimDir()
	if err != nil {
		return "", err
	}

	byChannel := make(map[waveform.ChannelID][]waveform.Segment)
	for _, seg := range res.Segments {
		byChannel[seg.Channel] = append(byChannel[seg.Channel], seg)
	}

	for ch, segs := range byChannel {
		if err := s.writeChannel(dir, ch, segs); err != nil {
			return "", err
		}
	}

	if err := s.writeMeta(dir, res, byChannel); err != nil {
		return "", err
	}
	if len(gaps) > 0 {
		if err := s.writeGaps(dir, gaps); err != nil {
			return "", err
		}
	}

	s.log.Info("window exported",
		"dir", dir,
		"pick_id", res.Pick.ID,
		"channels", len(byChannel),
		"gaps", len(gaps))
	return dir, nil
}

// claimDir allocates and creates the next numbered directory.
func (s *DirectorySink) claimDir() (string, error) {
	s.mu.Lock()
	n := s.next
	s.next++
	s.mu.Unlock()

	dir := filepath.Join(s.root, fmt.Sprintf("%09d", n))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", errors.Wrapf(errors.ErrExportFailed, "create %s: %v", dir, err)
	}
	return dir, nil
}

// writeChannel writes one channel's segments as a parquet sample file
// using the same row schema the archive reads.
func (s *DirectorySink) writeChannel(dir string, ch waveform.ChannelID, segs []waveform.Segment) error {
	path := filepath.Join(dir, ch.String()+".parquet")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(errors.ErrExportFailed, "create %s: %v", path, err)
	}

	w := parquet.NewGenericWriter[archive.SampleRow](f, parquet.Compression(s.codec))

	for _, seg := range segs {
		rows := make([]archive.SampleRow, len(seg.Samples))
		for i, v := range seg.Samples {
			rows[i] = archive.SampleRow{
				Channel: ch.String(),
				Time:    int64(seg.SampleTime(i)),
				Rate:    seg.SampleRate,
				Value:   v,
			}
		}
		if _, err := w.Write(rows); err != nil {
			f.Close()
			return errors.Wrapf(errors.ErrExportFailed, "write %s: %v", path, err)
		}
	}

	if err := w.Close(); err != nil {
		f.Close()
		return errors.Wrapf(errors.ErrExportFailed, "close %s: %v", path, err)
	}
	return f.Close()
}

// pickMeta is the pick.yaml document.
type pickMeta struct {
	Pick struct {
		ID     string `yaml:"id"`
		Stream string `yaml:"stream"`
		Time   string `yaml:"time"`
		Phase  string `yaml:"phase,omitempty"`
		Author string `yaml:"author,omitempty"`
	} `yaml:"pick"`
	Window struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"window"`
	ExportedAt string         `yaml:"exported_at"`
	Channels   map[string]int `yaml:"channels"`
}

func (s *DirectorySink) writeMeta(dir string, res Result, byChannel map[waveform.ChannelID][]waveform.Segment) error {
	var meta pickMeta
	meta.Pick.ID = res.Pick.ID
	meta.Pick.Stream = res.Pick.Stream.String()
	meta.Pick.Time = res.Pick.Time.Std().Format(time.RFC3339Nano)
	meta.Pick.Phase = res.Pick.Phase
	meta.Pick.Author = res.Pick.Author
	meta.Window.Start = res.Window.Start.Std().Format(time.RFC3339Nano)
	meta.Window.End = res.Window.End.Std().Format(time.RFC3339Nano)
	meta.ExportedAt = time.Now().UTC().Format(time.RFC3339Nano)

	meta.Channels = make(map[string]int, len(byChannel))
	for ch, segs := range byChannel {
		n := 0
		for _, seg := range segs {
			n += len(seg.Samples)
		}
		meta.Channels[ch.String()] = n
	}

	return writeYAML(filepath.Join(dir, "pick.yaml"), &meta)
}

// gapMeta is the gap.yaml document written for expired windows.
type gapMeta struct {
	Gaps []gapEntry `yaml:"gaps"`
}

type gapEntry struct {
	Channel string `yaml:"channel"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

func (s *DirectorySink) writeGaps(dir string, gaps []waveform.Gap) error {
	var meta gapMeta
	for _, g := range gaps {
		meta.Gaps = append(meta.Gaps, gapEntry{
			Channel: g.Channel.String(),
			Start:   g.Window.Start.Std().Format(time.RFC3339Nano),
			End:     g.Window.End.Std().Format(time.RFC3339Nano),
		})
	}
	return writeYAML(filepath.Join(dir, "gap.yaml"), &meta)
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrapf(errors.ErrExportFailed, "marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrExportFailed, "write %s: %v", path, err)
	}
	return nil
}

// codecFor maps a config compression name to a parquet codec.
func codecFor(name string) (compress.Codec, error) {
	switch name {
	case "zstd", "":
		return &parquet.Zstd, nil
	case "snappy":
		return &parquet.Snappy, nil
	case "lz4":
		return &parquet.Lz4Raw, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	default:
		return nil, errors.NewValidation("export.compression", fmt.Sprintf("unknown algorithm %q", name))
	}
}
