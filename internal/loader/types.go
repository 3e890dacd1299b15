// Package loader - Configuration Types
//
// Defines the YAML configuration structure for pickwaved.
package loader

import (
	"time"

	"github.com/seistack/pickwave/config"
	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

// Mode selects the retrieval strategy.
const (
	// ModeStreaming buffers a continuous record feed and completes
	// windows from memory as data arrives.
	ModeStreaming = "streaming"

	// ModePolling keeps no live feed and fetches due windows on demand
	// from the waveform archive on a fixed tick.
	ModePolling = "polling"
)

// Config is the root configuration structure for pickwaved.
type Config struct {
	// Log configures logging output.
	Log LogConfig `yaml:"log"`

	// Feed configures the pick notification subscription.
	Feed FeedConfig `yaml:"feed"`

	// Acquisition configures the continuous waveform record feed
	// (streaming mode only).
	Acquisition AcquisitionConfig `yaml:"acquisition"`

	// Window configures the per-pick request window.
	Window WindowConfig `yaml:"window"`

	// Buffer configures the streaming waveform buffer.
	Buffer BufferConfig `yaml:"buffer"`

	// Poll configures the polling-mode tick.
	Poll PollConfig `yaml:"poll"`

	// Archive configures the on-demand waveform archive.
	// Required in polling mode; optional backfill source in streaming mode.
	Archive ArchiveConfig `yaml:"archive"`

	// Export configures the export sink.
	Export ExportConfig `yaml:"export"`

	// Metrics configures the optional prometheus listener.
	Metrics MetricsConfig `yaml:"metrics"`

	// Streams lists the channels of interest.
	Streams []StreamConfig `yaml:"streams"`

	// Blacklist lists stations whose picks are skipped.
	Blacklist []BlacklistEntry `yaml:"blacklist"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: info
	Level string `yaml:"level"`

	// JSON switches output to JSON format.
	JSON bool `yaml:"json"`
}

// FeedConfig configures the message bus subscription.
type FeedConfig struct {
	// Broker is the bus URL, e.g. "tcp://broker:1883".
	Broker string `yaml:"broker"`

	// Topic carries pick notifications. Default: "picks"
	Topic string `yaml:"topic"`

	// ClientID identifies this subscriber on the bus.
	ClientID string `yaml:"client_id"`

	// Username/Password authenticate against the broker.
	// Use environment variables: "${PICKWAVE_BUS_PASSWORD}"
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ConnectTimeout bounds the initial connection. Default: 30s
	ConnectTimeout Duration `yaml:"connect_timeout"`

	// QueueSize is the pick delivery channel capacity. Default: 1024
	QueueSize int `yaml:"queue_size"`
}

// AcquisitionConfig configures the waveform record feed.
type AcquisitionConfig struct {
	// Mode is "streaming" or "polling". Default: streaming
	Mode string `yaml:"mode"`

	// Address is the record stream "host:port" (streaming mode).
	Address string `yaml:"address"`

	// DialTimeout bounds connection attempts. Default: 10s
	DialTimeout Duration `yaml:"dial_timeout"`

	// ReadTimeout is the stream silence deadline before redial. Default: 300s
	ReadTimeout Duration `yaml:"read_timeout"`
}

// WindowConfig configures the per-pick request window.
type WindowConfig struct {
	// PreRoll is the time requested before the pick. Default: 120s
	PreRoll Duration `yaml:"pre_roll"`

	// PostRoll is the time requested after the pick. Default: 240s
	PostRoll Duration `yaml:"post_roll"`

	// ExpireAfter is the wall-clock expiry for incomplete requests.
	// Default: 30m
	ExpireAfter Duration `yaml:"expire_after"`
}

// BufferConfig configures the streaming buffer.
type BufferConfig struct {
	// RetentionHorizon is the maximum age of buffered data. Default: 1h
	RetentionHorizon Duration `yaml:"retention_horizon"`

	// CleanupInterval is the periodic eviction sweep. Default: 2m
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// PollConfig configures polling mode.
type PollConfig struct {
	// Interval is the re-evaluation tick. Default: 30s
	Interval Duration `yaml:"interval"`
}

// ArchiveConfig configures the waveform archive.
type ArchiveConfig struct {
	// DataDir holds the archive's parquet segment files.
	// Empty disables archive access (streaming mode only).
	DataDir string `yaml:"data_dir"`

	// MemoryLimit is the DuckDB memory limit. Default: 1GB
	MemoryLimit string `yaml:"memory_limit"`

	// FetchTimeout bounds a single window fetch. Default: 60s
	FetchTimeout Duration `yaml:"fetch_timeout"`

	// MaxConcurrent limits parallel fetches. Default: 4
	MaxConcurrent int `yaml:"max_concurrent"`
}

// ExportConfig configures the export sink.
type ExportConfig struct {
	// Dir is the export directory. Each completed window gets a numbered
	// subdirectory.
	Dir string `yaml:"dir"`

	// Compression is the parquet compression algorithm
	// (zstd, snappy, lz4, gzip, none). Default: zstd
	Compression string `yaml:"compression"`
}

// MetricsConfig configures the prometheus listener.
type MetricsConfig struct {
	// Listen is the "host:port" for /metrics. Empty disables the listener.
	Listen string `yaml:"listen"`
}

// StreamConfig declares one channel group of interest.
type StreamConfig struct {
	// Stream is the "NET.STA.LOC.CHA" sensor stream
	// (CHA without the component letter).
	Stream string `yaml:"stream"`

	// Components are the component letters, e.g. "ZNE".
	Components string `yaml:"components"`
}

// BlacklistEntry excludes a station from processing.
type BlacklistEntry struct {
	Network string `yaml:"network"`
	Station string `yaml:"station"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},

		Feed: FeedConfig{
			Topic:          config.DefaultFeedTopic,
			ClientID:       "pickwaved",
			ConnectTimeout: Duration(config.DefaultFeedConnectTimeout),
			QueueSize:      config.DefaultFeedQueueSize,
		},

		Acquisition: AcquisitionConfig{
			Mode:        ModeStreaming,
			DialTimeout: Duration(config.DefaultSourceDialTimeout),
			ReadTimeout: Duration(config.DefaultSourceReadTimeout),
		},

		Window: WindowConfig{
			PreRoll:     Duration(config.DefaultPreRoll),
			PostRoll:    Duration(config.DefaultPostRoll),
			ExpireAfter: Duration(config.DefaultExpireAfter),
		},

		Buffer: BufferConfig{
			RetentionHorizon: Duration(config.DefaultRetentionHorizon),
			CleanupInterval:  Duration(config.DefaultCleanupInterval),
		},

		Poll: PollConfig{
			Interval: Duration(config.DefaultPollInterval),
		},

		Archive: ArchiveConfig{
			MemoryLimit:   config.DefaultArchiveMemoryLimit,
			FetchTimeout:  Duration(config.DefaultArchiveFetchTimeout),
			MaxConcurrent: config.DefaultArchiveMaxConcurrent,
		},

		Export: ExportConfig{
			Dir:         "export",
			Compression: config.DefaultExportCompression,
		},
	}
}

// =============================================================================
// Derived views
// =============================================================================

// Inventory maps each configured stream to its component letters.
func (c *Config) Inventory() (map[waveform.StreamID]string, error) {
	inv := make(map[waveform.StreamID]string, len(c.Streams))
	for i, sc := range c.Streams {
		id, err := waveform.ParseStreamID(sc.Stream)
		if err != nil {
			return nil, errors.Wrapf(err, "streams[%d]", i)
		}
		if sc.Components == "" {
			return nil, errors.NewMissingField("streams[" + sc.Stream + "].components")
		}
		inv[id] = sc.Components
	}
	return inv, nil
}

// Blacklisted reports whether a stream's station is blacklisted.
func (c *Config) Blacklisted(id waveform.StreamID) bool {
	for _, b := range c.Blacklist {
		if b.Network == id.Network && b.Station == id.Station {
			return true
		}
	}
	return false
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
