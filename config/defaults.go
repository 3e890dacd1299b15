// Package config provides configuration defaults and utilities
// for the pickwave application.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or environment variables.
package config

import "time"

// =============================================================================
// Window Defaults
// =============================================================================

const (
	// DefaultPreRoll is the time requested before each pick.
	// The per-channel window is [pick.time - pre_roll, pick.time + post_roll).
	// Override via config: window.pre_roll
	DefaultPreRoll = 120 * time.Second

	// DefaultPostRoll is the time requested after each pick.
	// Override via config: window.post_roll
	DefaultPostRoll = 240 * time.Second

	// DefaultExpireAfter is the wall-clock age at which an incomplete
	// request expires regardless of buffer state.
	// Override via config: window.expire_after
	DefaultExpireAfter = 30 * time.Minute
)

// =============================================================================
// Buffer Defaults
// =============================================================================

const (
	// DefaultRetentionHorizon is the maximum age of buffered waveform data.
	// Data older than this is evicted; it is the single memory-control knob.
	// Must be longer than pre_roll + post_roll or requests can never
	// complete from the buffer.
	// Override via config: buffer.retention_horizon
	DefaultRetentionHorizon = time.Hour

	// DefaultCleanupInterval is how often the eviction sweep runs in
	// addition to inline eviction on ingest.
	// Override via config: buffer.cleanup_interval
	DefaultCleanupInterval = 2 * time.Minute
)

// =============================================================================
// Feed Defaults
// =============================================================================

const (
	// DefaultFeedTopic is the message bus topic carrying pick notifications.
	// Override via config: feed.topic
	DefaultFeedTopic = "picks"

	// DefaultFeedConnectTimeout is the time allowed for the initial broker
	// connection. Reconnects after that are handled by the MQTT client.
	// Override via config: feed.connect_timeout
	DefaultFeedConnectTimeout = 30 * time.Second

	// DefaultFeedQueueSize is the capacity of the pick delivery channel.
	// Override via config: feed.queue_size
	DefaultFeedQueueSize = 1024
)

// =============================================================================
// Acquisition Defaults
// =============================================================================

const (
	// DefaultSourceDialTimeout is the record stream dial timeout.
	// Override via config: acquisition.dial_timeout
	DefaultSourceDialTimeout = 10 * time.Second

	// DefaultSourceReadTimeout is the record stream read deadline. A stream
	// silent for this long is treated as dead and redialed.
	// Override via config: acquisition.read_timeout
	DefaultSourceReadTimeout = 300 * time.Second

	// DefaultPollInterval is the re-evaluation tick in polling mode.
	// Override via config: poll.interval
	DefaultPollInterval = 30 * time.Second
)

// =============================================================================
// Archive Defaults
// =============================================================================

const (
	// DefaultArchiveFetchTimeout is the timeout for one archive window fetch.
	// Override via config: archive.fetch_timeout
	DefaultArchiveFetchTimeout = 60 * time.Second

	// DefaultArchiveMaxConcurrent limits parallel archive fetches.
	// Override via config: archive.max_concurrent
	DefaultArchiveMaxConcurrent = 4

	// DefaultArchiveMemoryLimit is the DuckDB memory limit for archive reads.
	// Override via config: archive.memory_limit
	DefaultArchiveMemoryLimit = "1GB"
)

// =============================================================================
// Export Defaults
// =============================================================================

const (
	// DefaultExportCompression is the parquet compression for exported
	// waveform windows.
	// Override via config: export.compression
	DefaultExportCompression = "zstd"
)

// =============================================================================
// Record Feed Limits
// =============================================================================

const (
	// MaxRecordSize limits a single waveform record frame to prevent OOM
	// on a corrupt length prefix. 4 MiB holds hours of data for any
	// realistic channel, so a larger frame is always garbage.
	MaxRecordSize = 4 * 1024 * 1024
)
