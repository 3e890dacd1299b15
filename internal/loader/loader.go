// Package loader handles configuration loading and validation for pickwaved.
//
// Configuration is read from a YAML file, with environment variable expansion
// applied before parsing. Values not present in the file keep their defaults
// from DefaultConfig.
package loader

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/logging"
)

// Load reads configuration from the given path. A missing file is not an
// error: the defaults are returned and a note is logged, so a bare
// `pickwaved -feed tcp://broker:1883` works without a config file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Component("loader").Info("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	expanded := expandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.warn()

	return cfg, nil
}

// warn logs configuration smells that are survivable but usually wrong.
func (c *Config) warn() {
	// A horizon shorter than the window means requests can only complete
	// from the archive: the buffer evicts the head before the tail
	// arrives, and affected requests expire.
	window := c.Window.PreRoll.Duration() + c.Window.PostRoll.Duration()
	if c.Buffer.RetentionHorizon.Duration() < window {
		logging.Component("loader").Warn("retention_horizon shorter than pre_roll+post_roll, streamed windows will expire",
			"retention_horizon", c.Buffer.RetentionHorizon.Duration(),
			"window", window)
	}
}

// expandEnv replaces ${VAR} references with environment values.
// Unset variables expand to the empty string.
func expandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

// Validate checks the configuration for consistency. All problems are
// collected so the operator sees every mistake in one run.
func (c *Config) Validate() error {
	v := errors.NewValidationErrors()

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		v.AddField("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}

	switch c.Acquisition.Mode {
	case ModeStreaming:
		if c.Acquisition.Address == "" {
			v.AddMissing("acquisition.address")
		}
	case ModePolling:
		if c.Archive.DataDir == "" {
			v.AddMissing("archive.data_dir")
		}
	default:
		v.AddField("acquisition.mode", fmt.Sprintf("must be %q or %q", ModeStreaming, ModePolling))
	}

	if c.Feed.Broker == "" {
		v.AddMissing("feed.broker")
	} else if !strings.Contains(c.Feed.Broker, "://") {
		v.AddField("feed.broker", "must be a URL like tcp://host:1883")
	}
	if c.Feed.QueueSize <= 0 {
		v.AddField("feed.queue_size", "must be positive")
	}

	if c.Window.PreRoll <= 0 {
		v.AddField("window.pre_roll", "must be positive")
	}
	if c.Window.PostRoll <= 0 {
		v.AddField("window.post_roll", "must be positive")
	}
	if c.Window.ExpireAfter <= 0 {
		v.AddField("window.expire_after", "must be positive")
	}

	if c.Buffer.RetentionHorizon <= 0 {
		v.AddField("buffer.retention_horizon", "must be positive")
	}
	if c.Buffer.CleanupInterval <= 0 {
		v.AddField("buffer.cleanup_interval", "must be positive")
	}

	if c.Poll.Interval <= 0 {
		v.AddField("poll.interval", "must be positive")
	}

	if c.Archive.MaxConcurrent <= 0 {
		v.AddField("archive.max_concurrent", "must be positive")
	}

	if c.Export.Dir == "" {
		v.AddMissing("export.dir")
	}
	switch c.Export.Compression {
	case "zstd", "snappy", "lz4", "gzip", "none", "uncompressed":
	default:
		v.AddField("export.compression", fmt.Sprintf("unknown algorithm %q", c.Export.Compression))
	}

	if len(c.Streams) == 0 {
		v.AddMissing("streams")
	}
	if _, err := c.Inventory(); err != nil {
		v.Add(err)
	}

	for i, b := range c.Blacklist {
		if b.Network == "" || b.Station == "" {
			v.AddField(fmt.Sprintf("blacklist[%d]", i), "network and station are required")
		}
	}

	return v.Err()
}
