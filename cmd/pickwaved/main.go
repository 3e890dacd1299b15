// pickwaved retrieves waveform windows around seismic picks.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seistack/pickwave/internal/loader"
	"github.com/seistack/pickwave/internal/logging"
	"github.com/seistack/pickwave/internal/service"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	broker := flag.String("feed", "", "pick feed broker URL (overrides config)")
	mode := flag.String("mode", "", "acquisition mode: streaming or polling (overrides config)")
	exportDir := flag.String("export", "", "export directory (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	statusEvery := flag.Duration("status-interval", 5*time.Minute, "status log interval (0 disables)")
	flag.Parse()

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		logging.Init(slog.LevelInfo, *logJSON)
		logging.Error("load config failed", "path", *cfgPath, "error", err)
		os.Exit(1)
	}

	// CLI overrides
	if *broker != "" {
		cfg.Feed.Broker = *broker
	}
	if *mode != "" {
		cfg.Acquisition.Mode = *mode
	}
	if *exportDir != "" {
		cfg.Export.Dir = *exportDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	logging.Init(parseLevel(cfg.Log.Level), cfg.Log.JSON)
	logging.Info("pickwaved starting", "version", Version, "config", *cfgPath)

	svc, err := service.New(cfg)
	if err != nil {
		logging.Error("service setup failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logging.Error("service start failed", "error", err)
		os.Exit(1)
	}

	if *statusEvery > 0 {
		go statusLoop(ctx, svc, *statusEvery)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logging.Info("shutting down", "signal", sig.String())

	if err := svc.Stop(); err != nil {
		logging.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

func statusLoop(ctx context.Context, svc *service.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := svc.Status()
			logging.Info("status",
				"mode", st.Mode,
				"uptime", st.Uptime.Round(time.Second),
				"pending", st.PendingRequests,
				"channels", st.BufferChannels,
				"buffered", time.Duration(st.BufferedTicks)*time.Microsecond,
				"latency_p50_s", st.LatencyP50,
				"latency_p99_s", st.LatencyP99)
		}
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
