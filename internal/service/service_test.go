package service

import (
	"testing"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/loader"
)

func testConfig(t *testing.T) *loader.Config {
	cfg := loader.DefaultConfig()
	cfg.Feed.Broker = "tcp://broker:1883"
	cfg.Acquisition.Address = "acq:18000"
	cfg.Export.Dir = t.TempDir()
	cfg.Streams = []loader.StreamConfig{
		{Stream: "GE.APE.--.BH", Components: "ZNE"},
	}
	return cfg
}

func TestNewStreaming(t *testing.T) {
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st := svc.Status()
	if st.Mode != "streaming" {
		t.Errorf("Mode = %q, want streaming", st.Mode)
	}
	if st.PendingRequests != 0 {
		t.Errorf("PendingRequests = %d, want 0", st.PendingRequests)
	}
}

func TestNewPollingRequiresArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Acquisition.Mode = loader.ModePolling
	cfg.Archive.DataDir = ""

	if _, err := New(cfg); !errors.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Compression = "brotli"

	if _, err := New(cfg); !errors.IsValidation(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	svc, err := New(testConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Stop(); !errors.Is(err, errors.ErrNotRunning) {
		t.Errorf("Stop = %v, want ErrNotRunning", err)
	}
}
