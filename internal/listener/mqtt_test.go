package listener

import (
	"testing"

	"github.com/seistack/pickwave/internal/waveform"
)

func testPick(id string) waveform.Pick {
	return waveform.Pick{
		ID:     id,
		Stream: waveform.StreamID{Network: "GE", Station: "APE", Location: "--", Channel: "BH"},
		Time:   waveform.Now(),
	}
}

func TestFeedDeliverAndDrop(t *testing.T) {
	f := NewMQTTFeed(Options{Broker: "tcp://broker:1883", Topic: "picks", QueueSize: 1})

	f.deliver(testPick("pick-1"))
	f.deliver(testPick("pick-2")) // queue full

	dropped, malformed := f.Counters()
	if dropped != 1 || malformed != 0 {
		t.Errorf("Counters = %d dropped, %d malformed, want 1, 0", dropped, malformed)
	}

	pick := <-f.Picks()
	if pick.ID != "pick-1" {
		t.Errorf("delivered pick = %q, want pick-1", pick.ID)
	}
}

func TestFeedDeliverAfterClose(t *testing.T) {
	f := NewMQTTFeed(Options{Broker: "tcp://broker:1883", Topic: "picks", QueueSize: 4})

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A handler still in flight during shutdown discards its pick; the
	// broker disconnect quiesces handlers best-effort only.
	f.deliver(testPick("pick-late"))

	if _, ok := <-f.Picks(); ok {
		t.Error("pick delivered after Close")
	}
}

func TestFeedCloseIdempotent(t *testing.T) {
	f := NewMQTTFeed(Options{Broker: "tcp://broker:1883", Topic: "picks", QueueSize: 1})

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
