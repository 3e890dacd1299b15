package tracker

import (
	"testing"
	"time"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

var testStream = waveform.StreamID{Network: "GE", Station: "APE", Location: "--", Channel: "BH"}

func testPick(id string) waveform.Pick {
	return waveform.Pick{
		ID:        id,
		Stream:    testStream,
		Time:      waveform.Now(),
		CreatedAt: waveform.Now(),
		Phase:     "P",
	}
}

func testRequest(id string) *Request {
	return NewRequest(testPick(id), "ZNE", 120*time.Second, 240*time.Second, 30*time.Minute)
}

func TestNewRequestWindow(t *testing.T) {
	p := testPick("pick-1")
	r := NewRequest(p, "ZNE", 120*time.Second, 240*time.Second, 30*time.Minute)

	if r.Window.Start != p.Time.Add(-120*time.Second) {
		t.Errorf("Window.Start = %v, want pick-120s", r.Window.Start)
	}
	if r.Window.End != p.Time.Add(240*time.Second) {
		t.Errorf("Window.End = %v, want pick+240s", r.Window.End)
	}
	if r.Status() != StatusWaiting {
		t.Errorf("Status = %v, want waiting", r.Status())
	}

	chans := r.Channels()
	if len(chans) != 3 {
		t.Fatalf("Channels = %d, want 3", len(chans))
	}
	if chans[0].String() != "GE.APE.--.BHZ" {
		t.Errorf("channel 0 = %q, want GE.APE.--.BHZ", chans[0])
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Status
		ok   bool
	}{
		{"waiting to partial to complete", []Status{StatusPartial, StatusComplete}, true},
		{"waiting straight to complete", []Status{StatusComplete}, true},
		{"waiting to expired", []Status{StatusExpired}, true},
		{"partial to expired", []Status{StatusPartial, StatusExpired}, true},
		{"same state is a no-op", []Status{StatusPartial, StatusPartial}, true},
		{"complete never expires", []Status{StatusComplete, StatusExpired}, false},
		{"expired never completes", []Status{StatusExpired, StatusComplete}, false},
		{"no going back to waiting", []Status{StatusPartial, StatusWaiting}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testRequest("pick-1")
			var err error
			for _, s := range tt.path {
				err = r.Transition(s)
				if err != nil {
					break
				}
			}
			if tt.ok && err != nil {
				t.Errorf("Transition: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("Transition: expected error")
				}
				if !errors.Is(err, errors.ErrInvalidTransition) {
					t.Errorf("err = %v, want ErrInvalidTransition", err)
				}
			}
		})
	}
}

func TestAddAndLookup(t *testing.T) {
	tr := New()

	r := testRequest("pick-1")
	if err := tr.Add(r); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, ok := tr.Get("pick-1")
	if !ok || got != r {
		t.Errorf("Get = %v, %v", got, ok)
	}

	reqs := tr.ForStream(testStream)
	if len(reqs) != 1 || reqs[0] != r {
		t.Errorf("ForStream = %v", reqs)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

func TestAddDuplicatePick(t *testing.T) {
	tr := New()

	if err := tr.Add(testRequest("pick-1")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	err := tr.Add(testRequest("pick-1"))
	if !errors.Is(err, errors.ErrDuplicatePick) {
		t.Errorf("err = %v, want ErrDuplicatePick", err)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d after duplicate, want 1", tr.Len())
	}
}

func TestRemove(t *testing.T) {
	tr := New()

	if err := tr.Add(testRequest("pick-1")); err != nil {
		t.Fatal(err)
	}
	if err := tr.Add(testRequest("pick-2")); err != nil {
		t.Fatal(err)
	}

	if err := tr.Remove("pick-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := tr.Get("pick-1"); ok {
		t.Error("pick-1 still present after Remove")
	}
	if len(tr.ForStream(testStream)) != 1 {
		t.Errorf("ForStream = %d entries, want 1", len(tr.ForStream(testStream)))
	}

	if err := tr.Remove("pick-1"); !errors.Is(err, errors.ErrRequestNotFound) {
		t.Errorf("second Remove = %v, want ErrRequestNotFound", err)
	}

	// Removing the last request clears the stream index.
	if err := tr.Remove("pick-2"); err != nil {
		t.Fatal(err)
	}
	if streams := tr.Streams(); len(streams) != 0 {
		t.Errorf("Streams = %v, want empty", streams)
	}
}

func TestExpiredAt(t *testing.T) {
	r := testRequest("pick-1")

	if r.ExpiredAt(waveform.Now()) {
		t.Error("fresh request reported expired")
	}
	if !r.ExpiredAt(r.ExpiresAt) {
		t.Error("request at its deadline should be expired")
	}
}
