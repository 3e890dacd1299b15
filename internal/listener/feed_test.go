package listener

import (
	"testing"
	"time"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

func TestParsePick(t *testing.T) {
	payload := []byte(`{
		"id": "pick-20260830-001",
		"stream": "GE.APE.--.BHZ",
		"time": "2026-08-30T12:00:00.125Z",
		"created": "2026-08-30T12:00:02Z",
		"phase": "P",
		"author": "autopicker@proc1"
	}`)

	pick, err := ParsePick(payload)
	if err != nil {
		t.Fatalf("ParsePick: %v", err)
	}

	if pick.ID != "pick-20260830-001" {
		t.Errorf("ID = %q", pick.ID)
	}
	// Component letter stripped: requests span all components.
	want := waveform.StreamID{Network: "GE", Station: "APE", Location: "--", Channel: "BH"}
	if pick.Stream != want {
		t.Errorf("Stream = %v, want %v", pick.Stream, want)
	}

	wantTime, _ := time.Parse(time.RFC3339Nano, "2026-08-30T12:00:00.125Z")
	if pick.Time != waveform.At(wantTime) {
		t.Errorf("Time = %v, want %v", pick.Time.Std(), wantTime)
	}
	if pick.Phase != "P" || pick.Author != "autopicker@proc1" {
		t.Errorf("Phase/Author = %q/%q", pick.Phase, pick.Author)
	}
}

func TestParsePickTwoLetterChannel(t *testing.T) {
	pick, err := ParsePick([]byte(`{"stream": "GE.APE..BH", "time": "2026-08-30T12:00:00Z"}`))
	if err != nil {
		t.Fatalf("ParsePick: %v", err)
	}
	if pick.Stream.Channel != "BH" {
		t.Errorf("Channel = %q, want BH", pick.Stream.Channel)
	}
	if pick.Stream.Location != "--" {
		t.Errorf("Location = %q, want normalized --", pick.Stream.Location)
	}
}

func TestParsePickGeneratesID(t *testing.T) {
	a, err := ParsePick([]byte(`{"stream": "GE.APE.--.BH", "time": "2026-08-30T12:00:00Z"}`))
	if err != nil {
		t.Fatalf("ParsePick: %v", err)
	}
	b, err := ParsePick([]byte(`{"stream": "GE.APE.--.BH", "time": "2026-08-30T12:00:00Z"}`))
	if err != nil {
		t.Fatalf("ParsePick: %v", err)
	}
	if a.ID == "" || b.ID == "" {
		t.Fatal("missing generated ID")
	}
	if a.ID == b.ID {
		t.Error("generated IDs must be unique")
	}
}

func TestParsePickRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `picks ahoy`},
		{"missing stream", `{"time": "2026-08-30T12:00:00Z"}`},
		{"missing time", `{"stream": "GE.APE.--.BH"}`},
		{"bad time", `{"stream": "GE.APE.--.BH", "time": "yesterday"}`},
		{"bad stream", `{"stream": "GE.APE", "time": "2026-08-30T12:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePick([]byte(tt.payload))
			if !errors.Is(err, errors.ErrBadPickMessage) {
				t.Errorf("err = %v, want ErrBadPickMessage", err)
			}
		})
	}
}
