package ingest

import (
	"bytes"
	"io"
	"testing"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

func testSegment() waveform.Segment {
	return waveform.Segment{
		Channel: waveform.ChannelID{
			Stream:    waveform.StreamID{Network: "GE", Station: "APE", Location: "--", Channel: "BH"},
			Component: "Z",
		},
		Start:      waveform.Time(1_700_000_000_000_000),
		SampleRate: 100,
		Samples:    []float64{0.5, -1.25, 3.75, 0, 42},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	seg := testSegment()

	var buf bytes.Buffer
	if err := WriteRecord(&buf, &seg); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}

	got, err := ReadRecord(&buf)
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}

	if got.Channel != seg.Channel {
		t.Errorf("Channel = %v, want %v", got.Channel, seg.Channel)
	}
	if got.Start != seg.Start || got.SampleRate != seg.SampleRate {
		t.Errorf("Start/rate = %v/%v, want %v/%v", got.Start, got.SampleRate, seg.Start, seg.SampleRate)
	}
	if len(got.Samples) != len(seg.Samples) {
		t.Fatalf("Samples = %d, want %d", len(got.Samples), len(seg.Samples))
	}
	for i := range seg.Samples {
		if got.Samples[i] != seg.Samples[i] {
			t.Errorf("sample %d = %v, want %v", i, got.Samples[i], seg.Samples[i])
		}
	}
}

func TestReadRecordStream(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		seg := testSegment()
		if err := WriteRecord(&buf, &seg); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := ReadRecord(&buf); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if _, err := ReadRecord(&buf); err != io.EOF {
		t.Errorf("err = %v, want io.EOF at end of stream", err)
	}
}

func TestReadRecordCorruptCRC(t *testing.T) {
	seg := testSegment()
	var buf bytes.Buffer
	if err := WriteRecord(&buf, &seg); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	data[len(data)-1] ^= 0xff

	_, err := ReadRecord(bytes.NewReader(data))
	if !errors.Is(err, errors.ErrBadRecord) {
		t.Errorf("err = %v, want ErrBadRecord", err)
	}
}

func TestReadRecordTruncated(t *testing.T) {
	seg := testSegment()
	var buf bytes.Buffer
	if err := WriteRecord(&buf, &seg); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()[:buf.Len()-4]
	_, err := ReadRecord(bytes.NewReader(data))
	if !errors.Is(err, errors.ErrBadRecord) {
		t.Errorf("err = %v, want ErrBadRecord", err)
	}
}

func TestReadRecordOversizedFrame(t *testing.T) {
	// Length prefix far beyond MaxRecordSize must be rejected before any
	// allocation.
	frame := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}
	_, err := ReadRecord(bytes.NewReader(frame))
	if !errors.Is(err, errors.ErrBadRecord) {
		t.Errorf("err = %v, want ErrBadRecord", err)
	}
}

func TestWriteRecordRejectsEmpty(t *testing.T) {
	seg := testSegment()
	seg.Samples = nil

	var buf bytes.Buffer
	if err := WriteRecord(&buf, &seg); !errors.Is(err, errors.ErrBadRecord) {
		t.Errorf("err = %v, want ErrBadRecord", err)
	}
}
