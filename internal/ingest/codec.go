// Package ingest reads the continuous waveform record feed.
//
// Records travel as length-prefixed binary frames with a CRC, so a torn
// or corrupt frame is detected and the connection redialed instead of
// feeding garbage into the buffer.
package ingest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"

	"github.com/seistack/pickwave/config"
	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

// Frame layout:
//
//	[4] length of payload (little endian)
//	[4] CRC32-C of payload
//	[n] payload
//
// Payload layout:
//
//	string fields (network, station, location, channel, component), each
//	as u8 length + bytes, then start time (i64 ticks), sample rate (f64),
//	sample count (u32) and the samples (f64 each).
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const frameHeaderSize = 8

// WriteRecord encodes one segment as a frame.
func WriteRecord(w io.Writer, seg *waveform.Segment) error {
	payload, err := encodePayload(seg)
	if err != nil {
		return err
	}

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], crc32.Checksum(payload, castagnoli))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "write record header")
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "write record payload")
	}
	return nil
}

// ReadRecord decodes the next frame. Corrupt frames return ErrBadRecord;
// a clean end of stream returns io.EOF.
func ReadRecord(r io.Reader) (waveform.Segment, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return waveform.Segment{}, io.EOF
		}
		return waveform.Segment{}, errors.Wrap(err, "read record header")
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	wantCRC := binary.LittleEndian.Uint32(header[4:8])

	if length == 0 || length > config.MaxRecordSize {
		return waveform.Segment{}, errors.Wrapf(errors.ErrBadRecord, "frame length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return waveform.Segment{}, errors.Wrap(errors.ErrBadRecord, "truncated frame")
	}

	if crc := crc32.Checksum(payload, castagnoli); crc != wantCRC {
		return waveform.Segment{}, errors.Wrapf(errors.ErrBadRecord, "crc mismatch: got %08x want %08x", crc, wantCRC)
	}

	return decodePayload(payload)
}

func encodePayload(seg *waveform.Segment) ([]byte, error) {
	if len(seg.Samples) == 0 || seg.SampleRate <= 0 {
		return nil, errors.Wrap(errors.ErrBadRecord, "empty segment")
	}

	var buf bytes.Buffer
	ch := seg.Channel
	for _, s := range []string{ch.Stream.Network, ch.Stream.Station, ch.Stream.Location, ch.Stream.Channel, ch.Component} {
		if len(s) > 255 {
			return nil, errors.Wrapf(errors.ErrBadRecord, "field too long: %q", s)
		}
		buf.WriteByte(byte(len(s)))
		buf.WriteString(s)
	}

	var fixed [20]byte
	binary.LittleEndian.PutUint64(fixed[0:8], uint64(seg.Start))
	binary.LittleEndian.PutUint64(fixed[8:16], math.Float64bits(seg.SampleRate))
	binary.LittleEndian.PutUint32(fixed[16:20], uint32(len(seg.Samples)))
	buf.Write(fixed[:])

	var sample [8]byte
	for _, v := range seg.Samples {
		binary.LittleEndian.PutUint64(sample[:], math.Float64bits(v))
		buf.Write(sample[:])
	}
	return buf.Bytes(), nil
}

func decodePayload(payload []byte) (waveform.Segment, error) {
	rd := bytes.NewReader(payload)

	readString := func() (string, error) {
		n, err := rd.ReadByte()
		if err != nil {
			return "", err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(rd, b); err != nil {
			return "", err
		}
		return string(b), nil
	}

	var fields [5]string
	for i := range fields {
		s, err := readString()
		if err != nil {
			return waveform.Segment{}, errors.Wrap(errors.ErrBadRecord, "truncated payload")
		}
		fields[i] = s
	}

	var fixed [20]byte
	if _, err := io.ReadFull(rd, fixed[:]); err != nil {
		return waveform.Segment{}, errors.Wrap(errors.ErrBadRecord, "truncated payload")
	}
	start := waveform.Time(binary.LittleEndian.Uint64(fixed[0:8]))
	rate := math.Float64frombits(binary.LittleEndian.Uint64(fixed[8:16]))
	count := binary.LittleEndian.Uint32(fixed[16:20])

	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return waveform.Segment{}, errors.Wrapf(errors.ErrBadRecord, "sample rate %v", rate)
	}
	if int64(count)*8 != int64(rd.Len()) {
		return waveform.Segment{}, errors.Wrapf(errors.ErrBadRecord, "sample count %d does not match payload", count)
	}

	samples := make([]float64, count)
	var sample [8]byte
	for i := range samples {
		if _, err := io.ReadFull(rd, sample[:]); err != nil {
			return waveform.Segment{}, errors.Wrap(errors.ErrBadRecord, "truncated samples")
		}
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(sample[:]))
	}

	seg := waveform.Segment{
		Channel: waveform.ChannelID{
			Stream: waveform.StreamID{
				Network:  fields[0],
				Station:  fields[1],
				Location: fields[2],
				Channel:  fields[3],
			},
			Component: fields[4],
		},
		Start:      start,
		SampleRate: rate,
		Samples:    samples,
	}
	if err := seg.Channel.Stream.Validate(); err != nil {
		return waveform.Segment{}, errors.Wrap(errors.ErrBadRecord, err.Error())
	}
	return seg, nil
}
