// Package listener subscribes to the pick notification feed.
//
// Picks arrive as JSON messages on a message bus topic. The listener
// validates and normalizes each message into a waveform.Pick and hands it
// to the coordinator through a buffered channel; malformed messages are
// counted and dropped, never fatal.
package listener

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seistack/pickwave/internal/errors"
	"github.com/seistack/pickwave/internal/waveform"
)

// Feed delivers pick notifications.
type Feed interface {
	// Connect establishes the subscription. Blocks until connected or ctx
	// is done.
	Connect(ctx context.Context) error

	// Picks returns the delivery channel. Closed when the feed shuts down.
	Picks() <-chan waveform.Pick

	// Close tears the subscription down.
	Close() error
}

// pickMessage is the wire form of a pick notification.
type pickMessage struct {
	ID      string  `json:"id"`
	Stream  string  `json:"stream"`
	Time    string  `json:"time"`
	Created string  `json:"created,omitempty"`
	Phase   string  `json:"phase,omitempty"`
	Author  string  `json:"author,omitempty"`
	Quality float64 `json:"quality,omitempty"`
}

// ParsePick decodes and validates one pick message.
//
// The stream field is "NET.STA.LOC.CHA"; a three-letter channel code
// (e.g. "BHZ") is accepted and its component letter dropped, since the
// request always spans all components of the sensor. A missing ID gets a
// generated one so the pick can still be tracked and exported.
func ParsePick(payload []byte) (waveform.Pick, error) {
	var msg pickMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return waveform.Pick{}, errors.Wrap(errors.ErrBadPickMessage, err.Error())
	}

	if msg.Stream == "" {
		return waveform.Pick{}, errors.Wrap(errors.ErrBadPickMessage, "missing stream")
	}
	stream, err := parsePickStream(msg.Stream)
	if err != nil {
		return waveform.Pick{}, errors.Wrap(errors.ErrBadPickMessage, err.Error())
	}

	if msg.Time == "" {
		return waveform.Pick{}, errors.Wrap(errors.ErrBadPickMessage, "missing time")
	}
	pickTime, err := parsePickTime(msg.Time)
	if err != nil {
		return waveform.Pick{}, errors.Wrapf(errors.ErrBadPickMessage, "bad time %q: %v", msg.Time, err)
	}

	created := waveform.Now()
	if msg.Created != "" {
		if t, err := parsePickTime(msg.Created); err == nil {
			created = t
		}
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}

	return waveform.Pick{
		ID:        id,
		Stream:    stream,
		Time:      pickTime,
		CreatedAt: created,
		Phase:     msg.Phase,
		Author:    msg.Author,
	}, nil
}

// parsePickStream accepts NET.STA.LOC.CHA with a 2- or 3-letter channel
// code, normalizing the latter to the 2-letter sensor stream.
func parsePickStream(s string) (waveform.StreamID, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 4 && len(parts[3]) == 3 {
		parts[3] = parts[3][:2]
		s = strings.Join(parts, ".")
	}
	return waveform.ParseStreamID(s)
}

// parsePickTime accepts RFC 3339 with or without sub-second digits.
func parsePickTime(s string) (waveform.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return waveform.At(t), nil
}
