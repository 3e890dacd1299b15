package waveform

import (
	"fmt"
	"strings"

	"github.com/seistack/pickwave/internal/errors"
)

// StreamID identifies a sensor stream: network, station, location and the
// two-character band+instrument code shared by all components of the
// sensor (e.g. "BH" for broadband high-gain).
//
// An empty location code is normalized to "--" so that string forms are
// unambiguous.
type StreamID struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// ParseStreamID parses "NET.STA.LOC.CHA" into a StreamID.
// LOC may be empty ("GE.APE..BH"); CHA is the band+instrument code
// without the component letter.
func ParseStreamID(s string) (StreamID, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return StreamID{}, errors.Wrapf(errors.ErrInvalidStream, "%q: want NET.STA.LOC.CHA", s)
	}

	id := StreamID{
		Network:  parts[0],
		Station:  parts[1],
		Location: parts[2],
		Channel:  parts[3],
	}
	id.normalize()

	if err := id.Validate(); err != nil {
		return StreamID{}, err
	}
	return id, nil
}

func (id *StreamID) normalize() {
	if id.Location == "" {
		id.Location = "--"
	}
}

// Validate checks the identifier fields against FDSN-style constraints.
func (id StreamID) Validate() error {
	if !validCode(id.Network, 1, 2) {
		return errors.Wrapf(errors.ErrInvalidStream, "network %q", id.Network)
	}
	if !validCode(id.Station, 1, 5) {
		return errors.Wrapf(errors.ErrInvalidStream, "station %q", id.Station)
	}
	if id.Location != "--" && !validCode(id.Location, 1, 2) {
		return errors.Wrapf(errors.ErrInvalidStream, "location %q", id.Location)
	}
	if !validCode(id.Channel, 2, 2) {
		return errors.Wrapf(errors.ErrInvalidStream, "channel %q", id.Channel)
	}
	return nil
}

// validCode accepts uppercase alphanumeric codes of the given length range.
func validCode(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// String returns the "NET.STA.LOC.CHA" form.
func (id StreamID) String() string {
	return fmt.Sprintf("%s.%s.%s.%s", id.Network, id.Station, id.Location, id.Channel)
}

// Component returns the single-component channel for a component letter.
func (id StreamID) Component(comp byte) ChannelID {
	return ChannelID{Stream: id, Component: string(comp)}
}

// ChannelID identifies a single waveform data stream: one component of
// one sensor stream (e.g. the vertical component "GE.APE.--.BHZ").
type ChannelID struct {
	Stream    StreamID
	Component string
}

// String returns the "NET.STA.LOC.CHAC" form with the component appended
// to the band+instrument code.
func (c ChannelID) String() string {
	return fmt.Sprintf("%s.%s.%s.%s%s",
		c.Stream.Network, c.Stream.Station, c.Stream.Location,
		c.Stream.Channel, c.Component)
}
