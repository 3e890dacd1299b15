package waveform

// Pick is a detected seismic phase arrival on one stream.
// Picks are immutable once received from the notification feed.
type Pick struct {
	// ID is the pick's public identifier on the message bus.
	ID string

	// Stream is the sensor stream the pick was made on.
	Stream StreamID

	// Time is the phase arrival time.
	Time Time

	// CreatedAt is when the pick object was created upstream.
	CreatedAt Time

	// Phase is the phase hint ("P", "S", ...). May be empty.
	Phase string

	// Author is the picker that produced the pick. May be empty.
	Author string
}
