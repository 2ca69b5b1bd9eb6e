package capture

import (
	"context"
	"io"
)

// TrackKind tells audio and video tracks apart
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one live device track. Every track returned by a Stream must be
// stopped exactly once by its owner; Stop must be safe to call after the
// underlying source has already ended.
type Track interface {
	ID() string
	Kind() TrackKind
	Stop() error
}

// Stream is an opened audio+video source with its own container encoder.
type Stream interface {
	Tracks() []Track

	// Record pushes encoded container chunks into sink in order until Finish
	// is called or the source ends. It returns after the last chunk has been
	// sent and never closes sink.
	Record(sink chan<- []byte) error

	// Finish asks the encoder to finalize the container. Record keeps pushing
	// the trailing chunks and then returns.
	Finish()
}

// Device grants access to a capture stream. Open fails when permission is
// denied or no device exists.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Preview receives every raw chunk while recording. A write error disables
// the preview for the rest of the recording without failing it.
type Preview = io.Writer
