package artifact

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// Kind identifies one of the two artifacts of a session
type Kind int

const (
	VideoContainer Kind = iota + 1
	CompressedAudio
)

// ParseKind accepts the names used on the control surface
func ParseKind(s string) (Kind, error) {
	switch s {
	case "video", "video-container":
		return VideoContainer, nil
	case "audio", "compressed-audio":
		return CompressedAudio, nil
	default:
		return 0, fmt.Errorf("unknown artifact kind %q", s)
	}
}

func (k Kind) String() string {
	switch k {
	case VideoContainer:
		return "video-container"
	case CompressedAudio:
		return "compressed-audio"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MediaType returns the declared media type
func (k Kind) MediaType() string {
	switch k {
	case VideoContainer:
		return "video/mp4"
	case CompressedAudio:
		return "audio/mp3"
	default:
		return "application/octet-stream"
	}
}

// Filename returns the suggested download name
func (k Kind) Filename() string {
	switch k {
	case VideoContainer:
		return "video.mp4"
	case CompressedAudio:
		return "audio.mp3"
	default:
		return "artifact.bin"
	}
}

// Artifact is an immutable named byte buffer. The zero value is not usable;
// create artifacts with New.
type Artifact struct {
	kind      Kind
	mediaType string
	data      []byte
	createdAt time.Time
}

// New copies data into a new artifact. An empty mediaType falls back to the
// kind's default.
func New(kind Kind, mediaType string, data []byte) *Artifact {
	if mediaType == "" {
		mediaType = kind.MediaType()
	}
	return &Artifact{
		kind:      kind,
		mediaType: mediaType,
		data:      bytes.Clone(data),
		createdAt: time.Now(),
	}
}

func (a *Artifact) Kind() Kind           { return a.kind }
func (a *Artifact) MediaType() string    { return a.mediaType }
func (a *Artifact) Filename() string     { return a.kind.Filename() }
func (a *Artifact) Size() int            { return len(a.data) }
func (a *Artifact) CreatedAt() time.Time { return a.createdAt }

// Bytes returns a copy of the content
func (a *Artifact) Bytes() []byte { return bytes.Clone(a.data) }

// Reader returns a read-only view of the content
func (a *Artifact) Reader() *bytes.Reader { return bytes.NewReader(a.data) }

// WriteTo streams the content to w
func (a *Artifact) WriteTo(w io.Writer) (int64, error) {
	return a.Reader().WriteTo(w)
}
