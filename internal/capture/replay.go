package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ReplayDevice plays back a prerecorded container as if it came from a live
// device. Data takes precedence over Path.
type ReplayDevice struct {
	Data []byte
	Path string
	// ChunkSize is the size of each pushed chunk.
	ChunkSize int
	// Interval paces chunks like a live recorder. Zero pushes as fast as the
	// queue accepts. Finish drops the pacing and pushes the rest at once.
	Interval time.Duration
}

// Open loads the container. An empty or missing source counts as no device.
func (d *ReplayDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data := d.Data
	if data == nil && d.Path != "" {
		b, err := os.ReadFile(d.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read replay file: %w", err)
		}
		data = b
	}
	if len(data) == 0 {
		return nil, errors.New("replay source is empty")
	}

	chunkSize := d.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 16 * 1024
	}

	id := uuid.NewString()
	return &replayStream{
		data:      data,
		chunkSize: chunkSize,
		interval:  d.Interval,
		finished:  make(chan struct{}),
		tracks: []Track{
			&ReplayTrack{id: "video-" + id, kind: TrackVideo},
			&ReplayTrack{id: "audio-" + id, kind: TrackAudio},
		},
	}, nil
}

type replayStream struct {
	data      []byte
	chunkSize int
	interval  time.Duration
	tracks    []Track

	finished   chan struct{}
	finishOnce sync.Once
}

func (s *replayStream) Tracks() []Track { return s.tracks }

func (s *replayStream) Finish() {
	s.finishOnce.Do(func() { close(s.finished) })
}

func (s *replayStream) Record(sink chan<- []byte) error {
	interval := s.interval
	for off := 0; off < len(s.data); off += s.chunkSize {
		end := min(off+s.chunkSize, len(s.data))
		chunk := make([]byte, end-off)
		copy(chunk, s.data[off:end])
		sink <- chunk

		if interval > 0 && end < len(s.data) {
			select {
			case <-time.After(interval):
			case <-s.finished:
				interval = 0
			}
		}
	}

	// a live source keeps running until asked to stop
	<-s.finished
	return nil
}

// ReplayTrack is a track of a replayed stream
type ReplayTrack struct {
	id      string
	kind    TrackKind
	stopped atomic.Bool
}

func (t *ReplayTrack) ID() string      { return t.id }
func (t *ReplayTrack) Kind() TrackKind { return t.kind }

func (t *ReplayTrack) Stop() error {
	t.stopped.Store(true)
	return nil
}

// Stopped reports whether the track has been released
func (t *ReplayTrack) Stopped() bool { return t.stopped.Load() }
