package capture

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTrack struct {
	id      string
	kind    TrackKind
	stops   atomic.Int32
	stopErr error
}

func (t *fakeTrack) ID() string      { return t.id }
func (t *fakeTrack) Kind() TrackKind { return t.kind }
func (t *fakeTrack) Stop() error {
	t.stops.Add(1)
	return t.stopErr
}

// fakeStream pushes its chunks, then waits for Finish and pushes the tail
type fakeStream struct {
	chunks    [][]byte
	tail      []byte
	tracks    []*fakeTrack
	finished  chan struct{}
	recordErr error
}

func (s *fakeStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *fakeStream) Finish() { close(s.finished) }

func (s *fakeStream) Record(sink chan<- []byte) error {
	for _, c := range s.chunks {
		sink <- c
	}
	<-s.finished
	if s.tail != nil {
		sink <- s.tail
	}
	return s.recordErr
}

type fakeDevice struct {
	opens   int
	openErr error
	streams []*fakeStream
	next    func() *fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := d.next()
	d.streams = append(d.streams, s)
	return s, nil
}

func newFakeStream(chunks ...string) *fakeStream {
	s := &fakeStream{
		finished: make(chan struct{}),
		tracks: []*fakeTrack{
			{id: "cam", kind: TrackVideo},
			{id: "mic", kind: TrackAudio},
		},
	}
	for _, c := range chunks {
		s.chunks = append(s.chunks, []byte(c))
	}
	return s
}

func TestStopBeforeStart(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("must not be opened")}
	s := NewSession(dev, Options{}, testLogger())

	rec, err := s.Stop(context.Background())
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
	assert.NotErrorIs(t, err, apperr.ErrDeviceUnavailable)
	assert.Equal(t, StateIdle, s.State())
	assert.Zero(t, dev.opens)
}

func TestStartWhileRecording(t *testing.T) {
	dev := &fakeDevice{next: func() *fakeStream { return newFakeStream("a") }}
	s := NewSession(dev, Options{}, testLogger())

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	err := s.Start(context.Background(), StartOptions{Supersede: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
	assert.Equal(t, 1, dev.opens)

	_, err = s.Stop(context.Background())
	require.NoError(t, err)
}

func TestStartWhileDeviceOpens(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var opens atomic.Int32
	dev := deviceFunc(func(context.Context) (Stream, error) {
		if opens.Add(1) == 1 {
			close(entered)
			<-release
		}
		return newFakeStream("a"), nil
	})
	s := NewSession(dev, Options{}, testLogger())

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background(), StartOptions{}) }()
	<-entered

	state := make(chan State, 1)
	go func() { state <- s.State() }()
	select {
	case st := <-state:
		assert.Equal(t, StateIdle, st)
	case <-time.After(time.Second):
		t.Fatal("State blocked while the device was opening")
	}

	err := s.Start(context.Background(), StartOptions{Supersede: true})
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)

	close(release)
	require.NoError(t, <-started)
	assert.Equal(t, StateRecording, s.State())
	assert.Equal(t, int32(1), opens.Load())

	_, err = s.Stop(context.Background())
	require.NoError(t, err)
}

func TestStartStopPreservesChunkOrder(t *testing.T) {
	stream := newFakeStream("one-", "two-", "", "three-")
	stream.tail = []byte("tail")
	dev := &fakeDevice{next: func() *fakeStream { return stream }}

	var preview bytes.Buffer
	// a queue of one forces the producer to wait on the consumer
	s := NewSession(dev, Options{QueueSize: 1, Preview: &preview}, testLogger())

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	assert.Equal(t, StateRecording, s.State())

	rec, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s.State())

	assert.Equal(t, "one-two-three-tail", string(rec.Data))
	assert.Equal(t, "one-two-three-tail", preview.String())
	assert.Equal(t, uint32(5), rec.Stats.TotalChunks)
	assert.Equal(t, uint32(1), rec.Stats.EmptyChunks)

	for _, tr := range stream.tracks {
		assert.Equal(t, int32(1), tr.stops.Load(), "track %s must be released once", tr.id)
	}
}

func TestStartFromStoppedNeedsSupersede(t *testing.T) {
	dev := &fakeDevice{next: func() *fakeStream { return newFakeStream("x") }}
	s := NewSession(dev, Options{}, testLogger())

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	_, err := s.Stop(context.Background())
	require.NoError(t, err)

	err = s.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, apperr.ErrInvalidStateTransition)
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 1, dev.opens)

	require.NoError(t, s.Start(context.Background(), StartOptions{Supersede: true}))
	assert.Equal(t, StateRecording, s.State())

	rec, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", string(rec.Data))
}

func TestStartDeviceUnavailable(t *testing.T) {
	dev := &fakeDevice{openErr: errors.New("permission denied")}
	s := NewSession(dev, Options{}, testLogger())

	err := s.Start(context.Background(), StartOptions{})
	assert.ErrorIs(t, err, apperr.ErrDeviceUnavailable)
	assert.ErrorContains(t, err, "permission denied")
	assert.Equal(t, StateIdle, s.State())
}

func TestStopReleasesAllTracksOnFailure(t *testing.T) {
	stream := newFakeStream("data")
	stream.tracks[0].stopErr = errors.New("camera busy")
	dev := &fakeDevice{next: func() *fakeStream { return stream }}
	s := NewSession(dev, Options{}, testLogger())

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	rec, err := s.Stop(context.Background())

	require.NotNil(t, rec)
	assert.Equal(t, "data", string(rec.Data))
	assert.ErrorIs(t, err, apperr.ErrDeviceUnavailable)
	assert.ErrorContains(t, err, "camera busy")
	assert.Equal(t, StateStopped, s.State())
	for _, tr := range stream.tracks {
		assert.Equal(t, int32(1), tr.stops.Load())
	}
}

func TestStopReportsRecorderError(t *testing.T) {
	stream := newFakeStream("partial")
	stream.recordErr = errors.New("encoder crashed")
	dev := &fakeDevice{next: func() *fakeStream { return stream }}
	s := NewSession(dev, Options{}, testLogger())

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	rec, err := s.Stop(context.Background())

	require.NotNil(t, rec)
	assert.Equal(t, "partial", string(rec.Data))
	assert.ErrorContains(t, err, "encoder crashed")
}

func TestCloseReleasesActiveRecording(t *testing.T) {
	stream := newFakeStream("x")
	dev := &fakeDevice{next: func() *fakeStream { return stream }}
	s := NewSession(dev, Options{}, testLogger())

	assert.NoError(t, s.Close(context.Background()), "close while idle is a no-op")

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	for _, tr := range stream.tracks {
		assert.Equal(t, int32(1), tr.stops.Load())
	}
}

func TestReplayDevice(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 100)
	dev := &ReplayDevice{Data: data, ChunkSize: 7, Interval: time.Millisecond}
	s := NewSession(dev, Options{QueueSize: 4}, testLogger())

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	rec, err := s.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, data, rec.Data)
	assert.Equal(t, uint32((len(data)+6)/7), rec.Stats.TotalChunks)
}

func TestReplayDeviceTracksReleased(t *testing.T) {
	dev := &ReplayDevice{Data: []byte("abc")}
	stream, err := dev.Open(context.Background())
	require.NoError(t, err)

	s := NewSession(deviceFunc(func(context.Context) (Stream, error) { return stream, nil }), Options{}, testLogger())
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	_, err = s.Stop(context.Background())
	require.NoError(t, err)

	require.Len(t, stream.Tracks(), 2)
	for _, tr := range stream.Tracks() {
		assert.True(t, tr.(*ReplayTrack).Stopped(), "track %s", tr.ID())
	}
}

func TestReplayDeviceEmptySource(t *testing.T) {
	_, err := (&ReplayDevice{}).Open(context.Background())
	assert.Error(t, err)

	_, err = (&ReplayDevice{Path: "/nonexistent/recording.mp4"}).Open(context.Background())
	assert.Error(t, err)
}

func TestFFmpegDeviceArgs(t *testing.T) {
	d := &FFmpegDevice{InputFormat: "avfoundation", VideoDevice: "0", AudioDevice: "1"}
	args := d.args()
	assert.Contains(t, args, "0:1")
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assert.Contains(t, args, "frag_keyframe+empty_moov+default_base_moof")

	d = &FFmpegDevice{InputFormat: "v4l2", VideoDevice: "/dev/video0", AudioDevice: "default"}
	args = d.args()
	assert.Contains(t, args, "/dev/video0")
	assert.Contains(t, args, "alsa")
	assert.Contains(t, args, "default")
}

func TestFFmpegDeviceMissingBinary(t *testing.T) {
	d := &FFmpegDevice{Path: "/nonexistent/ffmpeg", InputFormat: "v4l2", VideoDevice: "/dev/video0", AudioDevice: "default"}
	_, err := d.Open(context.Background())
	assert.Error(t, err)
}

type deviceFunc func(context.Context) (Stream, error)

func (f deviceFunc) Open(ctx context.Context) (Stream, error) { return f(ctx) }
