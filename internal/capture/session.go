package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

// State is the recording lifecycle tag
type State int

const (
	StateIdle State = iota
	StateRecording
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText makes State render as its name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StartOptions controls Start. Supersede must be set to start again from
// Stopped, which discards the previous recording.
type StartOptions struct {
	Supersede bool
}

// Options configures a Session
type Options struct {
	// QueueSize bounds the chunk queue between the device and the consumer.
	QueueSize int
	// SizeHint preallocates the accumulator.
	SizeHint int
	Preview  Preview
}

// Recording is the finalized output of one Start/Stop cycle
type Recording struct {
	Data     []byte
	Stats    AccumulatorStats
	Duration time.Duration
}

// Session is the capture state machine. All methods are safe for concurrent use.
type Session struct {
	device Device
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	active *recording
	// opening is set while Start waits on the device, outside mu
	opening bool
}

// recording is the in-flight state of one Start/Stop cycle. err is written by
// the producer before the queue closes and read only after done is closed.
type recording struct {
	stream    Stream
	acc       *Accumulator
	done      chan struct{}
	err       error
	startedAt time.Time
}

// NewSession creates an idle capture session on device
func NewSession(device Device, opts Options, logger *slog.Logger) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Preview == nil {
		opts.Preview = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		device: device,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the device and begins buffering chunks. It is valid from Idle,
// and from Stopped only with opts.Supersede. A device failure leaves the
// state unchanged. State stays readable while the device opens; a second
// Start in that window fails.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	switch {
	case s.opening:
		s.mu.Unlock()
		return fmt.Errorf("%w: start while the device is opening", apperr.ErrInvalidStateTransition)
	case s.state == StateRecording:
		s.mu.Unlock()
		return fmt.Errorf("%w: start while recording", apperr.ErrInvalidStateTransition)
	case s.state == StateStopped && !opts.Supersede:
		s.mu.Unlock()
		return fmt.Errorf("%w: start from stopped discards the previous recording and needs supersede", apperr.ErrInvalidStateTransition)
	}
	s.opening = true
	s.mu.Unlock()

	stream, err := s.device.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opening = false
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrDeviceUnavailable, err)
	}

	queue := make(chan []byte, s.opts.QueueSize)
	rec := &recording{
		stream:    stream,
		acc:       NewAccumulator(s.opts.SizeHint),
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	s.active = rec
	s.state = StateRecording

	go s.produce(rec, queue)
	go s.consume(queue, rec.acc, rec.done)

	s.logger.Info("Recording started",
		slog.Int("tracks", len(stream.Tracks())),
		slog.Int("queue_size", s.opts.QueueSize),
		slog.Bool("supersede", opts.Supersede),
	)
	return nil
}

// produce runs the device recorder and closes the queue once it returns
func (s *Session) produce(rec *recording, queue chan<- []byte) {
	rec.err = rec.stream.Record(queue)
	if rec.err != nil {
		s.logger.Warn("Recorder ended with error", slog.String("error", rec.err.Error()))
	}
	close(queue)
}

// consume drains the queue into acc in arrival order
func (s *Session) consume(queue <-chan []byte, acc *Accumulator, done chan<- struct{}) {
	defer close(done)

	preview := s.opts.Preview
	for chunk := range queue {
		acc.Append(chunk)
		if preview == nil {
			continue
		}
		if _, err := preview.Write(chunk); err != nil {
			s.logger.Warn("Preview disabled", slog.String("error", err.Error()))
			preview = nil
		}
	}
}

// Stop finalizes the container, releases every device track and moves to
// Stopped. It is valid only from Recording. If ctx ends before the recorder
// drains, the tracks are released first to force it to return.
//
// A non-nil error alongside a non-nil Recording reports release or recorder
// failures; the state is Stopped either way.
func (s *Session) Stop(ctx context.Context) (*Recording, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: stop while %s", apperr.ErrInvalidStateTransition, state)
	}
	active := s.active
	// other callers see Stopped while this one finalizes
	s.state = StateStopped
	s.active = nil
	s.mu.Unlock()

	stream := active.stream
	stream.Finish()

	var releaseErr error
	released := false
	select {
	case <-active.done:
	case <-ctx.Done():
		s.logger.Warn("Recorder did not finish in time, releasing tracks")
		releaseErr = releaseTracks(stream.Tracks())
		released = true
		<-active.done
	}
	if !released {
		releaseErr = releaseTracks(stream.Tracks())
	}

	recordErr := active.err

	rec := &Recording{
		Data:     active.acc.Bytes(),
		Stats:    active.acc.GetStats(),
		Duration: time.Since(active.startedAt),
	}

	s.logger.Info("Recording stopped",
		slog.Int("bytes", len(rec.Data)),
		slog.Any("chunks", rec.Stats.TotalChunks),
		slog.Duration("duration", rec.Duration),
	)

	var err error
	if releaseErr != nil {
		err = fmt.Errorf("%w: release tracks: %w", apperr.ErrDeviceUnavailable, releaseErr)
	}
	if recordErr != nil {
		err = errors.Join(err, fmt.Errorf("%w: recorder: %w", apperr.ErrDeviceUnavailable, recordErr))
	}
	return rec, err
}

// Close stops an active recording and discards it, so device tracks are
// released on teardown. It is a no-op in any other state.
func (s *Session) Close(ctx context.Context) error {
	if s.State() != StateRecording {
		return nil
	}
	_, err := s.Stop(ctx)
	if errors.Is(err, apperr.ErrInvalidStateTransition) {
		return nil
	}
	return err
}

// releaseTracks stops every track, even after a failure
func releaseTracks(tracks []Track) error {
	var errs []error
	for _, t := range tracks {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("track %s (%s): %w", t.ID(), t.Kind(), err))
		}
	}
	return errors.Join(errs...)
}
