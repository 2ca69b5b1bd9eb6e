package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/speechcoach/internal/apperr"
	"github.com/skypro1111/speechcoach/internal/artifact"
	"github.com/skypro1111/speechcoach/internal/audio"
	"github.com/skypro1111/speechcoach/internal/capture"
	"github.com/skypro1111/speechcoach/internal/encoder"
	"github.com/skypro1111/speechcoach/internal/metrics"
	"github.com/skypro1111/speechcoach/internal/remote"
	"github.com/skypro1111/speechcoach/internal/report"
)

// Operation names used in logs, notifications and metrics
const (
	OpStart       = "start"
	OpStop        = "stop"
	OpConvert     = "convert"
	OpUpload      = "upload"
	OpFetchReport = "fetch_report"
)

// Extractor decodes the audio track of a raw container
type Extractor interface {
	Extract(ctx context.Context, container []byte) (*audio.PCM, error)
}

// Encoder compresses PCM audio
type Encoder interface {
	Encode(ctx context.Context, pcm *audio.PCM) ([]byte, encoder.Stats, error)
}

// Uploader sends both artifacts and returns the record id
type Uploader interface {
	Upload(ctx context.Context, video, audio *artifact.Artifact, creds remote.Credentials, title string) (int64, error)
}

// ReportFetcher retrieves the report for a record id
type ReportFetcher interface {
	Fetch(ctx context.Context, id int64, creds remote.Credentials) (*report.Report, error)
}

// Deps are the collaborators of a Session. Store, Notifier, Metrics and
// Logger are optional.
type Deps struct {
	Capture   *capture.Session
	Extractor Extractor
	Encoder   Encoder
	Uploader  Uploader
	Reports   ReportFetcher
	Store     *artifact.Store
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Options carries the per-session settings
type Options struct {
	Credentials   remote.Credentials
	DefaultTitle  string
	ContainerMIME string
}

// Session is the single owned slot holding one artifact set at a time
type Session struct {
	id   string
	deps Deps
	opts Options

	logger *slog.Logger

	// lifecycle orders Start, Stop and Close against each other without
	// blocking readers of mu while a device opens
	lifecycle sync.Mutex

	mu          sync.Mutex
	generation  uint64
	encodeStats *encoder.Stats
	recordID    int64
	report      *report.Report
	createdAt   time.Time
}

// New creates a session. Without a token the capture flow must not proceed,
// so New fails with apperr.ErrUnauthenticated.
func New(deps Deps, opts Options) (*Session, error) {
	if !opts.Credentials.Authenticated() {
		return nil, fmt.Errorf("%w: no token, sign in first", apperr.ErrUnauthenticated)
	}
	if deps.Capture == nil || deps.Extractor == nil || deps.Encoder == nil || deps.Uploader == nil || deps.Reports == nil {
		return nil, errors.New("session needs capture, extractor, encoder, uploader and report fetcher")
	}
	if deps.Store == nil {
		deps.Store = artifact.NewStore()
	}
	if deps.Notifier == nil {
		deps.Notifier = Tee()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.ContainerMIME == "" {
		opts.ContainerMIME = artifact.VideoContainer.MediaType()
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		deps:      deps,
		opts:      opts,
		logger:    deps.Logger.With(slog.String("session_id", id)),
		createdAt: time.Now(),
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Store exposes the artifact store for read-only consumers
func (s *Session) Store() *artifact.Store { return s.deps.Store }

// Start begins a new recording. From Stopped it needs supersede, and then
// bumps the generation, drops both artifacts, revokes their handles and
// forgets the record id and report. In-flight stages of the old generation
// keep running but cannot commit.
func (s *Session) Start(ctx context.Context, supersede bool) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	prev := s.deps.Capture.State()
	if err := s.deps.Capture.Start(ctx, capture.StartOptions{Supersede: supersede}); err != nil {
		return s.fail(OpStart, s.currentGeneration(), err)
	}

	s.mu.Lock()
	s.generation++
	gen := s.generation
	revoked := s.deps.Store.Clear()
	s.encodeStats = nil
	s.recordID = 0
	s.report = nil
	s.mu.Unlock()

	superseded := prev == capture.StateStopped
	s.deps.Metrics.RecordRecordingStarted(superseded)
	s.deps.Metrics.RecordHandlesRevoked(revoked)

	s.logger.Info("Session recording",
		slog.Uint64("generation", gen),
		slog.Bool("superseded", superseded),
		slog.Int("handles_revoked", revoked),
	)
	return nil
}

// Stop finalizes the recording and stores the raw container
func (s *Session) Stop(ctx context.Context) (*artifact.Artifact, error) {
	s.lifecycle.Lock()
	gen := s.currentGeneration()
	rec, err := s.deps.Capture.Stop(ctx)
	s.lifecycle.Unlock()

	if rec == nil {
		return nil, s.fail(OpStop, gen, err)
	}
	if err != nil {
		// tracks or recorder misbehaved but the container is usable
		s.fail(OpStop, gen, err)
	}

	s.deps.Metrics.RecordRecordingStopped(rec.Duration.Seconds(), len(rec.Data))

	if len(rec.Data) == 0 {
		return nil, s.fail(OpStop, gen, fmt.Errorf("%w: recording produced no data", apperr.ErrDeviceUnavailable))
	}

	video := artifact.New(artifact.VideoContainer, s.opts.ContainerMIME, rec.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkGenerationLocked(OpStop, gen); err != nil {
		return nil, s.fail(OpStop, gen, err)
	}
	s.deps.Store.Put(video)

	s.logger.Info("Raw container stored",
		slog.Uint64("generation", gen),
		slog.Int("bytes", video.Size()),
		slog.Any("chunks", rec.Stats.TotalChunks),
	)
	return video, nil
}

// Convert extracts the audio track of the raw container and compresses it
func (s *Session) Convert(ctx context.Context) (*artifact.Artifact, error) {
	s.mu.Lock()
	gen := s.generation
	video, err := s.deps.Store.Get(artifact.VideoContainer)
	s.mu.Unlock()
	if err != nil {
		return nil, s.fail(OpConvert, gen, fmt.Errorf("%w: no video/audio recorded yet", apperr.ErrPreconditionFailed))
	}

	start := time.Now()
	pcm, err := s.deps.Extractor.Extract(ctx, video.Bytes())
	if err != nil {
		return nil, s.fail(OpConvert, gen, err)
	}
	s.deps.Metrics.RecordExtract(time.Since(start).Seconds())

	data, stats, err := s.deps.Encoder.Encode(ctx, pcm)
	if err != nil {
		return nil, s.fail(OpConvert, gen, err)
	}
	s.deps.Metrics.RecordEncode(stats.Elapsed.Seconds(), stats.Blocks, stats.Bytes)

	compressed := artifact.New(artifact.CompressedAudio, "", data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkGenerationLocked(OpConvert, gen); err != nil {
		return nil, s.fail(OpConvert, gen, err)
	}
	s.deps.Store.Put(compressed)
	s.encodeStats = &stats

	s.logger.Info("Audio converted",
		slog.Uint64("generation", gen),
		slog.Int("samples", pcm.Len()),
		slog.Int("sample_rate", pcm.SampleRate),
		slog.Int("blocks", stats.Blocks),
		slog.Int("bytes", compressed.Size()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return compressed, nil
}

// Upload sends both artifacts. Once the service returns a new record id the
// report is fetched right away; a failed fetch is notified but does not fail
// the upload.
func (s *Session) Upload(ctx context.Context, title string) (int64, error) {
	s.mu.Lock()
	gen := s.generation
	// missing artifacts stay nil and fail the uploader's precondition check
	video, _ := s.deps.Store.Get(artifact.VideoContainer)
	compressed, _ := s.deps.Store.Get(artifact.CompressedAudio)
	s.mu.Unlock()

	if title == "" {
		title = s.opts.DefaultTitle
	}

	start := time.Now()
	id, err := s.deps.Uploader.Upload(ctx, video, compressed, s.opts.Credentials, title)
	if err != nil {
		if !errors.Is(err, apperr.ErrPreconditionFailed) {
			s.deps.Metrics.RecordUpload(false, time.Since(start).Seconds())
		}
		return 0, s.fail(OpUpload, gen, err)
	}
	s.deps.Metrics.RecordUpload(true, time.Since(start).Seconds())

	s.mu.Lock()
	if err := s.checkGenerationLocked(OpUpload, gen); err != nil {
		s.mu.Unlock()
		return 0, s.fail(OpUpload, gen, err)
	}
	changed := s.recordID != id
	s.recordID = id
	if changed {
		s.report = nil
	}
	s.mu.Unlock()

	s.logger.Info("Recording uploaded",
		slog.Uint64("generation", gen),
		slog.Int64("record_id", id),
	)

	if changed && id != 0 {
		s.fetchReport(ctx, gen, id)
	}
	return id, nil
}

// FetchReport retries the report fetch for the current record id
func (s *Session) FetchReport(ctx context.Context) (*report.Report, error) {
	s.mu.Lock()
	gen, id := s.generation, s.recordID
	s.mu.Unlock()

	if id == 0 {
		return nil, s.fail(OpFetchReport, gen, fmt.Errorf("%w: nothing uploaded yet", apperr.ErrPreconditionFailed))
	}
	return s.fetchReport(ctx, gen, id)
}

func (s *Session) fetchReport(ctx context.Context, gen uint64, id int64) (*report.Report, error) {
	rep, err := s.deps.Reports.Fetch(ctx, id, s.opts.Credentials)
	s.deps.Metrics.RecordReportFetch(err == nil)
	if err != nil {
		return nil, s.fail(OpFetchReport, gen, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkGenerationLocked(OpFetchReport, gen); err != nil {
		return nil, s.fail(OpFetchReport, gen, err)
	}
	if s.recordID != id {
		return nil, s.fail(OpFetchReport, gen, fmt.Errorf("%w: record %d replaced by %d", apperr.ErrSuperseded, id, s.recordID))
	}
	s.report = rep

	s.logger.Info("Report ready",
		slog.Uint64("generation", gen),
		slog.Int64("record_id", id),
	)
	return rep, nil
}

// Handle derives an ephemeral handle for the current artifact of kind
func (s *Session) Handle(kind artifact.Kind, purpose artifact.Purpose) (artifact.Handle, error) {
	h, err := s.deps.Store.Handle(kind, purpose)
	if err != nil {
		return artifact.Handle{}, err
	}
	s.deps.Metrics.RecordHandleIssued(kind.String(), string(purpose))
	return h, nil
}

// Resolve returns the artifact behind an ephemeral handle
func (s *Session) Resolve(token string) (*artifact.Artifact, artifact.Handle, error) {
	return s.deps.Store.Resolve(token)
}

// Close stops an active recording and drops every artifact. Work still in
// flight belongs to a retired generation and cannot commit afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	err := s.deps.Capture.Close(ctx)

	s.mu.Lock()
	s.generation++
	revoked := s.deps.Store.Clear()
	s.encodeStats = nil
	s.recordID = 0
	s.report = nil
	s.mu.Unlock()

	s.logger.Info("Session closed", slog.Int("handles_revoked", revoked))
	return err
}

func (s *Session) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// checkGenerationLocked rejects commits from a superseded generation
func (s *Session) checkGenerationLocked(op string, gen uint64) error {
	if gen == s.generation {
		return nil
	}
	s.deps.Metrics.RecordStaleResult(op)
	return fmt.Errorf("%w: %s result of generation %d discarded, current is %d",
		apperr.ErrSuperseded, op, gen, s.generation)
}

// fail logs, counts and notifies err, then returns it unchanged
func (s *Session) fail(op string, gen uint64, err error) error {
	kind := apperr.Kind(err)

	s.logger.Warn("Session operation failed",
		slog.String("op", op),
		slog.Uint64("generation", gen),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
	s.deps.Metrics.RecordOperationError(op, kind)
	s.deps.Notifier.Notify(Notification{
		SessionID:  s.id,
		Generation: gen,
		Op:         op,
		Kind:       kind,
		Message:    err.Error(),
		At:         time.Now(),
	})
	return err
}
