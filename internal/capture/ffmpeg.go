package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultStartTimeout bounds how long Open waits for the first container bytes
const DefaultStartTimeout = 10 * time.Second

// FFmpegDevice captures camera and microphone through an ffmpeg process that
// muxes fragmented MP4 to stdout.
type FFmpegDevice struct {
	Path string
	// InputFormat is the ffmpeg demuxer for the devices, e.g. avfoundation,
	// dshow or v4l2. avfoundation and dshow take both devices in one input.
	InputFormat string
	// AudioFormat is the demuxer for the audio device when it is a separate
	// input, e.g. alsa or pulse.
	AudioFormat string
	VideoDevice string
	AudioDevice string
	ChunkSize   int
	// StartTimeout bounds the wait for ffmpeg to open both devices and emit
	// the container header. Zero means DefaultStartTimeout.
	StartTimeout time.Duration
	Logger       *slog.Logger
}

// Open starts the capture process and returns once it has produced its first
// bytes, which ffmpeg only does after both devices opened. An early exit, a
// timeout or ctx ending first kills the process and fails Open. The running
// process is not tied to ctx; it lives until Finish or until its tracks are
// stopped.
func (d *FFmpegDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := exec.LookPath(d.Path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	if d.VideoDevice == "" || d.AudioDevice == "" {
		return nil, errors.New("no capture device configured")
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(path, d.args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	logger.Debug("Capture process started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("input_format", d.InputFormat),
		slog.String("video_device", d.VideoDevice),
		slog.String("audio_device", d.AudioDevice),
	)

	proc := &ffmpegProcess{cmd: cmd, stdin: stdin, stderr: &stderr, logger: logger}
	s := &ffmpegStream{
		proc:      proc,
		stdout:    stdout,
		chunkSize: d.ChunkSize,
	}
	if s.chunkSize <= 0 {
		s.chunkSize = 32 * 1024
	}

	if err := s.awaitFirstChunk(ctx, d.startTimeout()); err != nil {
		return nil, err
	}

	s.tracks = []Track{
		&ffmpegTrack{id: "video:" + d.VideoDevice, kind: TrackVideo, proc: proc},
		&ffmpegTrack{id: "audio:" + d.AudioDevice, kind: TrackAudio, proc: proc},
	}
	return s, nil
}

func (d *FFmpegDevice) startTimeout() time.Duration {
	if d.StartTimeout > 0 {
		return d.StartTimeout
	}
	return DefaultStartTimeout
}

func (d *FFmpegDevice) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch d.InputFormat {
	case "avfoundation":
		args = append(args, "-f", d.InputFormat, "-i", d.VideoDevice+":"+d.AudioDevice)
	case "dshow":
		args = append(args, "-f", d.InputFormat, "-i", "video="+d.VideoDevice+":audio="+d.AudioDevice)
	default:
		args = append(args, "-f", d.InputFormat, "-i", d.VideoDevice)
		audioFormat := d.AudioFormat
		if audioFormat == "" {
			audioFormat = "alsa"
		}
		args = append(args, "-f", audioFormat, "-i", d.AudioDevice)
	}

	return append(args,
		"-c:v", "libx264", "-preset", "ultrafast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-f", "mp4", "-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"pipe:1",
	)
}

// ffmpegProcess is shared by both tracks of one capture
type ffmpegProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	logger *slog.Logger

	finishOnce sync.Once
	waitOnce   sync.Once
	waitErr    error
}

// finish asks ffmpeg to quit gracefully so it writes the last fragment
func (p *ffmpegProcess) finish() {
	p.finishOnce.Do(func() {
		if _, err := io.WriteString(p.stdin, "q"); err != nil {
			p.logger.Debug("Failed to send quit to ffmpeg", slog.String("error", err.Error()))
		}
		p.stdin.Close()
	})
}

func (p *ffmpegProcess) wait() error {
	p.waitOnce.Do(func() {
		if err := p.cmd.Wait(); err != nil {
			p.waitErr = fmt.Errorf("ffmpeg exited: %w: %s", err, bytes.TrimSpace(p.stderr.Bytes()))
		}
	})
	return p.waitErr
}

// kill ends the process if it is still running
func (p *ffmpegProcess) kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

type ffmpegStream struct {
	proc      *ffmpegProcess
	stdout    io.Reader
	chunkSize int
	tracks    []Track

	// result of the read done by Open
	first    []byte
	firstErr error
}

type readResult struct {
	data []byte
	err  error
}

// awaitFirstChunk reads until ffmpeg emits output or goes away
func (s *ffmpegStream) awaitFirstChunk(ctx context.Context, timeout time.Duration) error {
	result := make(chan readResult, 1)
	go func() {
		buf := make([]byte, s.chunkSize)
		n, err := s.stdout.Read(buf)
		result <- readResult{data: buf[:n], err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-result:
		if len(r.data) > 0 {
			s.first, s.firstErr = r.data, r.err
			return nil
		}
		s.proc.kill()
		if err := s.proc.wait(); err != nil {
			return err
		}
		return errors.New("ffmpeg exited without output")
	case <-timer.C:
		s.abort(result)
		return fmt.Errorf("no capture output within %s", timeout)
	case <-ctx.Done():
		s.abort(result)
		return ctx.Err()
	}
}

// abort kills the process and reaps it once the pending read has returned
func (s *ffmpegStream) abort(result <-chan readResult) {
	s.proc.kill()
	<-result
	if err := s.proc.wait(); err != nil {
		s.proc.logger.Debug("Capture process aborted", slog.String("error", err.Error()))
	}
}

func (s *ffmpegStream) Tracks() []Track { return s.tracks }

func (s *ffmpegStream) Finish() { s.proc.finish() }

func (s *ffmpegStream) Record(sink chan<- []byte) error {
	data, err := s.first, s.firstErr
	s.first, s.firstErr = nil, nil

	buf := make([]byte, s.chunkSize)
	for {
		if len(data) > 0 {
			sink <- data
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// the pipe closes under us when a track is stopped first
			s.proc.wait()
			return fmt.Errorf("failed to read capture output: %w", err)
		}

		n, rerr := s.stdout.Read(buf)
		data, err = bytes.Clone(buf[:n]), rerr
	}
	return s.proc.wait()
}

type ffmpegTrack struct {
	id   string
	kind TrackKind
	proc *ffmpegProcess
	once sync.Once
	err  error
}

func (t *ffmpegTrack) ID() string      { return t.id }
func (t *ffmpegTrack) Kind() TrackKind { return t.kind }

func (t *ffmpegTrack) Stop() error {
	t.once.Do(func() {
		t.err = t.proc.kill()
	})
	return t.err
}
