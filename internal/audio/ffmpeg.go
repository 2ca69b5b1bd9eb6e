package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// StreamInfo describes the first audio stream of a container as reported by ffprobe
type StreamInfo struct {
	Codec      string
	SampleRate int
	Channels   int
}

// FFmpeg decodes containers that the in-process codecs cannot read by running
// the ffprobe and ffmpeg binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

type probeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Decode probes and decodes the first audio stream of the container in path.
// Samples come back interleaved at the stream's native rate and channel count.
func (f *FFmpeg) Decode(ctx context.Context, path string) (StreamInfo, []float32, error) {
	var (
		info    StreamInfo
		samples []float32
	)

	// probe and decode read the same file, so they run side by side
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = f.probe(gctx, path)
		return err
	})
	g.Go(func() error {
		var err error
		samples, err = f.decodeF32(gctx, path)
		return err
	})
	if err := g.Wait(); err != nil {
		return StreamInfo{}, nil, err
	}

	return info, samples, nil
}

// probe returns metadata of the first audio stream
func (f *FFmpeg) probe(ctx context.Context, path string) (StreamInfo, error) {
	cmd := exec.CommandContext(ctx, f.ffprobe(),
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,codec_type,sample_rate,channels",
		"-of", "json",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return StreamInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out probeOutput) (StreamInfo, error) {
	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		rate, err := strconv.Atoi(s.SampleRate)
		if err != nil || rate <= 0 {
			return StreamInfo{}, fmt.Errorf("invalid sample rate %q", s.SampleRate)
		}
		if s.Channels <= 0 {
			return StreamInfo{}, fmt.Errorf("invalid channel count %d", s.Channels)
		}
		return StreamInfo{Codec: s.CodecName, SampleRate: rate, Channels: s.Channels}, nil
	}
	return StreamInfo{}, fmt.Errorf("container has no audio stream")
}

// decodeF32 decodes the first audio stream to interleaved float32 without
// touching rate or channel layout
func (f *FFmpeg) decodeF32(ctx context.Context, path string) ([]float32, error) {
	cmd := exec.CommandContext(ctx, f.ffmpeg(),
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-map", "0:a:0",
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return bytesToFloat32(stdout.Bytes()), nil
}

func (f *FFmpeg) ffmpeg() string {
	if f.FFmpegPath == "" {
		return "ffmpeg"
	}
	return f.FFmpegPath
}

func (f *FFmpeg) ffprobe() string {
	if f.FFprobePath == "" {
		return "ffprobe"
	}
	return f.FFprobePath
}

// bytesToFloat32 converts little-endian f32 bytes; a trailing partial sample is dropped
func bytesToFloat32(raw []byte) []float32 {
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// writeTemp spills a container to disk; ffmpeg cannot seek a pipe, and mp4
// files keep their index at the end.
func writeTemp(data []byte) (string, func(), error) {
	f, err := os.CreateTemp("", "speechcoach-*.media")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() { os.Remove(f.Name()) }

	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}
