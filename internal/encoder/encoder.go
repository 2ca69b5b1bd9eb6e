package encoder

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/skypro1111/speechcoach/internal/audio"
)

// BlockSize is the number of samples handed to the block encoder per call
const BlockSize = 1152

// DefaultBitrateKbps is the target bitrate of the compressed stream
const DefaultBitrateKbps = 128

// Params configures one encoder instance
type Params struct {
	Channels    int
	SampleRate  int
	BitrateKbps int
}

// BlockEncoder is a stateful compressor fed one block at a time.
// EncodeBlock may return zero bytes while the encoder buffers internally; it
// must not retain block after returning. Flush drains whatever is left.
type BlockEncoder interface {
	EncodeBlock(block []int16) ([]byte, error)
	Flush() ([]byte, error)
}

// Factory builds a fresh BlockEncoder for one encode call
type Factory func(Params) (BlockEncoder, error)

// Stats describes one encode call
type Stats struct {
	Blocks        int           `json:"blocks"`
	Flushes       int           `json:"flushes"`
	PaddedSamples int           `json:"padded_samples"`
	Bytes         int           `json:"bytes"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Encoder runs the block/flush protocol over a PCM buffer
type Encoder struct {
	factory     Factory
	bitrateKbps int
	logger      *slog.Logger
}

// New creates an encoder. A nil factory selects the MP3 block encoder and a
// non-positive bitrate selects DefaultBitrateKbps.
func New(factory Factory, bitrateKbps int, logger *slog.Logger) *Encoder {
	if factory == nil {
		factory = NewMP3
	}
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{factory: factory, bitrateKbps: bitrateKbps, logger: logger}
}

// Encode compresses pcm. The encoder instance is configured with the PCM's
// own sample rate; nothing is resampled.
func (e *Encoder) Encode(ctx context.Context, pcm *audio.PCM) ([]byte, Stats, error) {
	var stats Stats
	if pcm == nil {
		return nil, stats, fmt.Errorf("no PCM buffer to encode")
	}
	if pcm.SampleRate <= 0 {
		return nil, stats, fmt.Errorf("invalid sample rate %d", pcm.SampleRate)
	}

	start := time.Now()
	params := Params{Channels: 1, SampleRate: pcm.SampleRate, BitrateKbps: e.bitrateKbps}
	enc, err := e.factory(params)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to create block encoder: %w", err)
	}

	var out bytes.Buffer
	block := make([]int16, BlockSize)
	samples := pcm.Samples

	for offset := 0; offset < len(samples); offset += BlockSize {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		n := FillBlock(block, samples[offset:])
		stats.PaddedSamples += BlockSize - n

		chunk, err := enc.EncodeBlock(block)
		if err != nil {
			return nil, stats, fmt.Errorf("failed to encode block %d: %w", stats.Blocks, err)
		}
		stats.Blocks++
		out.Write(chunk)
	}

	tail, err := enc.Flush()
	stats.Flushes++
	if err != nil {
		return nil, stats, fmt.Errorf("failed to flush encoder: %w", err)
	}
	out.Write(tail)

	stats.Bytes = out.Len()
	stats.Elapsed = time.Since(start)

	e.logger.Debug("PCM encoded",
		slog.Int("samples", len(samples)),
		slog.Int("sample_rate", pcm.SampleRate),
		slog.Int("bitrate_kbps", e.bitrateKbps),
		slog.Int("blocks", stats.Blocks),
		slog.Int("padded_samples", stats.PaddedSamples),
		slog.Int("bytes", stats.Bytes),
		slog.Duration("elapsed", stats.Elapsed),
	)

	return out.Bytes(), stats, nil
}

// FillBlock converts up to len(block) samples from src into block and pads the
// rest with silence. It returns the number of source samples consumed.
func FillBlock(block []int16, src []float32) int {
	n := min(len(block), len(src))
	for i := 0; i < n; i++ {
		block[i] = ToInt16(src[i])
	}
	clear(block[n:])
	return n
}

// ToInt16 maps a normalized sample to int16 as round(clamp(s, -1, 1) * 32767).
// NaN maps to silence.
func ToInt16(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(math.Round(v * 32767))
}

// BlockCount returns how many blocks a buffer of n samples occupies
func BlockCount(n int) int {
	return (n + BlockSize - 1) / BlockSize
}
