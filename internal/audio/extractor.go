package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

// ExtractorConfig configures the AudioExtractor
type ExtractorConfig struct {
	FFmpegPath  string
	FFprobePath string
	Downmix     DownmixPolicy
}

// Extractor decodes the audio track of a raw container into mono PCM at the
// container's native sample rate.
type Extractor struct {
	ffmpeg  *FFmpeg
	downmix DownmixPolicy
	logger  *slog.Logger
}

// NewExtractor creates an extractor. An unset downmix policy averages channels.
func NewExtractor(cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Downmix.Valid() {
		cfg.Downmix = DownmixAverage
	}
	return &Extractor{
		ffmpeg:  &FFmpeg{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath},
		downmix: cfg.Downmix,
		logger:  logger,
	}
}

// Extract decodes container into a PCM buffer. The input is only read.
// Every failure wraps apperr.ErrDecodeError.
func (e *Extractor) Extract(ctx context.Context, container []byte) (*PCM, error) {
	if len(container) == 0 {
		return nil, fmt.Errorf("%w: container is empty", apperr.ErrDecodeError)
	}

	start := time.Now()
	var (
		planar     [][]float32
		sampleRate int
		source     string
	)

	if IsWAV(container) {
		info, channels, err := DecodeWAV(container)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrDecodeError, err)
		}
		planar, sampleRate, source = channels, info.SampleRate, "wav"
	} else {
		path, cleanup, err := writeTemp(container)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrDecodeError, err)
		}
		defer cleanup()

		info, samples, err := e.ffmpeg.Decode(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrDecodeError, err)
		}
		planar, sampleRate, source = deinterleave(samples, info.Channels), info.SampleRate, info.Codec
	}

	if len(planar) == 0 || len(planar[0]) == 0 {
		return nil, fmt.Errorf("%w: no audio samples in container", apperr.ErrDecodeError)
	}

	pcm := &PCM{
		Samples:    Downmix(planar, e.downmix),
		SampleRate: sampleRate,
	}

	e.logger.Debug("Audio extracted",
		slog.String("source", source),
		slog.Int("channels", len(planar)),
		slog.String("downmix", string(e.downmix)),
		slog.Int("samples", pcm.Len()),
		slog.Int("sample_rate", pcm.SampleRate),
		slog.Duration("elapsed", time.Since(start)),
	)

	return pcm, nil
}
