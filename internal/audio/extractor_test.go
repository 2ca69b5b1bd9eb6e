package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExtractWAVKeepsNativeRate(t *testing.T) {
	container, err := EncodeWAV(make([]int16, 2*44100), 44100, 1)
	require.NoError(t, err)
	snapshot := bytes.Clone(container)

	e := NewExtractor(ExtractorConfig{}, testLogger())
	pcm, err := e.Extract(context.Background(), container)
	require.NoError(t, err)

	assert.Equal(t, 44100, pcm.SampleRate)
	assert.Equal(t, 2*44100, pcm.Len())
	assert.Equal(t, snapshot, container, "extract must not mutate its input")
}

func TestExtractDownmixesStereo(t *testing.T) {
	container, err := EncodeWAV([]int16{16384, 0, -16384, -16384}, 48000, 2)
	require.NoError(t, err)

	t.Run("average by default", func(t *testing.T) {
		pcm, err := NewExtractor(ExtractorConfig{}, testLogger()).Extract(context.Background(), container)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{0.25, -0.5}, pcm.Samples, 1e-6)
	})

	t.Run("first channel", func(t *testing.T) {
		pcm, err := NewExtractor(ExtractorConfig{Downmix: DownmixFirst}, testLogger()).Extract(context.Background(), container)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float32{0.5, -0.5}, pcm.Samples, 1e-6)
	})
}

func TestExtractFailures(t *testing.T) {
	noSamples, err := EncodeWAV(nil, 44100, 1)
	require.NoError(t, err)

	tests := []struct {
		name      string
		container []byte
	}{
		{"empty", nil},
		{"wav without samples", noSamples},
		{"corrupt wav", []byte("RIFF\x04\x00\x00\x00WAVEjunk")},
		// goes through ffmpeg; fails whether or not the binary is installed
		{"garbage", []byte("definitely not a media container")},
	}

	e := NewExtractor(ExtractorConfig{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	}, testLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm, err := e.Extract(context.Background(), tt.container)
			assert.Nil(t, pcm)
			assert.ErrorIs(t, err, apperr.ErrDecodeError)
		})
	}
}

func TestParseProbe(t *testing.T) {
	var out probeOutput
	require.NoError(t, json.Unmarshal([]byte(`{"streams":[
		{"codec_name":"aac","codec_type":"audio","sample_rate":"48000","channels":2}
	]}`), &out))

	info, err := parseProbe(out)
	require.NoError(t, err)
	assert.Equal(t, StreamInfo{Codec: "aac", SampleRate: 48000, Channels: 2}, info)

	_, err = parseProbe(probeOutput{})
	assert.Error(t, err, "no audio stream")

	out.Streams[0].SampleRate = "N/A"
	_, err = parseProbe(out)
	assert.Error(t, err)
}

func TestBytesToFloat32(t *testing.T) {
	raw := []byte{0, 0, 0x80, 0x3f, 0, 0, 0x80, 0xbf, 0xff}
	assert.Equal(t, []float32{1, -1}, bytesToFloat32(raw))
}
