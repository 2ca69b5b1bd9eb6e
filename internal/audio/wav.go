package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// WAV format tags
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// WAVHeader represents the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVInfo describes a decoded WAV stream
type WAVInfo struct {
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
	AudioFormat   uint16  `json:"audio_format"`
	NumFrames     int     `json:"num_frames"`
	Duration      float64 `json:"duration_seconds"`
}

// IsWAV reports whether data starts with a RIFF/WAVE signature
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// EncodeWAV encodes interleaved PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of %d channels", len(samples), channels)
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if len(samples) > 0 {
		if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
			return nil, fmt.Errorf("failed to write audio data: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes a WAV stream into planar channels of normalized samples.
// It walks the RIFF chunk list, so files with LIST/fact chunks before the
// data chunk decode as well. Supported encodings: 16/24/32-bit integer PCM and
// 32-bit IEEE float, plain or WAVE_FORMAT_EXTENSIBLE.
func DecodeWAV(data []byte) (*WAVInfo, [][]float32, error) {
	if !IsWAV(data) {
		return nil, nil, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	var (
		info     WAVInfo
		haveFmt  bool
		pcmBytes []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if size < 0 || end > len(data) {
			// a truncated data chunk is common for streams finalized early
			if id == "data" {
				end = len(data)
			} else {
				return nil, nil, fmt.Errorf("invalid WAV file: chunk %q overruns file", id)
			}
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return nil, nil, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", end-body)
			}
			f := data[body:end]
			info.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			if info.AudioFormat == wavFormatExtensible && len(f) >= 26 {
				info.AudioFormat = binary.LittleEndian.Uint16(f[24:26])
			}
			haveFmt = true
		case "data":
			pcmBytes = data[body:end]
		}

		// chunks are word aligned
		pos = end + size%2
	}

	if !haveFmt {
		return nil, nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if pcmBytes == nil {
		return nil, nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if info.Channels <= 0 {
		return nil, nil, fmt.Errorf("invalid WAV file: %d channels", info.Channels)
	}
	if info.SampleRate <= 0 {
		return nil, nil, fmt.Errorf("invalid WAV file: sample rate %d", info.SampleRate)
	}

	read, err := sampleReader(info.AudioFormat, info.BitsPerSample)
	if err != nil {
		return nil, nil, err
	}

	width := info.BitsPerSample / 8
	frameSize := width * info.Channels
	info.NumFrames = len(pcmBytes) / frameSize
	info.Duration = float64(info.NumFrames) / float64(info.SampleRate)

	planar := make([][]float32, info.Channels)
	for c := range planar {
		planar[c] = make([]float32, info.NumFrames)
	}
	for i := 0; i < info.NumFrames; i++ {
		frame := pcmBytes[i*frameSize:]
		for c := 0; c < info.Channels; c++ {
			planar[c][i] = read(frame[c*width:])
		}
	}

	return &info, planar, nil
}

// sampleReader returns a decoder for one little-endian sample of the given encoding
func sampleReader(format uint16, bits int) (func([]byte) float32, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return func(b []byte) float32 {
			return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
		}, nil
	case format == wavFormatPCM && bits == 24:
		return func(b []byte) float32 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			return float32(v) / 8388608
		}, nil
	case format == wavFormatPCM && bits == 32:
		return func(b []byte) float32 {
			return float32(float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648)
		}, nil
	case format == wavFormatFloat && bits == 32:
		return func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		}, nil
	}
	return nil, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", format, bits)
}
