package encoder

import (
	"bytes"
	"fmt"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// MediaType is the media type of the compressed artifact
const MediaType = "audio/mp3"

// shine encodes at a fixed 128 kbps
const shineBitrateKbps = 128

// frameHeadroom keeps shine's sample pointer inside scratch once it has
// walked past the last sample of a frame.
const frameHeadroom = mp3.GRANULE_SIZE

// mp3Block adapts the shine encoder to the BlockEncoder protocol. shine reads
// one frame per Write through a raw pointer, so samples are staged in scratch,
// which the adapter owns for the encoder's lifetime, and handed over exactly
// one frame at a time.
type mp3Block struct {
	enc *mp3.Encoder
	// frame is the number of interleaved int16 values in one MPEG frame
	frame   int
	scratch []int16
	fill    int
	out     bytes.Buffer
}

// FrameSamples returns the samples per channel in one MPEG layer III frame
// at rate, or 0 when the shine encoder cannot produce 128 kbps at that rate.
func FrameSamples(rate int) int {
	switch mp3.CheckConfig(rate, shineBitrateKbps) {
	case mp3.MPEG_I:
		return 2 * mp3.GRANULE_SIZE
	case mp3.MPEG_II:
		return mp3.GRANULE_SIZE
	default:
		return 0
	}
}

// NewMP3 is the Factory for MP3 output. It rejects sample rates the encoder
// cannot carry at 128 kbps instead of resampling.
func NewMP3(p Params) (BlockEncoder, error) {
	if p.Channels != 1 && p.Channels != 2 {
		return nil, fmt.Errorf("mp3: unsupported channel count %d", p.Channels)
	}
	if p.BitrateKbps != shineBitrateKbps {
		return nil, fmt.Errorf("mp3: unsupported bitrate %d kbps, encoder runs at %d", p.BitrateKbps, shineBitrateKbps)
	}
	perChannel := FrameSamples(p.SampleRate)
	if perChannel == 0 {
		return nil, fmt.Errorf("mp3: unsupported sample rate %d Hz at %d kbps", p.SampleRate, shineBitrateKbps)
	}

	frame := perChannel * p.Channels
	return &mp3Block{
		enc:     mp3.NewEncoder(p.SampleRate, p.Channels),
		frame:   frame,
		scratch: make([]int16, frame+frameHeadroom),
	}, nil
}

func (m *mp3Block) EncodeBlock(block []int16) ([]byte, error) {
	for len(block) > 0 {
		n := copy(m.scratch[m.fill:m.frame], block)
		m.fill += n
		block = block[n:]

		if m.fill == m.frame {
			if err := m.encodeFrame(); err != nil {
				return nil, err
			}
		}
	}
	return m.drain(), nil
}

// Flush encodes a partially staged frame padded with silence. Mono input
// always fills whole frames, so only interleaved stereo can leave one.
func (m *mp3Block) Flush() ([]byte, error) {
	if m.fill > 0 {
		clear(m.scratch[m.fill:m.frame])
		m.fill = m.frame
		if err := m.encodeFrame(); err != nil {
			return nil, err
		}
	}
	return m.drain(), nil
}

func (m *mp3Block) encodeFrame() error {
	m.fill = 0
	if err := m.enc.Write(&m.out, m.scratch[:m.frame]); err != nil {
		return fmt.Errorf("mp3: %w", err)
	}
	return nil
}

func (m *mp3Block) drain() []byte {
	if m.out.Len() == 0 {
		return nil
	}
	out := bytes.Clone(m.out.Bytes())
	m.out.Reset()
	return out
}

// HasFrameSync reports whether b starts with an MPEG audio frame sync word
// (11 set bits).
func HasFrameSync(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}
