package audio

import "time"

// PCM is a mono buffer of normalized samples in [-1, 1] at the sample rate of
// the decoded source. It is never resampled.
type PCM struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (p *PCM) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Samples)
}

// Duration returns the playback length of the buffer.
func (p *PCM) Duration() time.Duration {
	if p == nil || p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(p.Samples)) / float64(p.SampleRate) * float64(time.Second))
}

// DownmixPolicy selects how multi-channel audio becomes mono.
type DownmixPolicy string

const (
	// DownmixAverage averages all channels per frame.
	DownmixAverage DownmixPolicy = "average"
	// DownmixFirst keeps channel 0 and drops the rest.
	DownmixFirst DownmixPolicy = "first"
)

// Valid reports whether p is a known policy.
func (p DownmixPolicy) Valid() bool {
	return p == DownmixAverage || p == DownmixFirst
}

// Downmix folds planar channel data into one channel. Channels shorter than
// channel 0 contribute silence for their missing frames.
func Downmix(channels [][]float32, policy DownmixPolicy) []float32 {
	if len(channels) == 0 {
		return nil
	}
	if len(channels) == 1 || policy == DownmixFirst {
		out := make([]float32, len(channels[0]))
		copy(out, channels[0])
		return out
	}

	frames := len(channels[0])
	out := make([]float32, frames)
	scale := 1 / float32(len(channels))
	for _, ch := range channels {
		n := min(len(ch), frames)
		for i := 0; i < n; i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}

// deinterleave splits interleaved frames into planar channels. A trailing
// partial frame is dropped.
func deinterleave(samples []float32, channels int) [][]float32 {
	if channels <= 1 {
		return [][]float32{samples}
	}
	frames := len(samples) / channels
	planar := make([][]float32, channels)
	for c := range planar {
		planar[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			planar[c][i] = samples[i*channels+c]
		}
	}
	return planar
}
