// Package audio turns a recorded container into PCM samples.
// It holds the PCM buffer type, an in-process WAV codec, channel downmixing and
// the AudioExtractor, which decodes WAV directly and hands every other container
// to ffprobe/ffmpeg at the source's native sample rate.
package audio
