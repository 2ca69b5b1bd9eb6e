// Package encoder compresses mono PCM into an MP3 byte stream.
//
// The pipeline is codec-agnostic: PCM is cut into fixed 1152-sample blocks,
// each sample is clamped and rounded to int16, blocks are fed in order to a
// BlockEncoder and the encoder is flushed exactly once at the end. The MP3
// block encoder plugs the shine fixed-point encoder into that protocol.
package encoder
