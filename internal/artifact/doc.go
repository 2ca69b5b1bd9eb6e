// Package artifact holds the two binary outputs of a capture session, the
// video container and the compressed audio, and hands out revocable
// ephemeral handles for playback and download.
package artifact
