// Package server implements the local HTTP control surface of the capture
// pipeline. It exposes the session operations, serves artifacts behind
// ephemeral handles for playback and download, and provides health, stats
// and Prometheus metrics endpoints.
package server
