// Package capture owns the live media device and the recording lifecycle.
//
// A Session moves through Idle, Recording and Stopped. While recording, the
// device's container encoder pushes chunks into a bounded queue; a single
// consumer drains the queue into an Accumulator in arrival order. Stop asks
// the stream to finalize, waits for the consumer, releases every device track
// and returns the raw container bytes.
package capture
