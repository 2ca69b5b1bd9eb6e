// Package report retrieves the speech-analysis report for an uploaded
// recording and validates it against a fixed schema at the boundary.
package report
