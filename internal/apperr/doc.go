// Package apperr defines the error taxonomy shared by the capture, transcode,
// upload and report stages. Stages wrap these sentinels with context and callers
// inspect them with errors.Is.
package apperr
