// Package remote is the HTTP client shared by the upload and report
// endpoints of the speech-analysis service. It carries the caller's
// credentials explicitly on every request, maps transport and status
// failures onto the apperr taxonomy, and never retries.
package remote
