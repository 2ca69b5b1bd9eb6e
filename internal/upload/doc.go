// Package upload sends the video container and the compressed audio of a
// session to the remote service as one multipart request and returns the
// record id the service assigns. Preconditions are checked before any
// network call, so a missing artifact never produces a partial upload.
package upload
