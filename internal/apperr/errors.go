package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrDeviceUnavailable means capture permission was denied or no device exists.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrInvalidStateTransition means an operation was called out of sequence.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrPreconditionFailed means a required artifact or field is missing.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrDecodeError means the container holds no decodable audio.
	ErrDecodeError = errors.New("decode error")
	// ErrUploadFailed means the upload endpoint rejected the request or was unreachable.
	ErrUploadFailed = errors.New("upload failed")
	// ErrFetchFailed means the report endpoint rejected the request or was unreachable.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrMalformedReport means the report body did not match the report schema.
	ErrMalformedReport = errors.New("malformed report")
	// ErrNotReady means the requested artifact has not been produced yet.
	ErrNotReady = errors.New("artifact not ready")
	// ErrHandleRevoked means an ephemeral handle was revoked or never existed.
	ErrHandleRevoked = errors.New("handle revoked")
	// ErrSuperseded means a newer recording started while the stage was running.
	ErrSuperseded = errors.New("superseded by a newer recording")
	// ErrUnauthenticated means the auth token is missing or was rejected.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// ordered from most to least specific; ErrUnauthenticated wins over the
// transport failure it is usually joined with.
var kinds = []struct {
	err    error
	name   string
	status int
}{
	{ErrUnauthenticated, "unauthenticated", http.StatusUnauthorized},
	{ErrMalformedReport, "malformed_report", http.StatusBadGateway},
	{ErrDeviceUnavailable, "device_unavailable", http.StatusServiceUnavailable},
	{ErrInvalidStateTransition, "invalid_state_transition", http.StatusConflict},
	{ErrPreconditionFailed, "precondition_failed", http.StatusPreconditionFailed},
	{ErrDecodeError, "decode_error", http.StatusUnprocessableEntity},
	{ErrUploadFailed, "upload_failed", http.StatusBadGateway},
	{ErrFetchFailed, "fetch_failed", http.StatusBadGateway},
	{ErrNotReady, "not_ready", http.StatusNotFound},
	{ErrHandleRevoked, "handle_revoked", http.StatusGone},
	{ErrSuperseded, "superseded", http.StatusConflict},
}

// Kind returns a stable short name for err, or "internal" when err carries
// none of the package sentinels.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// HTTPStatus maps err to the status code the control surface answers with.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}
