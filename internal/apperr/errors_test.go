package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "internal"},
		{"wrapped state", fmt.Errorf("stop: %w", ErrInvalidStateTransition), "invalid_state_transition"},
		{"wrapped decode", fmt.Errorf("extract: %w", ErrDecodeError), "decode_error"},
		{"upload and auth", fmt.Errorf("%w: %w", ErrUploadFailed, ErrUnauthenticated), "unauthenticated"},
		{"malformed beats fetch", fmt.Errorf("%w: %w", ErrFetchFailed, ErrMalformedReport), "malformed_report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrInvalidStateTransition))
	assert.Equal(t, http.StatusPreconditionFailed, HTTPStatus(fmt.Errorf("upload: %w", ErrPreconditionFailed)))
	assert.Equal(t, http.StatusGone, HTTPStatus(ErrHandleRevoked))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
