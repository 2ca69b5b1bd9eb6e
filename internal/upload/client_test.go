package upload

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/speechcoach/internal/apperr"
	"github.com/skypro1111/speechcoach/internal/artifact"
	"github.com/skypro1111/speechcoach/internal/remote"
)

var creds = remote.Credentials{Email: "ann@example.com", Token: "tok"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, calls *atomic.Int32, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	rc, err := remote.NewClient(remote.Config{BaseURL: srv.URL}, testLogger())
	require.NoError(t, err)
	return NewClient(rc, testLogger())
}

func artifacts() (*artifact.Artifact, *artifact.Artifact) {
	return artifact.New(artifact.VideoContainer, "", []byte("mp4-bytes")),
		artifact.New(artifact.CompressedAudio, "", []byte{0xFF, 0xFB, 0x90})
}

func TestUploadSendsMultipartForm(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, Path, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ann@example.com", r.FormValue("user_email"))
		assert.Equal(t, "Interview practice", r.FormValue("title"))

		f, h, err := r.FormFile("video_file")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		assert.Equal(t, "mp4-bytes", string(data))
		assert.Equal(t, "video.mp4", h.Filename)
		assert.Equal(t, "video/mp4", h.Header.Get("Content-Type"))

		f, h, err = r.FormFile("audio_file")
		require.NoError(t, err)
		data, _ = io.ReadAll(f)
		assert.Equal(t, []byte{0xFF, 0xFB, 0x90}, data)
		assert.Equal(t, "audio.mp3", h.Filename)
		assert.Equal(t, "audio/mp3", h.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"ok","saved":{"id":42,"title":"Interview practice"}}`))
	})

	video, audio := artifacts()
	id, err := c.Upload(context.Background(), video, audio, creds, "Interview practice")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadPreconditionsSkipNetwork(t *testing.T) {
	video, audio := artifacts()

	tests := []struct {
		name    string
		video   *artifact.Artifact
		audio   *artifact.Artifact
		creds   remote.Credentials
		wantErr error
	}{
		{"missing audio", video, nil, creds, apperr.ErrPreconditionFailed},
		{"missing video", nil, audio, creds, apperr.ErrPreconditionFailed},
		{"missing email", video, audio, remote.Credentials{Token: "tok"}, apperr.ErrPreconditionFailed},
		{"missing token", video, audio, remote.Credentials{Email: "ann@example.com"}, apperr.ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {})

			id, err := c.Upload(context.Background(), tt.video, tt.audio, tt.creds, "t")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, id)
			assert.Zero(t, calls.Load(), "no request may reach the network")
		})
	}
}

func TestUploadFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr []error
	}{
		{"server error", http.StatusInternalServerError, `boom`, []error{apperr.ErrUploadFailed}},
		{"unauthorized", http.StatusUnauthorized, `{}`, []error{apperr.ErrUploadFailed, apperr.ErrUnauthenticated}},
		{"not json", http.StatusOK, `<html>`, []error{apperr.ErrUploadFailed}},
		{"no id", http.StatusOK, `{"saved":{}}`, []error{apperr.ErrUploadFailed}},
		{"no saved", http.StatusOK, `{"message":"ok"}`, []error{apperr.ErrUploadFailed}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, &calls, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			video, audio := artifacts()
			_, err := c.Upload(context.Background(), video, audio, creds, "t")
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			assert.Equal(t, int32(1), calls.Load(), "failures are not retried")
		})
	}
}
