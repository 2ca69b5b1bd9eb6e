package remote

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/"}, testLogger())
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{}, testLogger())
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  []error
		wantNone []error
	}{
		{name: "ok", status: http.StatusOK},
		{name: "created", status: http.StatusCreated},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			wantErr:  []error{apperr.ErrFetchFailed, apperr.ErrUnauthenticated},
			wantNone: nil,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			wantErr:  []error{apperr.ErrFetchFailed},
			wantNone: []error{apperr.ErrUnauthenticated},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"x"}`))
			})

			resp, err := c.Request(context.Background(), Credentials{Token: "t"}).Get("/anything")
			err = c.Check("probe", resp, err, apperr.ErrFetchFailed)

			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				assert.ErrorIs(t, err, want)
			}
			for _, notWant := range tt.wantNone {
				assert.NotErrorIs(t, err, notWant)
			}
		})
	}
}

func TestCheckTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL}, testLogger())
	require.NoError(t, err)

	resp, err := c.Request(context.Background(), Credentials{Token: "t"}).Get("/report/")
	err = c.Check("report", resp, err, apperr.ErrFetchFailed)
	assert.ErrorIs(t, err, apperr.ErrFetchFailed)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
}

func TestRequestCarriesBearerToken(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	})

	resp, err := c.Request(context.Background(), Credentials{Email: "a@b.c", Token: "secret"}).Get("/x")
	require.NoError(t, c.Check("x", resp, err, apperr.ErrFetchFailed))
	assert.Equal(t, "Bearer secret", auth)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.SuccessRequests)
	assert.InDelta(t, 100.0, stats.SuccessRate, 0.001)
}

func TestProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user-get-delete/", r.URL.Path)
		assert.Equal(t, "ann@example.com", r.URL.Query().Get("email"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user":{"username":"ann","email":"ann@example.com"}}`))
	})

	p, err := c.Profile(context.Background(), Credentials{Email: "ann@example.com", Token: "good"})
	require.NoError(t, err)
	assert.Equal(t, "ann", p.Username)

	_, err = c.Profile(context.Background(), Credentials{Email: "ann@example.com", Token: "stale"})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = c.Profile(context.Background(), Credentials{Email: "ann@example.com"})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
