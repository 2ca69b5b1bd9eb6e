package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/speechcoach/internal/audio"
	"github.com/skypro1111/speechcoach/internal/capture"
	"github.com/skypro1111/speechcoach/internal/config"
	"github.com/skypro1111/speechcoach/internal/encoder"
	"github.com/skypro1111/speechcoach/internal/metrics"
	"github.com/skypro1111/speechcoach/internal/remote"
	"github.com/skypro1111/speechcoach/internal/report"
	"github.com/skypro1111/speechcoach/internal/session"
	"github.com/skypro1111/speechcoach/internal/upload"
)

const reportJSON = `{
	"transcription": "hello there",
	"fluency": {"filler_word_count": 1, "fluency_score": 80, "sentence_count": 1, "speaking_rate": 120, "pause_count": 0},
	"grammar": {"total_sentences": 1, "total_errors": 0, "grammar_score": 100, "corrections": []},
	"pronunciation": {
		"accuracy": {"score": 90, "comment": ""},
		"fluency": {"score": 85, "comment": ""},
		"completeness": {"score": 100, "comment": ""},
		"prosody": {"score": 70, "comment": ""},
		"overall": {"score": 86, "comment": ""}
	}
}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testServer struct {
	http    *httptest.Server
	uploads *atomic.Int32
	log     *session.NotificationLog
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	var uploads atomic.Int32
	api := http.NewServeMux()
	api.HandleFunc("POST /video-audio/", func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"saved":{"id":7}}`))
	})
	api.HandleFunc("GET /report/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reportJSON))
	})
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	rc, err := remote.NewClient(remote.Config{BaseURL: apiSrv.URL}, testLogger())
	require.NoError(t, err)

	wav, err := audio.EncodeWAV(make([]int16, 44100), 44100, 1)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	notifications := session.NewNotificationLog(10)

	s, err := session.New(session.Deps{
		Capture:   capture.NewSession(&capture.ReplayDevice{Data: wav, ChunkSize: 1024}, capture.Options{}, testLogger()),
		Extractor: audio.NewExtractor(audio.ExtractorConfig{}, testLogger()),
		Encoder:   encoder.New(nil, encoder.DefaultBitrateKbps, testLogger()),
		Uploader:  upload.NewClient(rc, testLogger()),
		Reports:   report.NewFetcher(rc, testLogger()),
		Notifier:  notifications,
		Metrics:   m,
		Logger:    testLogger(),
	}, session.Options{
		Credentials:  remote.Credentials{Email: "ann@example.com", Token: "secret-token"},
		DefaultTitle: "Practice session",
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })

	cfg := config.Default()
	cfg.Auth.Email = "ann@example.com"
	cfg.Auth.Token = "secret-token"

	h := NewHTTPServer(cfg.HTTP, testLogger(), Deps{
		Config:        cfg,
		Session:       s,
		Notifications: notifications,
		Remote:        rc,
		Metrics:       m,
		Gatherer:      reg,
	})
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	return &testServer{http: srv, uploads: &uploads, log: notifications}
}

func (ts *testServer) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Equal(t, "healthy", body["status"])
	sess := body["session"].(map[string]any)
	assert.Equal(t, "idle", sess["status"])
}

func TestConfigHidesToken(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/config")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "secret-token")
	assert.Contains(t, string(raw), "ann@example.com")
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/session/start")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "recording", decode(t, resp)["status"])

	resp = ts.do(t, http.MethodPost, "/session/stop")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode(t, resp)
	assert.Equal(t, "stopped", snap["status"])
	assert.NotNil(t, snap["video"])

	resp = ts.do(t, http.MethodPost, "/session/convert")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, decode(t, resp)["audio"])

	resp = ts.do(t, http.MethodPost, "/session/upload?title=Morning")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap = decode(t, resp)
	assert.EqualValues(t, 7, snap["record_id"])
	assert.NotNil(t, snap["report"])
	assert.EqualValues(t, 1, ts.uploads.Load())
}

func TestStartWhileRecordingConflicts(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/start").StatusCode)

	resp := ts.do(t, http.MethodPost, "/session/start")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_state_transition", decode(t, resp)["error"])
}

func TestStartRejectsBadSupersede(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/session/start?supersede=maybe")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadWithoutArtifacts(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/session/upload")
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, "precondition_failed", decode(t, resp)["error"])
	assert.Zero(t, ts.uploads.Load())
}

func TestMediaHandles(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/start").StatusCode)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/stop").StatusCode)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/convert").StatusCode)

	resp := ts.do(t, http.MethodPost, "/artifacts/audio/handles?purpose=download")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	handle := decode(t, resp)
	assert.Equal(t, "audio/mp3", handle["media_type"])
	url := handle["url"].(string)

	resp = ts.do(t, http.MethodGet, url)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mp3", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="audio.mp3"`, resp.Header.Get("Content-Disposition"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, encoder.HasFrameSync(data))

	resp = ts.do(t, http.MethodPost, "/artifacts/video/handles")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	playback := decode(t, resp)["url"].(string)
	resp = ts.do(t, http.MethodGet, playback)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "inline"))

	// Superseding revokes every handle
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/start?supersede=true").StatusCode)
	resp = ts.do(t, http.MethodGet, url)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "handle_revoked", decode(t, resp)["error"])
}

func TestRevokeHandle(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/start").StatusCode)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/session/stop").StatusCode)

	url := decode(t, ts.do(t, http.MethodPost, "/artifacts/video/handles"))["url"].(string)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, url).StatusCode)
	assert.Equal(t, http.StatusGone, ts.do(t, http.MethodGet, url).StatusCode)
}

func TestHandleBeforeArtifact(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/artifacts/audio/handles")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_ready", decode(t, resp)["error"])

	resp = ts.do(t, http.MethodPost, "/artifacts/subtitles/handles")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/media/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotificationsListFailures(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/session/convert")

	body := decode(t, ts.do(t, http.MethodGet, "/notifications"))
	assert.EqualValues(t, 1, body["total"])
	list := body["notifications"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "precondition_failed", list[0].(map[string]any)["kind"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodGet, "/health")

	resp := ts.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `speechcoach_http_requests_total{endpoint="/health",method="GET",status_code="200"} 1`)
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, decode(t, resp), "endpoints")

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/nope").StatusCode)
}
