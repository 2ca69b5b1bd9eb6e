package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/speechcoach/internal/apperr"
	"github.com/skypro1111/speechcoach/internal/artifact"
	"github.com/skypro1111/speechcoach/internal/config"
	"github.com/skypro1111/speechcoach/internal/metrics"
	"github.com/skypro1111/speechcoach/internal/remote"
	"github.com/skypro1111/speechcoach/internal/session"
)

// HTTPServer provides the control API for one capture session
type HTTPServer struct {
	server        *http.Server
	handler       http.Handler
	logger        *slog.Logger
	config        *config.Config
	session       *session.Session
	notifications *session.NotificationLog
	remote        *remote.Client
	metrics       *metrics.Metrics
	gatherer      prometheus.Gatherer

	startTime time.Time
}

// Deps are the components the control surface drives. Remote and Gatherer
// are optional; a nil Gatherer serves the default registry.
type Deps struct {
	Config        *config.Config
	Session       *session.Session
	Notifications *session.NotificationLog
	Remote        *remote.Client
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, deps Deps) *HTTPServer {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Notifications == nil {
		deps.Notifications = session.NewNotificationLog(50)
	}

	h := &HTTPServer{
		logger:        logger,
		config:        deps.Config,
		session:       deps.Session,
		notifications: deps.Notifications,
		remote:        deps.Remote,
		metrics:       deps.Metrics,
		gatherer:      deps.Gatherer,
		startTime:     time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)
	h.handler = mux

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// convert and upload run inside the request
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler, for tests and embedding
func (h *HTTPServer) Handler() http.Handler { return h.handler }

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Session operations
	mux.HandleFunc("GET /session", h.withMetrics("/session", h.handleSnapshot))
	mux.HandleFunc("POST /session/start", h.withMetrics("/session/start", h.handleStart))
	mux.HandleFunc("POST /session/stop", h.withMetrics("/session/stop", h.handleStop))
	mux.HandleFunc("POST /session/convert", h.withMetrics("/session/convert", h.handleConvert))
	mux.HandleFunc("POST /session/upload", h.withMetrics("/session/upload", h.handleUpload))
	mux.HandleFunc("POST /session/report", h.withMetrics("/session/report", h.handleFetchReport))
	mux.HandleFunc("GET /notifications", h.withMetrics("/notifications", h.handleNotifications))

	// Ephemeral handles
	mux.HandleFunc("POST /artifacts/{kind}/handles", h.withMetrics("/artifacts/{kind}/handles", h.handleCreateHandle))
	mux.HandleFunc("DELETE /media/{handle}", h.withMetrics("/media/{handle}", h.handleRevokeHandle))
	mux.HandleFunc("GET /media/{handle}", h.withMetrics("/media/{handle}", h.handleMedia))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /{$}", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError answers with the status and kind of err
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), errorResponse{
		Error:   apperr.Kind(err),
		Message: err.Error(),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    "speechcoach",
			"version": "1.0.0",
		},
		"session": map[string]any{
			"id":         snap.ID,
			"status":     snap.Status,
			"generation": snap.Generation,
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig returns the configuration without credentials
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if h.config == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	sanitized := *h.config
	if sanitized.Auth.Token != "" {
		sanitized.Auth.Token = "***"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"capture": sanitized.Capture,
		"audio":   sanitized.Audio,
		"api":     sanitized.API,
		"auth":    map[string]any{"email": sanitized.Auth.Email, "token": sanitized.Auth.Token},
		"http":    sanitized.HTTP,
		"logging": sanitized.Logging,
	})
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime":        time.Since(h.startTime).String(),
		"timestamp":     time.Now().UTC(),
		"notifications": h.notifications.Total(),
	}
	if h.remote != nil {
		stats["remote"] = h.remote.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

func (h *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	supersede, err := parseBool(r.URL.Query().Get("supersede"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "supersede must be a boolean"})
		return
	}
	if err := h.session.Start(r.Context(), supersede); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Stop(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *HTTPServer) handleConvert(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Convert(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" && r.Body != nil && r.ContentLength != 0 {
		var body struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "body must be {\"title\": ...}"})
			return
		}
		title = body.Title
	}

	if _, err := h.session.Upload(r.Context(), title); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *HTTPServer) handleFetchReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.session.FetchReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	recent := h.notifications.Recent()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":         h.notifications.Total(),
		"notifications": recent,
	})
}

type handleResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind"`
	Purpose   string    `json:"purpose"`
	MediaType string    `json:"media_type"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *HTTPServer) handleCreateHandle(w http.ResponseWriter, r *http.Request) {
	kind, err := artifact.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	purpose, err := artifact.ParsePurpose(r.URL.Query().Get("purpose"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}

	handle, err := h.session.Handle(kind, purpose)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, handleResponse{
		Token:     handle.Token,
		URL:       "/media/" + handle.Token,
		Kind:      kind.String(),
		Purpose:   string(purpose),
		MediaType: kind.MediaType(),
		CreatedAt: handle.CreatedAt,
	})
}

func (h *HTTPServer) handleRevokeHandle(w http.ResponseWriter, r *http.Request) {
	h.session.Store().Revoke(r.PathValue("handle"))
	w.WriteHeader(http.StatusNoContent)
}

// handleMedia serves an artifact behind an ephemeral handle. Range requests
// are supported so players can seek.
func (h *HTTPServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	a, handle, err := h.session.Resolve(r.PathValue("handle"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", a.MediaType())
	w.Header().Set("Cache-Control", "no-store")
	disposition := "inline"
	if handle.Purpose == artifact.Download {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, a.Filename()))

	http.ServeContent(w, r, a.Filename(), a.CreatedAt(), a.Reader())
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]any{
		"service": "speechcoach capture pipeline",
		"version": "1.0.0",
		"endpoints": map[string]any{
			"GET /":                                   "API documentation",
			"GET /health":                             "Service health check",
			"GET /config":                             "Configuration without credentials",
			"GET /stats":                              "Remote client and notification statistics",
			"GET /session":                            "Session snapshot",
			"POST /session/start?supersede=":          "Start recording; supersede=true discards the previous recording",
			"POST /session/stop":                      "Stop recording and store the raw container",
			"POST /session/convert":                   "Extract and compress the audio track",
			"POST /session/upload?title=":             "Upload both artifacts and fetch the report",
			"POST /session/report":                    "Fetch the report again",
			"GET /notifications":                      "Recent operation failures",
			"POST /artifacts/{kind}/handles?purpose=": "Create a playback or download handle",
			"GET /media/{handle}":                     "Serve an artifact",
			"DELETE /media/{handle}":                  "Revoke a handle",
			"GET /metrics":                            "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

func parseBool(s string) (bool, error) {
	if s == "" {
		return false, nil
	}
	return strconv.ParseBool(s)
}
