// Command mockapi is a stand-in for the speech-analysis service. It accepts
// uploads, serves a canned report per record and answers profile lookups,
// so the client can be exercised without the real backend.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type upload struct {
	ID        int64     `json:"id"`
	Email     string    `json:"user_email"`
	Title     string    `json:"title"`
	VideoSize int       `json:"video_size"`
	AudioSize int       `json:"audio_size"`
	CreatedAt time.Time `json:"created_at"`
}

type mockAPI struct {
	token string
	delay time.Duration

	mu      sync.Mutex
	nextID  int64
	uploads map[int64]upload
}

func newMockAPI(token string, delay time.Duration) *mockAPI {
	return &mockAPI{token: token, delay: delay, nextID: 1, uploads: make(map[int64]upload)}
}

func (m *mockAPI) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /video-audio/", m.authorized(m.handleUpload))
	mux.HandleFunc("GET /report/", m.authorized(m.handleReport))
	mux.HandleFunc("GET /user-get-delete/", m.authorized(m.handleProfile))
	return mux
}

// authorized rejects requests whose bearer token does not match. An empty
// configured token accepts any non-empty bearer.
func (m *mockAPI) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" || (m.token != "" && token != m.token) {
			log.Printf("❌ %s %s rejected: bad token", r.Method, r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
			return
		}
		next(w, r)
	}
}

func (m *mockAPI) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	videoSize, err := formFileSize(r, "video_file")
	if err != nil {
		http.Error(w, "Error getting video file", http.StatusBadRequest)
		return
	}
	audioSize, err := formFileSize(r, "audio_file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}

	// Simulate processing time
	time.Sleep(m.delay)

	m.mu.Lock()
	u := upload{
		ID:        m.nextID,
		Email:     r.FormValue("user_email"),
		Title:     r.FormValue("title"),
		VideoSize: videoSize,
		AudioSize: audioSize,
		CreatedAt: time.Now(),
	}
	m.uploads[u.ID] = u
	m.nextID++
	m.mu.Unlock()

	log.Printf("🎥 UPLOAD #%d from %s: %q video=%d bytes audio=%d bytes", u.ID, u.Email, u.Title, u.VideoSize, u.AudioSize)
	writeJSON(w, http.StatusCreated, map[string]any{"saved": u})
}

func (m *mockAPI) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil {
		http.Error(w, "id must be an integer", http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	u, ok := m.uploads[id]
	m.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Record not found"})
		return
	}

	log.Printf("📝 REPORT #%d for %s", id, r.URL.Query().Get("email"))
	writeJSON(w, http.StatusOK, cannedReport(u))
}

func (m *mockAPI) handleProfile(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	username, _, _ := strings.Cut(email, "@")
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]string{"username": username, "email": email},
	})
}

func cannedReport(u upload) map[string]any {
	return map[string]any{
		"transcription": "This is a test transcription for " + u.Title + ".",
		"fluency": map[string]any{
			"filler_word_count": 1,
			"fluency_score":     78.5,
			"sentence_count":    1,
			"speaking_rate":     112.0,
			"pause_count":       2,
		},
		"grammar": map[string]any{
			"total_sentences": 1,
			"total_errors":    0,
			"grammar_score":   100.0,
			"corrections":     []any{},
		},
		"pronunciation": map[string]any{
			"accuracy":     map[string]any{"score": 91.0, "comment": "Clear articulation"},
			"fluency":      map[string]any{"score": 84.0, "comment": ""},
			"completeness": map[string]any{"score": 100.0, "comment": ""},
			"prosody":      map[string]any{"score": 72.0, "comment": "Slightly flat intonation"},
			"overall":      map[string]any{"score": 86.0, "comment": ""},
		},
	}
}

func formFileSize(r *http.Request, field string) (int, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "Listen address")
	token := flag.String("token", "", "Accepted bearer token (any token when empty)")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time per upload")
	flag.Parse()

	log.Printf("🚀 Mock speech API starting on %s", *addr)
	log.Println("💡 Point api.base_url at http://" + *addr)

	if err := http.ListenAndServe(*addr, newMockAPI(*token, *delay).routes()); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
