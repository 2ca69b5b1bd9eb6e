package session

import (
	"time"

	"github.com/skypro1111/speechcoach/internal/artifact"
	"github.com/skypro1111/speechcoach/internal/capture"
	"github.com/skypro1111/speechcoach/internal/encoder"
	"github.com/skypro1111/speechcoach/internal/report"
)

// ArtifactInfo describes a stored artifact without its bytes
type ArtifactInfo struct {
	MediaType string    `json:"media_type"`
	Filename  string    `json:"filename"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a point-in-time view of the session
type Snapshot struct {
	ID            string         `json:"id"`
	Generation    uint64         `json:"generation"`
	Status        capture.State  `json:"status"`
	Video         *ArtifactInfo  `json:"video,omitempty"`
	Audio         *ArtifactInfo  `json:"audio,omitempty"`
	Encode        *encoder.Stats `json:"encode,omitempty"`
	RecordID      int64          `json:"record_id,omitempty"`
	Report        *report.Report `json:"report,omitempty"`
	ActiveHandles int            `json:"active_handles"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Snapshot returns the current session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.id,
		Generation:    s.generation,
		Status:        s.deps.Capture.State(),
		Video:         s.artifactInfoLocked(artifact.VideoContainer),
		Audio:         s.artifactInfoLocked(artifact.CompressedAudio),
		RecordID:      s.recordID,
		Report:        s.report,
		ActiveHandles: s.deps.Store.ActiveHandles(),
		CreatedAt:     s.createdAt,
	}
	if s.encodeStats != nil {
		stats := *s.encodeStats
		snap.Encode = &stats
	}
	return snap
}

func (s *Session) artifactInfoLocked(kind artifact.Kind) *ArtifactInfo {
	a, err := s.deps.Store.Get(kind)
	if err != nil {
		return nil
	}
	return &ArtifactInfo{
		MediaType: a.MediaType(),
		Filename:  a.Filename(),
		Size:      a.Size(),
		CreatedAt: a.CreatedAt(),
	}
}
