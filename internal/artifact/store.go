package artifact

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

// Purpose tells playback handles from download handles
type Purpose string

const (
	Playback Purpose = "playback"
	Download Purpose = "download"
)

// ParsePurpose validates a purpose name; empty means playback
func ParsePurpose(s string) (Purpose, error) {
	switch Purpose(s) {
	case "", Playback:
		return Playback, nil
	case Download:
		return Download, nil
	default:
		return "", fmt.Errorf("unknown handle purpose %q", s)
	}
}

// Handle is an ephemeral reference to one artifact
type Handle struct {
	Token     string    `json:"token"`
	Kind      Kind      `json:"-"`
	Purpose   Purpose   `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
}

type handleEntry struct {
	handle   Handle
	artifact *Artifact
}

// DefaultRevokedHistory is how many revoked tokens a store remembers
const DefaultRevokedHistory = 256

// Store holds at most one artifact per kind. Replacing or clearing an
// artifact revokes every handle derived from it. The most recently revoked
// tokens are remembered so stale lookups can be told apart from unknown ones;
// older ones resolve as unknown.
type Store struct {
	mu        sync.RWMutex
	artifacts map[Kind]*Artifact
	handles   map[string]*handleEntry

	revoked      map[string]Handle
	revokedOrder []string
	maxRevoked   int
}

// NewStore creates an empty store
func NewStore() *Store {
	return NewStoreWithHistory(DefaultRevokedHistory)
}

// NewStoreWithHistory creates an empty store remembering up to n revoked
// tokens
func NewStoreWithHistory(n int) *Store {
	if n < 0 {
		n = 0
	}
	return &Store{
		artifacts:  make(map[Kind]*Artifact),
		handles:    make(map[string]*handleEntry),
		revoked:    make(map[string]Handle),
		maxRevoked: n,
	}
}

// Put stores a, replacing and revoking any previous artifact of its kind
func (s *Store) Put(a *Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeKindLocked(a.Kind())
	s.artifacts[a.Kind()] = a
}

// Get returns the artifact of kind or ErrNotReady
func (s *Store) Get(kind Kind) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no %s artifact", apperr.ErrNotReady, kind)
	}
	return a, nil
}

// Has reports whether an artifact of kind is present
func (s *Store) Has(kind Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.artifacts[kind]
	return ok
}

// Handle derives a new ephemeral handle for the current artifact of kind
func (s *Store) Handle(kind Kind, purpose Purpose) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[kind]
	if !ok {
		return Handle{}, fmt.Errorf("%w: no %s artifact", apperr.ErrNotReady, kind)
	}

	h := Handle{
		Token:     uuid.NewString(),
		Kind:      kind,
		Purpose:   purpose,
		CreatedAt: time.Now(),
	}
	s.handles[h.Token] = &handleEntry{handle: h, artifact: a}
	return h, nil
}

// Resolve returns the artifact behind token. A revoked token fails with
// ErrHandleRevoked, an unknown one with ErrNotReady.
func (s *Store) Resolve(token string) (*Artifact, Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.handles[token]; ok {
		return e.artifact, e.handle, nil
	}
	if h, ok := s.revoked[token]; ok {
		return nil, h, fmt.Errorf("%w: %s handle", apperr.ErrHandleRevoked, h.Kind)
	}
	return nil, Handle{}, fmt.Errorf("%w: unknown handle", apperr.ErrNotReady)
}

// Revoke invalidates a single handle
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeLocked(token)
}

// Clear drops both artifacts and revokes every handle. It returns the number
// of handles revoked.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.handles)
	for token := range s.handles {
		s.revokeLocked(token)
	}
	clear(s.artifacts)
	return n
}

// ActiveHandles returns the number of handles that still resolve
func (s *Store) ActiveHandles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.handles)
}

// RevokedHandles returns the number of revoked tokens still remembered
func (s *Store) RevokedHandles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

func (s *Store) revokeKindLocked(kind Kind) {
	for token, e := range s.handles {
		if e.handle.Kind == kind {
			s.revokeLocked(token)
		}
	}
}

// revokeLocked moves token from the live handles to the bounded revoked
// history, dropping its artifact reference.
func (s *Store) revokeLocked(token string) {
	e, ok := s.handles[token]
	if !ok {
		return
	}
	delete(s.handles, token)

	if s.maxRevoked == 0 {
		return
	}
	s.revoked[token] = e.handle
	s.revokedOrder = append(s.revokedOrder, token)
	if len(s.revokedOrder) > s.maxRevoked {
		delete(s.revoked, s.revokedOrder[0])
		s.revokedOrder = s.revokedOrder[1:]
	}
}
