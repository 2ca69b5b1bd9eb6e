package capture

import (
	"sync"
	"time"
)

// Accumulator collects container chunks in the order they arrive
type Accumulator struct {
	data []byte

	totalChunks uint32
	emptyChunks uint32
	firstChunk  time.Time
	lastUpdate  time.Time

	mu sync.RWMutex
}

// AccumulatorStats represents accumulator statistics for monitoring
type AccumulatorStats struct {
	TotalChunks uint32    `json:"total_chunks"`
	EmptyChunks uint32    `json:"empty_chunks"`
	Bytes       int       `json:"bytes"`
	FirstChunk  time.Time `json:"first_chunk,omitempty"`
	LastUpdate  time.Time `json:"last_update,omitempty"`
}

// NewAccumulator creates an accumulator with room for sizeHint bytes
func NewAccumulator(sizeHint int) *Accumulator {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Accumulator{data: make([]byte, 0, sizeHint)}
}

// Append adds a chunk at the end of the container. Empty chunks are counted
// but otherwise ignored.
func (a *Accumulator) Append(chunk []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if a.totalChunks == 0 {
		a.firstChunk = now
	}
	a.totalChunks++
	a.lastUpdate = now

	if len(chunk) == 0 {
		a.emptyChunks++
		return
	}
	a.data = append(a.data, chunk...)
}

// Bytes returns a copy of everything accumulated so far
func (a *Accumulator) Bytes() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]byte, len(a.data))
	copy(out, a.data)
	return out
}

// Size returns the number of accumulated bytes
func (a *Accumulator) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}

// GetStats returns current accumulator statistics
func (a *Accumulator) GetStats() AccumulatorStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return AccumulatorStats{
		TotalChunks: a.totalChunks,
		EmptyChunks: a.emptyChunks,
		Bytes:       len(a.data),
		FirstChunk:  a.firstChunk,
		LastUpdate:  a.lastUpdate,
	}
}
