package terminal

import (
	"sync"
	"time"
)

// chunk is one append to a History: a monotonic index, the bytes written at
// that point, and when they arrived.
type chunk struct {
	index int64
	bytes []byte
	at    time.Time
}

// History is a bounded, append-only, indexed log of one session's PTY
// output. It supports two readers: a flat replay of everything currently
// retained (for attach/reconnect) and a per-cursor fetch of everything
// appended since a given index (for live streaming to attached clients).
type History struct {
	mu        sync.Mutex
	chunks    []chunk
	nextIndex int64
	maxChunks int
	replay    []byte
}

// NewHistory creates a History retaining at most maxChunks chunks. A
// maxChunks of 0 retains nothing but still advances indices, so cursors
// issued before and after still behave consistently.
func NewHistory(maxChunks int) *History {
	return &History{maxChunks: maxChunks}
}

// SetMax changes the retention bound, evicting immediately if it shrank.
func (h *History) SetMax(maxChunks int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxChunks = maxChunks
	h.evictLocked()
	h.rebuildReplayLocked()
}

// Append records b as the next chunk and evicts the oldest retained chunks
// past the configured bound.
func (h *History) Append(b []byte) {
	if len(b) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chunks = append(h.chunks, chunk{index: h.nextIndex, bytes: b, at: time.Now()})
	h.nextIndex++
	h.evictLocked()
	h.rebuildReplayLocked()
}

func (h *History) evictLocked() {
	if h.maxChunks <= 0 {
		h.chunks = nil
		return
	}
	if len(h.chunks) > h.maxChunks {
		h.chunks = h.chunks[len(h.chunks)-h.maxChunks:]
	}
}

func (h *History) rebuildReplayLocked() {
	var total int
	for _, c := range h.chunks {
		total += len(c.bytes)
	}
	buf := make([]byte, 0, total)
	for _, c := range h.chunks {
		buf = append(buf, c.bytes...)
	}
	h.replay = buf
}

// Replay returns everything currently retained, oldest first.
func (h *History) Replay() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.replay...)
}

// Fetch returns the bytes appended after cursor along with the new cursor
// to pass on the next call. If cursor is already at or past the head, it
// returns no bytes and the same cursor back.
func (h *History) Fetch(cursor int64) ([]byte, int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.chunks) == 0 || cursor >= h.chunks[len(h.chunks)-1].index {
		return nil, cursor
	}
	var buf []byte
	newCursor := cursor
	for _, c := range h.chunks {
		if c.index > cursor {
			buf = append(buf, c.bytes...)
			newCursor = c.index
		}
	}
	return buf, newCursor
}

// HeadIndex returns the index of the most recently appended chunk, or -1
// if nothing has been appended yet.
func (h *History) HeadIndex() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextIndex - 1
}
