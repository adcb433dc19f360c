package terminal

import "testing"

func TestHistoryAppendAndReplay(t *testing.T) {
	h := NewHistory(10)
	h.Append([]byte("hello "))
	h.Append([]byte("world"))

	if got := string(h.Replay()); got != "hello world" {
		t.Fatalf("Replay() = %q, want %q", got, "hello world")
	}
	if got := h.HeadIndex(); got != 1 {
		t.Fatalf("HeadIndex() = %d, want 1", got)
	}
}

func TestHistoryEvictionBoundsChunkCount(t *testing.T) {
	h := NewHistory(1)
	h.Append([]byte("a"))
	h.Append([]byte("b"))
	h.Append([]byte("c"))

	// only the most recent chunk survives eviction
	if got := string(h.Replay()); got != "c" {
		t.Fatalf("Replay() = %q, want %q", got, "c")
	}
	// but indices keep advancing regardless of retention
	if got := h.HeadIndex(); got != 2 {
		t.Fatalf("HeadIndex() = %d, want 2", got)
	}
}

func TestHistoryZeroBufferStillAdvancesCursor(t *testing.T) {
	h := NewHistory(0)
	h.Append([]byte("a"))
	h.Append([]byte("b"))

	if got := h.Replay(); len(got) != 0 {
		t.Fatalf("Replay() = %q, want empty", got)
	}
	if got := h.HeadIndex(); got != 1 {
		t.Fatalf("HeadIndex() = %d, want 1", got)
	}
}

func TestHistoryFetchOnlyReturnsNewChunks(t *testing.T) {
	h := NewHistory(10)
	h.Append([]byte("a"))
	cursor := h.HeadIndex()

	h.Append([]byte("b"))
	h.Append([]byte("c"))

	data, newCursor := h.Fetch(cursor)
	if string(data) != "bc" {
		t.Fatalf("Fetch() data = %q, want %q", data, "bc")
	}
	if newCursor != h.HeadIndex() {
		t.Fatalf("Fetch() cursor = %d, want %d", newCursor, h.HeadIndex())
	}

	data, unchanged := h.Fetch(newCursor)
	if len(data) != 0 {
		t.Fatalf("Fetch() at head returned %q, want nothing", data)
	}
	if unchanged != newCursor {
		t.Fatalf("Fetch() at head returned cursor %d, want unchanged %d", unchanged, newCursor)
	}
}

func TestHistoryFetchSurvivesEvictionWithoutGaps(t *testing.T) {
	h := NewHistory(2)
	h.Append([]byte("a"))
	cursor := h.HeadIndex()
	h.Append([]byte("b"))
	h.Append([]byte("c")) // evicts "a"

	// cursor points at an already-evicted chunk; fetch should still return
	// everything retained rather than erroring or skipping silently
	data, _ := h.Fetch(cursor)
	if string(data) != "bc" {
		t.Fatalf("Fetch() after eviction = %q, want %q", data, "bc")
	}
}

func TestHistorySetMaxShrinksRetention(t *testing.T) {
	h := NewHistory(10)
	h.Append([]byte("a"))
	h.Append([]byte("b"))
	h.Append([]byte("c"))

	h.SetMax(1)
	if got := string(h.Replay()); got != "c" {
		t.Fatalf("Replay() after SetMax = %q, want %q", got, "c")
	}
}
