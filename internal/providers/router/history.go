package router

import (
	"errors"
	"sync"

	"github.com/sandveil/sandveil/internal/shared/types"
)

const defaultHistoryLimit = 50

// ErrOutOfRange is returned when Go targets a position outside the stack.
var ErrOutOfRange = errors.New("history delta out of range")

// Entry is one virtual history record.
type Entry struct {
	URL   string      `json:"url"`
	Title string      `json:"title"`
	State types.Value `json:"state"`
}

// History is a bounded virtual session history for one application. It
// never touches the real navigation stack.
type History struct {
	mu      sync.Mutex
	entries []Entry
	index   int
	limit   int
}

// NewHistory creates an empty history bounded to limit entries.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{
		index: -1,
		limit: limit,
	}
}

// Push appends a new entry, truncating any forward entries.
func (h *History) Push(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries[:h.index+1], e)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	h.index = len(h.entries) - 1
}

// Replace swaps the current entry, or seeds the stack when empty.
func (h *History) Replace(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.index < 0 {
		h.entries = []Entry{e}
		h.index = 0
		return
	}
	h.entries[h.index] = e
}

// Go moves delta steps through the stack.
func (h *History) Go(delta int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.index + delta
	if next < 0 || next >= len(h.entries) {
		return ErrOutOfRange
	}
	h.index = next
	return nil
}

// Back moves one step backwards.
func (h *History) Back() error {
	return h.Go(-1)
}

// Forward moves one step forwards.
func (h *History) Forward() error {
	return h.Go(1)
}

// Current returns the entry at the cursor.
func (h *History) Current() (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.index < 0 || h.index >= len(h.entries) {
		return Entry{}, false
	}
	return h.entries[h.index], true
}

// Length returns the number of entries.
func (h *History) Length() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.entries)
}

// Reset empties the stack.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = nil
	h.index = -1
}
