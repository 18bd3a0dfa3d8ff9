package mockstaging

import (
	"sync"
	"time"
)

// HistoryEntry is one message in a chat thread, as served by /chat/history.
type HistoryEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

// historyStore keeps per-user, per-thread chat history in memory. Threads are
// namespaced by user so one user can never read another's history.
type historyStore struct {
	mu      sync.Mutex
	threads map[string][]HistoryEntry // userID + "\x00" + threadID
}

func newHistoryStore() *historyStore {
	return &historyStore{threads: make(map[string][]HistoryEntry)}
}

func (h *historyStore) key(userID, threadID string) string {
	return userID + "\x00" + threadID
}

func (h *historyStore) append(userID, threadID string, entries ...HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := h.key(userID, threadID)
	h.threads[k] = append(h.threads[k], entries...)
}

func (h *historyStore) list(userID, threadID string) []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.threads[h.key(userID, threadID)]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
