package services

import (
	"sync"

	"github.com/yoockh/basketvoice/internal/models"
)

const DefaultHistoryCap = 12

// HistoryStore is the bounded in-session conversation buffer. Oldest
// entries are evicted first.
type HistoryStore struct {
	mu    sync.Mutex
	cap   int
	turns []models.ConversationTurn
}

func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &HistoryStore{cap: capacity}
}

func (h *HistoryStore) Append(turn models.ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(turn)
}

// AppendExchange appends a user/assistant pair under one lock so readers
// never see half an exchange.
func (h *HistoryStore) AppendExchange(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.appendLocked(models.ConversationTurn{Role: models.RoleUser, Text: user})
	h.appendLocked(models.ConversationTurn{Role: models.RoleAssistant, Text: assistant})
}

func (h *HistoryStore) appendLocked(turn models.ConversationTurn) {
	h.turns = append(h.turns, turn)
	if over := len(h.turns) - h.cap; over > 0 {
		kept := make([]models.ConversationTurn, h.cap)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// Snapshot returns a copy that later appends cannot change.
func (h *HistoryStore) Snapshot() []models.ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.ConversationTurn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *HistoryStore) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}

func (h *HistoryStore) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}
