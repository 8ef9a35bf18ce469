package app

import (
	"sync"

	"github.com/google/uuid"

	"github.com/chriscorrea/lorekeeper/internal/llm"
)

// sessions keeps per-conversation history in memory.
type sessions struct {
	mu      sync.Mutex
	limit   int
	history map[string][]llm.Message
}

func newSessions(limit int) *sessions {
	return &sessions{limit: limit, history: make(map[string][]llm.Message)}
}

// NewSessionID returns a fresh conversation identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// recent returns a copy of the last n messages of a session
func (s *sessions) recent(id string, n int) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.history[id]
	if n < len(h) {
		h = h[len(h)-n:]
	}
	out := make([]llm.Message, len(h))
	copy(out, h)
	return out
}

// record appends one exchange and drops the oldest messages past the limit
func (s *sessions) record(id, question, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.history[id],
		llm.Message{Role: llm.RoleUser, Content: question},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
	if s.limit > 0 && len(h) > s.limit {
		h = append([]llm.Message(nil), h[len(h)-s.limit:]...)
	}
	s.history[id] = h
}

func (s *sessions) reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.history, id)
}
