package memory

import (
	"context"
	"sync"

	"github.com/hupe1980/reactmesh/core"
)

// DefaultWindow is the ShortMemory capacity used when none is given.
const DefaultWindow = 20

// ShortMemory keeps the most recent messages in a bounded window.
type ShortMemory struct {
	mu       sync.RWMutex
	window   int
	messages []core.Message
}

// NewShortMemory creates a ShortMemory holding at most window messages.
func NewShortMemory(window int) *ShortMemory {
	if window <= 0 {
		window = DefaultWindow
	}

	return &ShortMemory{window: window}
}

// Add appends messages, evicting the oldest beyond the window.
func (s *ShortMemory) Add(msgs ...core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msgs...)
	if over := len(s.messages) - s.window; over > 0 {
		s.messages = append([]core.Message(nil), s.messages[over:]...)
	}
}

// Messages returns a copy of the window, oldest first.
func (s *ShortMemory) Messages() []core.Message {
	return s.Last(0)
}

// Last returns the n most recent messages; n <= 0 returns all of them.
func (s *ShortMemory) Last(n int) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n > 0 && n < len(s.messages) {
		start = len(s.messages) - n
	}

	out := make([]core.Message, len(s.messages)-start)
	copy(out, s.messages[start:])

	return out
}

// ByRole returns the messages of the given role, oldest first.
func (s *ShortMemory) ByRole(role core.Role) []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.Message

	for _, m := range s.messages {
		if m.Role == role {
			out = append(out, m)
		}
	}

	return out
}

// Len returns the number of messages in the window.
func (s *ShortMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.messages)
}

// Clear empties the window.
func (s *ShortMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
}

// Retrieve implements Retriever by returning the most recent messages; the
// query is ignored.
func (s *ShortMemory) Retrieve(ctx context.Context, _ string, limit int) ([]core.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.Last(limit), nil
}
