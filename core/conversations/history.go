package conversations

import "sync"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single entry of the conversation log.
type ChatMessage struct {
	Role    Role
	Content string
}

func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// History is a fixed-capacity conversation log. Messages are kept in the
// order they were pushed; once the log is full, every Push evicts the oldest
// message (FIFO, reads never reorder).
type History struct {
	mu       sync.RWMutex
	capacity int
	messages []ChatMessage
}

// NewHistory creates an empty history holding at most capacity messages.
// Capacities below one are raised to one.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}

	return &History{
		capacity: capacity,
		messages: make([]ChatMessage, 0, capacity),
	}
}

func (h *History) Push(message ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.messages) < h.capacity {
		h.messages = append(h.messages, message)
		return
	}

	copy(h.messages, h.messages[1:])
	h.messages[len(h.messages)-1] = message
}

// Snapshot returns a copy of the current window, oldest message first.
func (h *History) Snapshot() []ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snapshot := make([]ChatMessage, len(h.messages))
	copy(snapshot, h.messages)
	return snapshot
}

// Clear empties the history. The configured capacity is kept.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = make([]ChatMessage, 0, h.capacity)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.messages)
}

func (h *History) Capacity() int { return h.capacity }
