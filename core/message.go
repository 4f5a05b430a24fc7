package core

import "sync"

// Role identifies the author of a Message.
type Role string

const (
	// RoleSystem carries instructions for the model (system prompt, corrective notes).
	RoleSystem Role = "system"
	// RoleUser carries the task instruction and injected context.
	RoleUser Role = "user"
	// RoleAssistant carries raw model output.
	RoleAssistant Role = "assistant"
	// RoleTool carries Observations produced by the Tool Invoker.
	RoleTool Role = "tool"
)

// Message is a single entry of a conversation. Messages are values and are never
// mutated after they have been appended to a Conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Name identifies the authoring agent when several agents share one conversation.
	Name string `json:"name,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message attributed to name.
func NewAssistantMessage(name, content string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: name}
}

// NewToolMessage creates a tool message carrying an observation.
func NewToolMessage(content string) Message {
	return Message{Role: RoleTool, Content: content}
}

// Conversation is an append-only ordered sequence of Messages.
//
// A Conversation is owned by a single execution loop. In joint collaboration
// several agents share one Conversation and append to it one speaker at a time;
// the mutex only protects readers that snapshot the history concurrently
// (observers, result aggregation).
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation creates a conversation seeded with msgs.
func NewConversation(msgs ...Message) *Conversation {
	c := &Conversation{}
	c.Append(msgs...)

	return c
}

// Append adds messages to the end of the conversation.
func (c *Conversation) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, msgs...)
}

// Messages returns a snapshot copy of the conversation history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)

	return out
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.messages)
}
