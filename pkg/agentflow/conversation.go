package agentflow

// Role identifies the author of a conversation message.
type Role string

// Standard message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the conversational state threaded through the graph:
// provider and model selection, ordered message history, and sampling
// controls. It is a plain, serializable value — execution capabilities live
// on the Handle, never in here.
//
// Ownership: a Conversation is created once by the scheduler as a default,
// then exclusively owned and replaced (never mutated in place) by whichever
// node last touched it. Use the With* helpers to derive updated copies.
type Conversation struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// System holds optional system instructions, kept out of Messages so
	// provider formatters can place it where each wire shape wants it.
	System string `json:"system,omitempty"`

	// Temperature is an optional sampling control. Nil means provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// ReasoningEffort is an optional provider-specific effort hint.
	ReasoningEffort string `json:"reasoning_effort,omitempty"`

	// Messages is the ordered history. Append-only within one node's turn.
	Messages []Message `json:"messages,omitempty"`
}

// Clone returns a deep copy of the conversation. A nil receiver clones to
// an empty conversation, so the With* helpers are safe to chain from nil.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return &Conversation{}
	}
	out := *c
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// WithMessage returns a copy of the conversation with one message appended.
func (c *Conversation) WithMessage(role Role, content string) *Conversation {
	out := c.Clone()
	out.Messages = append(out.Messages, Message{Role: role, Content: content})
	return out
}

// WithProviderModel returns a copy with provider and/or model replaced.
// Empty arguments keep the existing values.
func (c *Conversation) WithProviderModel(provider, model string) *Conversation {
	out := c.Clone()
	if provider != "" {
		out.Provider = provider
	}
	if model != "" {
		out.Model = model
	}
	return out
}

// LastMessage returns the most recent message, or a zero Message if the
// history is empty.
func (c *Conversation) LastMessage() Message {
	if c == nil || len(c.Messages) == 0 {
		return Message{}
	}
	return c.Messages[len(c.Messages)-1]
}
