package llm

import (
	"context"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
)

// Usage is the provider-reported token accounting for one request.
// Estimated is set when the numbers were derived locally because the
// stream ended before the provider reported anything.
type Usage struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	CacheRead       int64 `json:"cache_read,omitempty"`
	CacheWrite      int64 `json:"cache_write,omitempty"`
	ReasoningTokens int64 `json:"reasoning_tokens,omitempty"`
	Estimated       bool  `json:"estimated,omitempty"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 { return u.InputTokens + u.OutputTokens }

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call id, echoed back with the result.
	ID string `json:"id"`

	// Name is the tool name.
	Name string `json:"name"`

	// Args is the raw argument payload, provider-encoded JSON.
	Args string `json:"args"`
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Callbacks receives streaming progress from an adapter. All callbacks are
// optional and invoked from the adapter's stream goroutine.
type Callbacks struct {
	// OnChunk receives each incremental text fragment.
	OnChunk func(text string)

	// OnToolCall receives each tool invocation the model requests and
	// returns its result.
	OnToolCall func(call ToolCall) ToolResult

	// OnUsage receives the provider's token accounting, possibly more
	// than once as the stream progresses.
	OnUsage func(u Usage)
}

// StreamRequest is one provider-shaped chat request. Messages carry the
// full wire-formatted history including the system prompt where the
// provider expects it inline.
type StreamRequest struct {
	Model           string
	System          string
	Messages        []agentflow.Message
	Tools           []ToolSpec
	Temperature     *float64
	ReasoningEffort string
	ResponseSchema  map[string]any
	APIKey          string
}

// StreamHandle controls one in-flight stream.
type StreamHandle interface {
	// Cancel aborts the stream. Safe to call more than once.
	Cancel()

	// Wait blocks until the stream completes and returns the full
	// response text and final usage.
	Wait() (string, Usage, error)
}

// Adapter is one provider backend. Implementations stream responses and
// surface tool calls through Callbacks.
type Adapter interface {
	// Name returns the provider name this adapter serves.
	Name() string

	// StreamChat opens a streaming chat request. It returns once the
	// stream is established; progress arrives via cb and completion via
	// the returned handle's Wait.
	StreamChat(ctx context.Context, req StreamRequest, cb Callbacks) (StreamHandle, error)
}
