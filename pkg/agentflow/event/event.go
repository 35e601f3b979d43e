package event

import (
	"time"
)

// Type selects the payload variant of an Event.
type Type string

// Event types. Exactly one payload field is populated per event, matching
// the type.
const (
	// TypeChunk carries incremental model output text.
	TypeChunk Type = "chunk"

	// Tool call lifecycle, correlated by the provider's call id plus a
	// locally generated execution id.
	TypeToolStart Type = "tool_start"
	TypeToolEnd   Type = "tool_end"
	TypeToolError Type = "tool_error"

	// Token accounting.
	TypeUsage          Type = "usage"
	TypeUsageBreakdown Type = "usage_breakdown"

	// TypeRateLimitWait reports a proactive or retry-triggered delay.
	TypeRateLimitWait Type = "rate_limit_wait"

	// TypeDone is the terminal event of a flow. Completion, cancellation,
	// and failure all end with exactly one done.
	TypeDone Type = "done"

	// TypeError reports a genuine failure. Always followed by a done.
	TypeError Type = "error"

	// Scheduler lifecycle.
	TypeNodeStart       Type = "node_start"
	TypeNodeEnd         Type = "node_end"
	TypeWaitingForInput Type = "waiting_for_input"
	TypeIO              Type = "io"
)

// Event is the envelope shared by every execution event.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// ExecutionID identifies the flow execution (request id).
	ExecutionID string `json:"execution_id"`

	// NodeID identifies the originating node. Empty for flow-level events.
	NodeID string `json:"node_id,omitempty"`

	// Provider and Model identify the LLM backend, when relevant.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Type selects which payload field below is populated.
	Type Type `json:"type"`

	Chunk          *ChunkPayload          `json:"chunk,omitempty"`
	Tool           *ToolPayload           `json:"tool,omitempty"`
	Usage          *UsagePayload          `json:"usage,omitempty"`
	UsageBreakdown *UsageBreakdownPayload `json:"usage_breakdown,omitempty"`
	RateLimitWait  *RateLimitWaitPayload  `json:"rate_limit_wait,omitempty"`
	NodeEnd        *NodeEndPayload        `json:"node_end,omitempty"`
	IO             *IOPayload             `json:"io,omitempty"`
	Error          *ErrorPayload          `json:"error,omitempty"`
}

// ChunkPayload carries a piece of incremental model output.
type ChunkPayload struct {
	Text string `json:"text"`
}

// ToolPayload describes a tool call lifecycle step.
type ToolPayload struct {
	// CallID is the provider's tool call id.
	CallID string `json:"call_id"`

	// InvocationID is a locally generated id correlating start/end/error
	// for one invocation even when the provider reuses call ids.
	InvocationID string `json:"invocation_id"`

	Name   string `json:"name"`
	Args   string `json:"args,omitempty"`
	Result string `json:"result,omitempty"`
	Err    string `json:"err,omitempty"`
}

// UsagePayload reports token consumption for one provider call.
type UsagePayload struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`

	// Estimated is true when the numbers come from a local heuristic
	// rather than the provider (e.g. after a cancelled stream).
	Estimated bool `json:"estimated,omitempty"`
}

// UsageBreakdownPayload reports fine-grained token accounting when the
// provider supplies it.
type UsageBreakdownPayload struct {
	CacheReadTokens  int64 `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int64 `json:"cache_write_tokens,omitempty"`
	ReasoningTokens  int64 `json:"reasoning_tokens,omitempty"`
}

// RateLimitWaitPayload reports a rate-limit delay. Attempt 0 is the
// proactive pre-call wait; retries increment from 1.
type RateLimitWaitPayload struct {
	Attempt int           `json:"attempt"`
	Wait    time.Duration `json:"wait"`
}

// NodeEndPayload carries the elapsed wall-clock duration of a node.
type NodeEndPayload struct {
	Duration time.Duration `json:"duration"`
}

// IOPayload reports external input/output at a suspension point.
type IOPayload struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// ErrorPayload carries a failure message.
type ErrorPayload struct {
	Message string `json:"message"`
}
