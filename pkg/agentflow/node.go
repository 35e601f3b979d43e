package agentflow

import (
	"context"

	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
)

// Status reports how a node's execution ended.
type Status string

// Node result statuses.
const (
	// StatusSuccess means the node completed and its outputs are valid.
	StatusSuccess Status = "success"

	// StatusPaused means the node is blocked on external input. The
	// scheduler does not push a paused node's outputs forward.
	StatusPaused Status = "paused"

	// StatusError means the node failed without returning a Go error.
	StatusError Status = "error"
)

// NodeInput carries everything a node function receives for one execution.
type NodeInput struct {
	// Conversation is the conversational state for this node's turn.
	// Never nil; the scheduler supplies a default when no incoming edge
	// provided one.
	Conversation *Conversation

	// Data is the value arriving on the "data" input, or nil.
	Data any

	// Inputs holds all other named inputs (everything except "context"
	// and "data").
	Inputs map[string]any

	// Config is the node's declared configuration.
	Config config.Config

	// Handle is the execution capability: user-input waits and portal
	// re-triggers go through it. It is deliberately separate from the
	// Conversation so the conversational state stays a plain data record.
	Handle *Handle
}

// NodeResult is what a node function returns.
type NodeResult struct {
	// Outputs maps output names to values. Downstream edges select from
	// this map by their source-output name.
	Outputs map[string]any

	// Conversation is the (possibly unchanged) conversational state after
	// this node's turn. The scheduler substitutes the input conversation
	// when nil.
	Conversation *Conversation

	// Status defaults to StatusSuccess when empty.
	Status Status
}

// NodeFunc is the signature for all node implementations. The scheduler
// never inspects node-type-specific behavior; every variant (chat call,
// tool list, user-input wait, portal fan-out) lives behind this contract.
//
// The context carries the flow's cancellation signal; long-running nodes
// must observe it at their suspension points.
type NodeFunc func(ctx context.Context, in NodeInput) (NodeResult, error)
