package event

import (
	"time"

	"github.com/google/uuid"
)

// Emitter binds an execution id and node id once and exposes callback-style
// emission for each event type. Provider-facing and node-facing code goes
// through an Emitter so it never builds the envelope itself.
//
// Emitter is immutable; WithNode and WithProviderModel return copies.
type Emitter struct {
	bus         *Bus
	executionID string
	nodeID      string
	provider    string
	model       string
}

// NewEmitter creates an emitter bound to an execution id. nodeID may be
// empty for flow-level events.
func NewEmitter(bus *Bus, executionID, nodeID string) *Emitter {
	return &Emitter{bus: bus, executionID: executionID, nodeID: nodeID}
}

// WithNode returns a copy bound to a different node id.
func (e *Emitter) WithNode(nodeID string) *Emitter {
	if e == nil {
		return nil
	}
	out := *e
	out.nodeID = nodeID
	return &out
}

// WithProviderModel returns a copy that stamps provider and model on every
// subsequent event.
func (e *Emitter) WithProviderModel(provider, model string) *Emitter {
	if e == nil {
		return nil
	}
	out := *e
	out.provider = provider
	out.model = model
	return &out
}

// ExecutionID returns the bound execution id.
func (e *Emitter) ExecutionID() string { return e.executionID }

// NodeID returns the bound node id.
func (e *Emitter) NodeID() string { return e.nodeID }

func (e *Emitter) emit(evt Event) {
	if e == nil || e.bus == nil {
		return
	}
	evt.ID = uuid.New().String()
	evt.ExecutionID = e.executionID
	evt.NodeID = e.nodeID
	evt.Provider = e.provider
	evt.Model = e.model
	evt.Timestamp = time.Now()
	e.bus.Publish(evt)
}

// Chunk emits an incremental text chunk.
func (e *Emitter) Chunk(text string) {
	e.emit(Event{Type: TypeChunk, Chunk: &ChunkPayload{Text: text}})
}

// ToolStart emits the start of a tool invocation and returns the locally
// generated invocation id correlating the matching end or error.
func (e *Emitter) ToolStart(callID, name, args string) string {
	invocationID := uuid.New().String()
	e.emit(Event{Type: TypeToolStart, Tool: &ToolPayload{
		CallID:       callID,
		InvocationID: invocationID,
		Name:         name,
		Args:         args,
	}})
	return invocationID
}

// ToolEnd emits a successful tool completion.
func (e *Emitter) ToolEnd(callID, invocationID, name, result string) {
	e.emit(Event{Type: TypeToolEnd, Tool: &ToolPayload{
		CallID:       callID,
		InvocationID: invocationID,
		Name:         name,
		Result:       result,
	}})
}

// ToolError emits a tool failure.
func (e *Emitter) ToolError(callID, invocationID, name string, err error) {
	payload := &ToolPayload{CallID: callID, InvocationID: invocationID, Name: name}
	if err != nil {
		payload.Err = err.Error()
	}
	e.emit(Event{Type: TypeToolError, Tool: payload})
}

// Usage emits token accounting for one provider call.
func (e *Emitter) Usage(u UsagePayload) {
	e.emit(Event{Type: TypeUsage, Usage: &u})
}

// UsageBreakdown emits fine-grained token accounting.
func (e *Emitter) UsageBreakdown(u UsageBreakdownPayload) {
	e.emit(Event{Type: TypeUsageBreakdown, UsageBreakdown: &u})
}

// RateLimitWait emits a rate-limit delay with its attempt number.
func (e *Emitter) RateLimitWait(attempt int, wait time.Duration) {
	e.emit(Event{Type: TypeRateLimitWait, RateLimitWait: &RateLimitWaitPayload{
		Attempt: attempt,
		Wait:    wait,
	}})
}

// Done emits the terminal event of a flow.
func (e *Emitter) Done() {
	e.emit(Event{Type: TypeDone})
}

// Error emits a failure event.
func (e *Emitter) Error(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.emit(Event{Type: TypeError, Error: &ErrorPayload{Message: msg}})
}

// NodeStart emits a node lifecycle start.
func (e *Emitter) NodeStart() {
	e.emit(Event{Type: TypeNodeStart})
}

// NodeEnd emits a node lifecycle end with its elapsed duration.
func (e *Emitter) NodeEnd(d time.Duration) {
	e.emit(Event{Type: TypeNodeEnd, NodeEnd: &NodeEndPayload{Duration: d}})
}

// WaitingForInput signals that the bound node is parked on external input.
func (e *Emitter) WaitingForInput() {
	e.emit(Event{Type: TypeWaitingForInput})
}

// IO reports external input/output at a suspension point.
func (e *Emitter) IO(kind, value string) {
	e.emit(Event{Type: TypeIO, IO: &IOPayload{Kind: kind, Value: value}})
}
