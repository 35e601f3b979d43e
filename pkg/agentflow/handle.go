package agentflow

import (
	"context"
	"fmt"

	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
)

// Handle is the execution capability handed to a node function. It carries
// the callbacks a node needs to interact with its scheduler — waiting for
// external input and portal re-triggering — without exposing scheduler
// internals and without polluting the Conversation, which stays a plain
// serializable value.
type Handle struct {
	scheduler *Scheduler
	nodeID    string
	emitter   *event.Emitter
}

// NodeID returns the id of the node this handle belongs to.
func (h *Handle) NodeID() string { return h.nodeID }

// ExecutionID returns the request id of the running flow.
func (h *Handle) ExecutionID() string { return h.scheduler.id }

// Emitter returns the node-bound event emitter. Chat nodes pass this to the
// llm service so streaming progress is reported against the right node.
func (h *Handle) Emitter() *event.Emitter { return h.emitter }

// AwaitInput parks the calling node until an external Resume supplies a
// value, or the flow is cancelled. The entire call chain above the node
// stays suspended with it: the flow is still running, just parked, and
// resuming satisfies this one continuation without replaying any node.
func (h *Handle) AwaitInput(ctx context.Context) (any, error) {
	ch, err := h.scheduler.registerWait(h.nodeID)
	if err != nil {
		return nil, err
	}

	h.emitter.WaitingForInput()
	observability.LogSuspended(h.scheduler.logger, h.nodeID)

	select {
	case v := <-ch:
		observability.LogResumed(h.scheduler.logger, h.nodeID)
		h.emitter.IO("user_input", fmt.Sprint(v))
		return v, nil
	case <-h.scheduler.done:
		h.scheduler.clearWait(h.nodeID)
		return nil, ErrCancelled
	case <-ctx.Done():
		h.scheduler.clearWait(h.nodeID)
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		return nil, ctx.Err()
	}
}

// Trigger pushes outputs into a fixed target node, re-executing it even if
// it ran earlier in this request. This is the portal fan-out primitive; it
// is the only sanctioned way a node re-enters the graph mid-run.
//
// Outputs must be non-empty: pushing an empty map is indistinguishable from
// a pull and is rejected rather than misclassified.
func (h *Handle) Trigger(ctx context.Context, targetID string, outputs map[string]any) error {
	if len(outputs) == 0 {
		return &NodeError{NodeID: h.nodeID, Op: "trigger", Err: fmt.Errorf("empty push to %s", targetID)}
	}
	_, err := h.scheduler.executeNode(ctx, targetID, outputs, h.nodeID, nil)
	return err
}
