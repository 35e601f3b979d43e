package agentflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph validation.
var (
	// ErrEmptyGraph indicates a graph definition with no nodes.
	ErrEmptyGraph = errors.New("graph has no nodes")

	// ErrEmptyNodeID indicates a node declared without an id.
	ErrEmptyNodeID = errors.New("node id cannot be empty")

	// ErrEmptyNodeType indicates a node declared without a type.
	ErrEmptyNodeType = errors.New("node type cannot be empty")

	// ErrDuplicateNodeID indicates two nodes sharing one id.
	ErrDuplicateNodeID = errors.New("duplicate node id")

	// ErrEdgeSourceNotFound indicates an edge referencing an undeclared source.
	ErrEdgeSourceNotFound = errors.New("edge source node not found")

	// ErrEdgeTargetNotFound indicates an edge referencing an undeclared target.
	ErrEdgeTargetNotFound = errors.New("edge target node not found")
)

// Sentinel errors for execution.
var (
	// ErrUnknownNode indicates a node id absent from the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrUnknownNodeType indicates a node type with no registered function.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrCancelled indicates the flow was cancelled. Cancellation is a
	// clean stop, never surfaced as a user-visible failure.
	ErrCancelled = errors.New("flow cancelled")

	// ErrUnknownRequest indicates a request id with no live scheduler.
	ErrUnknownRequest = errors.New("unknown request id")

	// ErrDuplicateRequestID indicates a start with a request id that is
	// already executing.
	ErrDuplicateRequestID = errors.New("duplicate request id")

	// ErrNoPendingInput indicates a resume with no node waiting for input.
	ErrNoPendingInput = errors.New("no pending input wait")

	// ErrAlreadyWaiting indicates a node trying to open a second
	// concurrent input wait.
	ErrAlreadyWaiting = errors.New("node already waiting for input")
)

// GraphError reports a structural problem with a graph definition or a
// reference to a node the graph does not declare.
type GraphError struct {
	// NodeID is the offending node id, when known.
	NodeID string
	// EdgeID is the offending edge id, when known.
	EdgeID string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	switch {
	case e.EdgeID != "" && e.NodeID != "":
		return fmt.Sprintf("graph: edge %s: node %s: %v", e.EdgeID, e.NodeID, e.Err)
	case e.NodeID != "":
		return fmt.Sprintf("graph: node %s: %v", e.NodeID, e.Err)
	default:
		return fmt.Sprintf("graph: %v", e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// NodeError wraps a failure with the id of the node where it originated.
type NodeError struct {
	// NodeID is the node that failed.
	NodeID string
	// Op is the operation that failed (e.g. "execute", "pull").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic escaping a node function.
type PanicError struct {
	// NodeID is the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// cancellationPhrases are matched case-insensitively against error text from
// providers that report stream termination as a plain error string.
var cancellationPhrases = []string{
	"cancelled",
	"canceled",
	"aborted",
	"terminated",
}

// IsCancellation reports whether err represents a cooperative stop rather
// than a genuine failure. Cancellation is suppressed from the error event
// stream: a cancelled flow ends with a single done event.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range cancellationPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
