package agentflow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
)

func TestIsCancellation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", agentflow.ErrCancelled, true},
		{"wrapped sentinel", fmt.Errorf("run failed: %w", agentflow.ErrCancelled), true},
		{"context canceled", context.Canceled, true},
		{"cancelled phrase", errors.New("stream was cancelled by client"), true},
		{"canceled phrase", errors.New("request canceled"), true},
		{"aborted phrase", errors.New("connection aborted"), true},
		{"terminated phrase", errors.New("process terminated"), true},
		{"ordinary error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, agentflow.IsCancellation(tt.err))
		})
	}
}

func TestNodeError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &agentflow.NodeError{NodeID: "n1", Op: "execute", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "n1")
}

func TestGraphError_Unwrap(t *testing.T) {
	err := &agentflow.GraphError{NodeID: "n1", Err: agentflow.ErrUnknownNode}
	assert.ErrorIs(t, err, agentflow.ErrUnknownNode)
	assert.Contains(t, err.Error(), "n1")
}

func TestPanicError_Message(t *testing.T) {
	err := &agentflow.PanicError{NodeID: "n1", Value: "oops", Stack: "stack trace"}
	assert.Contains(t, err.Error(), "n1")
	assert.Contains(t, err.Error(), "oops")
}
