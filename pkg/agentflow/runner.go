package agentflow

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// StartArgs configures one flow start.
type StartArgs struct {
	// RequestID identifies the execution. Generated when empty.
	RequestID string

	// Graph is the flow definition to execute.
	Graph GraphDefinition

	// Options override the Runner's defaults for this execution only.
	Options []Option
}

// Runner is the non-blocking front door: it launches flow executions on
// background goroutines and tracks them by request id so callers can
// resume, cancel, and inspect them later. Terminal state is signalled on
// the event bus with exactly one done event per execution, whether the
// flow completed, failed, or was cancelled.
type Runner struct {
	registry *registry.Registry[string, NodeFunc]
	bus      *event.Bus
	opts     []Option

	mu    sync.Mutex
	flows map[string]*Scheduler
}

// NewRunner returns a Runner that executes flows against the given node
// registry, publishing execution events on bus.
func NewRunner(reg *registry.Registry[string, NodeFunc], bus *event.Bus, opts ...Option) *Runner {
	return &Runner{
		registry: reg,
		bus:      bus,
		opts:     opts,
		flows:    make(map[string]*Scheduler),
	}
}

// Start validates the graph and launches its execution in the background,
// returning the request id immediately. Validation failures are returned
// synchronously; runtime failures surface as error events followed by the
// terminal done event.
func (r *Runner) Start(ctx context.Context, args StartArgs) (string, error) {
	id := args.RequestID
	if id == "" {
		id = uuid.New().String()
	}

	opts := make([]Option, 0, len(r.opts)+len(args.Options))
	opts = append(opts, r.opts...)
	opts = append(opts, args.Options...)

	sched, err := NewScheduler(id, args.Graph, r.registry, r.bus, opts...)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if _, exists := r.flows[id]; exists {
		r.mu.Unlock()
		return "", &GraphError{Err: ErrDuplicateRequestID}
	}
	r.flows[id] = sched
	r.mu.Unlock()

	go func() {
		err := sched.Execute(ctx)

		em := event.NewEmitter(r.bus, id, "")
		if err != nil && !IsCancellation(err) {
			em.Error(err)
		}
		em.Done()

		r.mu.Lock()
		delete(r.flows, id)
		r.mu.Unlock()
	}()

	return id, nil
}

// Resume delivers a user value to the oldest node of the execution that is
// waiting for input.
func (r *Runner) Resume(requestID string, value any) error {
	sched, err := r.flow(requestID)
	if err != nil {
		return err
	}
	return sched.Resume(value)
}

// ResolveInput delivers a user value to a specific waiting node.
func (r *Runner) ResolveInput(requestID, nodeID string, value any) error {
	sched, err := r.flow(requestID)
	if err != nil {
		return err
	}
	return sched.ResolveInput(nodeID, value)
}

// Cancel requests a cooperative stop of the execution. Unknown or already
// finished request ids are not an error: the caller's intent is already
// satisfied.
func (r *Runner) Cancel(requestID string) {
	r.mu.Lock()
	sched := r.flows[requestID]
	r.mu.Unlock()

	if sched != nil {
		sched.Cancel()
	}
}

// Snapshot reports the current state of an execution. Finished executions
// are reported as stopped.
func (r *Runner) Snapshot(requestID string) (Snapshot, error) {
	r.mu.Lock()
	sched := r.flows[requestID]
	r.mu.Unlock()

	if sched == nil {
		return Snapshot{Status: FlowStopped}, nil
	}
	return sched.Snapshot(), nil
}

// Active returns the request ids of executions that have not yet reached
// their terminal done event.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	return ids
}

func (r *Runner) flow(requestID string) (*Scheduler, error) {
	r.mu.Lock()
	sched := r.flows[requestID]
	r.mu.Unlock()

	if sched == nil {
		return nil, ErrUnknownRequest
	}
	return sched, nil
}
