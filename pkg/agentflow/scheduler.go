package agentflow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
	"github.com/randalmurphal/agentflow/pkg/agentflow/observability"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// FlowStatus describes the externally visible state of one flow execution.
type FlowStatus string

// Flow statuses.
const (
	FlowRunning         FlowStatus = "running"
	FlowWaitingForInput FlowStatus = "waiting_for_input"
	FlowStopped         FlowStatus = "stopped"
)

// Snapshot is a point-in-time view of a flow execution.
type Snapshot struct {
	Status        FlowStatus `json:"status"`
	ActiveNodeIDs []string   `json:"active_node_ids,omitempty"`
	PausedNodeID  string     `json:"paused_node_id,omitempty"`
}

// Scheduler drives one flow execution: it owns the graph's adjacency
// indices, the pull cache, the pending-input continuations, and the
// cancellation signal. One Scheduler per request id; nothing is shared
// between requests.
type Scheduler struct {
	id  string
	def GraphDefinition
	adj adjacency

	registry *registry.Registry[string, NodeFunc]
	bus      *event.Bus

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	conf    settings

	// done is closed by Cancel. Cancellation is cooperative: in-flight
	// work observes it at its next suspension point.
	done     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	pulls       map[string]*pullEntry
	pending     map[string]chan any
	pausedOrder []string
	active      map[string]int
	finished    bool
}

// pullEntry dedupes concurrent pulls of one node and memoizes the result.
// Created on first pull, never cleared for the lifetime of the Scheduler.
type pullEntry struct {
	done   chan struct{}
	result NodeResult
	err    error
}

// NewScheduler validates the graph, builds the adjacency indices, and
// prepares an execution instance. No node runs until Execute.
func NewScheduler(id string, def GraphDefinition, reg *registry.Registry[string, NodeFunc], bus *event.Bus, opts ...Option) (*Scheduler, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	conf := applyOptions(opts)

	return &Scheduler{
		id:       id,
		def:      def,
		adj:      buildAdjacency(def),
		registry: reg,
		bus:      bus,
		logger:   observability.EnrichLogger(conf.logger, id, ""),
		metrics:  conf.metrics,
		spans:    conf.spans,
		conf:     conf,
		done:     make(chan struct{}),
		pulls:    make(map[string]*pullEntry),
		pending:  make(map[string]chan any),
		active:   make(map[string]int),
	}, nil
}

// ID returns the request id this scheduler executes.
func (s *Scheduler) ID() string { return s.id }

// Execute runs every entry node (nodes with no incoming edges) as a pull,
// sequentially in declaration order. A nil return does not mean the flow
// "finished" in a conversational sense — and a flow that reaches a
// user-input node keeps Execute suspended indefinitely on that node; the
// caller is expected to keep the Scheduler alive and observe progress via
// Snapshot rather than wait on this call.
func (s *Scheduler) Execute(ctx context.Context) error {
	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	done := observability.TimedOperation()
	observability.LogFlowStart(s.logger, s.id, s.adj.entries)

	flowCtx, span := s.spans.StartFlowSpan(runCtx, s.id)

	var err error
	for _, entry := range s.adj.entries {
		if _, err = s.executeNode(flowCtx, entry, nil, "", nil); err != nil {
			break
		}
	}

	s.spans.EndSpanWithError(span, err)
	s.metrics.RecordFlowRun(ctx, err == nil, time.Duration(done())*time.Millisecond)

	switch {
	case err == nil:
		observability.LogFlowComplete(s.logger, s.id, done())
	case IsCancellation(err):
		observability.LogFlowCancelled(s.logger, s.id)
	default:
		observability.LogFlowError(s.logger, s.id, err, done())
	}

	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	return err
}

// Cancel requests a cooperative stop. In-flight provider streams, rate-limit
// sleeps, and pending input waits observe the signal and unwind; nothing is
// forcibly killed. Pending input waits are rejected, since nothing will ever
// resolve them after a cancel.
func (s *Scheduler) Cancel() {
	s.stopOnce.Do(func() { close(s.done) })
}

// Cancelled reports whether Cancel has been called.
func (s *Scheduler) Cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Snapshot returns the externally visible state of the execution.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Status: FlowRunning}
	if s.finished || s.Cancelled() {
		snap.Status = FlowStopped
	} else if len(s.pausedOrder) > 0 {
		snap.Status = FlowWaitingForInput
		snap.PausedNodeID = s.pausedOrder[0]
	}

	for id := range s.active {
		snap.ActiveNodeIDs = append(snap.ActiveNodeIDs, id)
	}
	sort.Strings(snap.ActiveNodeIDs)
	return snap
}

// ResolveInput satisfies the pending input wait for one node. The value is
// delivered to the exact continuation AwaitInput opened; no node restarts
// or replays.
func (s *Scheduler) ResolveInput(nodeID string, value any) error {
	s.mu.Lock()
	ch, ok := s.pending[nodeID]
	if !ok {
		s.mu.Unlock()
		return &NodeError{NodeID: nodeID, Op: "resolve", Err: ErrNoPendingInput}
	}
	delete(s.pending, nodeID)
	s.removePausedLocked(nodeID)
	s.mu.Unlock()

	ch <- value
	return nil
}

// Resume resolves the oldest pending input wait. Most flows have at most
// one node parked at a time; use ResolveInput to target a specific node.
func (s *Scheduler) Resume(value any) error {
	s.mu.Lock()
	if len(s.pausedOrder) == 0 {
		s.mu.Unlock()
		return ErrNoPendingInput
	}
	nodeID := s.pausedOrder[0]
	s.mu.Unlock()

	return s.ResolveInput(nodeID, value)
}

// executeNode is the core dispatch. A call is a push iff it has a caller
// and a non-empty pushed-input map; everything else is a pull.
//
// Pulls are deduplicated and memoized: at most one concurrent execution per
// node, and a completed pull is returned from cache without re-running.
// Pushes are never deduplicated or cached — a pushed node always re-executes
// so event-driven successors see fresh output. The flip side is a real
// invariant consumers must respect: a node reachable by both a pull edge
// and a push edge in the same run can execute twice, with no reconciliation
// between the two results.
func (s *Scheduler) executeNode(ctx context.Context, nodeID string, pushed map[string]any, callerID string, path map[string]bool) (NodeResult, error) {
	isPush := callerID != "" && len(pushed) > 0
	if isPush {
		return s.doExecuteNode(ctx, nodeID, pushed, callerID, true, nil)
	}

	s.mu.Lock()
	if entry, ok := s.pulls[nodeID]; ok {
		s.mu.Unlock()
		select {
		case <-entry.done:
			return entry.result, entry.err
		case <-ctx.Done():
			return NodeResult{}, ctx.Err()
		}
	}
	entry := &pullEntry{done: make(chan struct{})}
	s.pulls[nodeID] = entry
	s.mu.Unlock()

	res, err := s.doExecuteNode(ctx, nodeID, nil, callerID, false, path)
	entry.result, entry.err = res, err
	close(entry.done)
	return res, err
}

// doExecuteNode runs one node's full lifecycle: pull missing inputs,
// invoke the node function, then push outputs forward.
func (s *Scheduler) doExecuteNode(ctx context.Context, nodeID string, pushed map[string]any, callerID string, isPush bool, path map[string]bool) (result NodeResult, err error) {
	decl, ok := s.adj.byID[nodeID]
	if !ok {
		return NodeResult{}, &GraphError{NodeID: nodeID, Err: ErrUnknownNode}
	}

	em := event.NewEmitter(s.bus, s.id, nodeID)
	em.NodeStart()
	observability.LogNodeStart(s.logger, nodeID, isPush)

	nodeCtx, span := s.spans.StartNodeSpan(ctx, nodeID)
	start := time.Now()

	s.markActive(nodeID, +1)

	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{NodeID: nodeID, Value: r, Stack: string(debug.Stack())}
			result = NodeResult{}
		}
		s.markActive(nodeID, -1)
		elapsed := time.Since(start)
		s.metrics.RecordNodeExecution(nodeCtx, nodeID, elapsed, err)
		s.spans.EndSpanWithError(span, err)
		if err != nil {
			// A failure is reported once, at the node it happened in.
			// The pull/push wrappers added while it travels up the call
			// chain must not re-emit it at every ancestor.
			if !IsCancellation(err) && !isPropagated(err) {
				em.Error(err)
				observability.LogNodeError(s.logger, nodeID, err)
			}
			return
		}
		observability.LogNodeComplete(s.logger, nodeID, float64(elapsed.Milliseconds()))
	}()

	// Pull phase: resolve every input the caller did not push, depth-first
	// and in edge declaration order. The edge back to the immediate caller
	// is skipped (the single-hop cycle rule), and so is any edge whose
	// source is already on the current pull path (longer cycles).
	allInputs := make(map[string]any, len(pushed)+len(s.adj.incoming[nodeID]))
	for k, v := range pushed {
		allInputs[k] = v
	}

	childPath := make(map[string]bool, len(path)+1)
	for k := range path {
		childPath[k] = true
	}
	childPath[nodeID] = true

	for _, e := range s.adj.incoming[nodeID] {
		if _, present := allInputs[e.targetInput]; present {
			continue
		}
		if e.source == callerID {
			continue
		}
		if childPath[e.source] {
			observability.LogCycleSkip(s.logger, nodeID, e.source)
			continue
		}

		dep, depErr := s.executeNode(ctx, e.source, nil, nodeID, childPath)
		if depErr != nil {
			err = &NodeError{NodeID: nodeID, Op: "pull", Err: depErr}
			return NodeResult{}, err
		}
		if v, has := dep.Outputs[e.sourceOutput]; has {
			allInputs[e.targetInput] = v
		}
	}

	// Split inputs into the conversational context, the data value, and
	// everything else.
	conv, _ := allInputs[DefaultPort].(*Conversation)
	if conv == nil {
		conv = s.newConversation()
	}
	data := allInputs["data"]
	other := make(map[string]any)
	for k, v := range allInputs {
		if k != DefaultPort && k != "data" {
			other[k] = v
		}
	}

	fn, ok := s.registry.Get(decl.Type)
	if !ok {
		err = &GraphError{NodeID: nodeID, Err: fmt.Errorf("%w: %q", ErrUnknownNodeType, decl.Type)}
		return NodeResult{}, err
	}

	in := NodeInput{
		Conversation: conv,
		Data:         data,
		Inputs:       other,
		Config:       config.New(decl.Config),
		Handle:       &Handle{scheduler: s, nodeID: nodeID, emitter: em},
	}

	result, err = fn(nodeCtx, in)
	if err != nil {
		err = &NodeError{NodeID: nodeID, Op: "execute", Err: err}
		return NodeResult{}, err
	}

	if result.Conversation == nil {
		result.Conversation = conv
	}
	if result.Status == "" {
		result.Status = StatusSuccess
	}

	em.NodeEnd(time.Since(start))

	// Push phase: forward outputs to successors, one target at a time in
	// edge declaration order. Tool outputs are pull-only and never pushed.
	// A target with no matched outputs is not invoked: pushing an empty
	// map would be indistinguishable from a pull. The immediate caller is
	// never pushed back to; that is the other half of the single-hop cycle
	// rule, without it any mutual-edge pair recurses forever.
	if result.Status == StatusSuccess {
		if err = s.pushOutputs(ctx, nodeID, callerID, result); err != nil {
			return NodeResult{}, err
		}
	}

	return result, nil
}

func (s *Scheduler) pushOutputs(ctx context.Context, nodeID, callerID string, res NodeResult) error {
	var order []string
	groups := make(map[string]map[string]any)

	for _, e := range s.adj.outgoing[nodeID] {
		if e.sourceOutput == ToolsPort {
			continue
		}
		if e.target == callerID {
			continue
		}
		v, has := res.Outputs[e.sourceOutput]
		if !has {
			continue
		}
		g, ok := groups[e.target]
		if !ok {
			g = make(map[string]any)
			groups[e.target] = g
			order = append(order, e.target)
		}
		g[e.targetInput] = v
	}

	for _, target := range order {
		g := groups[target]
		if len(g) == 0 {
			continue
		}
		if _, err := s.executeNode(ctx, target, g, nodeID, nil); err != nil {
			return &NodeError{NodeID: nodeID, Op: "push", Err: err}
		}
	}
	return nil
}

// newConversation builds the default conversational state for nodes no
// incoming edge supplied one to.
func (s *Scheduler) newConversation() *Conversation {
	return &Conversation{
		Provider:  firstNonEmpty(s.conf.provider, s.conf.engine.DefaultProvider),
		Model:     firstNonEmpty(s.conf.model, s.conf.engine.DefaultModel),
		RequestID: s.id,
		SessionID: s.conf.sessionID,
	}
}

// runContext derives a context cancelled by either the parent or Cancel.
func (s *Scheduler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-s.done:
			cancel(ErrCancelled)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

func (s *Scheduler) registerWait(nodeID string) (chan any, error) {
	if s.Cancelled() {
		return nil, ErrCancelled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[nodeID]; exists {
		return nil, &NodeError{NodeID: nodeID, Op: "wait", Err: ErrAlreadyWaiting}
	}
	ch := make(chan any, 1)
	s.pending[nodeID] = ch
	s.pausedOrder = append(s.pausedOrder, nodeID)
	return ch, nil
}

func (s *Scheduler) clearWait(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, nodeID)
	s.removePausedLocked(nodeID)
}

func (s *Scheduler) removePausedLocked(nodeID string) {
	for i, id := range s.pausedOrder {
		if id == nodeID {
			s.pausedOrder = append(s.pausedOrder[:i], s.pausedOrder[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) markActive(nodeID string, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[nodeID] += delta
	if s.active[nodeID] <= 0 {
		delete(s.active, nodeID)
	}
}

// isPropagated reports whether err is a pull or push wrapper around a
// failure that originated in another node. Only the outermost wrapper is
// inspected: by the time the defer in doExecuteNode sees the error, this
// node's own contribution is the top of the chain.
func isPropagated(err error) bool {
	ne, ok := err.(*NodeError)
	return ok && (ne.Op == "pull" || ne.Op == "push")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
