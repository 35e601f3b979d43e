package nodes_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/config"
	"github.com/randalmurphal/agentflow/pkg/agentflow/event"
	"github.com/randalmurphal/agentflow/pkg/agentflow/llm"
	"github.com/randalmurphal/agentflow/pkg/agentflow/nodes"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// scriptedAdapter replies with a fixed text and remembers each request.
type scriptedAdapter struct {
	reply string

	mu       sync.Mutex
	requests []llm.StreamRequest
}

type scriptedHandle struct {
	text string
}

func (h *scriptedHandle) Cancel() {}

func (h *scriptedHandle) Wait() (string, llm.Usage, error) {
	return h.text, llm.Usage{InputTokens: 1, OutputTokens: 1}, nil
}

func (a *scriptedAdapter) Name() string { return "fake" }

func (a *scriptedAdapter) StreamChat(ctx context.Context, req llm.StreamRequest, cb llm.Callbacks) (llm.StreamHandle, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	a.mu.Unlock()

	cb.OnChunk(a.reply)
	return &scriptedHandle{text: a.reply}, nil
}

func (a *scriptedAdapter) recorded() []llm.StreamRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.StreamRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

func newTestService(adapter *scriptedAdapter) *llm.Service {
	adapters := registry.New[string, llm.Adapter]()
	adapters.Register("fake", adapter)

	return llm.NewService(adapters,
		llm.WithKeyStore(llm.StaticKeys{"fake": "key"}),
		llm.WithDefaults("fake", "test-model"),
	)
}

func installedRegistry(svc *llm.Service) *registry.Registry[string, agentflow.NodeFunc] {
	reg := registry.New[string, agentflow.NodeFunc]()
	nodes.Install(reg, svc)
	return reg
}

func TestInstall_RegistersAllTypes(t *testing.T) {
	reg := installedRegistry(newTestService(&scriptedAdapter{}))

	for _, typ := range []string{
		nodes.TypeStart, nodes.TypeChat, nodes.TypeUserInput, nodes.TypeTools, nodes.TypePortal,
	} {
		assert.True(t, reg.Has(typ), typ)
	}
}

func TestEndToEnd_StartUserInputChatWithPulledTools(t *testing.T) {
	adapter := &scriptedAdapter{reply: "the answer"}
	svc := newTestService(adapter)
	reg := installedRegistry(svc)

	bus := event.NewBus(event.BusConfig{})
	t.Cleanup(bus.Close)

	var mu sync.Mutex
	var events []event.Event
	sub := bus.SubscribeAll(func(evt event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
	})
	t.Cleanup(sub.Unsubscribe)

	snapshot := func() []event.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]event.Event, len(events))
		copy(out, events)
		return out
	}
	countTyped := func(typ event.Type, nodeID string) int {
		n := 0
		for _, e := range snapshot() {
			if e.Type == typ && (nodeID == "" || e.NodeID == nodeID) {
				n++
			}
		}
		return n
	}

	graph := agentflow.GraphDefinition{
		Nodes: []agentflow.NodeDecl{
			{ID: "start", Type: nodes.TypeStart, Config: map[string]any{
				"system": "you are terse",
			}},
			{ID: "ask", Type: nodes.TypeUserInput},
			{ID: "chat", Type: nodes.TypeChat},
			{ID: "toolbox", Type: nodes.TypeTools, Config: map[string]any{
				"tools": []any{
					map[string]any{"name": "read_file", "description": "reads a file"},
				},
			}},
		},
		Edges: []agentflow.EdgeDecl{
			{Source: "start", Target: "ask"},
			{Source: "ask", Target: "chat"},
			{Source: "toolbox", Target: "chat", SourceOutput: agentflow.ToolsPort, TargetInput: agentflow.ToolsPort},
		},
	}

	runner := agentflow.NewRunner(reg, bus)
	id, err := runner.Start(context.Background(), agentflow.StartArgs{Graph: graph})
	require.NoError(t, err)

	// start runs, then the flow parks on the user-input node. chat must
	// not have run yet.
	require.Eventually(t, func() bool {
		return countTyped(event.TypeWaitingForInput, "ask") == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, countTyped(event.TypeNodeStart, "start"))
	assert.Equal(t, 1, countTyped(event.TypeNodeEnd, "start"))
	assert.Zero(t, countTyped(event.TypeNodeStart, "chat"))

	require.NoError(t, runner.Resume(id, "what is 2+2"))

	require.Eventually(t, func() bool {
		return countTyped(event.TypeDone, "") == 1
	}, 2*time.Second, 10*time.Millisecond)

	// chat ran exactly once, fed by the pull-only tools edge.
	assert.Equal(t, 1, countTyped(event.TypeNodeStart, "chat"))

	reqs := adapter.recorded()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "read_file", reqs[0].Tools[0].Name)

	// The unknown "fake" provider gets the OpenAI-compatible layout, so
	// the system prompt arrives as the leading system-role message.
	require.NotEmpty(t, reqs[0].Messages)
	assert.Equal(t, agentflow.RoleSystem, reqs[0].Messages[0].Role)
	assert.Equal(t, "you are terse", reqs[0].Messages[0].Content)

	// The user turn flowed through the conversation into the wire call.
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.Equal(t, agentflow.RoleUser, last.Role)
	assert.Equal(t, "what is 2+2", last.Content)

	// Streaming chunks were relayed with the chat node's identity.
	assert.Equal(t, 1, countTyped(event.TypeChunk, "chat"))
}

func TestStartNode_SeedsConversation(t *testing.T) {
	fn := nodes.Start()

	handleless := agentflow.NodeInput{
		Conversation: &agentflow.Conversation{Provider: "fake", Model: "m"},
		Config: configFor(map[string]any{
			"system":  "be helpful",
			"message": "hello",
		}),
	}

	res, err := fn(context.Background(), handleless)
	require.NoError(t, err)

	conv, ok := res.Outputs[agentflow.DefaultPort].(*agentflow.Conversation)
	require.True(t, ok)
	assert.Equal(t, "be helpful", conv.System)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "hello", conv.Messages[0].Content)
}

func TestToolsNode_BuildsSpecs(t *testing.T) {
	fn := nodes.Tools()

	res, err := fn(context.Background(), agentflow.NodeInput{
		Config: configFor(map[string]any{
			"tools": []any{
				map[string]any{
					"name":        "search",
					"description": "searches",
					"parameters":  map[string]any{"type": "object"},
				},
			},
		}),
	})
	require.NoError(t, err)

	specs, ok := res.Outputs[agentflow.ToolsPort].([]llm.ToolSpec)
	require.True(t, ok)
	require.Len(t, specs, 1)
	assert.Equal(t, "search", specs[0].Name)
	assert.Equal(t, "searches", specs[0].Description)
}

func TestToolsNode_RejectsNamelessEntry(t *testing.T) {
	fn := nodes.Tools()
	_, err := fn(context.Background(), agentflow.NodeInput{
		Config: configFor(map[string]any{
			"tools": []any{map[string]any{"description": "no name"}},
		}),
	})
	assert.Error(t, err)
}

func TestPortalNode_RequiresTarget(t *testing.T) {
	fn := nodes.Portal()
	_, err := fn(context.Background(), agentflow.NodeInput{
		Conversation: &agentflow.Conversation{},
		Config:       configFor(nil),
	})
	assert.Error(t, err)
}

func TestPortalNode_RetriggersTarget(t *testing.T) {
	adapter := &scriptedAdapter{reply: "round two"}
	svc := newTestService(adapter)
	reg := installedRegistry(svc)

	bus := event.NewBus(event.BusConfig{})
	t.Cleanup(bus.Close)

	// echo counts its executions; the portal re-triggers it once.
	var mu sync.Mutex
	runs := 0
	reg.Register("echo", func(ctx context.Context, in agentflow.NodeInput) (agentflow.NodeResult, error) {
		mu.Lock()
		runs++
		count := runs
		mu.Unlock()

		outputs := map[string]any{agentflow.DefaultPort: in.Conversation}
		if count == 1 {
			outputs["next"] = "again"
		}
		return agentflow.NodeResult{Outputs: outputs}, nil
	})

	graph := agentflow.GraphDefinition{
		Nodes: []agentflow.NodeDecl{
			{ID: "echo", Type: "echo"},
			{ID: "loop", Type: nodes.TypePortal, Config: map[string]any{
				"target": "echo",
			}},
		},
		Edges: []agentflow.EdgeDecl{
			{Source: "echo", Target: "loop", SourceOutput: "next", TargetInput: "data"},
		},
	}

	runner := agentflow.NewRunner(reg, bus)
	_, err := runner.Start(context.Background(), agentflow.StartArgs{Graph: graph})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return runs == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func configFor(data map[string]any) config.Config {
	return config.New(data)
}
