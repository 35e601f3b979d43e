// Package nodes provides the built-in node types for agentflow graphs:
// conversation entry points, orchestrated chat turns, user-input pauses,
// tool declarations, and portal re-triggers.
package nodes

import (
	"context"
	"fmt"

	"github.com/randalmurphal/agentflow/pkg/agentflow"
	"github.com/randalmurphal/agentflow/pkg/agentflow/llm"
	"github.com/randalmurphal/agentflow/pkg/agentflow/registry"
)

// Node type names as used in graph definitions.
const (
	TypeStart     = "start"
	TypeChat      = "chat"
	TypeUserInput = "userInput"
	TypeTools     = "tools"
	TypePortal    = "portal"
)

// Install registers every built-in node type against the registry. Chat
// nodes orchestrate through svc.
func Install(reg *registry.Registry[string, agentflow.NodeFunc], svc *llm.Service) {
	reg.Register(TypeStart, Start())
	reg.Register(TypeChat, Chat(svc))
	reg.Register(TypeUserInput, UserInput())
	reg.Register(TypeTools, Tools())
	reg.Register(TypePortal, Portal())
}

// Start seeds a flow. Config keys:
//
//	system      initial system prompt
//	message     initial user message
//	provider    provider override for the conversation
//	model       model override for the conversation
//
// It forwards the conversation on the default output and any configured
// "data" value on the data output.
func Start() agentflow.NodeFunc {
	return func(ctx context.Context, in agentflow.NodeInput) (agentflow.NodeResult, error) {
		conv := in.Conversation
		if p := in.Config.String("provider", ""); p != "" {
			conv = conv.WithProviderModel(p, in.Config.String("model", conv.Model))
		} else if m := in.Config.String("model", ""); m != "" {
			conv = conv.WithProviderModel(conv.Provider, m)
		}
		if sys := in.Config.String("system", ""); sys != "" {
			c := conv.Clone()
			c.System = sys
			conv = c
		}
		if msg := in.Config.String("message", ""); msg != "" {
			conv = conv.WithMessage(agentflow.RoleUser, msg)
		}

		outputs := map[string]any{agentflow.DefaultPort: conv}
		if data, ok := in.Config.Raw("data"); ok {
			outputs["data"] = data
		} else if in.Data != nil {
			outputs["data"] = in.Data
		}

		return agentflow.NodeResult{Outputs: outputs, Conversation: conv}, nil
	}
}

// Chat runs one orchestrated provider turn. Config keys:
//
//	message        user turn to append; empty re-sends history
//	provider       provider override for this turn
//	model          model override for this turn
//	skip_history   send without recording the turn
//
// A pulled "tools" input supplies the tool specs offered to the model.
// The assistant text is forwarded on the "response" output alongside the
// updated conversation on the default output.
func Chat(svc *llm.Service) agentflow.NodeFunc {
	return func(ctx context.Context, in agentflow.NodeInput) (agentflow.NodeResult, error) {
		message := in.Config.String("message", "")
		if message == "" {
			if s, ok := in.Data.(string); ok {
				message = s
			}
		}

		var tools []llm.ToolSpec
		if raw, ok := in.Inputs[agentflow.ToolsPort]; ok {
			specs, ok := raw.([]llm.ToolSpec)
			if !ok {
				return agentflow.NodeResult{}, fmt.Errorf("tools input has unexpected type %T", raw)
			}
			tools = specs
		}

		res, err := svc.Chat(ctx, llm.Request{
			Message:      message,
			Conversation: in.Conversation,
			Tools:        tools,
			Emitter:      in.Handle.Emitter(),
			Provider:     in.Config.String("provider", ""),
			Model:        in.Config.String("model", ""),
			SkipHistory:  in.Config.Bool("skip_history", false),
		})
		if err != nil {
			return agentflow.NodeResult{}, err
		}
		if res.Cancelled {
			return agentflow.NodeResult{
				Conversation: res.Conversation,
				Status:       agentflow.StatusError,
			}, nil
		}

		return agentflow.NodeResult{
			Outputs: map[string]any{
				agentflow.DefaultPort: res.Conversation,
				"response":            res.Text,
			},
			Conversation: res.Conversation,
		}, nil
	}
}

// UserInput parks the flow until a value arrives through Resume or
// ResolveInput, then records it as a user turn and forwards it. Config:
//
//	prompt   optional text emitted as an io event before waiting
func UserInput() agentflow.NodeFunc {
	return func(ctx context.Context, in agentflow.NodeInput) (agentflow.NodeResult, error) {
		if prompt := in.Config.String("prompt", ""); prompt != "" {
			in.Handle.Emitter().IO("prompt", prompt)
		}

		value, err := in.Handle.AwaitInput(ctx)
		if err != nil {
			return agentflow.NodeResult{}, err
		}

		text := fmt.Sprint(value)
		conv := in.Conversation.WithMessage(agentflow.RoleUser, text)

		return agentflow.NodeResult{
			Outputs: map[string]any{
				agentflow.DefaultPort: conv,
				"data":                text,
			},
			Conversation: conv,
		}, nil
	}
}

// Tools exposes a declared tool list on the "tools" output. Config:
//
//	tools    list of {name, description, parameters} entries
//
// Edges from this output are pull-only: chat nodes pull the specs on
// demand, nothing is ever pushed through them.
func Tools() agentflow.NodeFunc {
	return func(ctx context.Context, in agentflow.NodeInput) (agentflow.NodeResult, error) {
		entries := in.Config.Slice("tools")
		specs := make([]llm.ToolSpec, 0, len(entries))
		for _, entry := range entries {
			m, ok := entry.(map[string]any)
			if !ok {
				return agentflow.NodeResult{}, fmt.Errorf("tool entry has unexpected type %T", entry)
			}
			spec := llm.ToolSpec{}
			if v, ok := m["name"].(string); ok {
				spec.Name = v
			}
			if spec.Name == "" {
				return agentflow.NodeResult{}, fmt.Errorf("tool entry missing name")
			}
			if v, ok := m["description"].(string); ok {
				spec.Description = v
			}
			if v, ok := m["parameters"].(map[string]any); ok {
				spec.Parameters = v
			}
			specs = append(specs, spec)
		}

		return agentflow.NodeResult{
			Outputs: map[string]any{agentflow.ToolsPort: specs},
		}, nil
	}
}

// Portal pushes its inputs back into a fixed target node, re-triggering it
// with fresh values. Config:
//
//	target   node id to re-trigger (required)
//	input    target input name for the forwarded conversation
//
// The push happens through the Handle so the scheduler treats the portal
// as the caller, which is what lets two-node loops terminate.
func Portal() agentflow.NodeFunc {
	return func(ctx context.Context, in agentflow.NodeInput) (agentflow.NodeResult, error) {
		target := in.Config.String("target", "")
		if target == "" {
			return agentflow.NodeResult{}, fmt.Errorf("portal node requires a target")
		}
		inputName := in.Config.String("input", agentflow.DefaultPort)

		outputs := map[string]any{inputName: in.Conversation}
		for k, v := range in.Inputs {
			outputs[k] = v
		}
		if in.Data != nil {
			outputs["data"] = in.Data
		}

		if err := in.Handle.Trigger(ctx, target, outputs); err != nil {
			return agentflow.NodeResult{}, err
		}

		return agentflow.NodeResult{
			Outputs: map[string]any{agentflow.DefaultPort: in.Conversation},
		}, nil
	}
}
