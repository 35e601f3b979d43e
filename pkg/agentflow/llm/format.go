package llm

import "github.com/randalmurphal/agentflow/pkg/agentflow"

// formatter reshapes provider-neutral conversation state into the message
// layout one backend expects. The wire JSON itself is the adapter's
// business; formatters only settle role naming and system placement.
type formatter func(system string, msgs []agentflow.Message) (string, []agentflow.Message)

var formatters = map[string]formatter{
	"openai":    formatOpenAI,
	"anthropic": formatAnthropic,
	"gemini":    formatGemini,
}

// formatConversation picks the provider's formatter, falling back to the
// OpenAI-compatible layout for unknown providers since most aggregators
// speak it.
func formatConversation(provider, system string, msgs []agentflow.Message) (string, []agentflow.Message) {
	f, ok := formatters[provider]
	if !ok {
		f = formatOpenAI
	}
	return f(system, msgs)
}

// formatOpenAI inlines the system prompt as the leading system-role message.
func formatOpenAI(system string, msgs []agentflow.Message) (string, []agentflow.Message) {
	if system == "" {
		return "", msgs
	}
	out := make([]agentflow.Message, 0, len(msgs)+1)
	out = append(out, agentflow.Message{Role: agentflow.RoleSystem, Content: system})
	out = append(out, msgs...)
	return "", out
}

// formatAnthropic keeps the system prompt out of the message list; the
// API takes it as a top-level field. Any stray system-role turns in the
// history are folded into it.
func formatAnthropic(system string, msgs []agentflow.Message) (string, []agentflow.Message) {
	out := make([]agentflow.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == agentflow.RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system += "\n\n" + m.Content
			}
			continue
		}
		out = append(out, m)
	}
	return system, out
}

// formatGemini renames the assistant role to "model" and keeps the system
// prompt separate for the systemInstruction field.
func formatGemini(system string, msgs []agentflow.Message) (string, []agentflow.Message) {
	system, out := formatAnthropic(system, msgs)
	for i, m := range out {
		if m.Role == agentflow.RoleAssistant {
			out[i].Role = "model"
		}
	}
	return system, out
}
