package llm

import "github.com/randalmurphal/agentflow/pkg/agentflow"

// charsPerToken is the rough conversion used when the provider never
// reported usage. Close enough for accounting; never used for billing.
const charsPerToken = 4

// messageOverheadTokens approximates the per-message framing the providers
// charge beyond the visible text.
const messageOverheadTokens = 4

// EstimateTokens approximates the token count of a text fragment.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	n := int64(len(text)) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

// EstimateConversation approximates the input token cost of a system prompt
// plus message history.
func EstimateConversation(system string, msgs []agentflow.Message) int64 {
	total := EstimateTokens(system)
	for _, m := range msgs {
		total += EstimateTokens(m.Content) + messageOverheadTokens
	}
	return total
}
