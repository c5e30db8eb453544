package modeladapter

import "github.com/germanamz/crewtrace/pkg/chats"

// perMessageOverhead is the estimated token overhead for each message (role,
// structure delimiters, etc.).
const perMessageOverhead = 4

// perToolOverhead is the estimated token overhead for each tool definition
// (JSON wrapping, function object structure, etc.).
const perToolOverhead = 10

// TokenEstimator estimates token counts with a character heuristic
// (approximately 1 token per 4 characters of English text). The zero value
// is ready to use.
type TokenEstimator struct{}

// charsToTokens converts a character count to an estimated token count.
func charsToTokens(chars int) int {
	return (chars + 3) / 4 // round up
}

// EstimateText estimates the tokens in a single piece of text.
func (e *TokenEstimator) EstimateText(text string) int {
	return charsToTokens(len(text))
}

// EstimateMessages estimates the input tokens for a conversation, including
// per-message structural overhead.
func (e *TokenEstimator) EstimateMessages(msgs []chats.Message) int {
	tokens := 0
	for _, m := range msgs {
		tokens += perMessageOverhead + charsToTokens(len(m.Content))
	}
	return tokens
}

// EstimateTools estimates the token cost of tool definitions.
func (e *TokenEstimator) EstimateTools(tools []Tool) int {
	tokens := 0
	for _, t := range tools {
		tokens += charsToTokens(len(t.Name)+len(t.Description)+len(t.Parameters)) + perToolOverhead
	}
	return tokens
}

// EstimateTotal estimates total input tokens for a conversation combined with
// tool definitions.
func (e *TokenEstimator) EstimateTotal(msgs []chats.Message, tools []Tool) int {
	return e.EstimateMessages(msgs) + e.EstimateTools(tools)
}
