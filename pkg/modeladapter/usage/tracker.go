package usage

import "sync"

// TokenCount holds input and output token counts for a single LLM call.
type TokenCount struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (tc TokenCount) Total() int {
	return tc.InputTokens + tc.OutputTokens
}

// Metrics summarizes token spend over a set of successful requests.
type Metrics struct {
	PromptTokens       int `json:"prompt_tokens"`
	CompletionTokens   int `json:"completion_tokens"`
	TotalTokens        int `json:"total_tokens"`
	SuccessfulRequests int `json:"successful_requests"`
}

// Add returns the field-wise sum of m and o.
func (m Metrics) Add(o Metrics) Metrics {
	return Metrics{
		PromptTokens:       m.PromptTokens + o.PromptTokens,
		CompletionTokens:   m.CompletionTokens + o.CompletionTokens,
		TotalTokens:        m.TotalTokens + o.TotalTokens,
		SuccessfulRequests: m.SuccessfulRequests + o.SuccessfulRequests,
	}
}

// Sub returns the field-wise difference m - o, used for before/after deltas.
func (m Metrics) Sub(o Metrics) Metrics {
	return Metrics{
		PromptTokens:       m.PromptTokens - o.PromptTokens,
		CompletionTokens:   m.CompletionTokens - o.CompletionTokens,
		TotalTokens:        m.TotalTokens - o.TotalTokens,
		SuccessfulRequests: m.SuccessfulRequests - o.SuccessfulRequests,
	}
}

// Tracker accumulates token usage across multiple LLM calls.
// It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	entries []TokenCount
}

// Add records a token count entry.
func (t *Tracker) Add(tc TokenCount) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = append(t.entries, tc)
}

// Last returns the most recent token count entry.
// The bool is false when the tracker has no entries.
func (t *Tracker) Last() (TokenCount, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) == 0 {
		return TokenCount{}, false
	}

	return t.entries[len(t.entries)-1], true
}

// Count returns the number of recorded entries.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Metrics returns the aggregate over all entries; each entry counts as one
// successful request.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := Metrics{SuccessfulRequests: len(t.entries)}
	for _, e := range t.entries {
		m.PromptTokens += e.InputTokens
		m.CompletionTokens += e.OutputTokens
	}
	m.TotalTokens = m.PromptTokens + m.CompletionTokens

	return m
}

// Reset clears all recorded entries.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
}
