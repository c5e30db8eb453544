// Package providers groups the language model providers.
//
//   - [github.com/germanamz/crewtrace/pkg/providers/openai]: OpenAI-compatible Chat Completions, plain and intercepting
//
// Providers implement [github.com/germanamz/crewtrace/pkg/modeladapter.Provider]
// and embed [github.com/germanamz/crewtrace/pkg/modeladapter.ModelAdapter] for
// transport, auth and token usage tracking.
package providers
