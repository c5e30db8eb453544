// Package modeladapter defines the language-model provider capability and the
// shared plumbing concrete adapters embed.
//
// It contains:
//   - [Provider] interface: Call, SupportsStopWords, EstimateTokenCount
//   - embeddable [ModelAdapter] base struct with a bounded-timeout HTTP client, auth, custom headers, and usage tracking
//   - [TransportError] and [MalformedResponseError], the failures a transport-facing adapter can report
//   - [github.com/germanamz/crewtrace/pkg/modeladapter/usage]: model observation ledger and token usage tracker
//
// This package contains no provider-specific code. Concrete adapters live in
// separate packages that import modeladapter.
package modeladapter
