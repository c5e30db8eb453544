// Package probe sends a minimal completion to the configured endpoint to find
// out which model a routing proxy actually serves.
package probe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/germanamz/crewtrace/pkg/engine"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/providers/openai"
)

// Reply budgets for the two kinds of probe.
const (
	ReportMaxTokens = 5
	CheckMaxTokens  = 2
)

const probePrompt = "Hi"

// Result is the outcome of one probe.
type Result struct {
	Requested string        `json:"requested_model"`
	Actual    string        `json:"actual_model,omitempty"`
	Found     bool          `json:"found"`
	Usage     *openai.Usage `json:"usage,omitempty"`
	Err       error         `json:"-"`
}

// Error returns the failure text, or "" on success.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Prober issues probe requests through an intercepting provider, so every
// successful probe is also recorded as a direct transport observation.
type Prober struct {
	provider *openai.Intercepted
}

// New creates a Prober for the endpoint described by s.
func New(s engine.Settings, ledger *usage.Ledger, log *slog.Logger, maxTokens int) *Prober {
	p := openai.NewIntercepted(s.APIBase, s.APIKey, s.Model, ledger, usage.SourceDirectHTTP)
	p.MaxTokens = maxTokens
	p.Timeout = s.Timeout
	p.Log = log

	return &Prober{provider: p}
}

// Provider exposes the underlying provider.
func (p *Prober) Provider() *openai.Intercepted { return p.provider }

// Run sends the probe and reports the requested and the served model.
func (p *Prober) Run(ctx context.Context) Result {
	res := Result{Requested: p.provider.Name}

	c, err := p.provider.Complete(ctx, []chats.Message{chats.UserMessage(probePrompt)}, nil)
	if err != nil {
		res.Err = err
		return res
	}

	res.Actual = c.Model.String()
	res.Found = c.Model.Found
	res.Usage = c.Usage

	return res
}

// Check validates s, runs a probe and renders its outcome as one line.
func Check(ctx context.Context, s engine.Settings, ledger *usage.Ledger, log *slog.Logger) string {
	if err := s.Require(); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	res := New(s, ledger, log, CheckMaxTokens).Run(ctx)
	if res.Err != nil {
		return fmt.Sprintf("An error occurred while contacting the API: %s", openai.Describe(res.Err))
	}

	return fmt.Sprintf("Success! The API is using the model: '%s'", res.Actual)
}
