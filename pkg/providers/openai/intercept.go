package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/germanamz/crewtrace/pkg/agentctx"
	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/germanamz/crewtrace/pkg/modeladapter"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/modelid"
)

// NoContent is returned by Call when the reply carries no text.
const NoContent = "No response content received"

var _ modeladapter.Provider = (*Intercepted)(nil)

// Usage is the token accounting reported by the endpoint for one call.
// Cost is only present when a routing proxy reports it.
type Usage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Cost             *float64 `json:"cost,omitempty"`
}

// Completion is the observed outcome of one intercepted call.
type Completion struct {
	Content     string
	Requested   string
	Model       modelid.Result
	Usage       *Usage
	Observation usage.Observation
}

// Intercepted is a provider that records which model served each call. On
// success it appends one observation to Ledger tagged with Source; failed
// calls record nothing. Requests and replies pass through unchanged and are
// never retried.
type Intercepted struct {
	modeladapter.ModelAdapter

	Ledger *usage.Ledger
	Source usage.Source
	Log    *slog.Logger
}

// NewIntercepted creates an Intercepted provider. A nil ledger gets a private
// one.
func NewIntercepted(base, apiKey, model string, ledger *usage.Ledger, source usage.Source) *Intercepted {
	if ledger == nil {
		ledger = usage.NewLedger()
	}

	a := &Intercepted{Ledger: ledger, Source: source}
	configure(&a.ModelAdapter, base, apiKey, model)

	return a
}

// Complete sends the conversation, extracts the serving model from the raw
// response, and records it. Errors are *modeladapter.TransportError or
// *modeladapter.MalformedResponseError.
func (a *Intercepted) Complete(ctx context.Context, msgs []chats.Message, tools []modeladapter.Tool) (Completion, error) {
	log := a.logger()
	log.DebugContext(ctx, "sending request to API", "endpoint", a.Endpoint, "model", a.Name)

	body, err := a.PostJSON(ctx, buildRequest(&a.ModelAdapter, msgs, tools))
	if err != nil {
		log.ErrorContext(ctx, "request failed", "endpoint", a.Endpoint, "error", err)
		return Completion{}, err
	}

	resp, err := decodeResponse(body)
	if err != nil {
		log.ErrorContext(ctx, "unexpected response shape", "endpoint", a.Endpoint, "error", err)
		return Completion{}, err
	}

	res := modelid.Extract(resp)
	content := resp.content()

	obs := a.Ledger.RecordResult(res, usage.Observation{
		Excerpt: content,
		Source:  a.Source,
		RunID:   agentctx.RunIDFromContext(ctx),
	})

	if res.Found {
		log.InfoContext(ctx, "model observed",
			"requested", a.Name,
			"model", res.Model,
			"source", a.Source,
			"agent", agentctx.AgentNameFromContext(ctx),
		)
	} else {
		log.WarnContext(ctx, "response did not report a model", "requested", a.Name, "source", a.Source)
	}

	a.Usage.Add(usageOf(&a.ModelAdapter, resp, msgs, tools))

	return Completion{
		Content:     content,
		Requested:   a.Name,
		Model:       res,
		Usage:       convertUsage(resp.Usage),
		Observation: obs,
	}, nil
}

// Call implements modeladapter.Provider. On failure it returns a descriptive
// text (see Describe) together with the typed error, so an agent pipeline can
// carry on with the text as the model's answer.
func (a *Intercepted) Call(ctx context.Context, msgs []chats.Message, tools []modeladapter.Tool) (string, error) {
	c, err := a.Complete(ctx, msgs, tools)
	if err != nil {
		return Describe(err), err
	}

	if c.Content == "" {
		return NoContent, nil
	}

	return c.Content, nil
}

// Describe renders an interception failure as the text handed back to
// callers instead of a reply.
func Describe(err error) string {
	var (
		te *modeladapter.TransportError
		me *modeladapter.MalformedResponseError
	)

	switch {
	case errors.As(err, &te):
		return "Error making request to API: " + te.Error()
	case errors.As(err, &me):
		return "Error parsing response from API: " + me.Error()
	default:
		return "Unexpected error in LLM call: " + err.Error()
	}
}

func (a *Intercepted) logger() *slog.Logger {
	if a.Log != nil {
		return a.Log
	}
	return slog.Default()
}

func convertUsage(u *apiUsage) *Usage {
	if u == nil {
		return nil
	}

	out := &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if u.Cost != nil {
		cost := u.Cost.TotalCost
		out.Cost = &cost
	}

	return out
}
