// Package openai provides providers for OpenAI-compatible Chat Completions
// endpoints, including routing proxies that may serve a different model than
// the one requested.
//
// [Adapter] is the plain provider: it decodes the reply text and drops the
// rest. [Intercepted] performs the same call but reads the serving model from
// the raw response and records it in a usage ledger.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/germanamz/crewtrace/pkg/modeladapter"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
)

const completionsPath = "/chat/completions"

// DefaultTemperature is sent when no temperature is configured.
const DefaultTemperature = 0.7

// CompletionsURL turns a configured API base into the chat completion
// endpoint. Bases that already end in /chat/completions are kept as-is.
func CompletionsURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || strings.HasSuffix(base, completionsPath) {
		return base
	}
	return base + completionsPath
}

var _ modeladapter.Provider = (*Adapter)(nil)

// Adapter implements modeladapter.Provider for an OpenAI-compatible endpoint.
// It reports failures as errors and does not expose the serving model.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. base may be an API base URL or the full completion
// endpoint.
func New(base, apiKey, model string) *Adapter {
	a := &Adapter{}
	configure(&a.ModelAdapter, base, apiKey, model)

	return a
}

func configure(a *modeladapter.ModelAdapter, base, apiKey, model string) {
	a.Endpoint = CompletionsURL(base)
	a.Auth = modeladapter.Auth{Key: apiKey}
	a.Name = model
	a.Temperature = DefaultTemperature
}

// Call sends the conversation and returns the assistant's reply text.
func (a *Adapter) Call(ctx context.Context, msgs []chats.Message, tools []modeladapter.Tool) (string, error) {
	body, err := a.PostJSON(ctx, buildRequest(&a.ModelAdapter, msgs, tools))
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	resp, err := decodeResponse(body)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}

	a.Usage.Add(usageOf(&a.ModelAdapter, resp, msgs, tools))

	return resp.content(), nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Tools       []apiToolDef `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiToolDef struct {
	Type     string         `json:"type"`
	Function apiToolDefFunc `json:"function"`
}

type apiToolDefFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- response types ---

type apiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   *apiUsage   `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
	Model   string  `json:"model"`
}

type apiUsage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Cost             *apiCost `json:"cost,omitempty"`
}

type apiCost struct {
	TotalCost float64 `json:"total_cost"`
}

// ResponseModel reports the serving model. A model on the first choice's
// message wins over the top-level field.
func (r apiResponse) ResponseModel() string {
	if len(r.Choices) > 0 && strings.TrimSpace(r.Choices[0].Message.Model) != "" {
		return r.Choices[0].Message.Model
	}
	return r.Model
}

func (r apiResponse) content() string {
	if len(r.Choices) == 0 || r.Choices[0].Message.Content == nil {
		return ""
	}
	return *r.Choices[0].Message.Content
}

// usageOf returns the token usage the proxy reported, or an estimate when
// the response has no usage block.
func usageOf(a *modeladapter.ModelAdapter, r apiResponse, msgs []chats.Message, tools []modeladapter.Tool) usage.TokenCount {
	if r.Usage == nil {
		return a.EstimateUsage(msgs, tools, r.content())
	}
	return usage.TokenCount{
		InputTokens:  r.Usage.PromptTokens,
		OutputTokens: r.Usage.CompletionTokens,
	}
}

// --- conversion helpers ---

func buildRequest(a *modeladapter.ModelAdapter, msgs []chats.Message, tools []modeladapter.Tool) apiRequest {
	req := apiRequest{
		Model:       a.Name,
		Messages:    make([]apiMessage, 0, len(msgs)),
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
	}

	for _, m := range msgs {
		req.Messages = append(req.Messages, apiMessage{Role: m.Role.String(), Content: m.Content})
	}

	if len(tools) > 0 {
		req.Tools = make([]apiToolDef, len(tools))
		for i, t := range tools {
			schema := t.Parameters
			if schema == nil {
				schema = json.RawMessage(`{"type":"object"}`)
			}
			req.Tools[i] = apiToolDef{
				Type: "function",
				Function: apiToolDefFunc{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  schema,
				},
			}
		}
	}

	return req
}

func decodeResponse(body []byte) (apiResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiResponse{}, &modeladapter.MalformedResponseError{
			Body: string(body),
			Err:  fmt.Errorf("decode response: %w", err),
		}
	}

	if len(resp.Choices) == 0 {
		return apiResponse{}, &modeladapter.MalformedResponseError{
			Body: string(body),
			Err:  errors.New("empty choices in response"),
		}
	}

	return resp, nil
}
