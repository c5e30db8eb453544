package modeladapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
)

// DefaultTimeout bounds a single completion request when no client is set.
const DefaultTimeout = 120 * time.Second

// Tool declares a function the model may call. Parameters is the raw JSON
// schema and is passed through untouched.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Provider is the capability an agent needs from a language model.
//
// Call sends the conversation and returns the reply text. Implementations
// that convert transport failures into descriptive text return that text
// together with the typed error, so callers can either surface the text or
// branch on the error.
type Provider interface {
	Call(ctx context.Context, msgs []chats.Message, tools []Tool) (string, error)
	SupportsStopWords() bool
	EstimateTokenCount(text string) int
}

// UsageReporter provides token usage information from a provider.
// Providers that embed ModelAdapter implement this interface automatically.
type UsageReporter interface {
	UsageTracker() *usage.Tracker
	ModelName() string
}

// Auth holds authentication settings for an LLM provider API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// ModelAdapter holds shared state for provider implementations. Embed it in
// concrete provider structs to get HTTP helpers, auth, custom headers, and
// usage tracking. Concrete types define their own Call method.
type ModelAdapter struct {
	Name        string            // Requested model identifier (e.g. "gpt-4o-mini").
	Temperature float64           // Sampling temperature.
	MaxTokens   int               // Maximum tokens in the response (0 = provider default).
	Auth        Auth              // Authentication settings.
	Endpoint    string            // Full chat completion URL.
	Client      *http.Client      // HTTP client; falls back to a client with Timeout.
	Timeout     time.Duration     // Bounded wait for the default client (0 = DefaultTimeout).
	Headers     map[string]string // Extra headers applied to every request.
	Usage       usage.Tracker     // Token usage tracker.

	clientOnce    sync.Once
	defaultClient *http.Client
}

// UsageTracker returns the adapter's token usage tracker.
func (a *ModelAdapter) UsageTracker() *usage.Tracker { return &a.Usage }

// ModelName returns the requested model identifier.
func (a *ModelAdapter) ModelName() string { return a.Name }

// SupportsStopWords reports whether stop sequences can be sent. Every
// OpenAI-compatible endpoint accepts them.
func (a *ModelAdapter) SupportsStopWords() bool { return true }

// EstimateTokenCount estimates the tokens in text without a tokenizer.
func (a *ModelAdapter) EstimateTokenCount(text string) int {
	var e TokenEstimator
	return e.EstimateText(text)
}

// EstimateUsage approximates the token usage of a call from its request and
// reply, for responses that carry no usage block.
func (a *ModelAdapter) EstimateUsage(msgs []chats.Message, tools []Tool, reply string) usage.TokenCount {
	var e TokenEstimator
	return usage.TokenCount{
		InputTokens:  e.EstimateTotal(msgs, tools),
		OutputTokens: e.EstimateText(reply),
	}
}

// httpClient returns the configured client or a cached default client bounded
// by Timeout.
func (a *ModelAdapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		timeout := a.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		a.defaultClient = &http.Client{Timeout: timeout}
	})

	return a.defaultClient
}

// NewRequest builds an *http.Request against Endpoint with auth and custom
// headers already applied.
func (a *ModelAdapter) NewRequest(ctx context.Context, method string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.Endpoint, body)
	if err != nil {
		return nil, err
	}

	if a.Auth.Key != "" {
		header := a.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := a.Auth.Key
		if header == "Authorization" {
			scheme := a.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}

			value = scheme + " " + value
		} else if a.Auth.Scheme != "" {
			value = a.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request using the configured HTTP client.
func (a *ModelAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.httpClient().Do(req) //nolint:gosec // URL is built from trusted Endpoint config, not user input.
}

// PostJSON marshals payload as JSON, POSTs it to Endpoint, checks for a 2xx
// status, and returns the raw response body. Dial errors, timeouts, and
// non-2xx statuses are reported as *TransportError.
func (a *ModelAdapter) PostJSON(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: a.Endpoint, Err: fmt.Errorf("build request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: a.Endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: a.Endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{
			Endpoint:   a.Endpoint,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	return respBody, nil
}
