// Package modelid extracts the identifier of the model that actually served a
// chat completion from whatever shape the response is available in.
//
// Strategies are tried from most to least structured:
//
//  1. a structured value exposing the model ([Reporter] or a decoded JSON object)
//  2. a string that is itself a JSON object with a usable "model" key
//  3. a pattern search for a "model": "<value>" fragment anywhere in text
//
// Every failure degrades to [Unknown]; nothing in this package returns an
// error or panics on bad input.
package modelid

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// UnknownModel is the identifier used when no model could be extracted.
const UnknownModel = "unknown"

// Result is the outcome of an extraction: either Found with a model
// identifier, or Unknown.
type Result struct {
	Model string
	Found bool
}

// Found returns a found Result for model. A blank model yields Unknown.
func Found(model string) Result {
	model = strings.TrimSpace(model)
	if model == "" {
		return Unknown()
	}
	return Result{Model: model, Found: true}
}

// Unknown returns the Unknown result.
func Unknown() Result { return Result{} }

// String returns the model identifier, or UnknownModel.
func (r Result) String() string {
	if !r.Found {
		return UnknownModel
	}
	return r.Model
}

// OrElse returns the model identifier, or fallback when the result is Unknown.
func (r Result) OrElse(fallback string) string {
	if !r.Found {
		return fallback
	}
	return r.Model
}

// Reporter is implemented by structured responses that know which model
// served them.
type Reporter interface {
	ResponseModel() string
}

// modelPattern matches a "model": "<value>" fragment in free text.
var modelPattern = regexp.MustCompile(`"model"\s*:\s*"([^"\\]*(?:\\.[^"\\]*)*)"`)

// Extract returns the serving model for raw. Supported inputs are Reporter
// implementations, decoded JSON objects, strings, byte slices,
// json.RawMessage and fmt.Stringer values; anything else is Unknown.
func Extract(raw any) (res Result) {
	// A misbehaving Reporter or Stringer must not break the caller.
	defer func() {
		if recover() != nil {
			res = Unknown()
		}
	}()

	switch v := raw.(type) {
	case nil:
		return Unknown()
	case Reporter:
		return Found(v.ResponseModel())
	case map[string]any:
		return FromObject(v)
	case string:
		return FromText(v)
	case json.RawMessage:
		return FromText(string(v))
	case []byte:
		return FromText(string(v))
	case fmt.Stringer:
		return FromText(v.String())
	default:
		return Unknown()
	}
}

// FromText applies the string strategies: strict JSON first, then the
// pattern search. It is the entry point for callers that only hold
// stringified output.
func FromText(s string) Result {
	if r := FromJSON([]byte(strings.TrimSpace(s))); r.Found {
		return r
	}
	return FromPattern(s)
}

// FromJSON parses b as a JSON object and extracts the model from it. Invalid
// JSON, non-object JSON and objects without a usable model are Unknown.
func FromJSON(b []byte) Result {
	var obj map[string]any
	if err := json.Unmarshal(b, &obj); err != nil {
		return Unknown()
	}
	return FromObject(obj)
}

// FromObject extracts the model from a decoded chat completion object. The
// message-level model (choices[0].message.model) takes precedence over the
// top-level "model" key; routing proxies put the substituted model there.
func FromObject(obj map[string]any) Result {
	if obj == nil {
		return Unknown()
	}

	if r := Found(messageModel(obj)); r.Found {
		return r
	}

	s, _ := obj["model"].(string)
	return Found(s)
}

// FromPattern searches s for the first "model": "<value>" fragment with a
// non-blank value.
func FromPattern(s string) Result {
	for _, m := range modelPattern.FindAllStringSubmatch(s, -1) {
		if r := Found(unescape(m[1])); r.Found {
			return r
		}
	}
	return Unknown()
}

func messageModel(obj map[string]any) string {
	choices, _ := obj["choices"].([]any)
	if len(choices) == 0 {
		return ""
	}

	choice, _ := choices[0].(map[string]any)
	msg, _ := choice["message"].(map[string]any)
	s, _ := msg["model"].(string)

	return s
}

// unescape decodes JSON string escapes in a matched value, keeping the raw
// text if it is not a valid JSON string body.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}

	return out
}
