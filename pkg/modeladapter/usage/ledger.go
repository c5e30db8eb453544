// Package usage records what model-backed calls happened in this process:
// which model served each completion ([Ledger]) and how many tokens were
// spent ([Tracker]). Both types are safe for concurrent use.
package usage

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/germanamz/crewtrace/pkg/modelid"
)

// UnknownModel is recorded when a call completed but its serving model could
// not be extracted. Unknown outcomes are always recorded, never dropped.
const UnknownModel = modelid.UnknownModel

// MaxExcerptRunes bounds the response excerpt kept per observation.
const MaxExcerptRunes = 280

// Source identifies the call site an observation came from.
type Source int

const (
	SourceDirectHTTP Source = iota
	SourceAgentFramework
	SourceTaskCallback
)

// Sources lists every call site in reporting order.
func Sources() []Source {
	return []Source{SourceDirectHTTP, SourceAgentFramework, SourceTaskCallback}
}

func (s Source) String() string {
	switch s {
	case SourceDirectHTTP:
		return "direct_http"
	case SourceAgentFramework:
		return "agent_framework_call"
	case SourceTaskCallback:
		return "task_callback"
	}
	return "unknown_source"
}

// MarshalText implements encoding.TextMarshaler so sources render by name in
// JSON reports and map keys.
func (s Source) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Observation is one completed call and the model that served it.
type Observation struct {
	Model     string    `json:"model"`
	Excerpt   string    `json:"excerpt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	RunID     string    `json:"run_id,omitempty"`
}

// Report is an aggregate view over the ledger at one point in time.
type Report struct {
	TotalCalls    int            `json:"total_calls"`
	CallsByModel  map[string]int `json:"calls_by_model"`
	UniqueModels  []string       `json:"unique_models"`
	CallsBySource map[Source]int `json:"calls_by_source"`
}

// Ledger is an append-only record of observations in completion order. The
// zero value is ready to use.
type Ledger struct {
	mu      sync.Mutex
	entries []Observation
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger { return &Ledger{} }

// Record appends an observation. The model is trimmed and a blank one is
// stored as UnknownModel. A zero timestamp is stamped with the current time
// and the excerpt is truncated to MaxExcerptRunes.
func (l *Ledger) Record(o Observation) {
	o.Model = strings.TrimSpace(o.Model)
	if o.Model == "" {
		o.Model = UnknownModel
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	o.Excerpt = excerpt(o.Excerpt)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, o)
}

// RecordResult records an extraction outcome. Every interceptor goes through
// here so the Unknown policy is applied identically at all call sites.
func (l *Ledger) RecordResult(res modelid.Result, o Observation) Observation {
	o.Model = res.String()
	l.Record(o)

	return o
}

// Len returns the number of recorded observations.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// Snapshot returns a copy of all observations in completion order.
func (l *Ledger) Snapshot() []Observation {
	return l.Since(0)
}

// Since returns a copy of the observations recorded after the first n.
func (l *Ledger) Since(n int) []Observation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n >= len(l.entries) {
		return []Observation{}
	}

	return slices.Clone(l.entries[n:])
}

// Aggregate computes a Report from the current entries.
func (l *Ledger) Aggregate() Report {
	return Aggregate(l.Snapshot())
}

// Reset clears all recorded entries.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
}

// Aggregate computes a Report over obs. It is used both for the whole ledger
// and for per-run deltas.
func Aggregate(obs []Observation) Report {
	r := Report{
		TotalCalls:    len(obs),
		CallsByModel:  make(map[string]int),
		UniqueModels:  []string{},
		CallsBySource: make(map[Source]int),
	}

	for _, o := range obs {
		if r.CallsByModel[o.Model] == 0 {
			r.UniqueModels = append(r.UniqueModels, o.Model)
		}
		r.CallsByModel[o.Model]++
		r.CallsBySource[o.Source]++
	}

	slices.Sort(r.UniqueModels)

	return r
}

func excerpt(s string) string {
	if len(s) <= MaxExcerptRunes {
		return s
	}

	runes := []rune(s)
	if len(runes) <= MaxExcerptRunes {
		return s
	}

	return string(runes[:MaxExcerptRunes])
}
