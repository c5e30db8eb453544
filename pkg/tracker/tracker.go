// Package tracker re-derives the serving model from task outputs. It hooks
// into the engine's task and run callbacks, which only see the raw text of
// each task, so its observations are lower fidelity than those recorded at the
// transport and are tagged as task callback observations.
package tracker

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/germanamz/crewtrace/pkg/engine"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/modelid"
)

// Summary lists the models seen across the tasks of one run. ProviderErrors
// counts tasks whose output was provider error text.
type Summary struct {
	RunID          string   `json:"run_id"`
	Models         []string `json:"models"`
	Tasks          int      `json:"tasks"`
	ProviderErrors int      `json:"provider_errors"`
	Failed         bool     `json:"failed"`
}

type runState struct {
	models         map[string]struct{}
	tasks          int
	providerErrors int
}

// ModelTracker records one observation per completed task and keeps the set
// of models per run. It is safe for concurrent use.
type ModelTracker struct {
	ledger *usage.Ledger
	log    *slog.Logger

	mu        sync.Mutex
	runs      map[string]*runState
	summaries map[string]Summary
	last      string
}

// New creates a ModelTracker recording into ledger. A nil logger means
// slog.Default().
func New(ledger *usage.Ledger, log *slog.Logger) *ModelTracker {
	if ledger == nil {
		ledger = usage.NewLedger()
	}
	if log == nil {
		log = slog.Default()
	}

	return &ModelTracker{
		ledger:    ledger,
		log:       log,
		runs:      make(map[string]*runState),
		summaries: make(map[string]Summary),
	}
}

// Options returns the engine options that install the tracker's callbacks.
func (t *ModelTracker) Options() []engine.Option {
	return []engine.Option{
		engine.WithTaskCallback(t.OnTaskComplete),
		engine.WithRunCallback(t.OnRunComplete),
	}
}

// OnTaskComplete extracts a model from the task's raw output and records it.
// Outputs that name no model are recorded as unknown. An output carrying a
// provider error is counted but not recorded: no model served that call.
func (t *ModelTracker) OnTaskComplete(out engine.TaskOutput) {
	if out.ProviderErr != nil {
		t.withRun(out.RunID, func(rs *runState) {
			rs.tasks++
			rs.providerErrors++
		})
		t.log.Warn("task output is a provider error, not recorded", "run_id", out.RunID, "task", out.Task, "error", out.ProviderErr)
		return
	}

	res := modelid.FromText(out.Raw)

	t.ledger.RecordResult(res, usage.Observation{
		Excerpt: out.Raw,
		Source:  usage.SourceTaskCallback,
		RunID:   out.RunID,
	})

	t.withRun(out.RunID, func(rs *runState) {
		rs.tasks++
		if res.Found {
			rs.models[res.Model] = struct{}{}
		}
	})

	t.log.Debug("task output inspected", "run_id", out.RunID, "task", out.Task, "model", res.String())
}

func (t *ModelTracker) withRun(runID string, fn func(*runState)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs, ok := t.runs[runID]
	if !ok {
		rs = &runState{models: make(map[string]struct{})}
		t.runs[runID] = rs
	}
	fn(rs)
}

// OnRunComplete closes the run and stores its summary.
func (t *ModelTracker) OnRunComplete(res engine.RunResult) {
	t.mu.Lock()
	rs := t.runs[res.ID]
	delete(t.runs, res.ID)

	s := Summary{RunID: res.ID, Models: []string{}, Failed: res.Err != nil}
	if rs != nil {
		s.Tasks = rs.tasks
		s.ProviderErrors = rs.providerErrors
		for m := range rs.models {
			s.Models = append(s.Models, m)
		}
		sort.Strings(s.Models)
	}

	t.summaries[res.ID] = s
	t.last = res.ID
	t.mu.Unlock()

	if len(s.Models) == 0 {
		t.log.Info("run finished without model information in task outputs", "run_id", s.RunID, "tasks", s.Tasks)
		return
	}

	t.log.Info("models used in run", "run_id", s.RunID, "models", s.Models)
}

// Summary returns the stored summary for runID.
func (t *ModelTracker) Summary(runID string) (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.summaries[runID]
	return s, ok
}

// Last returns the summary of the most recently completed run.
func (t *ModelTracker) Last() (Summary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == "" {
		return Summary{}, false
	}

	return t.summaries[t.last], true
}
