// Package report gathers model usage information for a crew and renders it
// for the terminal or as JSON.
package report

import (
	"context"
	"strconv"
	"time"

	"github.com/germanamz/crewtrace/pkg/engine"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/probe"
	"github.com/germanamz/crewtrace/pkg/providers/openai"
	"github.com/germanamz/crewtrace/pkg/tracker"
)

// RecentLimit is the number of latest observations included in a report.
const RecentLimit = 5

// APIConfig echoes the connection settings without exposing the key.
type APIConfig struct {
	Base      string `json:"api_base"`
	KeySet    bool   `json:"api_key_set"`
	KeyPrefix string `json:"api_key_prefix"`
	Model     string `json:"model"`
}

// CrewConfig summarizes the crew's shape.
type CrewConfig struct {
	Agents  int    `json:"num_agents"`
	Tasks   int    `json:"num_tasks"`
	Process string `json:"process"`
	Verbose bool   `json:"verbose"`
}

// AgentInfo describes one agent and the model it requests.
type AgentInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Model string `json:"model"`
}

// Info is everything a usage report shows.
type Info struct {
	Timestamp time.Time           `json:"timestamp"`
	API       APIConfig           `json:"api_configuration"`
	Crew      CrewConfig          `json:"crew_config"`
	Agents    []AgentInfo         `json:"agents"`
	Metrics   usage.Metrics       `json:"crew_usage_metrics"`
	ModelTest *ModelTest          `json:"actual_model_test,omitempty"`
	Ledger    usage.Report        `json:"ledger"`
	Recent    []usage.Observation `json:"recent_observations"`
}

// ModelTest is the outcome of the live probe.
type ModelTest struct {
	Requested string        `json:"requested_model"`
	Actual    string        `json:"actual_model,omitempty"`
	Usage     *openai.Usage `json:"usage,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Gather collects the report for eng. When prober is non-nil a live probe is
// sent first so its observation is part of the ledger aggregate.
func Gather(ctx context.Context, eng *engine.Engine, s engine.Settings, prober *probe.Prober) Info {
	info := Info{
		Timestamp: time.Now(),
		API: APIConfig{
			Base:      s.APIBase,
			KeySet:    s.APIKey != "",
			KeyPrefix: s.MaskedKey(),
			Model:     s.Model,
		},
		Crew: CrewConfig{
			Agents:  eng.AgentCount(),
			Tasks:   len(eng.Tasks()),
			Process: eng.Process(),
			Verbose: eng.Verbose(),
		},
		Metrics: eng.UsageMetrics(),
	}

	for i, a := range eng.Agents() {
		model := a.Model
		if model == "" {
			model = "Default"
		}
		info.Agents = append(info.Agents, AgentInfo{ID: i + 1, Name: a.Name, Role: a.Role, Model: model})
	}

	if prober != nil {
		res := prober.Run(ctx)
		info.ModelTest = &ModelTest{
			Requested: res.Requested,
			Actual:    res.Actual,
			Usage:     res.Usage,
			Error:     res.Error(),
		}
	}

	info.Ledger = eng.Ledger().Aggregate()
	info.Recent = recent(eng.Ledger().Snapshot(), RecentLimit)

	return info
}

func recent(obs []usage.Observation, n int) []usage.Observation {
	if len(obs) > n {
		obs = obs[len(obs)-n:]
	}
	return obs
}

// TrackResult is the outcome of one tracked crew run.
type TrackResult struct {
	Topic   string        `json:"topic"`
	RunID   string        `json:"run_id"`
	Initial usage.Metrics `json:"initial"`
	Final   usage.Metrics `json:"final"`
	Delta   usage.Metrics `json:"difference"`
	Ledger  usage.Report  `json:"ledger_delta"`
	Models  []string      `json:"task_models"`
	Output  string        `json:"result"`
	Err     error         `json:"-"`
	Error   string        `json:"error,omitempty"`
}

// TrackSkipped reports a run that could not start, for example because the
// API key is missing. Usage is unchanged and err is reported as the run error.
func TrackSkipped(eng *engine.Engine, topic string, err error) TrackResult {
	m := eng.UsageMetrics()

	return TrackResult{
		Topic:   topic,
		Initial: m,
		Final:   m,
		Ledger:  usage.Aggregate(nil),
		Models:  []string{},
		Err:     err,
		Error:   err.Error(),
	}
}

// Track runs the crew once for topic and reports how usage changed. mt must
// be installed into eng and share its ledger.
func Track(ctx context.Context, eng *engine.Engine, mt *tracker.ModelTracker, topic string, now time.Time) TrackResult {
	tr := TrackResult{Topic: topic, Initial: eng.UsageMetrics()}
	mark := eng.Ledger().Len()

	res, err := eng.Kickoff(ctx, map[string]string{
		"topic":        topic,
		"current_year": strconv.Itoa(now.Year()),
	})

	tr.RunID = res.ID
	tr.Final = eng.UsageMetrics()
	tr.Delta = tr.Final.Sub(tr.Initial)
	tr.Ledger = usage.Aggregate(eng.Ledger().Since(mark))
	tr.Output = res.Final
	tr.Models = []string{}

	if mt != nil {
		if s, ok := mt.Summary(res.ID); ok {
			tr.Models = s.Models
		}
	}

	if err != nil {
		tr.Err = err
		tr.Error = err.Error()
	}

	return tr
}
