package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/germanamz/crewtrace/pkg/agent"
	"github.com/germanamz/crewtrace/pkg/agentctx"
	"github.com/germanamz/crewtrace/pkg/modeladapter"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
)

// TaskOutput is the result of one completed task. ProviderErr is set when
// Raw is the provider's descriptive error text rather than a model reply.
type TaskOutput struct {
	RunID       string `json:"run_id"`
	Task        string `json:"task"`
	Description string `json:"description"`
	Agent       string `json:"agent"`
	Raw         string `json:"raw"`
	ProviderErr error  `json:"-"`
}

// RunResult summarizes one Kickoff. Err is set when a task failed; Outputs
// then holds the tasks that completed before it.
type RunResult struct {
	ID       string       `json:"id"`
	Outputs  []TaskOutput `json:"outputs"`
	Final    string       `json:"final"`
	Err      error        `json:"-"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
}

// TaskCallback is invoked after every completed task.
type TaskCallback func(TaskOutput)

// RunCallback is invoked once at the end of every Kickoff.
type RunCallback func(RunResult)

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry builds providers from r instead of a fresh built-in registry.
func WithRegistry(r *Registry) Option { return func(e *Engine) { e.registry = r } }

// WithLedger sets the usage ledger intercepting providers record into.
func WithLedger(l *usage.Ledger) Option { return func(e *Engine) { e.ledger = l } }

// WithLogger sets the logger used by the engine, its agents and providers.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithSettings supplies connection defaults for providers that leave base
// URL, API key or model empty, and the request timeout.
func WithSettings(s Settings) Option { return func(e *Engine) { e.settings = s } }

// WithProviderOverride builds every configured provider with the given kind,
// regardless of the kind in its configuration.
func WithProviderOverride(kind string) Option { return func(e *Engine) { e.override = kind } }

// WithTaskCallback adds a callback invoked after every task.
func WithTaskCallback(cb TaskCallback) Option {
	return func(e *Engine) { e.taskCallbacks = append(e.taskCallbacks, cb) }
}

// WithRunCallback adds a callback invoked at the end of every run.
func WithRunCallback(cb RunCallback) Option {
	return func(e *Engine) { e.runCallbacks = append(e.runCallbacks, cb) }
}

// Engine runs a crew: a fixed set of agents working through tasks in order.
type Engine struct {
	cfg           Config
	registry      *Registry
	ledger        *usage.Ledger
	log           *slog.Logger
	settings      Settings
	override      string
	taskCallbacks []TaskCallback
	runCallbacks  []RunCallback
	events        *EventBus
	agents        *agent.Registry
	providers     map[string]modeladapter.Provider

	mu sync.Mutex // serializes Kickoff
}

// New validates cfg, freezes the provider registry and builds every provider
// and agent. Agents never look providers up again after New returns.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		settings:  Settings{APIBase: DefaultAPIBase, Model: DefaultModel, Timeout: modeladapter.DefaultTimeout},
		events:    NewEventBus(),
		agents:    agent.NewRegistry(),
		providers: make(map[string]modeladapter.Provider, len(cfg.Providers)),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.registry == nil {
		e.registry = NewRegistry()
	}
	if e.ledger == nil {
		e.ledger = usage.NewLedger()
	}
	if e.log == nil {
		e.log = slog.Default()
	}

	e.registry.Freeze()

	deps := ProviderDeps{Ledger: e.ledger, Logger: e.log, Timeout: e.settings.Timeout}

	for _, pc := range cfg.Providers {
		kind := pc.Kind
		if e.override != "" {
			kind = e.override
		}

		p, err := e.registry.build(kind, e.withDefaults(pc), deps)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: %w", pc.Name, err)
		}
		e.providers[pc.Name] = p
	}

	for _, ac := range cfg.Agents {
		providerName := ac.Provider
		if providerName == "" {
			providerName = cfg.Providers[0].Name
		}

		mws := []agent.Middleware{agent.Recovery()}
		if ac.MaxExecutionTime > 0 {
			mws = append(mws, agent.Timeout(time.Duration(ac.MaxExecutionTime)*time.Second))
		}
		if ac.Verbose || cfg.Verbose {
			mws = append(mws, agent.Logger(e.log, ac.Name))
		}

		e.agents.Register(agent.New(ac.Name, ac.Role, ac.Goal, ac.Backstory, e.providers[providerName], agent.Options{
			Middleware: mws,
			Verbose:    ac.Verbose,
		}))
	}

	return e, nil
}

func (e *Engine) withDefaults(pc ProviderConfig) ProviderConfig {
	if pc.BaseURL == "" {
		pc.BaseURL = e.settings.APIBase
	}
	if pc.APIKey == "" {
		pc.APIKey = e.settings.APIKey
	}
	if pc.Model == "" {
		pc.Model = e.settings.Model
	}
	return pc
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus { return e.events }

// Ledger returns the usage ledger shared with intercepting providers.
func (e *Engine) Ledger() *usage.Ledger { return e.ledger }

// Agents returns the agent directory sorted by name.
func (e *Engine) Agents() []agent.Entry { return e.agents.List() }

// AgentCount returns the number of agents in the crew.
func (e *Engine) AgentCount() int { return e.agents.Len() }

// Tasks returns the configured tasks in execution order.
func (e *Engine) Tasks() []TaskConfig {
	out := make([]TaskConfig, len(e.cfg.Tasks))
	copy(out, e.cfg.Tasks)
	return out
}

// Process returns the configured process name.
func (e *Engine) Process() string { return e.cfg.ProcessName() }

// Verbose reports whether the crew is configured as verbose.
func (e *Engine) Verbose() bool { return e.cfg.Verbose }

// UsageMetrics sums token usage over every provider that reports it.
func (e *Engine) UsageMetrics() usage.Metrics {
	var m usage.Metrics
	for _, pc := range e.cfg.Providers {
		if r, ok := e.providers[pc.Name].(modeladapter.UsageReporter); ok {
			m = m.Add(r.UsageTracker().Metrics())
		}
	}
	return m
}

// Kickoff runs every task in order and returns the run summary. Each task
// sees the outputs of the tasks before it as context. Task and run callbacks
// fire even when a task fails; the returned error equals RunResult.Err.
func (e *Engine) Kickoff(ctx context.Context, inputs map[string]string) (RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := RunResult{ID: uuid.NewString(), Started: time.Now()}
	ctx = agentctx.WithRunID(ctx, res.ID)

	e.log.InfoContext(ctx, "run started", "run_id", res.ID, "tasks", len(e.cfg.Tasks))
	e.publish(Event{Kind: EventRunStart, RunID: res.ID})

	for _, tc := range e.cfg.Tasks {
		out, err := e.runTask(ctx, res.ID, tc, inputs, res.Outputs)
		if err != nil {
			res.Err = err
			e.log.ErrorContext(ctx, "task failed", "run_id", res.ID, "task", tc.Name, "error", err)
			e.publish(Event{Kind: EventError, RunID: res.ID, Task: tc.Name, Agent: tc.Agent, Data: err})
			break
		}

		res.Outputs = append(res.Outputs, out)
		res.Final = out.Raw

		e.publish(Event{Kind: EventTaskEnd, RunID: res.ID, Task: tc.Name, Agent: tc.Agent, Data: out})

		for _, cb := range e.taskCallbacks {
			e.safeCall(ctx, "task callback", func() { cb(out) })
		}
	}

	res.Finished = time.Now()

	for _, cb := range e.runCallbacks {
		e.safeCall(ctx, "run callback", func() { cb(res) })
	}

	e.publish(Event{Kind: EventRunEnd, RunID: res.ID, Data: res})
	e.log.InfoContext(ctx, "run finished", "run_id", res.ID, "duration", res.Finished.Sub(res.Started), "error", res.Err)

	return res, res.Err
}

func (e *Engine) runTask(ctx context.Context, runID string, tc TaskConfig, inputs map[string]string, prior []TaskOutput) (TaskOutput, error) {
	a, ok := e.agents.Get(tc.Agent)
	if !ok {
		return TaskOutput{}, fmt.Errorf("engine: task %q: agent %q not found", tc.Name, tc.Agent)
	}

	ctx = agentctx.WithTaskName(ctx, tc.Name)
	e.publish(Event{Kind: EventTaskStart, RunID: runID, Task: tc.Name, Agent: tc.Agent})

	description := Interpolate(tc.Description, inputs)
	prompt := taskPrompt(description, Interpolate(tc.ExpectedOutput, inputs), prior)

	raw, err := a.Execute(ctx, prompt)
	if err != nil {
		if raw == "" {
			return TaskOutput{}, fmt.Errorf("engine: task %q: %w", tc.Name, err)
		}
		e.log.WarnContext(ctx, "provider reported an error, using its text as the answer",
			"task", tc.Name,
			"agent", tc.Agent,
			"error", err,
		)
	}

	out := TaskOutput{
		RunID:       runID,
		Task:        tc.Name,
		Description: description,
		Agent:       tc.Agent,
		Raw:         raw,
		ProviderErr: err,
	}

	if tc.OutputFile != "" {
		if err := writeOutput(Interpolate(tc.OutputFile, inputs), raw); err != nil {
			return TaskOutput{}, fmt.Errorf("engine: task %q: %w", tc.Name, err)
		}
	}

	return out, nil
}

func (e *Engine) publish(ev Event) {
	ev.Timestamp = time.Now()
	e.events.Publish(ev)
}

// safeCall runs a user callback, logging instead of propagating a panic.
func (e *Engine) safeCall(ctx context.Context, what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, what+" panicked", "panic", r)
		}
	}()

	fn()
}

// Interpolate replaces {key} placeholders in s with values from inputs.
// Placeholders without a matching input are left untouched.
func Interpolate(s string, inputs map[string]string) string {
	if len(inputs) == 0 || !strings.Contains(s, "{") {
		return s
	}

	pairs := make([]string, 0, len(inputs)*2)
	for k, v := range inputs {
		pairs = append(pairs, "{"+k+"}", v)
	}

	return strings.NewReplacer(pairs...).Replace(s)
}

func taskPrompt(description, expected string, prior []TaskOutput) string {
	var b strings.Builder

	b.WriteString(description)

	if expected != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer: ")
		b.WriteString(expected)
		b.WriteString("\nYou MUST return the actual complete content as the final answer, not a summary.")
	}

	if len(prior) > 0 {
		parts := make([]string, len(prior))
		for i, o := range prior {
			parts[i] = o.Raw
		}
		b.WriteString("\n\nThis is the context you're working with:\n")
		b.WriteString(strings.Join(parts, "\n\n----------\n\n"))
	}

	return b.String()
}

func writeOutput(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	return nil
}

// IsConfigurationMissing reports whether err is a *ConfigurationMissingError.
func IsConfigurationMissing(err error) bool {
	var cme *ConfigurationMissingError
	return errors.As(err, &cme)
}
