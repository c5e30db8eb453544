package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/germanamz/crewtrace/pkg/agentctx"
	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/germanamz/crewtrace/pkg/modeladapter"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/providers/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoTaskConfig() Config {
	return Config{
		Providers: []ProviderConfig{{Name: "p1", Kind: "mock"}},
		Agents: []AgentConfig{
			{Name: "planner", Role: "Planner", Provider: "p1"},
			{Name: "writer", Role: "Writer"},
		},
		Tasks: []TaskConfig{
			{Name: "plan", Description: "Plan an article on {topic}.", ExpectedOutput: "An outline", Agent: "planner"},
			{Name: "write", Description: "Write the article.", Agent: "writer"},
		},
	}
}

func mockRegistry(t *testing.T, p modeladapter.Provider) *Registry {
	t.Helper()

	r := NewRegistry()
	require.NoError(t, r.Register("mock", func(ProviderConfig, ProviderDeps) (modeladapter.Provider, error) {
		return p, nil
	}))

	return r
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "at least one provider")
}

func TestNew_UnknownKind(t *testing.T) {
	cfg := twoTaskConfig()

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNew_FreezesRegistry(t *testing.T) {
	r := mockRegistry(t, &cannedProvider{})

	_, err := New(twoTaskConfig(), WithRegistry(r))
	require.NoError(t, err)

	assert.ErrorIs(t, r.Register("late", cannedFactory(&cannedProvider{})), ErrRegistryFrozen)
}

func TestNew_ProviderOverride(t *testing.T) {
	ledger := usage.NewLedger()
	cfg := validConfig()

	e, err := New(cfg, WithLedger(ledger), WithProviderOverride(KindIntercept))
	require.NoError(t, err)

	a, ok := e.agents.Get("a1")
	require.True(t, ok)
	ip, ok := a.Provider().(*openai.Intercepted)
	require.True(t, ok)
	assert.Same(t, ledger, ip.Ledger)
}

func TestNew_SettingsFillProviderDefaults(t *testing.T) {
	e, err := New(validConfig(), WithSettings(Settings{
		APIKey:  "sk-settings",
		APIBase: "http://proxy.local",
		Model:   "gpt-4o",
		Timeout: time.Second,
	}))
	require.NoError(t, err)

	a, _ := e.agents.Get("a1")
	op, ok := a.Provider().(*openai.Adapter)
	require.True(t, ok)
	assert.Equal(t, "http://proxy.local/chat/completions", op.Endpoint)
	assert.Equal(t, "sk-settings", op.Auth.Key)
	assert.Equal(t, "gpt-4o", op.Name)
	assert.Equal(t, time.Second, op.Timeout)
	assert.Equal(t, "gpt-4o", a.Model())
}

func TestEngine_Accessors(t *testing.T) {
	cfg := twoTaskConfig()
	cfg.Verbose = true

	e, err := New(cfg, WithRegistry(mockRegistry(t, &cannedProvider{})))
	require.NoError(t, err)

	agents := e.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, 2, e.AgentCount())
	assert.Equal(t, "planner", agents[0].Name)
	assert.Equal(t, "Planner", agents[0].Role)
	assert.Equal(t, "writer", agents[1].Name)

	tasks := e.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "plan", tasks[0].Name)

	assert.Equal(t, ProcessSequential, e.Process())
	assert.True(t, e.Verbose())
	assert.NotNil(t, e.Ledger())
}

func TestEngine_KickoffSequential(t *testing.T) {
	p := &cannedProvider{reply: "output"}
	e, err := New(twoTaskConfig(), WithRegistry(mockRegistry(t, p)))
	require.NoError(t, err)

	res, err := e.Kickoff(context.Background(), map[string]string{"topic": "AI LLMs"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "plan", res.Outputs[0].Task)
	assert.Equal(t, "planner", res.Outputs[0].Agent)
	assert.Equal(t, "Plan an article on AI LLMs.", res.Outputs[0].Description)
	assert.Equal(t, res.ID, res.Outputs[1].RunID)
	assert.Equal(t, "output", res.Final)
	assert.False(t, res.Finished.Before(res.Started))

	require.Equal(t, 2, p.calls)
	first := p.seen[0][1].Content
	assert.Contains(t, first, "Plan an article on AI LLMs.")
	assert.Contains(t, first, "expected criteria for your final answer: An outline")
	assert.NotContains(t, first, "context you're working with")

	second := p.seen[1][1].Content
	assert.Contains(t, second, "This is the context you're working with:\noutput")
}

func TestEngine_KickoffCallbacks(t *testing.T) {
	var (
		mu    sync.Mutex
		tasks []TaskOutput
		runs  []RunResult
	)

	e, err := New(twoTaskConfig(),
		WithRegistry(mockRegistry(t, &cannedProvider{reply: "done"})),
		WithTaskCallback(func(o TaskOutput) {
			mu.Lock()
			defer mu.Unlock()
			tasks = append(tasks, o)
		}),
		WithTaskCallback(func(TaskOutput) { panic("observer bug") }),
		WithRunCallback(func(r RunResult) {
			mu.Lock()
			defer mu.Unlock()
			runs = append(runs, r)
		}),
	)
	require.NoError(t, err)

	res, err := e.Kickoff(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, tasks, 2)
	require.Len(t, runs, 1)
	assert.Equal(t, res.ID, runs[0].ID)
	assert.Len(t, runs[0].Outputs, 2)
}

func TestEngine_KickoffFailureStillFiresRunCallback(t *testing.T) {
	boom := errors.New("connection refused")
	var got []RunResult

	e, err := New(twoTaskConfig(),
		WithRegistry(mockRegistry(t, &cannedProvider{err: boom})),
		WithRunCallback(func(r RunResult) { got = append(got, r) }),
	)
	require.NoError(t, err)

	res, err := e.Kickoff(context.Background(), nil)

	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, `engine: task "plan"`)
	assert.Empty(t, res.Outputs)
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0].Err, boom)
}

// blockingProvider waits for its context to end.
type blockingProvider struct{ cannedProvider }

func (p *blockingProvider) Call(ctx context.Context, _ []chats.Message, _ []modeladapter.Tool) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestEngine_KickoffMaxExecutionTime(t *testing.T) {
	cfg := twoTaskConfig()
	cfg.Agents[0].MaxExecutionTime = 1

	e, err := New(cfg, WithRegistry(mockRegistry(t, &blockingProvider{})))
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Kickoff(context.Background(), nil)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEngine_KickoffUsesDescriptiveErrorText(t *testing.T) {
	p := &cannedProvider{reply: "Error making request to API: refused", err: errors.New("refused")}
	e, err := New(twoTaskConfig(), WithRegistry(mockRegistry(t, p)))
	require.NoError(t, err)

	res, err := e.Kickoff(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "Error making request to API: refused", res.Final)
	for _, out := range res.Outputs {
		assert.EqualError(t, out.ProviderErr, "refused")
	}
}

func TestEngine_KickoffWritesOutputFile(t *testing.T) {
	dir := t.TempDir()
	cfg := twoTaskConfig()
	cfg.Tasks[1].OutputFile = filepath.Join(dir, "posts", "{topic}.md")

	e, err := New(cfg, WithRegistry(mockRegistry(t, &cannedProvider{reply: "# Title"})))
	require.NoError(t, err)

	_, err = e.Kickoff(context.Background(), map[string]string{"topic": "go"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "posts", "go.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(data))
}

func TestEngine_KickoffEvents(t *testing.T) {
	e, err := New(twoTaskConfig(), WithRegistry(mockRegistry(t, &cannedProvider{reply: "x"})))
	require.NoError(t, err)

	sub := e.Events().Subscribe(16)
	defer e.Events().Unsubscribe(sub)

	_, err = e.Kickoff(context.Background(), nil)
	require.NoError(t, err)

	var kinds []EventKind
	for len(sub.C) > 0 {
		kinds = append(kinds, (<-sub.C).Kind)
	}

	assert.Equal(t, []EventKind{
		EventRunStart,
		EventTaskStart, EventTaskEnd,
		EventTaskStart, EventTaskEnd,
		EventRunEnd,
	}, kinds)
}

func TestEngine_InterceptRecordsWithRunID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"model":"gcp-gemini-2.0-flash-lite","choices":[{"message":{"content":"hi"}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
	t.Cleanup(srv.Close)

	ledger := usage.NewLedger()
	cfg := twoTaskConfig()
	cfg.Providers[0] = ProviderConfig{Name: "p1", Kind: KindOpenAI, BaseURL: srv.URL, APIKey: "sk", Model: "gpt-4o-mini"}

	e, err := New(cfg, WithLedger(ledger), WithProviderOverride(KindIntercept))
	require.NoError(t, err)

	res, err := e.Kickoff(context.Background(), nil)
	require.NoError(t, err)

	snap := ledger.Snapshot()
	require.Len(t, snap, 2)
	for _, o := range snap {
		assert.Equal(t, "gcp-gemini-2.0-flash-lite", o.Model)
		assert.Equal(t, usage.SourceAgentFramework, o.Source)
		assert.Equal(t, res.ID, o.RunID)
	}

	assert.Equal(t, usage.Metrics{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30, SuccessfulRequests: 2}, e.UsageMetrics())
}

type ctxProvider struct {
	cannedProvider
	runIDs []string
	tasks  []string
}

func (p *ctxProvider) Call(ctx context.Context, msgs []chats.Message, tools []modeladapter.Tool) (string, error) {
	p.runIDs = append(p.runIDs, agentctx.RunIDFromContext(ctx))
	p.tasks = append(p.tasks, agentctx.TaskNameFromContext(ctx))
	return p.cannedProvider.Call(ctx, msgs, tools)
}

func TestEngine_KickoffContext(t *testing.T) {
	p := &ctxProvider{cannedProvider: cannedProvider{reply: "ok"}}
	e, err := New(twoTaskConfig(), WithRegistry(mockRegistry(t, p)))
	require.NoError(t, err)

	first, err := e.Kickoff(context.Background(), nil)
	require.NoError(t, err)
	second, err := e.Kickoff(context.Background(), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, []string{first.ID, first.ID, second.ID, second.ID}, p.runIDs)
	assert.Equal(t, []string{"plan", "write", "plan", "write"}, p.tasks)
}

func TestInterpolate(t *testing.T) {
	inputs := map[string]string{"topic": "Go", "current_year": "2026"}

	assert.Equal(t, "Write about Go in 2026.", Interpolate("Write about {topic} in {current_year}.", inputs))
	assert.Equal(t, "Keep {missing}", Interpolate("Keep {missing}", inputs))
	assert.Equal(t, "{topic}", Interpolate("{topic}", nil))
}

func TestTaskPrompt(t *testing.T) {
	p := taskPrompt("Do it.", "", []TaskOutput{{Raw: "a"}, {Raw: "b"}})

	assert.True(t, strings.HasPrefix(p, "Do it."))
	assert.NotContains(t, p, "expected criteria")
	assert.Contains(t, p, "a\n\n----------\n\nb")
}
