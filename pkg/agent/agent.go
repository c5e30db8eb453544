// Package agent provides the role-playing agent the engine hands tasks to.
// An agent owns a persona (role, goal, backstory) and a language model
// provider, and answers each task with a single completion.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/germanamz/crewtrace/pkg/agentctx"
	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/germanamz/crewtrace/pkg/modeladapter"
)

// Options configures an Agent.
type Options struct {
	Middleware []Middleware        // Applied around Execute.
	Tools      []modeladapter.Tool // Declared to the model, never executed.
	Verbose    bool
}

// Agent answers task prompts through its provider.
type Agent struct {
	name      string
	role      string
	goal      string
	backstory string
	provider  modeladapter.Provider
	chat      *chats.Chat
	options   Options
}

// New creates an Agent. name identifies the agent in configuration; role is
// the persona presented to the model and defaults to name.
func New(name, role, goal, backstory string, provider modeladapter.Provider, opts Options) *Agent {
	if role == "" {
		role = name
	}

	return &Agent{
		name:      name,
		role:      role,
		goal:      goal,
		backstory: backstory,
		provider:  provider,
		chat:      chats.New(),
		options:   opts,
	}
}

// Name returns the agent's configuration name.
func (a *Agent) Name() string { return a.name }

// Role returns the agent's persona.
func (a *Agent) Role() string { return a.role }

// Goal returns the agent's goal.
func (a *Agent) Goal() string { return a.goal }

// Backstory returns the agent's backstory.
func (a *Agent) Backstory() string { return a.backstory }

// Verbose reports whether the agent was configured as verbose.
func (a *Agent) Verbose() bool { return a.options.Verbose }

// Provider returns the provider the agent was built with.
func (a *Agent) Provider() modeladapter.Provider { return a.provider }

// Chat returns the conversation of the most recent Execute.
func (a *Agent) Chat() *chats.Chat { return a.chat }

// Model returns the requested model name when the provider reports one.
func (a *Agent) Model() string {
	if r, ok := a.provider.(modeladapter.UsageReporter); ok {
		return r.ModelName()
	}
	return ""
}

// Execute runs prompt as a fresh conversation and returns the reply text.
//
// Providers may return descriptive text together with an error; both are
// passed through so the caller decides whether the text is usable.
func (a *Agent) Execute(ctx context.Context, prompt string) (string, error) {
	a.chat = chats.New(
		chats.NewMessage(chats.System, a.name, a.SystemPrompt()),
		chats.UserMessage(prompt),
	)

	ctx = agentctx.WithAgentName(ctx, a.name)

	var runner Runner = RunnerFunc(a.run)

	// Apply middleware in reverse order so the first middleware is outermost.
	for i := len(a.options.Middleware) - 1; i >= 0; i-- {
		runner = a.options.Middleware[i](runner)
	}

	msg, err := runner.Run(ctx)

	return msg.Content, err
}

func (a *Agent) run(ctx context.Context) (chats.Message, error) {
	if a.provider == nil {
		return chats.Message{}, fmt.Errorf("agent %q: no provider", a.name)
	}

	text, err := a.provider.Call(ctx, a.chat.Messages(), a.options.Tools)

	reply := chats.NewMessage(chats.Assistant, a.name, text)
	if text != "" {
		a.chat.Append(reply)
	}

	return reply, err
}

// SystemPrompt renders the agent's persona.
func (a *Agent) SystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", a.role)
	if a.backstory != "" {
		fmt.Fprintf(&b, " %s", a.backstory)
	}
	b.WriteString("\n")

	if a.goal != "" {
		fmt.Fprintf(&b, "\nYour personal goal is: %s\n", a.goal)
	}

	return b.String()
}
