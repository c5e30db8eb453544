package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/germanamz/crewtrace/pkg/agentctx"
	"github.com/germanamz/crewtrace/pkg/chats"
)

// Runner executes agent logic and returns the final message.
type Runner interface {
	Run(ctx context.Context) (chats.Message, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) (chats.Message, error)

// Run calls the underlying function.
func (f RunnerFunc) Run(ctx context.Context) (chats.Message, error) {
	return f(ctx)
}

// Middleware wraps a Runner, returning a new Runner with added behaviour.
type Middleware func(next Runner) Runner

// Timeout bounds one execution with a deadline of d.
func Timeout(d time.Duration) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (chats.Message, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			return next.Run(ctx)
		})
	}
}

// Recovery turns a panic inside an execution into an error naming the agent.
func Recovery() Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (msg chats.Message, err error) {
			defer func() {
				if r := recover(); r != nil {
					msg = chats.Message{}
					err = fmt.Errorf("agent %q panicked: %v", agentctx.AgentNameFromContext(ctx), r)
				}
			}()

			return next.Run(ctx)
		})
	}
}

// Logger records each execution with its run and task. Provider errors are
// logged at warn when the reply still carries text, since the run goes on
// with that text.
func Logger(log *slog.Logger, name string) Middleware {
	return func(next Runner) Runner {
		return RunnerFunc(func(ctx context.Context) (chats.Message, error) {
			attrs := []any{
				"agent", name,
				"run_id", agentctx.RunIDFromContext(ctx),
				"task", agentctx.TaskNameFromContext(ctx),
			}

			log.InfoContext(ctx, "agent started", attrs...)

			start := time.Now()
			msg, err := next.Run(ctx)
			attrs = append(attrs, "duration", time.Since(start))

			switch {
			case err != nil && msg.Content != "":
				log.WarnContext(ctx, "agent replied with provider error", append(attrs, "error", err)...)
			case err != nil:
				log.ErrorContext(ctx, "agent failed", append(attrs, "error", err)...)
			default:
				log.InfoContext(ctx, "agent finished", append(attrs, "chars", len(msg.Content))...)
			}

			return msg, err
		})
	}
}
