package agent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/germanamz/crewtrace/pkg/agentctx"
	"github.com/germanamz/crewtrace/pkg/chats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replyRunner(text string, err error) Runner {
	return RunnerFunc(func(context.Context) (chats.Message, error) {
		return chats.NewMessage(chats.Assistant, "writer", text), err
	})
}

func runCtx() context.Context {
	ctx := agentctx.WithRunID(context.Background(), "run-1")
	ctx = agentctx.WithTaskName(ctx, "write")
	return agentctx.WithAgentName(ctx, "writer")
}

func TestTimeout(t *testing.T) {
	t.Run("within deadline", func(t *testing.T) {
		msg, err := Timeout(time.Second)(replyRunner("draft", nil)).Run(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "draft", msg.Content)
	})

	t.Run("deadline exceeded", func(t *testing.T) {
		blocked := RunnerFunc(func(ctx context.Context) (chats.Message, error) {
			<-ctx.Done()
			return chats.Message{}, ctx.Err()
		})

		_, err := Timeout(20 * time.Millisecond)(blocked).Run(context.Background())

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestRecovery(t *testing.T) {
	t.Run("passes replies through", func(t *testing.T) {
		msg, err := Recovery()(replyRunner("draft", nil)).Run(runCtx())

		require.NoError(t, err)
		assert.Equal(t, "draft", msg.Content)
	})

	t.Run("converts panic", func(t *testing.T) {
		exploding := RunnerFunc(func(context.Context) (chats.Message, error) {
			panic("nil choices")
		})

		msg, err := Recovery()(exploding).Run(runCtx())

		assert.EqualError(t, err, `agent "writer" panicked: nil choices`)
		assert.Equal(t, chats.Message{}, msg)
	})
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		err   error
		wants []string
	}{
		{
			name:  "success",
			text:  "draft",
			wants: []string{"agent started", "agent finished", "chars=5"},
		},
		{
			name:  "error with descriptive text",
			text:  "Error making request to API: refused",
			err:   errors.New("refused"),
			wants: []string{"level=WARN", "agent replied with provider error", "error=refused"},
		},
		{
			name:  "error without text",
			err:   errors.New("refused"),
			wants: []string{"level=ERROR", "agent failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))

			msg, err := Logger(log, "writer")(replyRunner(tt.text, tt.err)).Run(runCtx())

			assert.Equal(t, tt.text, msg.Content)
			assert.Equal(t, tt.err, err)

			out := buf.String()
			assert.Contains(t, out, "agent=writer")
			assert.Contains(t, out, "run_id=run-1")
			assert.Contains(t, out, "task=write")
			for _, w := range tt.wants {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string

	trace := func(name string) Middleware {
		return func(next Runner) Runner {
			return RunnerFunc(func(ctx context.Context) (chats.Message, error) {
				order = append(order, name+">")
				msg, err := next.Run(ctx)
				order = append(order, "<"+name)
				return msg, err
			})
		}
	}

	_, err := trace("recovery")(trace("timeout")(replyRunner("ok", nil))).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"recovery>", "timeout>", "<timeout", "<recovery"}, order)
}
