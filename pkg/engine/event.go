package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// EventKind identifies a step of a run.
type EventKind string

const (
	EventRunStart  EventKind = "run_start"
	EventTaskStart EventKind = "task_start"
	EventTaskEnd   EventKind = "task_end"
	EventRunEnd    EventKind = "run_end"
	EventError     EventKind = "error"
)

// Event is published by Kickoff as a run progresses. Data holds a TaskOutput
// for task_end, a RunResult for run_end and an error for error.
type Event struct {
	Kind      EventKind
	RunID     string
	Task      string
	Agent     string
	Timestamp time.Time
	Data      any
}

// Output returns the task output carried by a task_end event.
func (e Event) Output() (TaskOutput, bool) {
	out, ok := e.Data.(TaskOutput)
	return out, ok
}

// Err returns the failure carried by an error event.
func (e Event) Err() error {
	err, _ := e.Data.(error)
	return err
}

// Progress formats the event as a one-line progress message. Run level events
// yield "".
func (e Event) Progress() string {
	switch e.Kind {
	case EventTaskStart:
		return fmt.Sprintf("▶ %s (%s)", e.Task, e.Agent)
	case EventTaskEnd:
		return "✓ " + e.Task
	case EventError:
		return fmt.Sprintf("✗ %s: %v", e.Task, e.Err())
	default:
		return ""
	}
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	kinds []EventKind
}

func (s *Subscription) wants(k EventKind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, k)
}

// EventBus fans run events out to subscribers. It is safe for concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber with a buffer of bufSize events. With no
// kinds every event is delivered, otherwise only the listed kinds. The caller
// must eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int, kinds ...EventKind) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch, kinds: kinds}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is a no-op.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}

	delete(b.subs, sub)
	close(sub.ch)
}

// Publish delivers e to every interested subscriber. A subscriber whose
// buffer is full misses the event; a run never blocks on its observers.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(e.Kind) {
			continue
		}

		select {
		case sub.ch <- e:
		default:
		}
	}
}
