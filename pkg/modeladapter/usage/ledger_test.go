package usage_test

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/modelid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumCalls(r usage.Report) int {
	total := 0
	for _, n := range r.CallsByModel {
		total += n
	}
	return total
}

func TestLedger_ZeroValueAggregate(t *testing.T) {
	var l usage.Ledger

	r := l.Aggregate()
	assert.Equal(t, 0, r.TotalCalls)
	assert.Empty(t, r.CallsByModel)
	assert.Empty(t, r.UniqueModels)
	assert.Equal(t, 0, sumCalls(r))
}

func TestLedger_AggregateCounts(t *testing.T) {
	l := usage.NewLedger()
	for _, m := range []string{"a", "a", "b"} {
		l.Record(usage.Observation{Model: m, Source: usage.SourceAgentFramework})
	}

	r := l.Aggregate()
	assert.Equal(t, 3, r.TotalCalls)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, r.CallsByModel)
	assert.Equal(t, []string{"a", "b"}, r.UniqueModels)
	assert.Equal(t, map[usage.Source]int{usage.SourceAgentFramework: 3}, r.CallsBySource)
	assert.Equal(t, r.TotalCalls, sumCalls(r))
	assert.Equal(t, l.Len(), r.TotalCalls)
}

func TestLedger_SumInvariantAcrossSequences(t *testing.T) {
	sequences := [][]string{
		{},
		{"x"},
		{"x", "y", "z", "x", usage.UnknownModel},
		{"m", "m", "m", "m"},
	}

	for _, seq := range sequences {
		l := usage.NewLedger()
		for i, m := range seq {
			l.Record(usage.Observation{Model: m, Source: usage.Source(i % 3)})
		}

		r := l.Aggregate()
		assert.Equal(t, len(seq), r.TotalCalls)
		assert.Equal(t, r.TotalCalls, sumCalls(r))
	}
}

func TestLedger_ResetYieldsZeroState(t *testing.T) {
	l := usage.NewLedger()
	l.Record(usage.Observation{Model: "a"})
	l.Record(usage.Observation{Model: "b"})

	l.Reset()

	r := l.Aggregate()
	assert.Equal(t, 0, r.TotalCalls)
	assert.Empty(t, r.CallsByModel)
	assert.Empty(t, r.UniqueModels)
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())
}

func TestLedger_SnapshotIsCopy(t *testing.T) {
	l := usage.NewLedger()
	l.Record(usage.Observation{Model: "a"})

	snap := l.Snapshot()
	snap[0].Model = "tampered"
	_ = append(snap, usage.Observation{Model: "extra"})

	assert.Equal(t, "a", l.Snapshot()[0].Model)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_RecordDefaults(t *testing.T) {
	l := usage.NewLedger()
	before := time.Now()

	l.Record(usage.Observation{Excerpt: strings.Repeat("é", usage.MaxExcerptRunes+10)})

	got := l.Snapshot()[0]
	assert.Equal(t, usage.UnknownModel, got.Model)
	assert.False(t, got.Timestamp.Before(before))
	assert.Equal(t, usage.MaxExcerptRunes, len([]rune(got.Excerpt)))
}

func TestLedger_RecordTrimsModel(t *testing.T) {
	l := usage.NewLedger()
	l.Record(usage.Observation{Model: "   ", Source: usage.SourceTaskCallback})
	l.Record(usage.Observation{Model: " gpt-4o \n", Source: usage.SourceDirectHTTP})
	l.Record(usage.Observation{Model: "gpt-4o", Source: usage.SourceDirectHTTP})

	r := l.Aggregate()
	assert.Equal(t, map[string]int{usage.UnknownModel: 1, "gpt-4o": 2}, r.CallsByModel)
	assert.Equal(t, []string{"gpt-4o", usage.UnknownModel}, r.UniqueModels)
	assert.Equal(t, r.TotalCalls, sumCalls(r))
}

func TestLedger_RecordKeepsTimestamp(t *testing.T) {
	l := usage.NewLedger()
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	l.Record(usage.Observation{Model: "a", Timestamp: ts})
	assert.Equal(t, ts, l.Snapshot()[0].Timestamp)
}

func TestLedger_RecordResultUnknownPolicy(t *testing.T) {
	l := usage.NewLedger()

	got := l.RecordResult(modelid.Unknown(), usage.Observation{Source: usage.SourceTaskCallback})
	assert.Equal(t, usage.UnknownModel, got.Model)

	l.RecordResult(modelid.Found("gpt-4o-mini"), usage.Observation{Source: usage.SourceTaskCallback})

	r := l.Aggregate()
	assert.Equal(t, 2, r.TotalCalls)
	assert.Equal(t, map[string]int{usage.UnknownModel: 1, "gpt-4o-mini": 1}, r.CallsByModel)
}

func TestLedger_Since(t *testing.T) {
	l := usage.NewLedger()
	l.Record(usage.Observation{Model: "a"})
	l.Record(usage.Observation{Model: "b"})
	l.Record(usage.Observation{Model: "c"})

	got := l.Since(1)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Model)
	assert.Equal(t, "c", got[1].Model)

	assert.Empty(t, l.Since(3))
	assert.Empty(t, l.Since(10))
	assert.Len(t, l.Since(-1), 3)
}

func TestLedger_OrderMatchesRecordOrder(t *testing.T) {
	l := usage.NewLedger()
	models := []string{"first", "second", "third"}
	for _, m := range models {
		l.Record(usage.Observation{Model: m})
	}

	var got []string
	for _, o := range l.Snapshot() {
		got = append(got, o.Model)
	}
	assert.Equal(t, models, got)
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l := usage.NewLedger()

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for g := 0; g < goroutines; g++ {
		g := g
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				l.Record(usage.Observation{Model: []string{"a", "b"}[(g+i)%2]})
				_ = l.Aggregate()
			}
		}()
	}

	wg.Wait()

	r := l.Aggregate()
	assert.Equal(t, goroutines*perGoroutine, l.Len())
	assert.Equal(t, goroutines*perGoroutine, r.TotalCalls)
	assert.Equal(t, r.TotalCalls, sumCalls(r))
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "direct_http", usage.SourceDirectHTTP.String())
	assert.Equal(t, "agent_framework_call", usage.SourceAgentFramework.String())
	assert.Equal(t, "task_callback", usage.SourceTaskCallback.String())
	assert.Equal(t, "unknown_source", usage.Source(99).String())
}

func TestReport_JSON(t *testing.T) {
	r := usage.Aggregate([]usage.Observation{
		{Model: "a", Source: usage.SourceDirectHTTP},
		{Model: "a", Source: usage.SourceTaskCallback},
	})

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.EqualValues(t, 2, got["total_calls"])
	assert.Equal(t, map[string]any{"direct_http": float64(1), "task_callback": float64(1)}, got["calls_by_source"])
}
