package trace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tradedocs-cli/internal/model"
	"github.com/sells-group/tradedocs-cli/internal/store"
)

// fakeClock advances by a fixed step on every read, so elapsed/delta values
// are deterministic.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func newTestTracer(t *testing.T) (*Tracer, *store.MemoryStore, *fakeClock) {
	t.Helper()
	st := store.NewMemory()
	clock := &fakeClock{now: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), step: 100 * time.Millisecond}
	tr := New(st)
	tr.nowFunc = clock.Now
	return tr, st, clock
}

func TestTracer_EventTimingMonotonic(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{FileCount: 1})

	steps := []model.StepTag{
		model.StepPreProcessing,
		model.StepAPIConnect,
		model.StepMetadataRequest,
		model.StepMetadataResponse,
	}
	for _, s := range steps {
		tr.LogEvent(s, "step "+string(s), nil)
	}

	sess := tr.Current()
	require.NotNil(t, sess)
	require.Len(t, sess.Events, len(steps))

	var prevElapsed int64 = -1
	for i, ev := range sess.Events {
		assert.GreaterOrEqual(t, ev.ElapsedMs, prevElapsed, "elapsed must be non-decreasing")
		prevElapsed = ev.ElapsedMs
		if i == 0 {
			assert.Equal(t, int64(0), ev.DeltaMsFromPrevMs)
		} else {
			want := ev.Timestamp.Sub(sess.Events[i-1].Timestamp).Milliseconds()
			assert.Equal(t, want, ev.DeltaMsFromPrevMs)
		}
	}
	assert.Equal(t, model.StepMetadataResponse, sess.CurrentStep)
}

func TestTracer_FailWithoutPartialIsFailure(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})
	tr.Fail("metadata call exhausted retries")

	last := tr.Last()
	require.NotNil(t, last)
	assert.Equal(t, model.StatusFailure, last.Status)
	assert.Equal(t, model.StepError, last.CurrentStep)
	assert.NotNil(t, last.EndedAt)
	assert.Nil(t, tr.Current())
}

func TestTracer_FailWithPartialIsPartial(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})
	tr.SetPartial(&model.PartialExtractionData{
		Metadata: &model.InvoiceRecord{InvoiceNumber: "INV-1"},
	})
	tr.Fail("line items call failed")

	last := tr.Last()
	require.NotNil(t, last)
	assert.Equal(t, model.StatusPartial, last.Status)

	p, ok := tr.Partial()
	require.True(t, ok)
	assert.Equal(t, "INV-1", p.Metadata.InvoiceNumber)
}

func TestTracer_CompleteClearsPartial(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})
	tr.SetPartial(&model.PartialExtractionData{
		Metadata: &model.InvoiceRecord{InvoiceNumber: "INV-1"},
	})
	tr.Complete()

	assert.Equal(t, model.StatusSuccess, tr.Last().Status)
	assert.False(t, tr.HasPartial())
}

func TestTracer_TerminalIdempotentOnTiming(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})
	tr.Fail("first")
	ended := *tr.Last().EndedAt

	tr.Fail("second") // No running session; must not disturb the last one.
	assert.Equal(t, ended, *tr.Last().EndedAt)
	assert.Equal(t, model.StatusFailure, tr.Last().Status)
}

func TestTracer_StartClearsStalePartialAndRetiresRunning(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})
	tr.SetPartial(&model.PartialExtractionData{
		LineItems: []model.LineItem{{Description: "bolts"}},
	})

	tr.Start(StartOptions{})

	assert.False(t, tr.HasPartial(), "new session must clear stale partial data")
	require.NotNil(t, tr.Last())
	assert.Equal(t, model.StatusPartial, tr.Last().Status, "retired run had partial data cached")
	require.NotNil(t, tr.Current())
	assert.Equal(t, model.StatusRunning, tr.Current().Status)
}

func TestTracer_StartRetiresRunningWithoutPartialAsFailure(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})

	tr.Start(StartOptions{})

	require.NotNil(t, tr.Last())
	assert.Equal(t, model.StatusFailure, tr.Last().Status, "retired run had nothing recoverable")
}

func TestTracer_PersistsOnTerminalTransition(t *testing.T) {
	tr, st, _ := newTestTracer(t)
	tr.Start(StartOptions{FileCount: 2, PayloadBytes: 1024})
	tr.LogEvent(model.StepParsing, "parsing", nil)
	tr.Fail("boom")

	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.NotNil(t, snap.LastState)
	assert.Equal(t, tr.Last().ID, snap.LastState.ID)
	assert.Equal(t, 2, snap.LastState.FileCount)
}

func TestTracer_CrashRecoverySeedsFromStore(t *testing.T) {
	st := store.NewMemory()

	first := New(st)
	first.Start(StartOptions{})
	first.SetPartial(&model.PartialExtractionData{
		Metadata: &model.InvoiceRecord{InvoiceNumber: "INV-42"},
	})
	first.Fail("crash before line items")

	// A fresh tracer over the same store sees the previous run.
	second := New(st)
	require.NotNil(t, second.Last())
	assert.Equal(t, model.StatusPartial, second.Last().Status)

	p, ok := second.Partial()
	require.True(t, ok)
	assert.Equal(t, "INV-42", p.Metadata.InvoiceNumber)

	state := second.DisplayState()
	assert.False(t, state.Live)
	assert.Equal(t, second.Last().ID, state.Session.ID)
}

func TestTracer_SubscribeImmediateAndLive(t *testing.T) {
	tr, _, _ := newTestTracer(t)

	var states []DisplayState
	id := tr.Subscribe(func(s DisplayState) { states = append(states, s) })

	require.Len(t, states, 1, "subscriber is invoked immediately")
	assert.Nil(t, states[0].Session)

	tr.Start(StartOptions{})
	tr.LogEvent(model.StepPreProcessing, "reading files", nil)

	require.GreaterOrEqual(t, len(states), 3)
	lastState := states[len(states)-1]
	assert.True(t, lastState.Live)
	assert.Len(t, lastState.Session.Events, 1)

	tr.Unsubscribe(id)
	before := len(states)
	tr.LogEvent(model.StepAPIConnect, "connecting", nil)
	assert.Equal(t, before, len(states), "unsubscribed observer must not fire")
}

func TestTracer_MetricsAccumulate(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.Start(StartOptions{})

	tr.LogEvent(model.StepMetadataResponse, "metadata received", &EventMeta{
		LatencyMs: 1200,
		Tokens:    &model.TokenMetrics{InputTokens: 1000, OutputTokens: 200},
		CostUSD:   0.006,
	})
	tr.LogEvent(model.StepLineItemsResponse, "line items received", &EventMeta{
		Tokens:  &model.TokenMetrics{InputTokens: 800, OutputTokens: 400},
		CostUSD: 0.008,
	})

	sess := tr.Current()
	assert.Equal(t, int64(1800), sess.Metrics.InputTokens)
	assert.Equal(t, int64(600), sess.Metrics.OutputTokens)
	assert.InDelta(t, 0.014, sess.Metrics.CostUSD, 1e-9)
	assert.Equal(t, int64(1200), sess.Events[0].LatencyMs)
}

func TestTracer_EventWithoutRunningSessionDropped(t *testing.T) {
	tr, _, _ := newTestTracer(t)
	tr.LogEvent(model.StepParsing, "orphan", nil)
	assert.Nil(t, tr.Current())
	assert.Nil(t, tr.Last())
}

func TestTracer_RemainingCountdown(t *testing.T) {
	tr, _, clock := newTestTracer(t)
	clock.step = 0
	tr.Start(StartOptions{Timeouts: model.TimeoutConfig{ServerCeiling: time.Minute}})

	clock.now = clock.now.Add(20 * time.Second)
	assert.Equal(t, 40*time.Second, tr.Remaining())

	clock.now = clock.now.Add(2 * time.Minute)
	assert.Equal(t, time.Duration(0), tr.Remaining())
}

func TestTracer_ClearHistory(t *testing.T) {
	tr, st, _ := newTestTracer(t)
	tr.Start(StartOptions{})
	tr.SetPartial(&model.PartialExtractionData{LineItems: []model.LineItem{{}}})
	tr.Fail("x")

	tr.ClearHistory()

	assert.Nil(t, tr.Last())
	assert.False(t, tr.HasPartial())
	snap, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}
