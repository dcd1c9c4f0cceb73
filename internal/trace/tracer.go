// Package trace records step-by-step visibility into an extraction run: a
// session-scoped state machine, per-event timing, durable snapshots for
// crash recovery, and a synchronous observer registry.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/tradedocs-cli/internal/model"
	"github.com/sells-group/tradedocs-cli/internal/store"
)

// DisplayState is what an observer should render: the live session when one
// is running, otherwise the last terminal session.
type DisplayState struct {
	Session    *model.ExtractionSession
	Live       bool
	HasPartial bool
}

// Subscriber receives display-state updates. Notification is synchronous and
// runs on the control-flow step that produced the event, so subscribers must
// not block.
type Subscriber func(DisplayState)

// StartOptions sizes a new session.
type StartOptions struct {
	FileCount    int
	PayloadBytes int64
	Timeouts     model.TimeoutConfig
}

// EventMeta carries optional structured detail for a logged event.
type EventMeta struct {
	Payload   map[string]any
	LatencyMs int64
	Tokens    *model.TokenMetrics
	CostUSD   float64
}

// Tracer is an explicit session manager passed through the call chain. It
// holds at most one running session; starting a new one retires the previous
// run. It is safe for use from a single extraction goroutine plus any number
// of readers.
type Tracer struct {
	mu      sync.Mutex
	store   store.SessionStore
	nowFunc func() time.Time

	current *model.ExtractionSession
	last    *model.ExtractionSession
	partial *model.PartialExtractionData

	subscribers map[int]Subscriber
	nextSubID   int
}

// New creates a Tracer backed by st and seeds last-session and partial data
// from the persisted snapshot, so a restart does not lose the previous trace.
// Load failures are logged and ignored.
func New(st store.SessionStore) *Tracer {
	t := &Tracer{
		store:       st,
		nowFunc:     time.Now,
		subscribers: make(map[int]Subscriber),
	}

	if st != nil {
		snap, err := st.Load(context.Background())
		if err != nil {
			zap.L().Warn("trace: failed to load persisted snapshot", zap.Error(err))
		} else if snap != nil {
			t.last = snap.LastState
			t.partial = snap.PartialData
		}
	}

	return t
}

// Start initializes a new session and clears any stale partial data. A still
// running previous session is retired as failed before the new one begins.
func (t *Tracer) Start(opts StartOptions) string {
	t.mu.Lock()

	if t.current != nil && t.current.Status == model.StatusRunning {
		status := model.StatusFailure
		if !t.partial.Empty() {
			status = model.StatusPartial
		}
		t.finalizeLocked(status, "superseded by a new extraction run")
	}

	now := t.nowFunc()
	t.partial = nil
	t.current = &model.ExtractionSession{
		ID:           uuid.New().String(),
		StartedAt:    now,
		Status:       model.StatusRunning,
		CurrentStep:  model.StepInit,
		PayloadBytes: opts.PayloadBytes,
		FileCount:    opts.FileCount,
		Timeouts:     opts.Timeouts,
	}
	id := t.current.ID

	zap.L().Info("trace: session started",
		zap.String("session_id", id),
		zap.Int("file_count", opts.FileCount),
		zap.Int64("payload_bytes", opts.PayloadBytes),
	)

	t.mu.Unlock()
	t.notify()
	return id
}

// LogEvent appends an event to the running session and advances the current
// step. Elapsed and delta timings are computed now, never retroactively.
// Calls without a running session are logged and dropped.
func (t *Tracer) LogEvent(step model.StepTag, message string, meta *EventMeta) {
	t.mu.Lock()

	if t.current == nil || t.current.Status != model.StatusRunning {
		t.mu.Unlock()
		zap.L().Warn("trace: event without a running session",
			zap.String("step", string(step)),
			zap.String("message", message),
		)
		return
	}

	now := t.nowFunc()
	ev := model.TraceEvent{
		ID:        uuid.New().String(),
		Timestamp: now,
		Step:      step,
		Message:   message,
		ElapsedMs: now.Sub(t.current.StartedAt).Milliseconds(),
	}
	if n := len(t.current.Events); n > 0 {
		ev.DeltaMsFromPrevMs = now.Sub(t.current.Events[n-1].Timestamp).Milliseconds()
	}
	if meta != nil {
		ev.Payload = meta.Payload
		ev.LatencyMs = meta.LatencyMs
		if meta.Tokens != nil {
			tk := *meta.Tokens
			ev.Tokens = &tk
			t.current.Metrics.InputTokens += tk.InputTokens
			t.current.Metrics.OutputTokens += tk.OutputTokens
		}
		t.current.Metrics.CostUSD += meta.CostUSD
	}

	t.current.Events = append(t.current.Events, ev)
	t.current.CurrentStep = step

	fields := []zap.Field{
		zap.String("session_id", t.current.ID),
		zap.String("step", string(step)),
		zap.Int64("elapsed_ms", ev.ElapsedMs),
	}
	if ev.Tokens != nil {
		fields = append(fields,
			zap.Int64("input_tokens", ev.Tokens.InputTokens),
			zap.Int64("output_tokens", ev.Tokens.OutputTokens),
		)
	}
	zap.L().Info("trace: "+message, fields...)

	t.mu.Unlock()
	t.notify()
}

// Fail marks the session FAILURE, or PARTIAL when recoverable partial data
// was captured, and persists the snapshot. Idempotent on timing fields.
func (t *Tracer) Fail(reason string) {
	t.mu.Lock()
	status := model.StatusFailure
	if !t.partial.Empty() {
		status = model.StatusPartial
	}
	t.finalizeLocked(status, reason)
	t.mu.Unlock()
	t.notify()
}

// Complete marks the session SUCCESS, clears partial data, and persists.
func (t *Tracer) Complete() {
	t.mu.Lock()
	t.partial = nil
	t.finalizeLocked(model.StatusSuccess, "extraction complete")
	t.mu.Unlock()
	t.notify()
}

// finalizeLocked demotes the current session to last and persists the
// snapshot. The end time and duration are set exactly once.
func (t *Tracer) finalizeLocked(status model.SessionStatus, reason string) {
	if t.current == nil {
		return
	}
	s := t.current

	if s.EndedAt == nil {
		now := t.nowFunc()
		s.EndedAt = &now
		s.Metrics.DurationMs = now.Sub(s.StartedAt).Milliseconds()
	}
	s.Status = status
	if status != model.StatusSuccess {
		s.CurrentStep = model.StepError
	} else {
		s.CurrentStep = model.StepComplete
	}

	zap.L().Info("trace: session finalized",
		zap.String("session_id", s.ID),
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Int64("duration_ms", s.Metrics.DurationMs),
		zap.Float64("cost_usd", s.Metrics.CostUSD),
	)

	t.last = s
	t.current = nil
	t.persistLocked()
}

// persistLocked writes the snapshot. Storage failures are caught and logged,
// never thrown: losing durability must not fail the extraction itself.
func (t *Tracer) persistLocked() {
	if t.store == nil {
		return
	}
	snap := store.Snapshot{
		LastState:   t.last.Clone(),
		PartialData: t.partial,
	}
	if err := t.store.Save(context.Background(), snap); err != nil {
		zap.L().Warn("trace: failed to persist snapshot", zap.Error(err))
	}
}

// SetPartial caches best-effort extraction output for manual recovery after
// a failure. It does not persist by itself; the terminal transition does.
func (t *Tracer) SetPartial(p *model.PartialExtractionData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p != nil && p.SavedAt.IsZero() {
		p.SavedAt = t.nowFunc()
	}
	t.partial = p
}

// Partial returns the cached partial data, if any.
func (t *Tracer) Partial() (*model.PartialExtractionData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.partial.Empty() {
		return nil, false
	}
	return t.partial, true
}

// HasPartial reports whether recoverable partial data exists.
func (t *Tracer) HasPartial() bool {
	_, ok := t.Partial()
	return ok
}

// ClearPartial drops cached partial data and persists the change.
func (t *Tracer) ClearPartial() {
	t.mu.Lock()
	t.partial = nil
	t.persistLocked()
	t.mu.Unlock()
}

// Current returns a copy of the live session, or nil when none is running.
func (t *Tracer) Current() *model.ExtractionSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.Clone()
}

// Last returns a copy of the most recent terminal session, or nil.
func (t *Tracer) Last() *model.ExtractionSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last.Clone()
}

// DisplayState returns the live session when one is running, otherwise the
// last terminal session.
func (t *Tracer) DisplayState() DisplayState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayStateLocked()
}

func (t *Tracer) displayStateLocked() DisplayState {
	if t.current != nil {
		return DisplayState{Session: t.current.Clone(), Live: true, HasPartial: !t.partial.Empty()}
	}
	return DisplayState{Session: t.last.Clone(), Live: false, HasPartial: !t.partial.Empty()}
}

// Elapsed returns time since the running session started, or 0.
func (t *Tracer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return 0
	}
	return t.nowFunc().Sub(t.current.StartedAt)
}

// Remaining returns the advisory time left before the server-side ceiling.
// The value is for countdown display only; nothing aborts at zero.
func (t *Tracer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil || t.current.Timeouts.ServerCeiling <= 0 {
		return 0
	}
	left := t.current.Timeouts.ServerCeiling - t.nowFunc().Sub(t.current.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Subscribe registers fn and invokes it immediately with the current display
// state. The returned id deterministically unsubscribes.
func (t *Tracer) Subscribe(fn Subscriber) int {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn
	state := t.displayStateLocked()
	t.mu.Unlock()

	fn(state)
	return id
}

// Unsubscribe removes a subscriber. Unknown ids are a no-op.
func (t *Tracer) Unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, id)
}

// notify fans the current display state out to every subscriber.
func (t *Tracer) notify() {
	t.mu.Lock()
	state := t.displayStateLocked()
	subs := make([]Subscriber, 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// ClearHistory drops the last session and partial data, in memory and in the
// durable store.
func (t *Tracer) ClearHistory() {
	t.mu.Lock()
	t.last = nil
	t.partial = nil
	if t.store != nil {
		if err := t.store.Clear(context.Background()); err != nil {
			zap.L().Warn("trace: failed to clear persisted snapshot", zap.Error(err))
		}
	}
	t.mu.Unlock()
	t.notify()
}
