// Package monitoring watches live extraction sessions for advisory timeout
// overruns. Ceilings never abort a run; they only surface warnings so an
// operator can tell a slow model apart from a hung one.
package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tradedocs-cli/internal/trace"
)

// Watchdog periodically inspects the tracer and warns when the live session
// has outlived its server ceiling.
type Watchdog struct {
	tracer   *trace.Tracer
	interval time.Duration

	warned map[string]bool
}

// NewWatchdog creates a watchdog polling at the given interval. Intervals
// of zero or less default to 30s.
func NewWatchdog(tracer *trace.Tracer, interval time.Duration) *Watchdog {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watchdog{
		tracer:   tracer,
		interval: interval,
		warned:   map[string]bool{},
	}
}

// Run starts the poll loop. It blocks until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.watchdog"))
	log.Info("starting session watchdog", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("session watchdog stopped")
			return
		case <-ticker.C:
			w.check(log)
		}
	}
}

// check warns once per session when the advisory ceiling is exhausted.
func (w *Watchdog) check(log *zap.Logger) {
	state := w.tracer.DisplayState()
	if !state.Live || state.Session == nil {
		return
	}
	s := state.Session
	if s.Timeouts.ServerCeiling <= 0 || w.warned[s.ID] {
		return
	}
	if w.tracer.Remaining() > 0 {
		return
	}
	w.warned[s.ID] = true
	log.Warn("session exceeded its advisory ceiling",
		zap.String("session", s.ID),
		zap.Duration("ceiling", s.Timeouts.ServerCeiling),
		zap.Duration("elapsed", w.tracer.Elapsed()),
		zap.String("step", string(s.CurrentStep)),
	)
}
