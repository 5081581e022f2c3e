package reminder

import (
	"context"
	"sync"
	"time"

	"beanbot/internal/logging"
	"beanbot/internal/observability"
)

// Watchers owns one cancellable timeout timer per pending occurrence. A timer
// carries only the occurrence ID and re-reads state through the Registry when
// it fires.
type Watchers struct {
	clock    Clock
	registry *Registry
	settings *Settings
	notify   *notifier
	logger   logging.Logger

	mu      sync.Mutex
	timers  map[OccurrenceID]Timer
	stopped bool
}

func newWatchers(clock Clock, registry *Registry, settings *Settings, notify *notifier, logger logging.Logger) *Watchers {
	return &Watchers{
		clock:    clock,
		registry: registry,
		settings: settings,
		notify:   notify,
		logger:   logging.OrNop(logger),
		timers:   make(map[OccurrenceID]Timer),
	}
}

// Schedule arms the timeout for id. The timer keeps ctx's values but not its
// cancellation. Scheduling after StopAll is a no-op.
func (w *Watchers) Schedule(ctx context.Context, id OccurrenceID, timeout time.Duration) {
	fireCtx := context.WithoutCancel(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if existing, ok := w.timers[id]; ok {
		existing.Stop()
	}
	w.timers[id] = w.clock.AfterFunc(timeout, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		w.fire(fireCtx, id)
	})
}

// Cancel stops the timer for id, reporting whether one was armed.
func (w *Watchers) Cancel(id OccurrenceID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	timer, ok := w.timers[id]
	if !ok {
		return false
	}
	delete(w.timers, id)
	return timer.Stop()
}

// StopAll cancels every timer. Pending occurrences are abandoned.
func (w *Watchers) StopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for id, timer := range w.timers {
		timer.Stop()
		delete(w.timers, id)
	}
}

// Armed counts timers that have not fired or been cancelled.
func (w *Watchers) Armed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.timers)
}

func (w *Watchers) fire(ctx context.Context, id OccurrenceID) {
	ctx = observability.ContextWithOccurrence(ctx, id.String())
	ctx, span := observability.StartSpan(ctx, observability.SpanReminderTimeout, observability.SlotAttrs(string(id.Slot))...)
	defer span.End()

	occ, ok := w.registry.Resolve(id, EventTimedOut, w.clock.Now())
	if !ok {
		logging.FromContext(ctx, w.logger).Debug("Timeout fired for resolved reminder, nothing to do")
		return
	}
	span.SetAttributes(observability.StatusAttrs(string(occ.Status))...)
	w.notify.recorder.RecordResolution(ctx, string(occ.ID.Slot), string(occ.Status))
	logging.FromContext(ctx, w.logger).Warn("Reminder overdue after %s", occ.Timeout)

	snap := w.settings.Snapshot()
	w.notify.escalate(ctx, snap.EscalationID, occ.ID.Slot, "overdue", OverdueText(occ.ID.Slot, occ.Timeout))
	w.notify.disableControls(ctx, occ.Prompt)
}
