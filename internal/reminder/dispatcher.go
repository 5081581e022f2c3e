package reminder

import (
	"context"
	"fmt"
	"sync"

	"beanbot/internal/logging"
	"beanbot/internal/observability"

	"github.com/segmentio/ksuid"
)

// Dispatcher sends one slot's prompt and registers the resulting occurrence.
type Dispatcher struct {
	settings *Settings
	registry *Registry
	watchers *Watchers
	clock    Clock
	notify   *notifier
	logger   logging.Logger
	gate     *dispatchGate
	// replay applies answers that arrived while the prompt was in flight.
	replay func(context.Context, Interaction)

	// mu serializes dispatches so the duplicate check and the insert see
	// the same registry state.
	mu sync.Mutex
}

func newDispatcher(settings *Settings, registry *Registry, watchers *Watchers, clock Clock, notify *notifier, gate *dispatchGate, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		settings: settings,
		registry: registry,
		watchers: watchers,
		clock:    clock,
		notify:   notify,
		gate:     gate,
		logger:   logging.OrNop(logger),
	}
}

// Dispatch resolves the recipient, sends the slot prompt with yes/no actions
// and, on success, inserts a pending occurrence and arms its timeout.
//
// Resolution and delivery failures are reported to the escalation contact on
// a best-effort basis and returned as *CallError; nothing is registered. Under
// DuplicateSkip a slot that is already pending today returns
// ErrAlreadyPending without sending anything.
//
// An answer to the prompt that arrives before the occurrence is registered
// is applied right after the insert.
func (d *Dispatcher) Dispatch(ctx context.Context, slot Slot) (Occurrence, error) {
	if !slot.Valid() {
		return Occurrence{}, fmt.Errorf("dispatch: %w: unknown slot %q", ErrInvalidInput, slot)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	snap := d.settings.Snapshot()
	now := d.clock.Now().In(snap.Location)
	id := NewOccurrenceID(slot, now)

	if snap.DuplicatePolicy == DuplicateSkip && d.registry.HasPending(slot, id.Date) {
		d.notify.recorder.RecordDispatch(ctx, string(slot), "skipped")
		d.logger.Info("Skipping %s reminder: one is already pending for %s", slot, id.Date)
		return Occurrence{}, ErrAlreadyPending
	}

	traceID := ksuid.New().String()
	ctx = observability.ContextWithTraceID(ctx, traceID)
	ctx, span := observability.StartSpan(ctx, observability.SpanReminderDispatch, observability.SlotAttrs(string(slot))...)
	defer span.End()

	d.gate.begin()
	settled := false
	defer func() {
		// A panicking messenger must not leave the gate open.
		if !settled {
			d.gate.finish("", nil)
		}
	}()

	user, err := callResult(FailureResolveUser, "resolve recipient", func() (UserHandle, error) {
		if snap.RecipientID == "" {
			return UserHandle{}, errNoRecipient
		}
		return d.notify.messenger.ResolveUser(ctx, snap.RecipientID)
	}).Unpack()
	if err != nil {
		settled = true
		d.settle(ctx)
		return Occurrence{}, d.abort(ctx, snap, slot, err)
	}

	ref, err := callResult(FailureDeliver, "send prompt", func() (MessageRef, error) {
		return d.notify.messenger.SendDirectMessage(ctx, user.ID, PromptText(slot), PromptActions...)
	}).Unpack()
	if err != nil {
		settled = true
		d.settle(ctx)
		return Occurrence{}, d.abort(ctx, snap, slot, err)
	}

	var occ Occurrence
	settled = true
	matched, stale := d.gate.finish(ref.MessageID, func() {
		occ = d.registry.Insert(Occurrence{
			ID:          id,
			RecipientID: user.ID,
			Prompt:      ref,
			CreatedAt:   now,
			Timeout:     snap.Timeout,
			TraceID:     traceID,
		})
	})
	occCtx := observability.ContextWithOccurrence(ctx, occ.ID.String())
	d.watchers.Schedule(occCtx, occ.ID, occ.Timeout)

	d.notify.recorder.RecordDispatch(occCtx, string(slot), "sent")
	logging.FromContext(occCtx, d.logger).Info("Sent %s dog reminder to %s, timeout %s", slot, user.DisplayName(), occ.Timeout)

	d.replayAll(ctx, matched, stale)
	return occ, nil
}

// settle closes the gate for a dispatch that registered nothing.
func (d *Dispatcher) settle(ctx context.Context) {
	matched, stale := d.gate.finish("", nil)
	d.replayAll(ctx, matched, stale)
}

func (d *Dispatcher) replayAll(ctx context.Context, batches ...[]Interaction) {
	if d.replay == nil {
		return
	}
	for _, batch := range batches {
		for _, in := range batch {
			d.replay(ctx, in)
		}
	}
}

// abort applies the policy for a failed resolve or delivery call.
func (d *Dispatcher) abort(ctx context.Context, snap SettingsSnapshot, slot Slot, err error) error {
	d.notify.observe(ctx, errResult(err))
	d.notify.recorder.RecordDispatch(ctx, string(slot), "failed")

	if kind, ok := KindOf(err); ok && ActionFor(kind) == ActionAbortAndNotify {
		d.notify.escalate(ctx, snap.EscalationID, slot, "dispatch-failed", DispatchFailedText(slot, err))
	}
	return err
}
