package reminder

import (
	"context"

	"beanbot/internal/logging"
	"beanbot/internal/observability"

	"github.com/lightningnetwork/lnd/fn/v2"
	"go.opentelemetry.io/otel/attribute"
)

// Interaction is a button press on a reminder prompt.
type Interaction struct {
	// Ref identifies the interaction for AcknowledgeInteraction.
	Ref     string
	ActorID string
	Prompt  MessageRef
	Answer  Answer
}

// CallOutcome is the typed result of one best-effort side call.
type CallOutcome struct {
	Kind   FailureKind
	Result fn.Result[struct{}]
}

// Outcome reports what Respond did.
type Outcome struct {
	// Occurrence is the resolved occurrence, absent when the prompt was no
	// longer pending or the actor was rejected.
	Occurrence fn.Option[Occurrence]
	// Rejected is set when the actor is not the reminder's recipient.
	Rejected bool
	// Deferred is set when the prompt was still being dispatched. The answer
	// is applied, and acknowledged, once the occurrence is registered.
	Deferred bool
	Calls    []CallOutcome
}

// Failures returns the errors of every failed side call.
func (o Outcome) Failures() []error {
	var errs []error
	for _, call := range o.Calls {
		if _, err := call.Result.Unpack(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Responder applies yes/no answers to pending occurrences.
type Responder struct {
	registry *Registry
	watchers *Watchers
	settings *Settings
	clock    Clock
	notify   *notifier
	gate     *dispatchGate
	logger   logging.Logger
}

func newResponder(registry *Registry, watchers *Watchers, settings *Settings, clock Clock, notify *notifier, gate *dispatchGate, logger logging.Logger) *Responder {
	return &Responder{
		registry: registry,
		watchers: watchers,
		settings: settings,
		clock:    clock,
		notify:   notify,
		gate:     gate,
		logger:   logging.OrNop(logger),
	}
}

// Respond resolves the occurrence behind in.Prompt. The registry removal
// happens before any side call, and each side call (control disable,
// acknowledgement, escalation on "no") is attempted regardless of the others.
func (r *Responder) Respond(ctx context.Context, in Interaction) Outcome {
	out := Outcome{Occurrence: fn.None[Occurrence]()}

	ctx, span := observability.StartSpan(ctx, observability.SpanReminderRespond,
		attribute.String(observability.AttrAnswer, string(in.Answer)))
	defer span.End()

	if in.Answer != AnswerYes && in.Answer != AnswerNo {
		out.Calls = append(out.Calls, CallOutcome{Kind: FailureInvalidInput, Result: errResult(&CallError{
			Kind: FailureInvalidInput, Op: "parse answer", Err: ErrInvalidInput,
		})})
		return out
	}

	pending, parked := r.gate.lookupOrPark(r.registry, in)
	if parked {
		out.Deferred = true
		r.logger.Info("Answer %q from %s arrived before its prompt was registered; deferring", in.Answer, in.ActorID)
		return out
	}
	if pending.IsNone() {
		r.ack(ctx, &out, in.Ref, ackNotFound)
		return out
	}
	occ := pending.UnwrapOr(Occurrence{})
	ctx = observability.ContextWithTraceID(ctx, occ.TraceID)
	ctx = observability.ContextWithOccurrence(ctx, occ.ID.String())
	logger := logging.FromContext(ctx, r.logger)

	if occ.RecipientID != "" && in.ActorID != occ.RecipientID {
		logger.Warn("Rejected answer from %s, reminder belongs to %s", in.ActorID, occ.RecipientID)
		out.Rejected = true
		r.ack(ctx, &out, in.Ref, ackNotForYou)
		return out
	}

	resolved, ok := r.registry.ResolveByMessage(in.Prompt.MessageID, in.Answer.event(), r.clock.Now())
	if !ok {
		// The timeout watcher won the race.
		r.ack(ctx, &out, in.Ref, ackNotFound)
		return out
	}
	out.Occurrence = fn.Some(resolved)
	r.watchers.Cancel(resolved.ID)
	r.notify.recorder.RecordResolution(ctx, string(resolved.ID.Slot), string(resolved.Status))
	span.SetAttributes(observability.StatusAttrs(string(resolved.Status))...)
	logger.Info("Reminder answered %q by %s", in.Answer, in.ActorID)

	out.Calls = append(out.Calls, CallOutcome{
		Kind:   FailureDisableControls,
		Result: r.notify.disableControls(ctx, resolved.Prompt),
	})

	switch in.Answer {
	case AnswerYes:
		r.ack(ctx, &out, in.Ref, ackYes)
	case AnswerNo:
		r.ack(ctx, &out, in.Ref, ackNo)
		snap := r.settings.Snapshot()
		out.Calls = append(out.Calls, CallOutcome{
			Kind:   FailureEscalate,
			Result: r.notify.escalate(ctx, snap.EscalationID, resolved.ID.Slot, "declined", DeclinedText(resolved.ID.Slot)),
		})
	}
	return out
}

func (r *Responder) ack(ctx context.Context, out *Outcome, ref, content string) {
	out.Calls = append(out.Calls, CallOutcome{
		Kind:   FailureAcknowledge,
		Result: r.notify.acknowledge(ctx, ref, content),
	})
}
