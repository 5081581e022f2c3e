package reminder

import (
	"context"

	"beanbot/internal/logging"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// notifier performs the best-effort side calls shared by the dispatcher,
// the timeout watchers and the responder. Every method logs and counts its
// own failure and hands the typed result back to the caller.
type notifier struct {
	messenger Messenger
	recorder  Recorder
	logger    logging.Logger
}

func (n *notifier) escalate(ctx context.Context, escalationID string, slot Slot, reason, text string) fn.Result[struct{}] {
	res := callUnit(FailureEscalate, "notify escalation contact", func() error {
		if escalationID == "" {
			return errNoEscalation
		}
		_, err := n.messenger.SendDirectMessage(ctx, escalationID, text)
		return err
	})
	if res.IsOk() {
		n.recorder.RecordEscalation(ctx, string(slot), reason)
		logging.FromContext(ctx, n.logger).Info("Escalated %s reminder to %s (%s)", slot, escalationID, reason)
	}
	n.observe(ctx, res)
	return res
}

func (n *notifier) disableControls(ctx context.Context, ref MessageRef) fn.Result[struct{}] {
	res := callUnit(FailureDisableControls, "disable prompt controls", func() error {
		return n.messenger.EditMessageControls(ctx, ref, true)
	})
	n.observe(ctx, res)
	return res
}

func (n *notifier) acknowledge(ctx context.Context, interactionRef, content string) fn.Result[struct{}] {
	res := callUnit(FailureAcknowledge, "acknowledge interaction", func() error {
		return n.messenger.AcknowledgeInteraction(ctx, interactionRef, content)
	})
	n.observe(ctx, res)
	return res
}

// observe logs and counts a failed result according to the policy table.
func (n *notifier) observe(ctx context.Context, res fn.Result[struct{}]) {
	_, err := res.Unpack()
	if err == nil {
		return
	}
	kind, _ := KindOf(err)
	n.recorder.RecordFailure(ctx, string(kind))
	logger := logging.FromContext(ctx, n.logger)
	switch ActionFor(kind) {
	case ActionLogOnly:
		logger.Warn("Best-effort call failed: %v", err)
	default:
		logger.Error("Call failed: %v", err)
	}
}
