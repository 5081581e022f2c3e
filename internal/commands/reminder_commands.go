package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"beanbot/internal/reminder"
)

const (
	userNotFoundReply   = "Could not find a user with that ID."
	invalidSlotReply    = "Type must be 'morning', 'noon', or 'evening'"
	invalidTimeReply    = "Invalid time. Hour must be 0-23, minute must be 0-59"
	invalidTimeoutReply = "Timeout must be at least 1 minute."
	setTimeUsage        = "Usage: /setremindertime <morning|noon|evening> <hour> [minute]"
	defaultTimeoutArg   = 60
)

func (r *Router) setRecipient(ctx context.Context, _ Request, args []string) (string, string) {
	return r.setContact(ctx, args, "Dog reminder recipient", func() string {
		return r.service.Settings().Snapshot().RecipientID
	}, r.service.Settings().SetRecipient)
}

func (r *Router) setEscalation(ctx context.Context, _ Request, args []string) (string, string) {
	return r.setContact(ctx, args, "Dog owner alert recipient", func() string {
		return r.service.Settings().Snapshot().EscalationID
	}, r.service.Settings().SetEscalation)
}

// setContact shows the current contact without args, otherwise validates
// the user id through the messenger before storing it.
func (r *Router) setContact(ctx context.Context, args []string, label string, current func() string, set func(string) error) (string, string) {
	if len(args) == 0 {
		return fmt.Sprintf("Current %s: %s", strings.ToLower(label), r.contactLine(ctx, current())), resultOK
	}

	user, err := r.service.ResolveUser(ctx, args[0])
	if err != nil {
		if !errors.Is(err, reminder.ErrUserNotFound) {
			r.logger.Warn("Resolve user %s failed: %v", args[0], err)
		}
		return userNotFoundReply, resultRejected
	}
	if err := set(user.ID); err != nil {
		return err.Error(), resultRejected
	}
	return fmt.Sprintf("%s set to %s", label, user.DisplayName()), resultOK
}

func (r *Router) displayName(ctx context.Context, id string) string {
	user, err := r.service.ResolveUser(ctx, id)
	if err != nil {
		return id
	}
	return user.DisplayName()
}

func (r *Router) setReminderTime(_ context.Context, _ Request, args []string) (string, string) {
	if len(args) < 2 {
		return setTimeUsage, resultRejected
	}
	slot, err := reminder.ParseSlot(args[0])
	if err != nil {
		return invalidSlotReply, resultRejected
	}
	hour, err := strconv.Atoi(args[1])
	if err != nil {
		return invalidTimeReply, resultRejected
	}
	minute := 0
	if len(args) > 2 {
		if minute, err = strconv.Atoi(args[2]); err != nil {
			return invalidTimeReply, resultRejected
		}
	}
	at, err := reminder.NewTimeOfDay(hour, minute)
	if err != nil {
		return invalidTimeReply, resultRejected
	}
	if err := r.service.Settings().SetSlotTime(slot, at); err != nil {
		return err.Error(), resultRejected
	}
	return fmt.Sprintf("%s reminder time set to %s", slot.Title(), at), resultOK
}

func (r *Router) setTimeout(_ context.Context, _ Request, args []string) (string, string) {
	minutes := defaultTimeoutArg
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return invalidTimeoutReply, resultRejected
		}
		minutes = n
	}
	if minutes < 1 {
		return invalidTimeoutReply, resultRejected
	}
	if err := r.service.Settings().SetTimeout(time.Duration(minutes) * time.Minute); err != nil {
		return invalidTimeoutReply, resultRejected
	}
	return fmt.Sprintf("Reminder timeout set to %d minutes.", minutes), resultOK
}

// testReminder dispatches a reminder now; an unknown slot falls back to
// morning.
func (r *Router) testReminder(ctx context.Context, _ Request, args []string) (string, string) {
	slot := reminder.SlotMorning
	if len(args) > 0 {
		if parsed, err := reminder.ParseSlot(args[0]); err == nil {
			slot = parsed
		}
	}
	if _, err := r.service.Dispatch(ctx, slot); err != nil {
		if errors.Is(err, reminder.ErrAlreadyPending) {
			return fmt.Sprintf("A %s reminder is already waiting for an answer.", slot), resultRejected
		}
		return fmt.Sprintf("Could not send the test %s reminder: %v", slot, err), resultFailed
	}
	return fmt.Sprintf("Test %s reminder sent!", slot), resultOK
}

func (r *Router) status(ctx context.Context, _ Request, _ []string) (string, string) {
	snap := r.service.Settings().Snapshot()
	now := r.service.Now()

	var b strings.Builder
	b.WriteString("Dog reminder status\n")
	fmt.Fprintf(&b, "Recipient: %s\n", r.contactLine(ctx, snap.RecipientID))
	fmt.Fprintf(&b, "Owner alerts: %s\n", r.contactLine(ctx, snap.EscalationID))
	times := make([]string, 0, len(reminder.Slots))
	for _, slot := range reminder.Slots {
		if at, ok := snap.TimeFor(slot); ok {
			times = append(times, fmt.Sprintf("%s %s", slot, at))
		}
	}
	fmt.Fprintf(&b, "Times (%s): %s\n", snap.TimeZone(), strings.Join(times, ", "))
	fmt.Fprintf(&b, "Timeout: %d minutes\n", int(snap.Timeout/time.Minute))
	fmt.Fprintf(&b, "Duplicate policy: %s\n", snap.DuplicatePolicy)

	pending := r.service.Pending()
	if len(pending) == 0 {
		b.WriteString("Pending: none")
		return b.String(), resultOK
	}
	b.WriteString("Pending:")
	for _, occ := range pending {
		left := occ.Deadline().Sub(now).Round(time.Minute)
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(&b, "\n- %s sent %s, escalates in %s", occ.ID, occ.CreatedAt.In(snap.Location).Format("15:04"), left)
	}
	return b.String(), resultOK
}

func (r *Router) contactLine(ctx context.Context, id string) string {
	if id == "" {
		return "not set"
	}
	return r.displayName(ctx, id)
}
