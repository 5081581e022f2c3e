package reminder

import (
	"fmt"
	"time"
)

// Answer is the recipient's reply to a prompt.
type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

// ParseAnswer accepts "yes" or "no".
func ParseAnswer(raw string) (Answer, error) {
	switch Answer(raw) {
	case AnswerYes, AnswerNo:
		return Answer(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown answer %q", ErrInvalidInput, raw)
	}
}

func (a Answer) event() Event {
	if a == AnswerYes {
		return EventAnsweredYes
	}
	return EventAnsweredNo
}

// PromptActions are the controls attached to every reminder prompt.
var PromptActions = []Action{
	{ID: AnswerYes, Label: "Yes", Style: ActionStylePrimary},
	{ID: AnswerNo, Label: "No", Style: ActionStyleDanger},
}

const (
	ackYes       = "Great! Thanks for taking care of the dog! 🐕"
	ackNo        = "Please take care of the dog as soon as possible! 🐕"
	ackNotFound  = "This reminder has already been handled."
	ackNotForYou = "This reminder isn't for you."
)

// PromptText is the reminder question for slot.
func PromptText(slot Slot) string {
	switch slot {
	case SlotNoon:
		return "It's noon! Has the dog been fed and walked for lunch?"
	case SlotEvening:
		return "Good evening! Have you fed and walked the dog yet?"
	default:
		return "Good morning! Have you fed and walked the dog yet?"
	}
}

// OverdueText is sent to the escalation contact when the timeout elapses.
func OverdueText(slot Slot, elapsed time.Duration) string {
	return fmt.Sprintf("⚠️ OVERDUE ALERT: The dog is overdue for the %s walk and feeding! No response received within %d minutes.",
		slot, int(elapsed.Round(time.Minute)/time.Minute))
}

// DeclinedText is sent to the escalation contact on a "no" answer.
func DeclinedText(slot Slot) string {
	return fmt.Sprintf("⚠️ Alert: The dog hasn't been taken care of for the %s session!", slot)
}

// DispatchFailedText tells the escalation contact a reminder never went out.
func DispatchFailedText(slot Slot, err error) string {
	return fmt.Sprintf("⚠️ Could not send the %s dog reminder: %v", slot, err)
}
