package reminder

import (
	"fmt"
	"strings"
	"time"
)

// dateLayout is the calendar-day key of an occurrence.
const dateLayout = "2006-01-02"

// OccurrenceID identifies one firing of a slot on one calendar day. Seq is 1
// for the first dispatch of the day and only grows under DuplicateAllow.
type OccurrenceID struct {
	Slot Slot   `json:"slot"`
	Date string `json:"date"`
	Seq  int    `json:"seq"`
}

// NewOccurrenceID keys a slot on the calendar day of at.
func NewOccurrenceID(slot Slot, at time.Time) OccurrenceID {
	return OccurrenceID{Slot: slot, Date: at.Format(dateLayout), Seq: 1}
}

// String renders morning_20240601, or morning_20240601#2 for later sequences.
func (id OccurrenceID) String() string {
	base := fmt.Sprintf("%s_%s", id.Slot, strings.ReplaceAll(id.Date, "-", ""))
	if id.Seq > 1 {
		return fmt.Sprintf("%s#%d", base, id.Seq)
	}
	return base
}

type slotDay struct {
	slot Slot
	date string
}

func (id OccurrenceID) day() slotDay {
	return slotDay{slot: id.Slot, date: id.Date}
}

// Status is the lifecycle state of an occurrence.
type Status string

const (
	StatusPending     Status = "pending"
	StatusResolvedYes Status = "resolved-yes"
	StatusResolvedNo  Status = "resolved-no"
	StatusOverdue     Status = "overdue"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusResolvedYes || s == StatusResolvedNo || s == StatusOverdue
}

// Event drives a status transition.
type Event string

const (
	EventAnsweredYes Event = "answered-yes"
	EventAnsweredNo  Event = "answered-no"
	EventTimedOut    Event = "timed-out"
)

// Transition is the only way an occurrence changes status.
func Transition(from Status, ev Event) (Status, error) {
	if from.Terminal() {
		return from, ErrAlreadyResolved
	}
	if from != StatusPending {
		return from, fmt.Errorf("unknown status %q", from)
	}
	switch ev {
	case EventAnsweredYes:
		return StatusResolvedYes, nil
	case EventAnsweredNo:
		return StatusResolvedNo, nil
	case EventTimedOut:
		return StatusOverdue, nil
	default:
		return from, fmt.Errorf("unknown event %q", ev)
	}
}

// Occurrence is one concrete reminder tracked until answered or timed out.
type Occurrence struct {
	ID          OccurrenceID  `json:"id"`
	RecipientID string        `json:"recipient_id"`
	Prompt      MessageRef    `json:"prompt"`
	CreatedAt   time.Time     `json:"created_at"`
	Timeout     time.Duration `json:"timeout"`
	Status      Status        `json:"status"`
	ResolvedAt  time.Time     `json:"resolved_at,omitempty"`
	TraceID     string        `json:"trace_id"`
}

// Deadline is when the timeout watcher fires.
func (o Occurrence) Deadline() time.Time {
	return o.CreatedAt.Add(o.Timeout)
}
