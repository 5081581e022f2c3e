package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestOccurrenceIDString(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	id := NewOccurrenceID(SlotMorning, at)

	assert.Equal(t, "2024-06-01", id.Date)
	assert.Equal(t, "morning_20240601", id.String())

	id.Seq = 3
	assert.Equal(t, "morning_20240601#3", id.String())
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		ev   Event
		want Status
	}{
		{EventAnsweredYes, StatusResolvedYes},
		{EventAnsweredNo, StatusResolvedNo},
		{EventTimedOut, StatusOverdue},
	}
	for _, tc := range cases {
		got, err := Transition(StatusPending, tc.ev)
		assert.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := Transition(StatusPending, Event("snoozed"))
	assert.Error(t, err)
}

// Once terminal, every further event is rejected and the status sticks.
func TestTransitionTerminalIsAbsorbing(t *testing.T) {
	events := []Event{EventAnsweredYes, EventAnsweredNo, EventTimedOut}
	rapid.Check(t, func(t *rapid.T) {
		seq := rapid.SliceOfN(rapid.SampledFrom(events), 1, 10).Draw(t, "events")

		status := StatusPending
		for i, ev := range seq {
			next, err := Transition(status, ev)
			if i == 0 {
				if err != nil || !next.Terminal() {
					t.Fatalf("first event %s from pending: %s, %v", ev, next, err)
				}
			} else if err != ErrAlreadyResolved || next != status {
				t.Fatalf("event %s on %s: got %s, %v", ev, status, next, err)
			}
			status = next
		}
	})
}

func TestOccurrenceDeadline(t *testing.T) {
	created := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	occ := Occurrence{CreatedAt: created, Timeout: time.Hour}
	assert.Equal(t, created.Add(time.Hour), occ.Deadline())
}
