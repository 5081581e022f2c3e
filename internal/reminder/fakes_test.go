package reminder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/require"
)

const (
	testRecipient  = "ou_walker"
	testEscalation = "ou_owner"
)

type sentMessage struct {
	UserID  string
	Content string
	Actions []Action
	Ref     MessageRef
}

type ackCall struct {
	Ref     string
	Content string
}

type fakeMessenger struct {
	mu sync.Mutex

	users   map[string]UserHandle
	sent    []sentMessage
	edits   []MessageRef
	acks    []ackCall
	nextID  int
	sendErr map[string]error
	editErr error
	ackErr  error

	// onSend runs after a message is recorded, before SendDirectMessage
	// returns, the way a fast callback can beat the send response.
	onSend func(ref MessageRef)
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		users: map[string]UserHandle{
			testRecipient:  {ID: testRecipient, Name: "Walker"},
			testEscalation: {ID: testEscalation, Name: "Owner"},
		},
		sendErr: make(map[string]error),
	}
}

func (m *fakeMessenger) ResolveUser(_ context.Context, userID string) (UserHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return UserHandle{}, fmt.Errorf("lookup %s: %w", userID, ErrUserNotFound)
	}
	return user, nil
}

func (m *fakeMessenger) SendDirectMessage(_ context.Context, userID, content string, actions ...Action) (MessageRef, error) {
	m.mu.Lock()
	if err := m.sendErr[userID]; err != nil {
		m.mu.Unlock()
		return MessageRef{}, err
	}
	m.nextID++
	ref := MessageRef{ChatID: "oc_" + userID, MessageID: fmt.Sprintf("om_%d", m.nextID)}
	m.sent = append(m.sent, sentMessage{UserID: userID, Content: content, Actions: actions, Ref: ref})
	onSend := m.onSend
	m.mu.Unlock()

	if onSend != nil {
		onSend(ref)
	}
	return ref, nil
}

func (m *fakeMessenger) EditMessageControls(_ context.Context, ref MessageRef, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.editErr != nil {
		return m.editErr
	}
	if disabled {
		m.edits = append(m.edits, ref)
	}
	return nil
}

func (m *fakeMessenger) AcknowledgeInteraction(_ context.Context, interactionRef, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ackErr != nil {
		return m.ackErr
	}
	m.acks = append(m.acks, ackCall{Ref: interactionRef, Content: content})
	return nil
}

func (m *fakeMessenger) sentTo(userID string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, msg := range m.sent {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	return out
}

func (m *fakeMessenger) ackContents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.acks))
	for _, ack := range m.acks {
		out = append(out, ack.Content)
	}
	return out
}

func (m *fakeMessenger) editCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.edits)
}

type countingRecorder struct {
	mu          sync.Mutex
	dispatches  map[string]int
	resolutions map[string]int
	escalations map[string]int
	failures    map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		dispatches:  make(map[string]int),
		resolutions: make(map[string]int),
		escalations: make(map[string]int),
		failures:    make(map[string]int),
	}
}

func (r *countingRecorder) RecordDispatch(_ context.Context, slot, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dispatches[slot+"/"+outcome]++
}

func (r *countingRecorder) RecordResolution(_ context.Context, slot, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolutions[slot+"/"+status]++
}

func (r *countingRecorder) RecordEscalation(_ context.Context, slot, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.escalations[slot+"/"+reason]++
}

func (r *countingRecorder) RecordFailure(_ context.Context, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind]++
}

func (r *countingRecorder) failureCount(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[kind]
}

type harness struct {
	svc       *Service
	clock     *ManualClock
	messenger *fakeMessenger
	recorder  *countingRecorder
	loc       *time.Location
}

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func newHarness(t *testing.T, mutate func(*SettingsSnapshot)) *harness {
	t.Helper()
	loc := paris(t)
	snap := DefaultSettings()
	snap.RecipientID = testRecipient
	snap.EscalationID = testEscalation
	snap.Location = loc
	if mutate != nil {
		mutate(&snap)
	}
	settings, err := NewSettings(snap)
	require.NoError(t, err)

	clock := NewManualClock(time.Date(2024, 6, 1, 7, 59, 0, 0, loc))
	messenger := newFakeMessenger()
	recorder := newCountingRecorder()
	svc, err := NewService(Options{
		Settings:  settings,
		Messenger: messenger,
		Clock:     clock,
		Recorder:  recorder,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	return &harness{svc: svc, clock: clock, messenger: messenger, recorder: recorder, loc: loc}
}

func (h *harness) at(hour, minute int) time.Time {
	return time.Date(2024, 6, 1, hour, minute, 0, 0, h.loc)
}
