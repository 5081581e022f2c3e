package lark

import (
	"context"
	"fmt"
	"sync"

	"beanbot/internal/reminder"
)

// MessengerCall records a single outbound call made through a LarkMessenger.
type MessengerCall struct {
	Method        string // "SendMessage", "PatchMessage", "GetUser"
	ReceiveIDType string
	ReceiveID     string
	MsgType       string
	Content       string
	MsgID         string
}

// RecordingMessenger implements LarkMessenger by recording all outbound calls
// for later assertion in tests.
type RecordingMessenger struct {
	mu    sync.Mutex
	calls []MessengerCall

	// NextMessageID is returned by the next SendMessage. If empty, a
	// sequential "om_recorded_N" id is generated.
	NextMessageID string

	// NextError, when set, is returned by the next call (any method) and then cleared.
	NextError error

	// Users maps open ids to display names for GetUser; unknown ids return
	// reminder.ErrUserNotFound.
	Users map[string]string

	// AfterSend, when set, runs after a successful SendMessage has been
	// recorded and before it returns the new message id.
	AfterSend func(call MessengerCall, messageID string)

	sendCount int
}

// NewRecordingMessenger creates a RecordingMessenger that knows the given
// users (open id -> name).
func NewRecordingMessenger(users map[string]string) *RecordingMessenger {
	if users == nil {
		users = map[string]string{}
	}
	return &RecordingMessenger{Users: users}
}

func (r *RecordingMessenger) popError() error {
	if r.NextError != nil {
		err := r.NextError
		r.NextError = nil
		return err
	}
	return nil
}

func (r *RecordingMessenger) nextMsgID() string {
	if r.NextMessageID != "" {
		id := r.NextMessageID
		r.NextMessageID = ""
		return id
	}
	r.sendCount++
	return fmt.Sprintf("om_recorded_%d", r.sendCount)
}

func (r *RecordingMessenger) SendMessage(_ context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	call := MessengerCall{
		Method: "SendMessage", ReceiveIDType: receiveIDType, ReceiveID: receiveID, MsgType: msgType, Content: content,
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	if err := r.popError(); err != nil {
		r.mu.Unlock()
		return "", err
	}
	id := r.nextMsgID()
	after := r.AfterSend
	r.mu.Unlock()

	if after != nil {
		after(call, id)
	}
	return id, nil
}

func (r *RecordingMessenger) PatchMessage(_ context.Context, messageID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MessengerCall{Method: "PatchMessage", MsgID: messageID, Content: content})
	return r.popError()
}

func (r *RecordingMessenger) GetUser(_ context.Context, openID string) (UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, MessengerCall{Method: "GetUser", ReceiveID: openID})
	if err := r.popError(); err != nil {
		return UserProfile{}, err
	}
	name, ok := r.Users[openID]
	if !ok {
		return UserProfile{}, fmt.Errorf("%w: %s", reminder.ErrUserNotFound, openID)
	}
	return UserProfile{OpenID: openID, Name: name}, nil
}

// Calls returns a snapshot of all recorded calls.
func (r *RecordingMessenger) Calls() []MessengerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MessengerCall, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsByMethod returns calls filtered by method name.
func (r *RecordingMessenger) CallsByMethod(method string) []MessengerCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MessengerCall
	for _, c := range r.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded calls.
func (r *RecordingMessenger) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.sendCount = 0
}
