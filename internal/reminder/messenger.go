package reminder

import "context"

// MessageRef is an opaque handle to a sent message.
type MessageRef struct {
	ChatID    string `json:"chat_id,omitempty"`
	MessageID string `json:"message_id"`
}

// IsZero reports whether the ref points at nothing.
func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}

// UserHandle is a resolved chat user.
type UserHandle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName prefers the user's name over the raw id.
func (u UserHandle) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// ActionStyle hints how a transport renders an action.
type ActionStyle string

const (
	ActionStylePrimary ActionStyle = "primary"
	ActionStyleDanger  ActionStyle = "danger"
)

// Action is an interactive control attached to a message.
type Action struct {
	ID    Answer
	Label string
	Style ActionStyle
}

// Messenger is the chat transport the reminder engine depends on.
type Messenger interface {
	// ResolveUser returns ErrUserNotFound (possibly wrapped) for unknown ids.
	ResolveUser(ctx context.Context, userID string) (UserHandle, error)
	SendDirectMessage(ctx context.Context, userID, content string, actions ...Action) (MessageRef, error)
	EditMessageControls(ctx context.Context, ref MessageRef, disabled bool) error
	AcknowledgeInteraction(ctx context.Context, interactionRef, content string) error
}

// Recorder receives lifecycle counters.
type Recorder interface {
	RecordDispatch(ctx context.Context, slot, outcome string)
	RecordResolution(ctx context.Context, slot, status string)
	RecordEscalation(ctx context.Context, slot, reason string)
	RecordFailure(ctx context.Context, kind string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDispatch(context.Context, string, string)   {}
func (nopRecorder) RecordResolution(context.Context, string, string) {}
func (nopRecorder) RecordEscalation(context.Context, string, string) {}
func (nopRecorder) RecordFailure(context.Context, string)            {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
