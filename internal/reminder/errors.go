package reminder

import (
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrAlreadyPending is returned by Dispatch under DuplicateSkip when the
	// slot already has a pending occurrence today.
	ErrAlreadyPending = errors.New("reminder already pending for this slot today")
	// ErrAlreadyResolved is returned by Transition on a terminal status.
	ErrAlreadyResolved = errors.New("reminder already resolved")
	// ErrUserNotFound is returned by Messenger.ResolveUser for unknown ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrSchedulerState is returned when the scheduler is started twice or
	// after it was stopped.
	ErrSchedulerState = errors.New("scheduler cannot be started in its current state")
	// ErrInvalidInput marks rejected settings or command arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// FailureKind classifies a failed external call.
type FailureKind string

const (
	FailureResolveUser     FailureKind = "resolve-user"
	FailureDeliver         FailureKind = "deliver"
	FailureDisableControls FailureKind = "disable-controls"
	FailureEscalate        FailureKind = "escalate"
	FailureAcknowledge     FailureKind = "acknowledge"
	FailureInvalidInput    FailureKind = "invalid-input"
)

// PolicyAction is what the engine does after a failure of a given kind.
type PolicyAction string

const (
	ActionAbortAndNotify PolicyAction = "abort-dispatch-and-notify"
	ActionLogOnly        PolicyAction = "log-only"
	ActionReject         PolicyAction = "reject"
)

// Policy maps every failure kind to exactly one action. Nothing is retried.
var Policy = map[FailureKind]PolicyAction{
	FailureResolveUser:     ActionAbortAndNotify,
	FailureDeliver:         ActionAbortAndNotify,
	FailureDisableControls: ActionLogOnly,
	FailureEscalate:        ActionLogOnly,
	FailureAcknowledge:     ActionLogOnly,
	FailureInvalidInput:    ActionReject,
}

// ActionFor looks up the policy, treating unknown kinds as log-only.
func ActionFor(kind FailureKind) PolicyAction {
	if action, ok := Policy[kind]; ok {
		return action
	}
	return ActionLogOnly
}

// CallError wraps a failed external call with its failure kind.
type CallError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *CallError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Action returns the policy action for this failure.
func (e *CallError) Action() PolicyAction {
	return ActionFor(e.Kind)
}

// KindOf extracts the failure kind of err, if it carries one.
func KindOf(err error) (FailureKind, bool) {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind, true
	}
	return "", false
}

// callResult runs one external call and classifies its error.
func callResult[T any](kind FailureKind, op string, call func() (T, error)) fn.Result[T] {
	value, err := call()
	if err != nil {
		return fn.Err[T](&CallError{Kind: kind, Op: op, Err: err})
	}
	return fn.Ok(value)
}

// callUnit is callResult for calls that only return an error.
func callUnit(kind FailureKind, op string, call func() error) fn.Result[struct{}] {
	return callResult(kind, op, func() (struct{}, error) {
		return struct{}{}, call()
	})
}

var (
	errNoRecipient  = errors.New("no reminder recipient configured")
	errNoEscalation = errors.New("no escalation contact configured")
)

func errResult(err error) fn.Result[struct{}] {
	return fn.Err[struct{}](err)
}
