// Package commands implements the slash commands owners use to configure
// and test dog reminders.
package commands

import (
	"context"
	"strings"
	"time"

	"beanbot/internal/jokes"
	"beanbot/internal/logging"
	"beanbot/internal/observability"
	"beanbot/internal/reminder"

	"go.opentelemetry.io/otel/attribute"
)

// Command results, used as metric labels.
const (
	resultOK       = "ok"
	resultDenied   = "denied"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

const notOwnerReply = "Only the bot owner can use this command."

// Request is one slash command invocation.
type Request struct {
	CallerID string
	ChatID   string
	Text     string
}

// ReminderService is the part of reminder.Service the commands drive.
type ReminderService interface {
	Settings() *reminder.Settings
	Pending() []reminder.Occurrence
	ResolveUser(ctx context.Context, userID string) (reminder.UserHandle, error)
	Dispatch(ctx context.Context, slot reminder.Slot) (reminder.Occurrence, error)
	Now() time.Time
}

// JokeSender delivers a joke to a user's direct chat.
type JokeSender interface {
	SendJoke(ctx context.Context, userID, joke string) error
}

// Recorder counts command invocations.
type Recorder interface {
	RecordCommand(ctx context.Context, name, result string)
}

// Config holds the command surface settings.
type Config struct {
	// OwnerID is the only user allowed to run privileged commands.
	OwnerID string
}

type handlerFunc func(ctx context.Context, req Request, args []string) (reply, result string)

type command struct {
	ownerOnly bool
	run       handlerFunc
}

// Router parses slash commands and runs them.
type Router struct {
	cfg      Config
	service  ReminderService
	jokes    jokes.Source
	sender   JokeSender
	recorder Recorder
	logger   logging.Logger
	commands map[string]command
}

// NewRouter builds the command table. jokes and sender may be nil, which
// disables /sendjoke.
func NewRouter(cfg Config, service ReminderService, source jokes.Source, sender JokeSender, recorder Recorder, logger logging.Logger) *Router {
	r := &Router{
		cfg:      cfg,
		service:  service,
		jokes:    source,
		sender:   sender,
		recorder: recorder,
		logger:   logging.OrNop(logger),
	}
	r.commands = map[string]command{
		"setdogreminder":  {ownerOnly: true, run: r.setRecipient},
		"setdogowner":     {ownerOnly: true, run: r.setEscalation},
		"setremindertime": {ownerOnly: true, run: r.setReminderTime},
		"settimeout":      {ownerOnly: true, run: r.setTimeout},
		"testreminderdog": {ownerOnly: true, run: r.testReminder},
		"dogstatus":       {ownerOnly: true, run: r.status},
		"sendjoke":        {run: r.sendJoke},
	}
	return r
}

// Handle runs req. ok is false when req is not a known command.
func (r *Router) Handle(ctx context.Context, req Request) (string, bool) {
	name, args, ok := parse(req.Text)
	if !ok {
		return "", false
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", false
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanCommand,
		attribute.String(observability.AttrCommand, name))
	defer span.End()

	if cmd.ownerOnly && (r.cfg.OwnerID == "" || req.CallerID != r.cfg.OwnerID) {
		r.logger.Warn("Command /%s denied for %s", name, req.CallerID)
		r.record(ctx, name, resultDenied)
		return notOwnerReply, true
	}

	reply, result := cmd.run(ctx, req, args)
	r.record(ctx, name, result)
	r.logger.Info("Command /%s by %s: %s", name, req.CallerID, result)
	return reply, true
}

func (r *Router) record(ctx context.Context, name, result string) {
	if r.recorder != nil {
		r.recorder.RecordCommand(ctx, name, result)
	}
}

// parse splits "/name arg1 arg2" into a lower-cased name and its arguments.
func parse(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if name == "" {
		return "", nil, false
	}
	return name, fields[1:], true
}
