package reminder

import (
	"context"
	"errors"
	"time"

	"beanbot/internal/logging"
)

// Options wires a Service.
type Options struct {
	Settings  *Settings
	Messenger Messenger
	Clock     Clock
	Recorder  Recorder
	Logger    logging.Logger
	Scheduler SchedulerConfig
}

// Service is the entry point for the transport and the command surface. It
// owns the registry, the timeout watchers, the dispatcher, the responder and
// the scheduler loop.
type Service struct {
	settings   *Settings
	registry   *Registry
	watchers   *Watchers
	dispatcher *Dispatcher
	responder  *Responder
	scheduler  *Scheduler
	messenger  Messenger
	clock      Clock
}

// NewService builds every reminder component around one registry.
func NewService(opts Options) (*Service, error) {
	if opts.Settings == nil {
		return nil, errors.New("reminder: settings are required")
	}
	if opts.Messenger == nil {
		return nil, errors.New("reminder: messenger is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{Location: opts.Settings.Snapshot().Location}
	}
	logger := logging.OrNop(opts.Logger)

	notify := &notifier{
		messenger: opts.Messenger,
		recorder:  recorderOrNop(opts.Recorder),
		logger:    logger,
	}
	registry := NewRegistry()
	gate := newDispatchGate()
	watchers := newWatchers(clock, registry, opts.Settings, notify, logger)
	dispatcher := newDispatcher(opts.Settings, registry, watchers, clock, notify, gate, logger)
	responder := newResponder(registry, watchers, opts.Settings, clock, notify, gate, logger)
	dispatcher.replay = func(ctx context.Context, in Interaction) {
		responder.Respond(ctx, in)
	}
	scheduler := NewScheduler(opts.Scheduler, opts.Settings, clock, dispatcher, notify.recorder, logger)

	return &Service{
		settings:   opts.Settings,
		registry:   registry,
		watchers:   watchers,
		dispatcher: dispatcher,
		responder:  responder,
		scheduler:  scheduler,
		messenger:  opts.Messenger,
		clock:      clock,
	}, nil
}

// Start runs the scheduler loop until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	return s.scheduler.Start(ctx)
}

// Stop halts the scheduler and cancels every timeout watcher.
func (s *Service) Stop() {
	s.scheduler.Stop()
	s.watchers.StopAll()
}

// Done is closed once the scheduler has stopped.
func (s *Service) Done() <-chan struct{} {
	return s.scheduler.Done()
}

// Dispatch sends slot's reminder now.
func (s *Service) Dispatch(ctx context.Context, slot Slot) (Occurrence, error) {
	return s.dispatcher.Dispatch(ctx, slot)
}

// Respond applies a button press.
func (s *Service) Respond(ctx context.Context, in Interaction) Outcome {
	return s.responder.Respond(ctx, in)
}

// Settings exposes the configuration store for validated updates.
func (s *Service) Settings() *Settings {
	return s.settings
}

// Pending lists occurrences awaiting an answer, oldest first.
func (s *Service) Pending() []Occurrence {
	return s.registry.Pending()
}

// ResolveUser looks a user up through the messenger.
func (s *Service) ResolveUser(ctx context.Context, userID string) (UserHandle, error) {
	user, err := s.messenger.ResolveUser(ctx, userID)
	if err != nil {
		return UserHandle{}, &CallError{Kind: FailureResolveUser, Op: "resolve user", Err: err}
	}
	return user, nil
}

// Now reads the service clock in the configured timezone.
func (s *Service) Now() time.Time {
	return s.clock.Now().In(s.settings.Snapshot().Location)
}
