package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"beanbot/internal/logging"
	"beanbot/internal/observability"

	"github.com/robfig/cron/v3"
)

// DefaultTickSchedule wakes the scheduler on every minute.
const DefaultTickSchedule = "* * * * *"

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// TickSchedule is a five-field cron expression.
	TickSchedule string
}

// SlotDispatcher is what the scheduler calls on a slot match.
type SlotDispatcher interface {
	Dispatch(ctx context.Context, slot Slot) (Occurrence, error)
}

type schedulerState int

const (
	schedulerIdle schedulerState = iota
	schedulerRunning
	schedulerStopped
)

// Scheduler compares the wall clock with the configured slot times on every
// tick and dispatches exact (hour, minute) matches. A minute the process
// sleeps through is missed, not caught up.
type Scheduler struct {
	cron       *cron.Cron
	config     SchedulerConfig
	settings   *Settings
	clock      Clock
	dispatcher SlotDispatcher
	recorder   Recorder
	logger     logging.Logger

	mu        sync.Mutex
	state     schedulerState
	lastFired map[Slot]string // slot → date last dispatched
	stopped   chan struct{}
	stopOnce  sync.Once
}

// NewScheduler creates a scheduler. The cron loop runs in the settings'
// timezone at construction time.
func NewScheduler(cfg SchedulerConfig, settings *Settings, clock Clock, dispatcher SlotDispatcher, recorder Recorder, logger logging.Logger) *Scheduler {
	logger = logging.OrNop(logger)
	if strings.TrimSpace(cfg.TickSchedule) == "" {
		cfg.TickSchedule = DefaultTickSchedule
	}
	return &Scheduler{
		cron:       newCron(settings.Snapshot(), logger),
		config:     cfg,
		settings:   settings,
		clock:      clock,
		dispatcher: dispatcher,
		recorder:   recorderOrNop(recorder),
		logger:     logger,
		lastFired:  make(map[Slot]string),
		stopped:    make(chan struct{}),
	}
}

func newCron(snap SettingsSnapshot, logger logging.Logger) *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cl := cronLogger{logger: logger}
	return cron.New(
		cron.WithParser(parser),
		cron.WithLocation(snap.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// Start registers the tick and starts the cron loop. The loop stops when ctx
// is cancelled or Stop is called. Starting twice or after Stop returns
// ErrSchedulerState.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != schedulerIdle {
		return ErrSchedulerState
	}
	if _, err := s.cron.AddFunc(s.config.TickSchedule, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("register tick %q: %w", s.config.TickSchedule, err)
	}
	s.cron.Start()
	s.state = schedulerRunning
	s.logger.Info("Dog reminder loop started (%s, %s)", s.config.TickSchedule, s.settings.Snapshot().TimeZone())

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.stopped:
		}
	}()
	return nil
}

// Stop halts the loop and waits for a running tick. Safe to call multiple
// times, and before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasRunning := s.state == schedulerRunning
		s.state = schedulerStopped
		s.mu.Unlock()

		if wasRunning {
			s.logger.Info("Dog reminder loop stopping...")
			stopCtx := s.cron.Stop()
			<-stopCtx.Done()
		}
		close(s.stopped)
	})
}

// Done is closed once the scheduler has stopped.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// Tick runs one evaluation. Panics and dispatch errors are logged and counted;
// they never escape.
func (s *Scheduler) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.recorder.RecordFailure(ctx, "tick-panic")
			s.logger.Error("Scheduler tick panicked: %v", r)
		}
	}()

	ctx, span := observability.StartSpan(ctx, observability.SpanSchedulerTick)
	defer span.End()

	snap := s.settings.Snapshot()
	now := s.clock.Now().In(snap.Location)
	today := now.Format(dateLayout)

	for _, slot := range Slots {
		at, ok := snap.TimeFor(slot)
		if !ok || at.Hour != now.Hour() || at.Minute != now.Minute() {
			continue
		}
		if !s.claim(slot, today) {
			continue
		}
		if _, err := s.dispatcher.Dispatch(ctx, slot); err != nil {
			if errors.Is(err, ErrAlreadyPending) {
				s.logger.Debug("Scheduled %s reminder skipped: %v", slot, err)
				continue
			}
			s.logger.Warn("Scheduled %s reminder failed: %v", slot, err)
		}
	}
}

// claim records that slot fired today, reporting false if it already had.
func (s *Scheduler) claim(slot Slot, today string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFired[slot] == today {
		return false
	}
	s.lastFired[slot] = today
	return true
}

// cronLogger routes cron's own logging into the component logger.
type cronLogger struct {
	logger logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
