package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"beanbot/internal/chatter"
	"beanbot/internal/commands"
	"beanbot/internal/config"
	larkgw "beanbot/internal/delivery/channels/lark"
	"beanbot/internal/jokes"
	"beanbot/internal/logging"
	"beanbot/internal/observability"
	"beanbot/internal/reminder"
	"beanbot/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder loop, the Lark gateway and the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, meta, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireCredentials(); err != nil {
				return &ExitCodeError{Code: 2, Err: err}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, meta)
		},
	}
}

// app holds everything serve builds, so shutdown can release it in order.
type app struct {
	logger   logging.Logger
	metrics  *observability.MetricsCollector
	tracer   *observability.TracerProvider
	gateway  *larkgw.Gateway
	service  *reminder.Service
	http     *server.Server
	closeLog func() error
}

func serve(ctx context.Context, cfg config.Config, meta config.Metadata) error {
	a, err := build(cfg)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if meta.ConfigFile != "" {
		a.logger.Info("Loaded config from %s", meta.ConfigFile)
	}
	snap := a.service.Settings().Snapshot()
	a.logger.Info("Dog reminder recipient: %s, owner alerts: %s, timezone: %s",
		displayOrUnset(snap.RecipientID), displayOrUnset(snap.EscalationID), snap.TimeZone())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.service.Start(gctx); err != nil {
			return fmt.Errorf("start reminder loop: %w", err)
		}
		select {
		case <-gctx.Done():
		case <-a.service.Done():
		}
		return nil
	})
	g.Go(func() error {
		return a.gateway.Start(gctx)
	})
	g.Go(func() error {
		return a.http.Run(gctx)
	})

	err = g.Wait()
	a.logger.Info("Shutting down...")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func build(cfg config.Config) (*app, error) {
	obsLogger, logCloser, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		File:   cfg.Observability.Logging.File,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logging.SetDefault(obsLogger)
	a := &app{
		logger:   logging.FromObservabilityWithComponent(obsLogger, "main"),
		closeLog: logCloser.Close,
	}

	a.metrics, err = observability.NewMetricsCollector(cfg.Observability.Metrics)
	if err != nil {
		a.shutdown()
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	tracing := cfg.Observability.Tracing
	if tracing.ServiceVersion == "" || tracing.ServiceVersion == "dev" {
		tracing.ServiceVersion = appVersion()
	}
	a.tracer, err = observability.NewTracerProvider(tracing)
	if err != nil {
		a.shutdown()
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	a.gateway, err = larkgw.NewGateway(larkgw.Config{
		AppID:             cfg.Lark.AppID,
		AppSecret:         cfg.Lark.AppSecret,
		BaseDomain:        cfg.Lark.BaseDomain,
		VerificationToken: cfg.Lark.VerificationToken,
		EncryptKey:        cfg.Lark.EncryptKey,
		CardsEnabled:      cfg.Lark.CardsEnabled,
		WebsocketEnabled:  cfg.Lark.WebsocketEnabled,
	}, logging.NewComponentLogger("lark"), observability.NewGatewayMetrics(a.metrics.Registerer()))
	if err != nil {
		a.shutdown()
		return nil, err
	}

	snap, err := cfg.Reminder.Settings()
	if err != nil {
		a.shutdown()
		return nil, err
	}
	settings, err := reminder.NewSettings(snap)
	if err != nil {
		a.shutdown()
		return nil, err
	}
	a.service, err = reminder.NewService(reminder.Options{
		Settings:  settings,
		Messenger: a.gateway,
		Clock:     reminder.SystemClock{Location: snap.Location},
		Recorder:  a.metrics,
		Logger:    logging.NewComponentLogger("reminder"),
		Scheduler: reminder.SchedulerConfig{TickSchedule: cfg.Reminder.TickSchedule},
	})
	if err != nil {
		a.shutdown()
		return nil, err
	}

	jokeSource := jokes.NewClient(jokes.Config{
		APIURL:          cfg.Jokes.APIURL,
		Timeout:         cfg.Jokes.Timeout,
		UserAgent:       cfg.Jokes.UserAgent,
		FallbackEnabled: cfg.Jokes.FallbackEnabled,
		MaxBodyBytes:    cfg.Jokes.MaxBodyBytes,
	}, logging.NewComponentLogger("jokes"))

	a.gateway.SetReminderResponder(a.service)
	a.gateway.SetCommandHandler(commands.NewRouter(
		commands.Config{OwnerID: cfg.Reminder.OwnerID},
		a.service,
		jokeSource,
		a.gateway,
		a.metrics,
		logging.NewComponentLogger("commands"),
	))
	if cfg.Chatter.Enabled {
		responder, err := chatter.NewResponder(chatter.Config{
			Enabled:        cfg.Chatter.Enabled,
			RatePerMinute:  cfg.Chatter.RatePerMinute,
			Burst:          cfg.Chatter.Burst,
			WhatAmI:        cfg.Chatter.WhatAmI,
			DefaultWhatAmI: cfg.Chatter.DefaultWhatAmI,
		}, jokeSource, a.metrics, logging.NewComponentLogger("chatter"))
		if err != nil {
			a.shutdown()
			return nil, err
		}
		a.gateway.SetChatResponder(responder)
	}

	deps := server.Deps{
		Reminders: a.service,
		Version:   appVersion(),
	}
	if handler := larkgw.NewCardCallbackHandler(a.gateway, logging.NewComponentLogger("lark-callback")); handler != nil {
		deps.CardCallback = handler
	}
	if cfg.Observability.Metrics.Enabled {
		deps.Metrics = a.metrics.Handler()
	}
	if cfg.Observability.Logging.Level == "debug" {
		deps.RequestLogger = logging.NewComponentLogger("http")
	}
	a.http = server.New(server.Config{
		ListenAddr:   cfg.Server.ListenAddr,
		CallbackPath: cfg.Server.CallbackPath,
		PublicAPI:    cfg.Server.PublicAPI,
	}, deps, logging.NewComponentLogger("http"))

	return a, nil
}

// shutdown releases what build created. Safe on a partially built app.
func (a *app) shutdown() {
	if a.service != nil {
		a.service.Stop()
	}
	if a.gateway != nil {
		a.gateway.WaitForTasks()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("Tracer shutdown: %v", err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("Metrics shutdown: %v", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func displayOrUnset(id string) string {
	if id == "" {
		return "not set"
	}
	return id
}
