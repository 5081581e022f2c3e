package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// MetricsCollector manages all reminder and chat metrics for the bot.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	dispatches  metric.Int64Counter
	resolutions metric.Int64Counter
	escalations metric.Int64Counter
	failures    metric.Int64Counter
	pending     metric.Int64UpDownCounter
	commands    metric.Int64Counter
	replies     metric.Int64Counter
}

// NewMetricsCollector creates a new metrics collector. When metrics are
// disabled every instrument is a no-op and Handler serves 404.
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return newCollector(noop.NewMeterProvider().Meter("beanbot"), nil, nil)
	}

	// A private registry keeps repeated collectors (tests, restarts of the
	// serve command in-process) from colliding on the global registerer.
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	return newCollector(provider.Meter("beanbot"), provider, registry)
}

func newCollector(meter metric.Meter, provider *sdkmetric.MeterProvider, registry *prometheus.Registry) (*MetricsCollector, error) {
	dispatches, err := meter.Int64Counter(
		"beanbot.reminder.dispatches",
		metric.WithDescription("Reminder dispatch attempts by slot and outcome"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatches counter: %w", err)
	}

	resolutions, err := meter.Int64Counter(
		"beanbot.reminder.resolutions",
		metric.WithDescription("Reminder occurrences reaching a terminal status"),
		metric.WithUnit("{occurrence}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolutions counter: %w", err)
	}

	escalations, err := meter.Int64Counter(
		"beanbot.reminder.escalations",
		metric.WithDescription("Escalation messages sent to the escalation contact"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create escalations counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"beanbot.reminder.failures",
		metric.WithDescription("Failed external calls by failure kind"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failures counter: %w", err)
	}

	pending, err := meter.Int64UpDownCounter(
		"beanbot.reminder.pending",
		metric.WithDescription("Reminder occurrences awaiting an answer"),
		metric.WithUnit("{occurrence}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending gauge: %w", err)
	}

	commands, err := meter.Int64Counter(
		"beanbot.commands",
		metric.WithDescription("Privileged chat commands by name and result"),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commands counter: %w", err)
	}

	replies, err := meter.Int64Counter(
		"beanbot.chatter.replies",
		metric.WithDescription("Keyword replies sent by trigger"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create replies counter: %w", err)
	}

	return &MetricsCollector{
		provider:    provider,
		registry:    registry,
		dispatches:  dispatches,
		resolutions: resolutions,
		escalations: escalations,
		failures:    failures,
		pending:     pending,
		commands:    commands,
		replies:     replies,
	}, nil
}

// Handler returns the Prometheus scrape handler.
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registerer exposes the scrape registry so native Prometheus collectors can
// share the /metrics endpoint. Nil when metrics are disabled.
func (m *MetricsCollector) Registerer() prometheus.Registerer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// Shutdown flushes and releases the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordDispatch records one dispatch attempt.
func (m *MetricsCollector) RecordDispatch(ctx context.Context, slot, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("outcome", outcome),
	))
	if outcome == "sent" {
		m.pending.Add(ctx, 1)
	}
}

// RecordResolution records an occurrence leaving the pending set.
func (m *MetricsCollector) RecordResolution(ctx context.Context, slot, status string) {
	if m == nil {
		return
	}
	m.resolutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("status", status),
	))
	m.pending.Add(ctx, -1)
}

// RecordEscalation records a message sent to the escalation contact.
func (m *MetricsCollector) RecordEscalation(ctx context.Context, slot, reason string) {
	if m == nil {
		return
	}
	m.escalations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("reason", reason),
	))
}

// RecordFailure records a failed external call.
func (m *MetricsCollector) RecordFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCommand records a chat command invocation.
func (m *MetricsCollector) RecordCommand(ctx context.Context, name, result string) {
	if m == nil {
		return
	}
	m.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("result", result),
	))
}

// RecordReply records a keyword reply.
func (m *MetricsCollector) RecordReply(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	m.replies.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", trigger)))
}
