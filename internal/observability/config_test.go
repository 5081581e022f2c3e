package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "beanbot.log", config.Logging.File)
	assert.True(t, config.Metrics.Enabled)
	assert.False(t, config.Tracing.Enabled)
	assert.Equal(t, "otlp", config.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
	assert.Equal(t, "beanbot", config.Tracing.ServiceName)
}

func TestNormalizeFillsDefaults(t *testing.T) {
	config := Config{
		Logging: LoggingConfig{Level: "  DEBUG ", Format: ""},
		Tracing: TracingConfig{Exporter: " Zipkin", SampleRate: 3},
	}

	config.Normalize()

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "zipkin", config.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Tracing.SampleRate)
	assert.Equal(t, "beanbot", config.Tracing.ServiceName)
}

func TestNormalizeKeepsValidValues(t *testing.T) {
	config := Config{
		Logging: LoggingConfig{Level: "warn", Format: "json", File: " logs/bot.log "},
		Tracing: TracingConfig{Exporter: "otlp", SampleRate: 0.25, ServiceName: "dogwatch"},
	}

	config.Normalize()

	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "logs/bot.log", config.Logging.File)
	assert.Equal(t, 0.25, config.Tracing.SampleRate)
	assert.Equal(t, "dogwatch", config.Tracing.ServiceName)
}
