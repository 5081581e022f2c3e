package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, handler http.Handler) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMetricsCollectorExportsReminderCounters(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = collector.Shutdown(context.Background()) })

	ctx := context.Background()
	collector.RecordDispatch(ctx, "morning", "sent")
	collector.RecordResolution(ctx, "morning", "overdue")
	collector.RecordEscalation(ctx, "morning", "overdue")
	collector.RecordFailure(ctx, "deliver")

	code, body := scrape(t, collector.Handler())
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "beanbot_reminder_dispatches")
	assert.Contains(t, body, "beanbot_reminder_escalations")
	assert.Contains(t, body, `kind="deliver"`)
}

func TestMetricsCollectorSeparateRegistries(t *testing.T) {
	first, err := NewMetricsCollector(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	second, err := NewMetricsCollector(MetricsConfig{Enabled: true})
	require.NoError(t, err)

	NewGatewayMetrics(first.Registerer()).RecordDuplicate()
	NewGatewayMetrics(second.Registerer())

	_, body := scrape(t, first.Handler())
	assert.Contains(t, body, "beanbot_gateway_duplicate_events_total 1")
}

func TestDisabledMetricsCollector(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	collector.RecordDispatch(context.Background(), "noon", "sent")
	assert.Nil(t, collector.Registerer())

	code, _ := scrape(t, collector.Handler())
	assert.Equal(t, http.StatusNotFound, code)
	assert.NoError(t, collector.Shutdown(context.Background()))
}

func TestNilRecordersAreSafe(t *testing.T) {
	var collector *MetricsCollector
	collector.RecordFailure(context.Background(), "escalate")

	var gateway *GatewayMetrics
	gateway.RecordEvent("message")
	gateway.RecordCallback("")
}
