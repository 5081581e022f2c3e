package reminder

import (
	"context"
	"testing"
	"time"

	"beanbot/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func spanStatus(t *testing.T, recorder *tracetest.SpanRecorder, name string) string {
	t.Helper()
	for _, span := range recorder.Ended() {
		if span.Name() != name {
			continue
		}
		for _, attr := range span.Attributes() {
			if string(attr.Key) == observability.AttrStatus {
				return attr.Value.AsString()
			}
		}
	}
	return ""
}

func TestSpansCarryResolvedStatus(t *testing.T) {
	recorder := recordSpans(t)
	h := newHarness(t, nil)
	ctx := context.Background()

	morning, err := h.svc.Dispatch(ctx, SlotMorning)
	require.NoError(t, err)
	h.svc.Respond(ctx, Interaction{Ref: "cb", ActorID: testRecipient, Prompt: morning.Prompt, Answer: AnswerYes})
	assert.Equal(t, string(StatusResolvedYes), spanStatus(t, recorder, observability.SpanReminderRespond))

	_, err = h.svc.Dispatch(ctx, SlotNoon)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	assert.Equal(t, string(StatusOverdue), spanStatus(t, recorder, observability.SpanReminderTimeout))
}
