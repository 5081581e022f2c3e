package logging

import (
	"context"

	"beanbot/internal/observability"
)

// WithOccurrence returns a logger that prefixes lines with a reminder
// occurrence id.
func WithOccurrence(logger Logger, occurrence string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if occurrence == "" {
		return logger
	}
	return &occurrenceLogger{logger: logger, occurrence: occurrence}
}

// FromContext returns a logger tagged with the occurrence found in context, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	return WithOccurrence(logger, observability.OccurrenceFromContext(ctx))
}

type occurrenceLogger struct {
	logger     Logger
	occurrence string
}

func (l *occurrenceLogger) Debug(format string, args ...any) {
	l.logger.Debug(prefixOccurrence(l.occurrence, format), args...)
}

func (l *occurrenceLogger) Info(format string, args ...any) {
	l.logger.Info(prefixOccurrence(l.occurrence, format), args...)
}

func (l *occurrenceLogger) Warn(format string, args ...any) {
	l.logger.Warn(prefixOccurrence(l.occurrence, format), args...)
}

func (l *occurrenceLogger) Error(format string, args ...any) {
	l.logger.Error(prefixOccurrence(l.occurrence, format), args...)
}

func prefixOccurrence(occurrence, format string) string {
	return "occurrence=" + occurrence + " " + format
}
