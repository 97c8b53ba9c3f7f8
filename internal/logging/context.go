package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRecordID is the standardized structured logging key for staging record identifiers.
	FieldRecordID = "record_id"
	// FieldSource is the standardized structured logging key for ingestion source names.
	FieldSource = "source"
	// FieldSourceID is the standardized structured logging key for source-native identifiers.
	FieldSourceID = "source_id"
	// FieldEntityType is the standardized structured logging key for catalog entity types.
	FieldEntityType = "entity_type"
	// FieldCanonicalID is the standardized structured logging key for canonical identifiers.
	FieldCanonicalID = "canonical_id"
	// FieldCorrelationID is the standardized structured logging key for per-record correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags lifecycle events for log filtering.
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator next step for warnings and errors.
	FieldErrorHint = "error_hint"
)

type contextKey string

const (
	ctxKeyRecordID      contextKey = "record_id"
	ctxKeySource        contextKey = "source"
	ctxKeyEntityType    contextKey = "entity_type"
	ctxKeyCorrelationID contextKey = "correlation_id"
)

// WithRecord attaches staging record coordinates to a context for log enrichment.
func WithRecord(ctx context.Context, recordID, source, entityType string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyRecordID, recordID)
	ctx = context.WithValue(ctx, ctxKeySource, source)
	return context.WithValue(ctx, ctxKeyEntityType, entityType)
}

// WithCorrelationID attaches a correlation identifier to a context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := ctx.Value(ctxKeyRecordID).(string); ok && id != "" {
		fields = append(fields, slog.String(FieldRecordID, id))
	}
	if source, ok := ctx.Value(ctxKeySource).(string); ok && source != "" {
		fields = append(fields, slog.String(FieldSource, source))
	}
	if entityType, ok := ctx.Value(ctxKeyEntityType).(string); ok && entityType != "" {
		fields = append(fields, slog.String(FieldEntityType, entityType))
	}
	if rid, ok := ctx.Value(ctxKeyCorrelationID).(string); ok && rid != "" {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
