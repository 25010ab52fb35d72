package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldNamespace  = "namespace"
	FieldTool       = "tool"
	FieldProvider   = "provider"
	FieldETag       = "etag"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventCatalogBuilt   = "catalog_built"
	EventCatalogChanged = "catalog_changed"
	EventConfigReloaded = "config_reloaded"
	EventToolCall       = "tool_call"
	EventToolCallError  = "tool_call_error"
	EventModelTurn      = "model_turn"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func NamespaceField(namespace string) zap.Field {
	return zap.String(FieldNamespace, namespace)
}

func ToolField(name string) zap.Field {
	return zap.String(FieldTool, name)
}

func ProviderField(provider string) zap.Field {
	return zap.String(FieldProvider, provider)
}

func ETagField(etag string) zap.Field {
	return zap.String(FieldETag, etag)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
