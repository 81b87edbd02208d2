package otel

import (
	"context"
	"encoding/json"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"directory-sync/backend/internal/telemetry"
	"directory-sync/backend/internal/telemetry/domain"
)

// instrumentationName is the logger name sync events are emitted under.
const instrumentationName = "directory-sync.telemetry"

// RecordEmitter is the subset of otellog.Logger the emitter needs.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewEventEmitterWithLogger returns an EventEmitter that writes to logger. A nil logger yields a no-op emitter.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.SyncEvent) error { return nil }

type otelEmitter struct {
	logger RecordEmitter
}

// Emit converts the sync event to an OTel log record and emits it.
// The body is the event JSON; failed syncs are logged at ERROR severity.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.SyncEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if body, err := json.Marshal(event); err == nil {
		rec.SetBody(otellog.BytesValue(body))
	}
	if event.Success {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	} else {
		rec.SetSeverity(otellog.SeverityError)
		rec.SetSeverityText("ERROR")
	}
	if event.ID != "" {
		rec.AddAttributes(otellog.String("event_id", event.ID))
	}
	if event.EventType != "" {
		rec.AddAttributes(otellog.String("event_type", event.EventType))
	}
	if event.Source != "" {
		rec.AddAttributes(otellog.String("source", event.Source))
	}
	if event.Trigger != "" {
		rec.AddAttributes(otellog.String("trigger", event.Trigger))
	}
	rec.AddAttributes(
		otellog.Bool("success", event.Success),
		otellog.Int("users_count", event.UsersCount),
		otellog.Int("devices_count", event.DevicesCount),
		otellog.Int64("duration_ms", event.DurationMs),
	)
	if event.Error != "" {
		rec.AddAttributes(otellog.String("error", event.Error))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
