// Package producer defines the interface for publishing sync events (e.g. to Kafka).
package producer

import (
	"context"

	"directory-sync/backend/internal/telemetry/domain"
)

// Producer publishes sync events. Callers use it best-effort: log and ignore errors.
// Every Producer is also a telemetry.EventEmitter.
type Producer interface {
	// Emit sends a single sync event. Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, event *domain.SyncEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
