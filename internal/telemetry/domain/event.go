// Package domain defines the sync outcome event published to telemetry sinks.
package domain

import "time"

// Event types.
const (
	EventSyncCompleted = "directory_sync.completed"
	EventSyncFailed    = "directory_sync.failed"
)

// Triggers.
const (
	TriggerStartup   = "startup"
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// SourceDirectorySync is the source label on every event.
const SourceDirectorySync = "directory-sync"

// SyncEvent is the outcome of one sync run.
type SyncEvent struct {
	ID           string    `json:"id"`
	EventType    string    `json:"eventType"`
	Source       string    `json:"source"`
	Trigger      string    `json:"trigger,omitempty"`
	Success      bool      `json:"success"`
	UsersCount   int       `json:"usersCount"`
	DevicesCount int       `json:"devicesCount"`
	DurationMs   int64     `json:"durationMs"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
