package domain

import "time"

// SyncStatus is one row of the append-only sync log. The most recent row is the current status.
type SyncStatus struct {
	ID           int64     `json:"id,omitempty" yaml:"id,omitempty"`
	LastSyncTime time.Time `json:"lastSyncTime" yaml:"lastSyncTime"`
	UsersCount   int       `json:"usersCount" yaml:"usersCount"`
	DevicesCount int       `json:"devicesCount" yaml:"devicesCount"`
	Success      bool      `json:"success" yaml:"success"`
	Error        string    `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs   int64     `json:"durationMs" yaml:"durationMs"`
	CreatedAt    time.Time `json:"createdAt" yaml:"createdAt"`
}
