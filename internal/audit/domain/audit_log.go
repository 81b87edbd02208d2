package domain

import "time"

// AuditLog represents one recorded override mutation.
type AuditLog struct {
	ID         string    `json:"id" yaml:"id"`
	ActorID    string    `json:"actorId,omitempty" yaml:"actorId,omitempty"`
	Action     string    `json:"action" yaml:"action"`
	Resource   string    `json:"resource" yaml:"resource"`
	ResourceID string    `json:"resourceId,omitempty" yaml:"resourceId,omitempty"`
	Metadata   string    `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
}

// ListFilter narrows a listing. Empty fields match everything.
type ListFilter struct {
	Action     string
	Resource   string
	ResourceID string
}
