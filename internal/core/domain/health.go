package domain

import "time"

// HealthStatus is the coarse health signal derived from recent run history.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
)

// HealthState is a read-side projection over the most recent runs of one
// entity type. It is recomputed on demand and is never a source of truth by
// itself.
type HealthState struct {
	EntityType          EntityType   `json:"entity_type"`
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccessAt       *time.Time   `json:"last_success_at,omitempty"`
}
