// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency record states.
const (
	IdempotencyStateInProgress = "in_progress"
	IdempotencyStateCompleted  = "completed"
	IdempotencyStateFailed     = "failed"
)

// IdempotencyRecord tracks one logical financial operation, keyed by a
// deterministic hash of its parameters. It enables at-most-one successful
// execution within the dedupe window: completed records replay their stored
// payload, in-progress records with a live lock reject concurrent attempts,
// and failed or lock-expired records may be reclaimed by a retry.
type IdempotencyRecord struct {
	Key             string    `gorm:"type:varchar(80);primaryKey"`
	State           string    `gorm:"type:varchar(16);not null;check:state IN ('in_progress','completed','failed')"`
	ResultPayload   string    `gorm:"type:text"`
	LockOwner       string    `gorm:"type:char(36);not null"`
	LockExpiresAt   time.Time `gorm:"not null;index"`
	RecordExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }
