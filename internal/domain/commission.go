// Package domain defines the core persistence models for the application.
// This file holds the commission audit trail: one row per ancestor level per
// qualifying event, append-only once paid.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Commission record statuses.
const (
	CommissionStatusPending = "pending"
	CommissionStatusPaid    = "paid"
	CommissionStatusVoided  = "voided"
)

// Qualifying event types with commission rate tables.
const (
	EventTypeSubscription = "subscription"
	EventTypePurchase     = "purchase"
)

// CommissionRecord is one ancestor level's share of one qualifying event.
// The (event_id, level) pair is unique, which makes replayed events fail on
// insert even if they slip past the idempotency coordinator. Paid records
// are immutable; corrections happen through a compensating record whose
// ReversesRecordID points back at the original and whose EventID carries a
// "rev-" prefix so the unique pair also caps reversals at one per record.
type CommissionRecord struct {
	ID               string          `json:"id"                 gorm:"type:char(36);primaryKey"`
	BeneficiaryID    string          `json:"beneficiary_id"     gorm:"type:char(36);not null;index:idx_commission_beneficiary"`
	SourceMemberID   string          `json:"source_member_id"   gorm:"type:char(36);not null;index"`
	Level            int             `json:"level"              gorm:"not null;uniqueIndex:ux_commission_event_level,priority:2;check:level BETWEEN 1 AND 7"`
	EventID          string          `json:"event_id"           gorm:"type:varchar(80);not null;uniqueIndex:ux_commission_event_level,priority:1"`
	EventType        string          `json:"event_type"         gorm:"type:varchar(32);not null"`
	BaseAmount       decimal.Decimal `json:"base_amount"        gorm:"type:decimal(20,2);not null"`
	Rate             decimal.Decimal `json:"rate"               gorm:"type:decimal(10,4);not null"`
	Amount           decimal.Decimal `json:"amount"             gorm:"type:decimal(20,2);not null"`
	Status           string          `json:"status"             gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','paid','voided')"`
	VoidReason       string          `json:"void_reason,omitempty"        gorm:"type:varchar(255)"`
	ReversesRecordID *string         `json:"reverses_record_id,omitempty" gorm:"type:char(36);index"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	VoidedAt         *time.Time      `json:"voided_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName returns the database table name for CommissionRecord.
func (CommissionRecord) TableName() string { return "commission_records" }
