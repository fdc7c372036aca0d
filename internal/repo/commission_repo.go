// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// CommissionRecord audit trail.
//
// Error semantics:
//   - ErrDuplicate signals a unique violation on (event_id, level), which is
//     how a replayed qualifying event surfaces if it reaches the insert.
//   - Status transitions are guarded UPDATEs; re-running one on a row that
//     is already in the target state affects zero rows and reports false
//     rather than failing.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// ErrDuplicate indicates that a row already exists for a unique key, e.g. a
// commission for the same (event_id, level) pair.
var ErrDuplicate = errors.New("duplicate")

// isUniqueViolation detects unique-constraint failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// CreateCommissions inserts the given records in one batch, assigning UUIDs
// and UTC timestamps. Returns ErrDuplicate when any (event_id, level) pair
// already exists; the caller's transaction then rolls the batch back.
func CreateCommissions(ctx context.Context, db *gorm.DB, records []domain.CommissionRecord) ([]domain.CommissionRecord, error) {
	if len(records) == 0 {
		return records, nil
	}
	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].CreatedAt = now
	}
	if err := db.WithContext(ctx).Create(&records).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return records, nil
}

// GetCommission fetches one record by id, or ErrNotFound.
func GetCommission(ctx context.Context, db *gorm.DB, id string) (*domain.CommissionRecord, error) {
	var rec domain.CommissionRecord
	if err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCommissionsByEvent returns all records created for a qualifying event,
// ordered by level ascending.
func ListCommissionsByEvent(ctx context.Context, db *gorm.DB, eventID string) ([]domain.CommissionRecord, error) {
	var out []domain.CommissionRecord
	err := db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("level asc").
		Find(&out).Error
	return out, err
}

// MarkCommissionPaid transitions one pending record to paid. The returned
// bool reports whether a row changed: false means the record was already
// paid or voided (or missing), which callers treat as a no-op.
func MarkCommissionPaid(ctx context.Context, db *gorm.DB, id string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CommissionRecord{}).
		Where("id = ? AND status = ?", id, domain.CommissionStatusPending).
		Updates(map[string]any{
			"status":  domain.CommissionStatusPaid,
			"paid_at": paidAt,
		})
	return res.RowsAffected > 0, res.Error
}

// VoidCommission transitions one pending record to voided with a reason.
// Like MarkCommissionPaid, the bool reports whether a row changed.
func VoidCommission(ctx context.Context, db *gorm.DB, id, reason string, voidedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CommissionRecord{}).
		Where("id = ? AND status = ?", id, domain.CommissionStatusPending).
		Updates(map[string]any{
			"status":      domain.CommissionStatusVoided,
			"void_reason": reason,
			"voided_at":   voidedAt,
		})
	return res.RowsAffected > 0, res.Error
}

// CountCommissionsByBeneficiary returns the number of records payable to
// memberID, for pagination.
func CountCommissionsByBeneficiary(ctx context.Context, db *gorm.DB, memberID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.CommissionRecord{}).
		Where("beneficiary_id = ?", memberID).
		Count(&total).Error
	return total, err
}

// ListCommissionsByBeneficiaryPage returns a page of memberID's commission
// history ordered by creation time descending.
func ListCommissionsByBeneficiaryPage(ctx context.Context, db *gorm.DB, memberID string, offset, limit int) ([]domain.CommissionRecord, error) {
	var out []domain.CommissionRecord
	err := db.WithContext(ctx).
		Where("beneficiary_id = ?", memberID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
