// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// CommissionStats returns aggregate metadata for a member's commission
// history: the total number of rows where the member is the beneficiary and
// the maximum UpdatedAt timestamp among those rows. When the member has no
// commissions, the returned count is 0 and maxUpdatedAt is nil.
func CommissionStats(ctx context.Context, db *gorm.DB, memberID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.CommissionRecord{}).Where("beneficiary_id = ?", memberID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
