// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for monthly
// VolumeBucket aggregates.
//
// Buckets are mutated exclusively through ON CONFLICT upserts whose update
// arm is SQL-side addition (bucket = bucket + delta). Two workers rolling
// volume up to the same ancestor in the same month therefore both land,
// regardless of interleaving.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// bucketConflict targets the (member_id, year, month) unique index.
var bucketConflict = clause.OnConflict{
	Columns: []clause.Column{{Name: "member_id"}, {Name: "year"}, {Name: "month"}},
}

// AddPersonalVolume atomically adds amount to the member's personal volume
// for the (year, month) bucket, creating the bucket when absent.
func AddPersonalVolume(ctx context.Context, db *gorm.DB, memberID string, year, month int, amount decimal.Decimal) error {
	up := bucketConflict
	up.DoUpdates = clause.Assignments(map[string]any{
		"personal_volume": gorm.Expr("personal_volume + ?", amount),
		"updated_at":      time.Now().UTC(),
	})
	return db.WithContext(ctx).Clauses(up).Create(&domain.VolumeBucket{
		ID:             uuid.NewString(),
		MemberID:       memberID,
		Year:           year,
		Month:          month,
		PersonalVolume: amount,
		TeamVolume:     decimal.Zero,
		CreatedAt:      time.Now().UTC(),
	}).Error
}

// AddTeamVolume atomically adds amount to the member's team volume for the
// (year, month) bucket, creating the bucket when absent.
func AddTeamVolume(ctx context.Context, db *gorm.DB, memberID string, year, month int, amount decimal.Decimal) error {
	up := bucketConflict
	up.DoUpdates = clause.Assignments(map[string]any{
		"team_volume": gorm.Expr("team_volume + ?", amount),
		"updated_at":  time.Now().UTC(),
	})
	return db.WithContext(ctx).Clauses(up).Create(&domain.VolumeBucket{
		ID:             uuid.NewString(),
		MemberID:       memberID,
		Year:           year,
		Month:          month,
		PersonalVolume: decimal.Zero,
		TeamVolume:     amount,
		CreatedAt:      time.Now().UTC(),
	}).Error
}

// GetBucket returns the member's bucket for (year, month). When no volume
// has been recorded for that period, a zero-valued bucket is returned
// instead of an error so read paths stay total.
func GetBucket(ctx context.Context, db *gorm.DB, memberID string, year, month int) (*domain.VolumeBucket, error) {
	var b domain.VolumeBucket
	err := db.WithContext(ctx).
		Where("member_id = ? AND year = ? AND month = ?", memberID, year, month).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.VolumeBucket{
			MemberID:       memberID,
			Year:           year,
			Month:          month,
			PersonalVolume: decimal.Zero,
			TeamVolume:     decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}
