// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Member
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a member is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Point balances are only ever changed through SQL-side increments
// (IncrementPoints, ResetMonthlyPoints) so concurrent qualifying events for
// the same member cannot lose updates to a read-modify-write race.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateMember inserts a new Member row. The caller supplies the referral
// code (generated at the service layer); ID is a fresh UUID and CreatedAt is
// set to UTC. referrerID may be nil for a network root. A referral code that
// is already taken returns ErrDuplicate so the caller can regenerate.
func CreateMember(ctx context.Context, db *gorm.DB, referrerID *string, referralCode string) (*domain.Member, error) {
	m := &domain.Member{
		ID:           uuid.NewString(),
		ReferrerID:   referrerID,
		ReferralCode: referralCode,
		Status:       domain.MemberStatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return m, nil
}

// GetMember fetches a single member by ID, or ErrNotFound if missing.
func GetMember(ctx context.Context, db *gorm.DB, id string) (*domain.Member, error) {
	var m domain.Member
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMemberByReferralCode resolves a referral code to its member, or
// ErrNotFound when no member carries that code.
func GetMemberByReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.Member, error) {
	var m domain.Member
	if err := db.WithContext(ctx).Where("referral_code = ?", code).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// MemberExists reports whether a member row exists for id.
func MemberExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Member{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// IncrementPoints atomically adds the given deltas to a member's lifetime
// and monthly point balances using SQL-side arithmetic. Returns ErrNotFound
// when the member does not exist.
func IncrementPoints(ctx context.Context, db *gorm.DB, id string, lifetimeDelta, monthlyDelta int64) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"lifetime_points": gorm.Expr("lifetime_points + ?", lifetimeDelta),
			"monthly_points":  gorm.Expr("monthly_points + ?", monthlyDelta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PromoteMember raises a member's current level to newLevel. The WHERE guard
// makes the call a no-op when the member already reached (or passed) that
// ordinal, which keeps advancement monotonic under concurrent evaluators.
// The returned bool reports whether a row actually changed.
func PromoteMember(ctx context.Context, db *gorm.DB, id string, newLevel int) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ? AND current_level < ?", id, newLevel).
		Update("current_level", newLevel)
	return res.RowsAffected > 0, res.Error
}

// UpdateMemberStatus sets a member's status (active/terminated).
// Returns ErrNotFound when the member does not exist.
func UpdateMemberStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetMonthlyPoints zeroes every member's recurring point balance. Invoked
// at period close; levels are never touched here.
func ResetMonthlyPoints(ctx context.Context, db *gorm.DB) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Member{}).
		Where("monthly_points <> 0").
		Update("monthly_points", 0)
	return res.RowsAffected, res.Error
}

// ListLevelDefinitions returns the professional ladder ordered by ordinal
// ascending. An empty slice (not an error) is returned when the table has
// not been seeded.
func ListLevelDefinitions(ctx context.Context, db *gorm.DB) ([]domain.LevelDefinition, error) {
	var out []domain.LevelDefinition
	err := db.WithContext(ctx).Order("ordinal asc").Find(&out).Error
	return out, err
}
