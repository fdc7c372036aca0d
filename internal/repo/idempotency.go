// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// IdempotencyRecord model that implements the dedupe-and-lock protocol
// around financial mutations.
//
// The claim step must be a single atomic insert-if-absent so two workers
// can never both believe they hold the lock: the primary-key insert either
// lands or fails, and the fallback takeover is a guarded UPDATE whose WHERE
// clause only matches reclaimable rows (failed, lock expired, or record
// expired). Completion and failure transitions are guarded by lock_owner so
// a worker that lost its lock to TTL expiry cannot clobber a successor.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// GetIdempotency returns the record for key regardless of state, or
// ErrNotFound when it does not exist or has expired.
func GetIdempotency(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("key = ? AND record_expires_at > ?", key, now).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClaimIdempotency attempts to take ownership of key for owner. It first
// tries a plain insert (atomic on the primary key); when a row already
// exists it falls back to a guarded takeover that only succeeds for failed,
// lock-expired, or record-expired rows. Returns ErrDuplicate when the key
// is held by someone else in a non-reclaimable state.
func ClaimIdempotency(ctx context.Context, db *gorm.DB, key, owner string, lockDuration, recordTTL time.Duration, now time.Time) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{
		Key:             key,
		State:           domain.IdempotencyStateInProgress,
		LockOwner:       owner,
		LockExpiresAt:   now.Add(lockDuration),
		RecordExpiresAt: now.Add(recordTTL),
	}
	err := db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return rec, nil
	}
	if !isUniqueViolation(err) {
		return nil, err
	}

	// Row exists: reclaim it only if it is retryable.
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("key = ? AND (state = ? OR lock_expires_at < ? OR record_expires_at < ?)",
			key, domain.IdempotencyStateFailed, now, now).
		Updates(map[string]any{
			"state":             domain.IdempotencyStateInProgress,
			"lock_owner":        owner,
			"lock_expires_at":   now.Add(lockDuration),
			"record_expires_at": now.Add(recordTTL),
			"result_payload":    "",
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrDuplicate
	}
	return rec, nil
}

// CompleteIdempotency marks the record completed with its result payload and
// extends its retention to recordExpiresAt. The lock_owner guard makes the
// write a no-op if the lock was lost to TTL expiry and reclaimed.
func CompleteIdempotency(ctx context.Context, db *gorm.DB, key, owner, payload string, recordExpiresAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("key = ? AND lock_owner = ?", key, owner).
		Updates(map[string]any{
			"state":             domain.IdempotencyStateCompleted,
			"result_payload":    payload,
			"record_expires_at": recordExpiresAt,
		}).Error
}

// FailIdempotency marks the record failed so a later retry may reclaim it.
// Guarded by lock_owner like CompleteIdempotency.
func FailIdempotency(ctx context.Context, db *gorm.DB, key, owner string) error {
	return db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("key = ? AND lock_owner = ?", key, owner).
		Update("state", domain.IdempotencyStateFailed).Error
}

// PurgeExpiredIdempotency deletes records past their retention window and
// returns how many rows were removed.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("record_expires_at < ?", now).
		Delete(&domain.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
