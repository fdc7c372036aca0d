// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// materialized NetworkEdge relation.
//
// Edges are write-once: they are inserted in one batch when a member
// registers and never updated afterwards, so readers need no locking. The
// ancestor and descendant queries are single indexed lookups over the
// materialized table; nothing recurses at read time.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
)

// AncestorRef is one entry of a member's ancestor chain as returned by
// Ancestors: the ancestor's id and its distance from the member.
type AncestorRef struct {
	AncestorID string `json:"ancestor_id"`
	Level      int    `json:"level"`
}

// CreateEdges inserts the given (ancestor, level) chain for memberID in one
// batch. Levels must be assigned by the caller; CreatedAt is set to UTC.
func CreateEdges(ctx context.Context, db *gorm.DB, memberID string, chain []AncestorRef) error {
	if len(chain) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]domain.NetworkEdge, 0, len(chain))
	for _, a := range chain {
		rows = append(rows, domain.NetworkEdge{
			ID:         uuid.NewString(),
			AncestorID: a.AncestorID,
			MemberID:   memberID,
			Level:      a.Level,
			CreatedAt:  now,
		})
	}
	return db.WithContext(ctx).Create(&rows).Error
}

// CountEdges returns the number of stored ancestor edges for memberID.
// Used by the materialization no-op check.
func CountEdges(ctx context.Context, db *gorm.DB, memberID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.NetworkEdge{}).
		Where("member_id = ?", memberID).
		Count(&n).Error
	return n, err
}

// Ancestors returns memberID's ancestor chain ordered by increasing level
// (direct sponsor first). The slice is empty for a network root.
func Ancestors(ctx context.Context, db *gorm.DB, memberID string) ([]AncestorRef, error) {
	var out []AncestorRef
	err := db.WithContext(ctx).
		Model(&domain.NetworkEdge{}).
		Select("ancestor_id", "level").
		Where("member_id = ?", memberID).
		Order("level asc").
		Scan(&out).Error
	return out, err
}

// Descendants returns the ids of every member at most maxLevel hops below
// memberID. maxLevel values outside [1,7] are clamped to 7.
func Descendants(ctx context.Context, db *gorm.DB, memberID string, maxLevel int) ([]string, error) {
	if maxLevel < 1 || maxLevel > 7 {
		maxLevel = 7
	}
	var out []string
	err := db.WithContext(ctx).
		Model(&domain.NetworkEdge{}).
		Where("ancestor_id = ? AND level <= ?", memberID, maxLevel).
		Order("level asc").
		Pluck("member_id", &out).Error
	return out, err
}

// DeleteEdgesForMember removes all edges touching memberID, both as the
// descendant and as an ancestor. Only used when a member is purged.
func DeleteEdgesForMember(ctx context.Context, db *gorm.DB, memberID string) error {
	return db.WithContext(ctx).
		Where("member_id = ? OR ancestor_id = ?", memberID, memberID).
		Delete(&domain.NetworkEdge{}).Error
}
