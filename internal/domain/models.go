// Package domain defines the persistence models for members, network edges,
// volume buckets, and professional level definitions. These types are mapped
// with GORM and form the core data layer of the commission engine.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Member statuses. Terminated members keep their history but stop receiving
// new commissions.
const (
	MemberStatusActive     = "active"
	MemberStatusTerminated = "terminated"
)

// Member represents a node in the referral network. Each member optionally
// points at a direct sponsor; the sponsor link is immutable once set
// (re-parenting is not supported).
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ReferrerID: the direct sponsor, or nil for a network root.
//   - ReferralCode: unique human-shareable code used by the signup flow.
//   - Status: "active" or "terminated".
//   - LifetimePoints: cumulative, never-reset balance driving level advancement.
//   - MonthlyPoints: recurring balance reset each period; gates advancement.
//   - CurrentLevel: ordinal of the member's professional level (monotonic).
//   - DeletedAt: soft deletion marker (purge retains audit rows elsewhere).
type Member struct {
	ID             string         `json:"id"              gorm:"type:char(36);primaryKey"`
	ReferrerID     *string        `json:"referrer_id"     gorm:"type:char(36);index"`
	ReferralCode   string         `json:"referral_code"   gorm:"type:varchar(16);not null;uniqueIndex"`
	Status         string         `json:"status"          gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','terminated')"`
	LifetimePoints int64          `json:"lifetime_points" gorm:"not null;default:0"`
	MonthlyPoints  int64          `json:"monthly_points"  gorm:"not null;default:0"`
	CurrentLevel   int            `json:"current_level"   gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"               gorm:"index"`
}

// TableName returns the database table name for Member.
func (Member) TableName() string { return "members" }

// NetworkEdge is one materialized ancestor relation: member_id is exactly
// `level` hops below ancestor_id (level 1 = direct sponsor). Edges are
// created once at registration and never updated; a member's set of levels
// is contiguous from 1 up to the stored chain depth.
type NetworkEdge struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	AncestorID string    `json:"ancestor_id" gorm:"type:char(36);not null;uniqueIndex:ux_edge_pair,priority:1;index:idx_edge_ancestor_level,priority:1"`
	MemberID   string    `json:"member_id"   gorm:"type:char(36);not null;uniqueIndex:ux_edge_pair,priority:2;uniqueIndex:ux_edge_member_level,priority:1"`
	Level      int       `json:"level"       gorm:"not null;uniqueIndex:ux_edge_member_level,priority:2;index:idx_edge_ancestor_level,priority:2;check:level BETWEEN 1 AND 7"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for NetworkEdge.
func (NetworkEdge) TableName() string { return "network_edges" }

// VolumeBucket aggregates one member's volume for one calendar month.
// PersonalVolume counts the member's own qualifying events; TeamVolume is
// the roll-up of descendant personal volume. Buckets are only ever mutated
// through additive upserts so concurrent writers cannot lose updates.
type VolumeBucket struct {
	ID             string          `json:"id"              gorm:"type:char(36);primaryKey"`
	MemberID       string          `json:"member_id"       gorm:"type:char(36);not null;uniqueIndex:ux_bucket_member_period,priority:1"`
	Year           int             `json:"year"            gorm:"not null;uniqueIndex:ux_bucket_member_period,priority:2"`
	Month          int             `json:"month"           gorm:"not null;uniqueIndex:ux_bucket_member_period,priority:3;check:month BETWEEN 1 AND 12"`
	PersonalVolume decimal.Decimal `json:"personal_volume" gorm:"type:decimal(20,2);not null;default:0"`
	TeamVolume     decimal.Decimal `json:"team_volume"     gorm:"type:decimal(20,2);not null;default:0"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName returns the database table name for VolumeBucket.
func (VolumeBucket) TableName() string { return "volume_buckets" }

// LevelDefinition is one rung of the ordered professional-level ladder.
// Rows are static reference data seeded at migration time.
type LevelDefinition struct {
	Ordinal                int    `json:"ordinal"                  gorm:"primaryKey;autoIncrement:false"`
	Name                   string `json:"name"                     gorm:"type:varchar(64);not null"`
	LifetimePointsRequired int64  `json:"lifetime_points_required" gorm:"not null"`
	MonthlyPointsRequired  int64  `json:"monthly_points_required"  gorm:"not null"`
}

// TableName returns the database table name for LevelDefinition.
func (LevelDefinition) TableName() string { return "level_definitions" }
