// Package services – VolumeService
//
// This file implements the VolumeService (the volume ledger): monthly
// personal volume for the member a qualifying event belongs to, plus the
// team-volume roll-up to every stored ancestor. All bucket mutations are
// additive upserts, so concurrent events for siblings sharing an ancestor
// both land on that ancestor's bucket without locking in the application.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

// VolumeService implements the monthly volume ledger.
type VolumeService struct {
	// DB is the GORM handle used for reads outside a distribution
	// transaction (MonthlySummary).
	DB *gorm.DB
}

// NewVolumeService constructs a VolumeService.
func NewVolumeService(db *gorm.DB) *VolumeService {
	return &VolumeService{DB: db}
}

// RecordVolume attributes amount to memberID's personal volume for the
// month of occurredAt and rolls the same amount up as team volume to every
// stored ancestor. It runs on the handle it is given so the commission
// engine can pass its transaction and keep volume and commission atomic.
//
// A dangling ancestor edge (member purged after registration) is skipped
// with a warning rather than failing the whole roll-up.
func (s *VolumeService) RecordVolume(ctx context.Context, tx *gorm.DB, memberID string, amount decimal.Decimal, occurredAt time.Time) error {
	tr := otel.Tracer("services/VolumeService")
	ctx, span := tr.Start(ctx, "RecordVolume",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	occurredAt = occurredAt.UTC()
	year, month := occurredAt.Year(), int(occurredAt.Month())

	if err := repo.AddPersonalVolume(ctx, tx, memberID, year, month, amount); err != nil {
		return err
	}

	ancestors, err := repo.Ancestors(ctx, tx, memberID)
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		exists, err := repo.MemberExists(ctx, tx, a.AncestorID)
		if err != nil {
			return err
		}
		if !exists {
			log.Warn().
				Str("member_id", memberID).
				Str("ancestor_id", a.AncestorID).
				Int("level", a.Level).
				Msg("skipping roll-up to missing ancestor")
			continue
		}
		if err := repo.AddTeamVolume(ctx, tx, a.AncestorID, year, month, amount); err != nil {
			return err
		}
	}
	return nil
}

// MonthlySummary returns the member's bucket for (year, month). Absent
// buckets come back zero-valued; a missing member is reported as
// ErrMemberNotFound.
func (s *VolumeService) MonthlySummary(ctx context.Context, memberID string, year, month int) (*domain.VolumeBucket, error) {
	if _, err := repo.GetMember(ctx, s.DB, memberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return repo.GetBucket(ctx, s.DB, memberID, year, month)
}
