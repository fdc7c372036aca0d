// Package services – EventPipeline
//
// This file implements the end-to-end handling of one inbound qualifying
// event: the idempotency coordinator wraps a single transaction that
// distributes commissions, records volume, and awards qualification
// points; after the transaction commits, the source member is re-evaluated
// and advanced if eligible. Replayed events return the cached distribution
// without touching the database again.
package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

// opDistribute is the operation type folded into the idempotency key for
// qualifying events.
const opDistribute = "distribute"

// DistributionResult is the cached/returned outcome of processing one
// qualifying event.
type DistributionResult struct {
	EventID     string                    `json:"event_id"`
	Records     []domain.CommissionRecord `json:"records"`
	Replayed    bool                      `json:"replayed"`
	Advancement *Evaluation               `json:"advancement,omitempty"`
}

// EventPipeline wires the coordinator, the commission engine, and the
// qualification engine into the inbound event flow.
type EventPipeline struct {
	Coordinator   *IdempotencyCoordinator
	Commissions   *CommissionService
	Qualification *QualificationService

	// PointsPerUnit converts base amount currency units into qualification
	// points. Defaults to 1 point per whole unit.
	PointsPerUnit int64
}

// NewEventPipeline constructs an EventPipeline with default point pricing.
func NewEventPipeline(coord *IdempotencyCoordinator, comm *CommissionService, qual *QualificationService) *EventPipeline {
	return &EventPipeline{
		Coordinator:   coord,
		Commissions:   comm,
		Qualification: qual,
		PointsPerUnit: 1,
	}
}

// Process handles one qualifying event exactly once per dedupe window.
//
// The financial unit (commissions + volume + points) runs inside the
// coordinator's transaction. Qualification advancement runs after commit:
// it is itself idempotent and monotonic, so re-running it on a replay is
// harmless, and a crash between commit and advancement loses nothing that
// the next evaluation cannot recover.
func (p *EventPipeline) Process(ctx context.Context, ev QualifyingEvent) (*DistributionResult, error) {
	key := p.Coordinator.DeriveKey(ev.SourceMemberID, opDistribute,
		[]string{ev.EventID, ev.EventType, ev.BaseAmount.StringFixed(2)}, ev.OccurredAt)

	payload, replayed, err := p.Coordinator.Execute(ctx, key, func(tx *gorm.DB) (any, error) {
		records, err := p.Commissions.DistributeTx(ctx, tx, ev)
		if err != nil {
			return nil, err
		}
		points := ev.BaseAmount.IntPart() * p.pointsPerUnit()
		if err := p.Qualification.AwardPoints(ctx, tx, ev.SourceMemberID, points, points); err != nil {
			return nil, err
		}
		return DistributionResult{EventID: ev.EventID, Records: records}, nil
	})
	if errors.Is(err, ErrDuplicateEvent) {
		// The event id was already distributed in an earlier dedupe window,
		// so its key no longer matches the cached record and the unique
		// (event_id, level) index stopped the re-insert before any volume or
		// point was written. Serve the stored records as a replay.
		records, lerr := repo.ListCommissionsByEvent(ctx, p.Commissions.DB, ev.EventID)
		if lerr != nil {
			return nil, lerr
		}
		return &DistributionResult{EventID: ev.EventID, Records: records, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	var result DistributionResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, err
	}
	result.Replayed = replayed

	if !replayed {
		adv, err := p.Qualification.Advance(ctx, ev.SourceMemberID)
		if err != nil {
			// Distribution is committed; advancement failures must not undo
			// or mask it.
			log.Warn().Err(err).
				Str("event_id", ev.EventID).
				Str("member_id", ev.SourceMemberID).
				Msg("post-distribution advancement failed")
			return &result, nil
		}
		result.Advancement = adv
	}
	return &result, nil
}

func (p *EventPipeline) pointsPerUnit() int64 {
	if p.PointsPerUnit <= 0 {
		return 1
	}
	return p.PointsPerUnit
}
