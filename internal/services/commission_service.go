// Package services – CommissionService
//
// This file implements the CommissionService, which distributes a verified
// qualifying event across the source member's ancestor chain. It validates
// the event, prices each level from a static rate table, and persists the
// per-level records together with the volume roll-up in a single
// transaction: either every level's commission and the ledger update
// commit, or none of them do.
//
// Service-level errors (e.g., ErrDuplicateEvent, ErrVoidAfterPaid) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

// QualifyingEvent is the inbound payload delivered by the payment/order
// collaborator after it has independently verified funds.
type QualifyingEvent struct {
	SourceMemberID string          `json:"source_member_id"`
	EventID        string          `json:"event_id"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
	EventType      string          `json:"event_type"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// rateTable maps an event type to its per-level rates (index = level - 1).
// Level 1 earns the most; levels 5–7 share the flat minimum.
var rateTable = map[string][]decimal.Decimal{
	domain.EventTypeSubscription: {
		decimal.NewFromFloat(0.10),
		decimal.NewFromFloat(0.05),
		decimal.NewFromFloat(0.03),
		decimal.NewFromFloat(0.02),
		decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(0.01),
	},
	domain.EventTypePurchase: {
		decimal.NewFromFloat(0.08),
		decimal.NewFromFloat(0.04),
		decimal.NewFromFloat(0.02),
		decimal.NewFromFloat(0.015),
		decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(0.01),
		decimal.NewFromFloat(0.01),
	},
}

// RateFor returns the commission rate for (eventType, level) and whether
// the pair exists in the table.
func RateFor(eventType string, level int) (decimal.Decimal, bool) {
	rates, ok := rateTable[eventType]
	if !ok || level < 1 || level > len(rates) {
		return decimal.Zero, false
	}
	return rates[level-1], true
}

// CommissionService distributes qualifying events and manages commission
// record state transitions.
type CommissionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Volumes records the ledger side of a distribution inside the same
	// transaction.
	Volumes *VolumeService
	// Events receives CommissionPaid notifications after commit. Optional.
	Events EventPublisher
}

// NewCommissionService constructs a CommissionService.
func NewCommissionService(db *gorm.DB, volumes *VolumeService, events EventPublisher) *CommissionService {
	return &CommissionService{DB: db, Volumes: volumes, Events: events}
}

// Distribute creates the per-level commission records for a qualifying
// event and records the event's volume, atomically.
//
// Semantics:
//   - Ancestors beyond level 7 earn nothing; fewer than 7 ancestors is a
//     normal, expected condition and simply produces fewer records.
//   - Terminated beneficiaries are skipped; their previously paid records
//     are never retracted.
//   - Amounts that round to zero at 2 decimal places produce no record.
//   - A replayed event id fails with ErrDuplicateEvent and nothing commits.
func (s *CommissionService) Distribute(ctx context.Context, ev QualifyingEvent) ([]domain.CommissionRecord, error) {
	tr := otel.Tracer("services/CommissionService")
	ctx, span := tr.Start(ctx, "Distribute",
		trace.WithAttributes(
			attribute.String("event.id", ev.EventID),
			attribute.String("event.type", ev.EventType),
			attribute.String("member.id", ev.SourceMemberID),
		),
	)
	defer span.End()

	records, ev, err := s.priceEvent(ctx, s.DB, ev)
	if err != nil {
		return nil, err
	}

	var created []domain.CommissionRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		out, err := s.persistDistribution(ctx, tx, ev, records)
		if err != nil {
			return err
		}
		created = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// DistributeTx is Distribute running on the caller's transaction handle, so
// the idempotency coordinator can make the distribution part of its
// execute-once unit. The caller owns commit and rollback.
func (s *CommissionService) DistributeTx(ctx context.Context, tx *gorm.DB, ev QualifyingEvent) ([]domain.CommissionRecord, error) {
	records, ev, err := s.priceEvent(ctx, tx, ev)
	if err != nil {
		return nil, err
	}
	return s.persistDistribution(ctx, tx, ev, records)
}

// priceEvent validates the event and prices one pending record per
// surviving ancestor level. Edges are write-once, so the chain read needs
// no lock relative to the later write.
func (s *CommissionService) priceEvent(ctx context.Context, db *gorm.DB, ev QualifyingEvent) ([]domain.CommissionRecord, QualifyingEvent, error) {
	if !ev.BaseAmount.IsPositive() {
		return nil, ev, ErrInvalidAmount
	}
	if _, ok := rateTable[ev.EventType]; !ok {
		return nil, ev, ErrUnknownEventType
	}
	if _, err := repo.GetMember(ctx, db, ev.SourceMemberID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ev, ErrMemberNotFound
		}
		return nil, ev, err
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	ancestors, err := repo.Ancestors(ctx, db, ev.SourceMemberID)
	if err != nil {
		return nil, ev, err
	}

	records := make([]domain.CommissionRecord, 0, len(ancestors))
	for _, a := range ancestors {
		rate, ok := RateFor(ev.EventType, a.Level)
		if !ok {
			continue
		}
		amount := ev.BaseAmount.Mul(rate).Round(2)
		if amount.IsZero() {
			continue
		}
		beneficiary, err := repo.GetMember(ctx, db, a.AncestorID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, ev, err
		}
		if beneficiary.Status == domain.MemberStatusTerminated {
			continue
		}
		records = append(records, domain.CommissionRecord{
			BeneficiaryID:  a.AncestorID,
			SourceMemberID: ev.SourceMemberID,
			Level:          a.Level,
			EventID:        ev.EventID,
			EventType:      ev.EventType,
			BaseAmount:     ev.BaseAmount,
			Rate:           rate,
			Amount:         amount,
			Status:         domain.CommissionStatusPending,
		})
	}
	return records, ev, nil
}

// persistDistribution writes the priced records and the volume roll-up on
// the given handle. Partial per-level payout is never an acceptable state,
// so any failure here must abort the surrounding transaction.
func (s *CommissionService) persistDistribution(ctx context.Context, tx *gorm.DB, ev QualifyingEvent, records []domain.CommissionRecord) ([]domain.CommissionRecord, error) {
	out, err := repo.CreateCommissions(ctx, tx, records)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateEvent
		}
		return nil, err
	}
	if err := s.Volumes.RecordVolume(ctx, tx, ev.SourceMemberID, ev.BaseAmount, ev.OccurredAt); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkPaid transitions the given pending records to paid and returns how
// many actually changed state. Records already paid or voided are skipped
// (re-invocation is a no-op, not an error). A CommissionPaid event is
// published per transitioned record after the transaction commits.
func (s *CommissionService) MarkPaid(ctx context.Context, ids []string) (int, error) {
	tr := otel.Tracer("services/CommissionService")
	ctx, span := tr.Start(ctx, "MarkPaid",
		trace.WithAttributes(attribute.Int("records", len(ids))),
	)
	defer span.End()

	now := time.Now().UTC()
	var paid []domain.CommissionRecord
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			changed, err := repo.MarkCommissionPaid(ctx, tx, id, now)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			rec, err := repo.GetCommission(ctx, tx, id)
			if err != nil {
				return err
			}
			paid = append(paid, *rec)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.Events != nil {
		for _, rec := range paid {
			s.Events.CommissionPaid(ctx, CommissionPaidEvent{
				BeneficiaryID: rec.BeneficiaryID,
				EventID:       rec.EventID,
				Level:         rec.Level,
				Amount:        rec.Amount,
			})
		}
	}
	return len(paid), nil
}

// Void transitions a pending record to voided. Voiding an already-voided
// record is a no-op; voiding a paid record is rejected with ErrVoidAfterPaid
// because paid rows are immutable and require the reversal path.
func (s *CommissionService) Void(ctx context.Context, id, reason string) error {
	rec, err := repo.GetCommission(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrCommissionNotFound
		}
		return err
	}
	switch rec.Status {
	case domain.CommissionStatusVoided:
		return nil
	case domain.CommissionStatusPaid:
		return ErrVoidAfterPaid
	}
	_, err = repo.VoidCommission(ctx, s.DB, id, reason, time.Now().UTC())
	return err
}

// Reverse compensates a paid record by inserting a mirror record with the
// negated amount, preserving the append-only audit trail. The reversal's
// synthetic event id ("rev-" + original id) rides the same unique index as
// normal distributions, so reversing twice returns the existing
// compensation instead of creating another.
func (s *CommissionService) Reverse(ctx context.Context, id, reason string) (*domain.CommissionRecord, error) {
	orig, err := repo.GetCommission(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	if orig.Status != domain.CommissionStatusPaid {
		return nil, ErrNotReversible
	}

	now := time.Now().UTC()
	rev := domain.CommissionRecord{
		BeneficiaryID:    orig.BeneficiaryID,
		SourceMemberID:   orig.SourceMemberID,
		Level:            orig.Level,
		EventID:          "rev-" + orig.ID,
		EventType:        orig.EventType,
		BaseAmount:       orig.BaseAmount,
		Rate:             orig.Rate,
		Amount:           orig.Amount.Neg(),
		Status:           domain.CommissionStatusPaid,
		VoidReason:       reason,
		ReversesRecordID: &orig.ID,
		PaidAt:           &now,
	}
	created, err := repo.CreateCommissions(ctx, s.DB, []domain.CommissionRecord{rev})
	if errors.Is(err, repo.ErrDuplicate) {
		existing, gerr := repo.ListCommissionsByEvent(ctx, s.DB, "rev-"+orig.ID)
		if gerr != nil || len(existing) == 0 {
			return nil, err
		}
		return &existing[0], nil
	}
	if err != nil {
		return nil, err
	}
	return &created[0], nil
}

// History returns a page of memberID's commission records (as beneficiary)
// plus the total count, most recent first.
func (s *CommissionService) History(ctx context.Context, memberID string, page, pageSize int) ([]domain.CommissionRecord, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountCommissionsByBeneficiary(ctx, s.DB, memberID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.CommissionRecord{}, 0, nil
	}
	items, err := repo.ListCommissionsByBeneficiaryPage(ctx, s.DB, memberID, offset, pageSize)
	return items, total, err
}
