// Package services – QualificationService
//
// This file implements the QualificationService, which compares a member's
// point balances against the ordered professional-level ladder. Lifetime
// points decide which rung a member has earned permanently; monthly
// activity points are a recurring gate that must also be met to advance.
// Levels only ever move up: no code path demotes a member when monthly
// activity lapses.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

// Evaluation is the result of comparing a member against the level ladder.
type Evaluation struct {
	MemberID     string                  `json:"member_id"`
	CurrentLevel domain.LevelDefinition  `json:"current_level"`
	NextLevel    *domain.LevelDefinition `json:"next_level,omitempty"`
	ProgressPct  float64                 `json:"progress_pct"`
	Eligible     bool                    `json:"eligible"`
}

// QualificationService evaluates and advances members through the ladder.
type QualificationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Events receives LevelAdvanced notifications after commit. Optional.
	Events EventPublisher
}

// NewQualificationService constructs a QualificationService.
func NewQualificationService(db *gorm.DB, events EventPublisher) *QualificationService {
	return &QualificationService{DB: db, Events: events}
}

// Evaluate reports the member's current rung, the next rung, progress
// toward it, and whether both the cumulative and the recurring requirement
// for advancing are met right now.
//
// A missing or empty ladder yields a zero-valued Evaluation rather than an
// error: qualification reads are display data, not financial mutations.
func (s *QualificationService) Evaluate(ctx context.Context, memberID string) (*Evaluation, error) {
	tr := otel.Tracer("services/QualificationService")
	ctx, span := tr.Start(ctx, "Evaluate",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	member, err := repo.GetMember(ctx, s.DB, memberID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}

	defs, err := repo.ListLevelDefinitions(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	ev := &Evaluation{MemberID: memberID}
	if len(defs) == 0 {
		return ev, nil
	}

	// Definitions come back ordered by ordinal ascending. The stored level
	// never decreases, so current is looked up by ordinal, not recomputed
	// downward from points.
	currentIdx := 0
	for i, d := range defs {
		if d.Ordinal == member.CurrentLevel {
			currentIdx = i
			break
		}
	}
	ev.CurrentLevel = defs[currentIdx]

	if currentIdx+1 >= len(defs) {
		// Top of the ladder.
		ev.ProgressPct = 100
		return ev, nil
	}
	next := defs[currentIdx+1]
	ev.NextLevel = &next
	ev.Eligible = member.LifetimePoints >= next.LifetimePointsRequired &&
		member.MonthlyPoints >= next.MonthlyPointsRequired

	span.SetAttributes(attribute.Bool("eligible", ev.Eligible))

	base := ev.CurrentLevel.LifetimePointsRequired
	gap := next.LifetimePointsRequired - base
	if gap <= 0 {
		ev.ProgressPct = 100
		return ev, nil
	}
	pct := float64(member.LifetimePoints-base) / float64(gap) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	ev.ProgressPct = pct
	return ev, nil
}

// Advance promotes the member one rung at a time while Evaluate reports
// eligibility, so a single large event can clear several rungs at once.
// Calling it on a member that is not eligible, or that a concurrent
// evaluator already advanced, is a no-op. The returned Evaluation reflects
// the post-advance state.
func (s *QualificationService) Advance(ctx context.Context, memberID string) (*Evaluation, error) {
	tr := otel.Tracer("services/QualificationService")
	ctx, span := tr.Start(ctx, "Advance",
		trace.WithAttributes(attribute.String("member.id", memberID)),
	)
	defer span.End()

	ev, err := s.Evaluate(ctx, memberID)
	if err != nil {
		return nil, err
	}

	// The ladder is finite and promotion is strictly upward, so this
	// terminates within len(ladder) iterations.
	for ev.Eligible && ev.NextLevel != nil {
		changed, err := repo.PromoteMember(ctx, s.DB, memberID, ev.NextLevel.Ordinal)
		if err != nil {
			return nil, err
		}
		if changed && s.Events != nil {
			s.Events.LevelAdvanced(ctx, LevelAdvancedEvent{
				MemberID: memberID,
				NewLevel: ev.NextLevel.Ordinal,
				Name:     ev.NextLevel.Name,
			})
		}
		next, err := s.Evaluate(ctx, memberID)
		if err != nil {
			return nil, err
		}
		if !changed || next.CurrentLevel.Ordinal == ev.CurrentLevel.Ordinal {
			// Lost a race or the guard rejected; report what is stored.
			return next, nil
		}
		ev = next
	}
	return ev, nil
}

// AwardPoints adds lifetime and monthly point deltas for memberID using the
// given handle, so the event pipeline can include the award in its
// transaction. Increments happen in SQL; balances are never read back and
// rewritten.
func (s *QualificationService) AwardPoints(ctx context.Context, tx *gorm.DB, memberID string, lifetimeDelta, monthlyDelta int64) error {
	err := repo.IncrementPoints(ctx, tx, memberID, lifetimeDelta, monthlyDelta)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}

// ResetMonthlyPoints zeroes every member's recurring balance at period
// close. Levels are intentionally untouched: advancement is monotonic.
func (s *QualificationService) ResetMonthlyPoints(ctx context.Context) (int64, error) {
	return repo.ResetMonthlyPoints(ctx, s.DB)
}
