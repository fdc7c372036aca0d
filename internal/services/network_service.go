// Package services – NetworkService
//
// This file implements the NetworkService, which owns member registration
// and the materialized referral network. At registration time it walks the
// sponsor's stored ancestor chain and inserts one edge per level up to the
// depth cap, trading a small write cost for O(1) ancestor and descendant
// lookups on the commission hot path.
//
// Service-level errors (e.g., ErrBrokenChain) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
	"github.com/avasiliou/go-mlm-backend/internal/utils"
)

// DefaultNetworkDepth is the maximum materialized ancestor distance.
const DefaultNetworkDepth = 7

// referralCodeAttempts bounds how many fresh codes a registration tries when
// the generated one collides with an existing member's.
const referralCodeAttempts = 3

// NetworkService manages member registration and the materialized
// referrer→descendant relation.
type NetworkService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// MaxDepth caps the materialized ancestor chain; defaults to 7.
	MaxDepth int
	// GenerateCode overrides referral code generation when set; it defaults
	// to utils.GenerateReferralCode.
	GenerateCode func() (string, error)
}

// NewNetworkService constructs a NetworkService with the default depth cap.
func NewNetworkService(db *gorm.DB) *NetworkService {
	return &NetworkService{DB: db, MaxDepth: DefaultNetworkDepth}
}

func (s *NetworkService) depth() int {
	if s.MaxDepth <= 0 || s.MaxDepth > DefaultNetworkDepth {
		return DefaultNetworkDepth
	}
	return s.MaxDepth
}

func (s *NetworkService) generateCode() (string, error) {
	if s.GenerateCode != nil {
		return s.GenerateCode()
	}
	return utils.GenerateReferralCode()
}

// Register creates a new member and materializes its ancestor edges in one
// transaction. The sponsor may be given either by id or by referral code;
// when neither resolves to an existing member, the registration proceeds as
// a rootless member and the broken chain is logged (policy, not failure).
func (s *NetworkService) Register(ctx context.Context, referrerID, referralCode string) (*domain.Member, error) {
	tr := otel.Tracer("services/NetworkService")
	ctx, span := tr.Start(ctx, "Register",
		trace.WithAttributes(attribute.String("referrer.id", referrerID)),
	)
	defer span.End()

	sponsor, err := s.resolveSponsor(ctx, referrerID, referralCode)
	if err != nil {
		return nil, err
	}

	// The code space is short, so a generated code can collide with an
	// existing member's. The unique index rejects the insert and a fresh
	// code is tried a bounded number of times.
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, err
		}

		var member *domain.Member
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var sponsorID *string
			if sponsor != nil {
				sponsorID = &sponsor.ID
			}
			m, err := repo.CreateMember(ctx, tx, sponsorID, code)
			if err != nil {
				return err
			}
			member = m
			if sponsor == nil {
				return nil
			}
			return s.materialize(ctx, tx, m.ID, sponsor.ID)
		})
		if errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Str("referral_code", code).Int("attempt", attempt+1).
				Msg("referral code collision; regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}
		return member, nil
	}
	return nil, repo.ErrDuplicate
}

// resolveSponsor looks up the sponsor by id first, then by referral code.
// A lookup that finds nothing returns (nil, nil) and logs a warning; only
// infrastructure failures surface as errors.
func (s *NetworkService) resolveSponsor(ctx context.Context, referrerID, referralCode string) (*domain.Member, error) {
	if referrerID == "" && referralCode == "" {
		return nil, nil
	}
	var (
		sponsor *domain.Member
		err     error
	)
	if referrerID != "" {
		sponsor, err = repo.GetMember(ctx, s.DB, referrerID)
	} else {
		sponsor, err = repo.GetMemberByReferralCode(ctx, s.DB, referralCode)
	}
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn().
			Str("referrer_id", referrerID).
			Str("referral_code", referralCode).
			Msg("referrer not found; registering rootless member")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sponsor, nil
}

// Materialize inserts memberID's ancestor edges given its direct sponsor.
// Strict variant of the registration path: a missing referrer returns
// ErrBrokenChain, and a member that already has edges is a no-op so the
// call is safe to retry.
func (s *NetworkService) Materialize(ctx context.Context, memberID, referrerID string) error {
	tr := otel.Tracer("services/NetworkService")
	ctx, span := tr.Start(ctx, "Materialize",
		trace.WithAttributes(
			attribute.String("member.id", memberID),
			attribute.String("referrer.id", referrerID),
		),
	)
	defer span.End()

	exists, err := repo.MemberExists(ctx, s.DB, referrerID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrBrokenChain
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.materialize(ctx, tx, memberID, referrerID)
	})
}

// materialize does the edge walk inside the caller's transaction: the
// sponsor becomes the level-1 ancestor and each of the sponsor's own
// ancestors shifts one level down, truncated at the depth cap.
func (s *NetworkService) materialize(ctx context.Context, tx *gorm.DB, memberID, referrerID string) error {
	n, err := repo.CountEdges(ctx, tx, memberID)
	if err != nil {
		return err
	}
	if n > 0 {
		// Already materialized; registration retries land here.
		return nil
	}

	sponsorChain, err := repo.Ancestors(ctx, tx, referrerID)
	if err != nil {
		return err
	}

	maxDepth := s.depth()
	chain := make([]repo.AncestorRef, 0, maxDepth)
	chain = append(chain, repo.AncestorRef{AncestorID: referrerID, Level: 1})
	for _, a := range sponsorChain {
		lvl := a.Level + 1
		if lvl > maxDepth {
			break
		}
		chain = append(chain, repo.AncestorRef{AncestorID: a.AncestorID, Level: lvl})
	}
	return repo.CreateEdges(ctx, tx, memberID, chain)
}

// Ancestors returns the member's stored ancestor chain ordered by level
// ascending (direct sponsor first).
func (s *NetworkService) Ancestors(ctx context.Context, memberID string) ([]repo.AncestorRef, error) {
	return repo.Ancestors(ctx, s.DB, memberID)
}

// Descendants returns the ids of all members at most maxLevel hops below
// memberID.
func (s *NetworkService) Descendants(ctx context.Context, memberID string, maxLevel int) ([]string, error) {
	return repo.Descendants(ctx, s.DB, memberID, maxLevel)
}

// Terminate marks a member terminated. Terminated members stop receiving
// new commissions; existing paid records stay untouched.
func (s *NetworkService) Terminate(ctx context.Context, memberID string) error {
	err := repo.UpdateMemberStatus(ctx, s.DB, memberID, domain.MemberStatusTerminated)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}
