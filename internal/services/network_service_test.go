package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
)

func TestRegister_Rootless(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	m, err := svc.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if m.ReferrerID != nil {
		t.Fatalf("expected nil referrer, got %v", *m.ReferrerID)
	}
	if !strings.HasPrefix(m.ReferralCode, "MBR-") {
		t.Fatalf("expected generated referral code, got %q", m.ReferralCode)
	}

	refs, err := svc.Ancestors(ctx, m.ID)
	if err != nil || len(refs) != 0 {
		t.Fatalf("expected no ancestors for root, got %v err=%v", refs, err)
	}
}

func TestRegister_MaterializesContiguousChain(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	chain := registerChain(t, svc, 3) // A → B → C
	a, b, c := chain[0], chain[1], chain[2]

	refs, err := svc.Ancestors(ctx, c.ID)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 ancestors, got %v", refs)
	}
	if refs[0].AncestorID != b.ID || refs[0].Level != 1 {
		t.Fatalf("expected direct sponsor %s at level 1, got %+v", b.ID, refs[0])
	}
	if refs[1].AncestorID != a.ID || refs[1].Level != 2 {
		t.Fatalf("expected grand-sponsor %s at level 2, got %+v", a.ID, refs[1])
	}

	desc, err := svc.Descendants(ctx, a.ID, 7)
	if err != nil || len(desc) != 2 {
		t.Fatalf("expected 2 descendants of root, got %v err=%v", desc, err)
	}
}

func TestRegister_BySponsorReferralCode(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	sponsor, err := svc.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register sponsor: %v", err)
	}

	child, err := svc.Register(ctx, "", sponsor.ReferralCode)
	if err != nil {
		t.Fatalf("Register child: %v", err)
	}
	if child.ReferrerID == nil || *child.ReferrerID != sponsor.ID {
		t.Fatalf("expected sponsor %s, got %v", sponsor.ID, child.ReferrerID)
	}
}

func TestRegister_UnknownSponsor_ProceedsRootless(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)

	m, err := svc.Register(context.Background(), "", "MBR-NOSUCH")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if m.ReferrerID != nil {
		t.Fatalf("expected rootless registration for unknown code, got %v", *m.ReferrerID)
	}
}

func TestRegister_ReferralCodeCollision_RetriesWithFreshCode(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	taken, err := svc.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// First attempt collides with the existing member's code; the second
	// generates a free one.
	codes := []string{taken.ReferralCode, "MBR-FRESH1"}
	svc.GenerateCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	m, err := svc.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register after collision: %v", err)
	}
	if m.ReferralCode != "MBR-FRESH1" {
		t.Fatalf("expected regenerated code, got %q", m.ReferralCode)
	}
}

func TestRegister_ReferralCodeCollision_BoundedAttempts(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	taken, err := svc.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	calls := 0
	svc.GenerateCode = func() (string, error) {
		calls++
		return taken.ReferralCode, nil
	}

	if _, err := svc.Register(ctx, "", ""); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate after exhausted attempts, got %v", err)
	}
	if calls != referralCodeAttempts {
		t.Fatalf("expected %d attempts, got %d", referralCodeAttempts, calls)
	}
}

func TestRegister_DepthCap(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	chain := registerChain(t, svc, 10)
	deepest := chain[len(chain)-1]

	refs, err := svc.Ancestors(ctx, deepest.ID)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	if len(refs) != DefaultNetworkDepth {
		t.Fatalf("expected chain truncated at %d, got %d", DefaultNetworkDepth, len(refs))
	}
	for i, ref := range refs {
		if ref.Level != i+1 {
			t.Fatalf("levels must stay contiguous: got %+v", refs)
		}
	}
	// The nearest ancestors survive; the oldest fall off the end.
	if refs[0].AncestorID != chain[len(chain)-2].ID {
		t.Fatalf("expected direct sponsor first, got %+v", refs[0])
	}
}

func TestMaterialize_BrokenChain(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)

	err := svc.Materialize(context.Background(), "some-member", "missing-referrer")
	if !errors.Is(err, ErrBrokenChain) {
		t.Fatalf("expected ErrBrokenChain, got %v", err)
	}
}

func TestMaterialize_Idempotent(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	chain := registerChain(t, svc, 2)
	child := chain[1]

	// Registration already materialized the edges; a retry must be a no-op.
	if err := svc.Materialize(ctx, child.ID, chain[0].ID); err != nil {
		t.Fatalf("Materialize retry: %v", err)
	}
	n, err := repo.CountEdges(ctx, db, child.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 edge after retry, got %d err=%v", n, err)
	}
}

func TestTerminate(t *testing.T) {
	db := newServiceDB(t)
	svc := NewNetworkService(db)
	ctx := context.Background()

	m, err := svc.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.Terminate(ctx, m.ID); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	got, err := repo.GetMember(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if got.Status != domain.MemberStatusTerminated {
		t.Fatalf("expected terminated, got %q", got.Status)
	}

	if err := svc.Terminate(ctx, "missing"); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}
