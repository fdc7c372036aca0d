package services

import (
	"context"
	"errors"
	"testing"
)

func TestEvaluate_MissingMember(t *testing.T) {
	db := newServiceDB(t)
	svc := NewQualificationService(db, nil)

	_, err := svc.Evaluate(context.Background(), "ghost")
	if !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}
}

func TestEvaluate_NewMember(t *testing.T) {
	db := newServiceDB(t)
	net := NewNetworkService(db)
	svc := NewQualificationService(db, nil)
	ctx := context.Background()

	m, err := net.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	ev, err := svc.Evaluate(ctx, m.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.CurrentLevel.Ordinal != 0 || ev.CurrentLevel.Name != "Associate" {
		t.Fatalf("current level: %+v", ev.CurrentLevel)
	}
	if ev.NextLevel == nil || ev.NextLevel.Name != "Consultant" {
		t.Fatalf("next level: %+v", ev.NextLevel)
	}
	if ev.Eligible || ev.ProgressPct != 0 {
		t.Fatalf("fresh member must not be eligible: %+v", ev)
	}
}

func TestEvaluate_ProgressAndEligibility(t *testing.T) {
	db := newServiceDB(t)
	net := NewNetworkService(db)
	svc := NewQualificationService(db, nil)
	ctx := context.Background()

	m, err := net.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Halfway to Consultant on lifetime, but short on monthly activity.
	if err := svc.AwardPoints(ctx, db, m.ID, 500, 0); err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	ev, err := svc.Evaluate(ctx, m.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Eligible {
		t.Fatalf("monthly gate not met, must not be eligible: %+v", ev)
	}
	if ev.ProgressPct != 50 {
		t.Fatalf("expected 50%% progress, got %v", ev.ProgressPct)
	}

	// Meet both requirements.
	if err := svc.AwardPoints(ctx, db, m.ID, 500, 100); err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	ev, err = svc.Evaluate(ctx, m.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !ev.Eligible {
		t.Fatalf("both gates met, expected eligible: %+v", ev)
	}
}

func TestAdvance(t *testing.T) {
	db := newServiceDB(t)
	net := NewNetworkService(db)
	pub := &capturePublisher{}
	svc := NewQualificationService(db, pub)
	ctx := context.Background()

	m, err := net.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Not eligible: a no-op that still reports state.
	ev, err := svc.Advance(ctx, m.ID)
	if err != nil || ev.CurrentLevel.Ordinal != 0 {
		t.Fatalf("no-op Advance: %+v err=%v", ev, err)
	}
	if len(pub.advancedEvents()) != 0 {
		t.Fatalf("no-op must not publish")
	}

	if err := svc.AwardPoints(ctx, db, m.ID, 1200, 150); err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	ev, err = svc.Advance(ctx, m.ID)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if ev.CurrentLevel.Name != "Consultant" {
		t.Fatalf("expected Consultant, got %+v", ev.CurrentLevel)
	}

	events := pub.advancedEvents()
	if len(events) != 1 || events[0].NewLevel != 1 || events[0].Name != "Consultant" {
		t.Fatalf("advancement events: %+v", events)
	}
}

func TestAdvance_MultipleRungs(t *testing.T) {
	db := newServiceDB(t)
	net := NewNetworkService(db)
	pub := &capturePublisher{}
	svc := NewQualificationService(db, pub)
	ctx := context.Background()

	m, err := net.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Enough for Consultant, Senior Consultant and Manager in one shot.
	if err := svc.AwardPoints(ctx, db, m.ID, 25000, 600); err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	ev, err := svc.Advance(ctx, m.ID)
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if ev.CurrentLevel.Name != "Manager" {
		t.Fatalf("expected Manager, got %+v", ev.CurrentLevel)
	}
	if ev.Eligible {
		t.Fatalf("Director needs more points: %+v", ev)
	}

	events := pub.advancedEvents()
	if len(events) != 3 {
		t.Fatalf("expected one event per rung, got %+v", events)
	}
	for i, want := range []string{"Consultant", "Senior Consultant", "Manager"} {
		if events[i].Name != want || events[i].NewLevel != i+1 {
			t.Fatalf("rung %d: %+v", i, events[i])
		}
	}
}

func TestResetMonthlyPoints_PreservesLevel(t *testing.T) {
	db := newServiceDB(t)
	net := NewNetworkService(db)
	svc := NewQualificationService(db, nil)
	ctx := context.Background()

	m, err := net.Register(ctx, "", "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.AwardPoints(ctx, db, m.ID, 1200, 150); err != nil {
		t.Fatalf("AwardPoints: %v", err)
	}
	if _, err := svc.Advance(ctx, m.ID); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	n, err := svc.ResetMonthlyPoints(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResetMonthlyPoints: n=%d err=%v", n, err)
	}

	ev, err := svc.Evaluate(ctx, m.ID)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.CurrentLevel.Name != "Consultant" {
		t.Fatalf("reset must not demote: %+v", ev.CurrentLevel)
	}
	if ev.Eligible {
		t.Fatalf("recurring gate should fail after reset: %+v", ev)
	}
}
