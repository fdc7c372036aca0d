// Package services – outbound events
//
// Commission payment and level advancement are consumed by external
// collaborators (notifications, bonus processing). The engine only promises
// to hand them a payload after the state change commits; delivery mechanics
// live outside this repository. The default publisher writes structured
// logs, which doubles as the audit feed in single-process deployments.
package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CommissionPaidEvent is emitted once per commission record transitioned to
// paid.
type CommissionPaidEvent struct {
	BeneficiaryID string          `json:"beneficiary_id"`
	EventID       string          `json:"event_id"`
	Level         int             `json:"level"`
	Amount        decimal.Decimal `json:"amount"`
}

// LevelAdvancedEvent is emitted when a member reaches a new professional
// level.
type LevelAdvancedEvent struct {
	MemberID string `json:"member_id"`
	NewLevel int    `json:"new_level"`
	Name     string `json:"level_name"`
}

// EventPublisher receives outbound events after the corresponding state
// change has committed. Implementations must be safe for concurrent use and
// must not block the caller for long; slow sinks should buffer internally.
type EventPublisher interface {
	CommissionPaid(ctx context.Context, ev CommissionPaidEvent)
	LevelAdvanced(ctx context.Context, ev LevelAdvancedEvent)
}

// LogPublisher is the default EventPublisher: it writes each event as a
// structured log line.
type LogPublisher struct {
	Log zerolog.Logger
}

// CommissionPaid logs the payout event.
func (p LogPublisher) CommissionPaid(_ context.Context, ev CommissionPaidEvent) {
	p.Log.Info().
		Str("beneficiary_id", ev.BeneficiaryID).
		Str("event_id", ev.EventID).
		Int("level", ev.Level).
		Str("amount", ev.Amount.StringFixed(2)).
		Msg("commission paid")
}

// LevelAdvanced logs the advancement event.
func (p LogPublisher) LevelAdvanced(_ context.Context, ev LevelAdvancedEvent) {
	p.Log.Info().
		Str("member_id", ev.MemberID).
		Int("new_level", ev.NewLevel).
		Str("level_name", ev.Name).
		Msg("level advanced")
}
