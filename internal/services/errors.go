// Package services defines the business logic of the commission engine:
// network materialization, volume roll-up, commission distribution,
// qualification, and the idempotency coordinator. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrMemberNotFound indicates that the referenced member does not exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrBrokenChain is returned by strict edge materialization when the
	// referrer cannot be resolved. Registration treats it as a policy
	// decision (rootless member), not a hard failure.
	ErrBrokenChain = errors.New("referrer does not exist")

	// ErrDuplicateEvent is returned when commissions for a qualifying event
	// already exist; the whole distribution rolls back.
	ErrDuplicateEvent = errors.New("qualifying event already distributed")

	// ErrUnknownEventType is returned when no rate table exists for the
	// event type.
	ErrUnknownEventType = errors.New("unknown qualifying event type")

	// ErrInvalidAmount is returned when a qualifying event carries a
	// non-positive base amount.
	ErrInvalidAmount = errors.New("base amount must be positive")

	// ErrVoidAfterPaid is returned when a caller tries to void a record that
	// was already paid; paid records require the compensating reversal path.
	ErrVoidAfterPaid = errors.New("record already paid; use reversal")

	// ErrCommissionNotFound indicates the referenced commission record does
	// not exist.
	ErrCommissionNotFound = errors.New("commission record not found")

	// ErrNotReversible is returned when a reversal is requested for a record
	// that is not in the paid state.
	ErrNotReversible = errors.New("only paid records can be reversed")

	// ErrConcurrentOperation signals that another worker currently holds the
	// idempotency lock for the same logical operation. Callers should treat
	// it as "already being processed", not as a hard error.
	ErrConcurrentOperation = errors.New("operation already in progress")
)
