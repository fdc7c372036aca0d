// Qualifying event HTTP handlers.
//
// This file exposes the ingestion endpoint for qualifying events:
//   - POST /events
//
// Ingestion is idempotent: retries of the same event within the dedupe
// window return the original distribution (HTTP 200) instead of creating
// duplicate commissions (HTTP 201 on first processing). Concurrent
// duplicates are rejected with HTTP 409 so the client can retry once the
// in-flight attempt settles.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avasiliou/go-mlm-backend/internal/http/middleware"
	"github.com/avasiliou/go-mlm-backend/internal/services"
)

// IngestEventRequest is the JSON payload for a qualifying event.
type IngestEventRequest struct {
	// SourceMemberID is the purchasing/subscribing member.
	SourceMemberID string `json:"source_member_id" binding:"required" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// EventID is the caller's stable identifier for this event.
	EventID string `json:"event_id" binding:"required" example:"ord-2026-000451"`
	// EventType is "subscription" or "purchase".
	EventType string `json:"event_type" binding:"required" example:"subscription"`
	// BaseAmount is the commissionable amount as a decimal string.
	BaseAmount decimal.Decimal `json:"base_amount" example:"1000.00"`
	// OccurredAt optionally timestamps the event; defaults to now (UTC).
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// IngestEvent godoc
// @ID          ingestEvent
// @Summary     Ingest a qualifying event
// @Description Distributes commissions across the source member's upline, rolls volume up, awards points, and advances the member if eligible. Safe to retry: replays return the original result.
// @Tags        Events
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Client idempotency key (optional; deduplication is also derived server-side)"
// @Param       body             body    handlers.IngestEventRequest  true  "Event payload"
//
// @Success     201  {object}  services.DistributionResult  "Processed"
// @Success     200  {object}  services.DistributionResult  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Source member not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent attempt in flight"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /events [post]
func (h *Handlers) IngestEvent(c *gin.Context) {
	var req IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if _, err := uuid.Parse(req.SourceMemberID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "source_member_id must be a UUID")
		return
	}

	ev := services.QualifyingEvent{
		SourceMemberID: req.SourceMemberID,
		EventID:        req.EventID,
		EventType:      req.EventType,
		BaseAmount:     req.BaseAmount,
	}
	if req.OccurredAt != nil {
		ev.OccurredAt = req.OccurredAt.UTC()
	}

	res, err := h.events.Process(c.Request.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidAmount):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "base_amount must be positive")
		case errors.Is(err, services.ErrUnknownEventType):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "event_type must be subscription or purchase")
		case errors.Is(err, services.ErrMemberNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "source member not found")
		case errors.Is(err, services.ErrConcurrentOperation):
			fail(c, http.StatusConflict, ErrCodeAlreadyProcessing, "a concurrent attempt for this event is in flight")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDistributeFailed, err.Error())
		}
		return
	}

	middleware.ObserveCommissionEvent(req.EventType, res.Replayed)

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	ok(c, status, res)
}
