// Commission HTTP handlers.
//
// This file exposes REST endpoints for commission records:
//   - GET  /members/{id}/commissions     (history, paginated, ETag support)
//   - POST /commissions/mark-paid        (batch payout transition)
//   - POST /commissions/{id}/void        (cancel a pending record)
//   - POST /commissions/{id}/reverse     (compensate a paid record)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
	"github.com/avasiliou/go-mlm-backend/internal/services"
)

//
// DTOs
//

// MarkPaidRequest is the JSON payload for the batch payout transition.
type MarkPaidRequest struct {
	// IDs lists the commission record ids to transition from pending to paid.
	IDs []string `json:"ids" binding:"required,min=1"`
}

// MarkPaidResponse reports how many records actually transitioned.
type MarkPaidResponse struct {
	Updated int `json:"updated"`
}

// VoidCommissionRequest is the JSON payload for voiding a pending record.
type VoidCommissionRequest struct {
	// Reason is stored on the record for audit purposes.
	Reason string `json:"reason" binding:"required,min=1,max=255" example:"order refunded before payout"`
}

// ReverseCommissionRequest is the JSON payload for reversing a paid record.
type ReverseCommissionRequest struct {
	// Reason is stored on the compensating record for audit purposes.
	Reason string `json:"reason" binding:"required,min=1,max=255" example:"chargeback received"`
}

// CommissionHistoryResponse wraps a page of commission records and
// pagination information.
type CommissionHistoryResponse struct {
	Commissions []domain.CommissionRecord `json:"commissions"`
	Pagination  Pagination                `json:"pagination"`
}

//
// Handlers
//

// CommissionHistory godoc
// @ID          commissionHistory
// @Summary     List a member's commissions (paginated)
// @Description Returns a page of the member's commission records, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Commissions
// @Produce     json
//
// @Param       id             path    string  true   "Member ID (UUID)"            format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false  "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.CommissionHistoryResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members/{id}/commissions [get]
func (h *Handlers) CommissionHistory(c *gin.Context) {
	ctx := c.Request.Context()
	id, valid := memberParam(c)
	if !valid {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, isConcrete := h.commSvc.(*services.CommissionService); isConcrete {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.CommissionStats(ctx, db, id)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"commissions:%s:%d:%d"`, id, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.commSvc.History(ctx, id, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := CommissionHistoryResponse{
		Commissions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// MarkCommissionsPaid godoc
// @ID          markCommissionsPaid
// @Summary     Mark commissions as paid
// @Description Transitions the listed pending records to paid in one transaction. Records already paid or voided are skipped; the response reports how many changed.
// @Tags        Commissions
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.MarkPaidRequest  true  "Record ids"
//
// @Success     200  {object}  handlers.MarkPaidResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /commissions/mark-paid [post]
func (h *Handlers) MarkCommissionsPaid(c *gin.Context) {
	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids required")
		return
	}
	for _, id := range req.IDs {
		if _, err := uuid.Parse(id); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids must be UUIDs")
			return
		}
	}

	updated, err := h.commSvc.MarkPaid(c.Request.Context(), req.IDs)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MarkPaidResponse{Updated: updated})
}

// VoidCommission godoc
// @ID          voidCommission
// @Summary     Void a pending commission
// @Description Cancels a pending record with a reason. Voiding an already-voided record is a no-op; paid records cannot be voided (reverse them instead).
// @Tags        Commissions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Commission record ID (UUID)"  format(uuid)
// @Param       body  body  handlers.VoidCommissionRequest  true  "Void reason"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Record already paid"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /commissions/{id}/void [post]
func (h *Handlers) VoidCommission(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "commission id must be a UUID")
		return
	}
	var req VoidCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reason required (1–255 chars)")
		return
	}

	if err := h.commSvc.Void(c.Request.Context(), id, strings.TrimSpace(req.Reason)); err != nil {
		switch {
		case errors.Is(err, services.ErrCommissionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "commission not found")
		case errors.Is(err, services.ErrVoidAfterPaid):
			fail(c, http.StatusConflict, ErrCodeAlreadyPaid, "paid commissions cannot be voided; use reverse")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// ReverseCommission godoc
// @ID          reverseCommission
// @Summary     Reverse a paid commission
// @Description Issues a compensating record negating a paid commission. Repeating the call returns the existing reversal rather than creating a second one.
// @Tags        Commissions
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Commission record ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ReverseCommissionRequest  true  "Reversal reason"
//
// @Success     201  {object}  domain.CommissionRecord
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Record not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Record not reversible"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /commissions/{id}/reverse [post]
func (h *Handlers) ReverseCommission(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "commission id must be a UUID")
		return
	}
	var req ReverseCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reason required (1–255 chars)")
		return
	}

	rec, err := h.commSvc.Reverse(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCommissionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "commission not found")
		case errors.Is(err, services.ErrNotReversible):
			fail(c, http.StatusConflict, ErrCodeNotReversible, "only paid commissions can be reversed")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, rec)
}
