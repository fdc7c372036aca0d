// Member HTTP handlers.
//
// This file exposes REST endpoints for member resources:
//   - POST   /members                    (register)
//   - DELETE /members/{id}               (terminate)
//   - GET    /members/{id}/ancestors     (upline chain)
//   - GET    /members/{id}/descendants   (downline, bounded depth)
//   - GET    /members/{id}/volume        (monthly volume summary)
//   - GET    /members/{id}/qualification (ladder evaluation)
//   - POST   /members/{id}/advance       (explicit advancement trigger)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avasiliou/go-mlm-backend/internal/domain"
	"github.com/avasiliou/go-mlm-backend/internal/repo"
	"github.com/avasiliou/go-mlm-backend/internal/services"
	"github.com/avasiliou/go-mlm-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// NetworkService defines the network graph operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type NetworkService interface {
	// Register creates a member, resolving an optional sponsor by id or
	// referral code, and materializes the member's upline edges.
	Register(ctx context.Context, referrerID, referralCode string) (*domain.Member, error)
	// Ancestors returns the member's upline ordered by level ascending.
	Ancestors(ctx context.Context, memberID string) ([]repo.AncestorRef, error)
	// Descendants returns downline member ids within maxLevel levels.
	Descendants(ctx context.Context, memberID string, maxLevel int) ([]string, error)
	// Terminate soft-deactivates a member; edges are retained.
	Terminate(ctx context.Context, memberID string) error
}

// VolumeService defines volume reads consumed by HTTP handlers.
type VolumeService interface {
	// MonthlySummary returns the member's bucket for (year, month),
	// zero-valued when no volume was recorded.
	MonthlySummary(ctx context.Context, memberID string, year, month int) (*domain.VolumeBucket, error)
}

// QualificationService defines ladder evaluation operations consumed by
// HTTP handlers.
type QualificationService interface {
	// Evaluate computes the member's current standing without mutating it.
	Evaluate(ctx context.Context, memberID string) (*services.Evaluation, error)
	// Advance promotes the member while they remain eligible, then returns
	// the resulting standing.
	Advance(ctx context.Context, memberID string) (*services.Evaluation, error)
}

// CommissionService defines commission lifecycle operations consumed by
// HTTP handlers.
type CommissionService interface {
	// History returns a page of the member's commission records plus total.
	History(ctx context.Context, memberID string, page, pageSize int) ([]domain.CommissionRecord, int64, error)
	// MarkPaid transitions pending records to paid; returns how many changed.
	MarkPaid(ctx context.Context, ids []string) (int, error)
	// Void cancels a pending record.
	Void(ctx context.Context, id, reason string) error
	// Reverse issues a compensating record for a paid commission.
	Reverse(ctx context.Context, id, reason string) (*domain.CommissionRecord, error)
}

// EventProcessor defines qualifying event ingestion consumed by HTTP
// handlers.
type EventProcessor interface {
	// Process handles one event exactly once per dedupe window.
	Process(ctx context.Context, ev services.QualifyingEvent) (*services.DistributionResult, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for members, events, and commissions.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	netSvc  NetworkService
	volSvc  VolumeService
	qualSvc QualificationService
	commSvc CommissionService
	events  EventProcessor
}

// New constructs and returns a Handlers instance bound to the given services.
func New(netSvc NetworkService, volSvc VolumeService, qualSvc QualificationService, commSvc CommissionService, events EventProcessor) *Handlers {
	return &Handlers{netSvc: netSvc, volSvc: volSvc, qualSvc: qualSvc, commSvc: commSvc, events: events}
}

//
// DTOs
//

// RegisterMemberRequest is the JSON payload for registering a member.
type RegisterMemberRequest struct {
	// ReferrerID optionally names the sponsor by member id.
	ReferrerID string `json:"referrer_id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	// ReferralCode optionally names the sponsor by referral code.
	ReferralCode string `json:"referral_code,omitempty" example:"MBR-K7KQ2M"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// AncestorsResponse wraps the upline chain of one member.
type AncestorsResponse struct {
	MemberID  string             `json:"member_id"`
	Ancestors []repo.AncestorRef `json:"ancestors"`
}

// DescendantsResponse wraps the downline member ids of one member.
type DescendantsResponse struct {
	MemberID    string   `json:"member_id"`
	MaxLevel    int      `json:"max_level"`
	Descendants []string `json:"descendants"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampRange(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// memberParam validates the :id path parameter as a UUID, failing the request
// with 400 when malformed. The second return value reports validity.
func memberParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "member id must be a UUID")
		return "", false
	}
	return id, true
}

//
// Handlers
//

// RegisterMember godoc
// @ID          registerMember
// @Summary     Register a new member
// @Description Creates a member, optionally placed under a sponsor, and materializes the upline.
// @Tags        Members
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterMemberRequest  true  "Registration payload"
//
// @Success     201  {object}  domain.Member
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members [post]
func (h *Handlers) RegisterMember(c *gin.Context) {
	var req RegisterMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	refID := strings.TrimSpace(req.ReferrerID)
	if refID != "" {
		if _, err := uuid.Parse(refID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "referrer_id must be a UUID")
			return
		}
	}

	m, err := h.netSvc.Register(c.Request.Context(), refID, strings.TrimSpace(req.ReferralCode))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeRegisterFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, m)
}

// TerminateMember godoc
// @ID          terminateMember
// @Summary     Terminate a member
// @Description Soft-deactivates a member. Network edges are retained and future commissions skip this beneficiary.
// @Tags        Members
// @Produce     json
//
// @Param       id  path  string  true  "Member ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Member not found"
// @Router      /members/{id} [delete]
func (h *Handlers) TerminateMember(c *gin.Context) {
	id, valid := memberParam(c)
	if !valid {
		return
	}
	if err := h.netSvc.Terminate(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "member not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// ListAncestors godoc
// @ID          listAncestors
// @Summary     List a member's upline
// @Description Returns the member's ancestors ordered by level (1 = direct sponsor).
// @Tags        Members
// @Produce     json
//
// @Param       id  path  string  true  "Member ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.AncestorsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members/{id}/ancestors [get]
func (h *Handlers) ListAncestors(c *gin.Context) {
	id, valid := memberParam(c)
	if !valid {
		return
	}
	refs, err := h.netSvc.Ancestors(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, AncestorsResponse{MemberID: id, Ancestors: refs})
}

// ListDescendants godoc
// @ID          listDescendants
// @Summary     List a member's downline
// @Description Returns downline member ids within max_level levels (capped at the network depth).
// @Tags        Members
// @Produce     json
//
// @Param       id         path   string  true   "Member ID (UUID)"  format(uuid)
// @Param       max_level  query  int     false  "Depth bound"       minimum(1) maximum(7) default(7)
//
// @Success     200  {object}  handlers.DescendantsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members/{id}/descendants [get]
func (h *Handlers) ListDescendants(c *gin.Context) {
	id, valid := memberParam(c)
	if !valid {
		return
	}
	maxLevel := utils.AtoiDefault(c.Query("max_level"), services.DefaultNetworkDepth)
	if maxLevel < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "max_level must be >= 1")
		return
	}
	if maxLevel > services.DefaultNetworkDepth {
		maxLevel = services.DefaultNetworkDepth
	}
	ids, err := h.netSvc.Descendants(c.Request.Context(), id, maxLevel)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, DescendantsResponse{MemberID: id, MaxLevel: maxLevel, Descendants: ids})
}

// MonthlyVolume godoc
// @ID          monthlyVolume
// @Summary     Monthly volume summary
// @Description Returns the member's personal and team volume for a calendar month (defaults to current UTC month).
// @Tags        Members
// @Produce     json
//
// @Param       id     path   string  true   "Member ID (UUID)"  format(uuid)
// @Param       year   query  int     false  "Calendar year"     example(2026)
// @Param       month  query  int     false  "Calendar month"    minimum(1) maximum(12)
//
// @Success     200  {object}  domain.VolumeBucket
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Member not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members/{id}/volume [get]
func (h *Handlers) MonthlyVolume(c *gin.Context) {
	id, valid := memberParam(c)
	if !valid {
		return
	}
	now := time.Now().UTC()
	year := utils.AtoiDefault(c.Query("year"), now.Year())
	month := utils.AtoiDefault(c.Query("month"), int(now.Month()))
	if month < 1 || month > 12 || year < 1970 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "year/month out of range")
		return
	}

	bucket, err := h.volSvc.MonthlySummary(c.Request.Context(), id, year, month)
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "member not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, bucket)
}

// GetQualification godoc
// @ID          getQualification
// @Summary     Evaluate qualification standing
// @Description Returns the member's current level, next level (if any), progress, and eligibility. Read-only.
// @Tags        Members
// @Produce     json
//
// @Param       id  path  string  true  "Member ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.Evaluation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Member not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members/{id}/qualification [get]
func (h *Handlers) GetQualification(c *gin.Context) {
	id, valid := memberParam(c)
	if !valid {
		return
	}
	ev, err := h.qualSvc.Evaluate(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "member not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ev)
}

// AdvanceMember godoc
// @ID          advanceMember
// @Summary     Advance a member through the ladder
// @Description Promotes the member while they satisfy the next level's thresholds, then returns the resulting standing. Never demotes.
// @Tags        Members
// @Produce     json
//
// @Param       id  path  string  true  "Member ID (UUID)"  format(uuid)
//
// @Success     200  {object}  services.Evaluation
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Member not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /members/{id}/advance [post]
func (h *Handlers) AdvanceMember(c *gin.Context) {
	id, valid := memberParam(c)
	if !valid {
		return
	}
	ev, err := h.qualSvc.Advance(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrMemberNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "member not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ev)
}
