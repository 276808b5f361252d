package v1

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	inputsanitize "loyalty-hub/internal/api/sanitize"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
	jwtutil "loyalty-hub/pkg/jwt"
)

// VisitWorkflow is implemented by service.VisitService.
type VisitWorkflow interface {
	RequestVisit(ctx context.Context, userID, storeID string, method model.VisitMethod, spend decimal.Decimal) (*model.Visit, error)
	ApproveVisit(ctx context.Context, staffStoreID, visitID, approverID string, manualPoints *int64) (*service.ApprovalResult, error)
	RejectVisit(ctx context.Context, staffStoreID, visitID, approverID, reason string) (*model.Visit, error)
	ListPending(ctx context.Context, storeID string, page, pageSize int) ([]*model.Visit, error)
}

type VisitHandler struct {
	visits VisitWorkflow
}

type requestVisitRequest struct {
	Method string          `json:"method" binding:"required"`
	Spend  decimal.Decimal `json:"spend"`
}

type approveVisitRequest struct {
	Points *int64 `json:"points"`
}

type rejectVisitRequest struct {
	Reason string `json:"reason"`
}

func NewVisitHandler(visits VisitWorkflow) *VisitHandler {
	return &VisitHandler{visits: visits}
}

// RegisterVisitRoutes expects group to be authenticated already.
func RegisterVisitRoutes(group *gin.RouterGroup, visits VisitWorkflow) {
	if visits == nil {
		return
	}

	handler := NewVisitHandler(visits)
	group.POST("/stores/:store_id/visits", handler.Request)
	group.GET("/stores/:store_id/visits/pending", middleware.RequireStoreStaff(), handler.ListPending)

	staff := group.Group("/visits/:visit_id")
	staff.Use(middleware.RequireRole(jwtutil.RoleStaff, jwtutil.RoleAdmin))
	staff.POST("/approve", handler.Approve)
	staff.POST("/reject", handler.Reject)
}

// Request
// @Summary Request a visit
// @Tags visit
// @Accept json
// @Produce json
// @Param store_id path string true "Store ID"
// @Success 201 {object} response.Response
// @Router /api/v1/stores/{store_id}/visits [post]
func (h *VisitHandler) Request(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	var req requestVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	method := model.VisitMethod(strings.ToLower(inputsanitize.Text(req.Method)))
	visit, err := h.visits.RequestVisit(c.Request.Context(), claims.UserID, c.Param("store_id"), method, req.Spend)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Created(c, visit)
}

func (h *VisitHandler) ListPending(c *gin.Context) {
	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 50)

	items, err := h.visits.ListPending(c.Request.Context(), c.Param("store_id"), page, pageSize)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, items)
}

// Approve
// @Summary Approve a pending visit and credit points
// @Tags visit
// @Accept json
// @Produce json
// @Param visit_id path string true "Visit ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/visits/{visit_id}/approve [post]
func (h *VisitHandler) Approve(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	var req approveVisitRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	scope, ok := staffScope(claims)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrNotAuthorizedForStore, "not authorized for store")
		return
	}

	result, err := h.visits.ApproveVisit(
		c.Request.Context(),
		scope,
		c.Param("visit_id"),
		claims.UserID,
		req.Points,
	)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, result)
}

func (h *VisitHandler) Reject(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	var req rejectVisitRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
		return
	}

	scope, ok := staffScope(claims)
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrNotAuthorizedForStore, "not authorized for store")
		return
	}

	visit, err := h.visits.RejectVisit(
		c.Request.Context(),
		scope,
		c.Param("visit_id"),
		claims.UserID,
		inputsanitize.Note(req.Reason),
	)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, visit)
}

// staffScope limits staff to their own store; admins act for any store.
// A staff token without a store has no scope at all.
func staffScope(claims *middleware.Claims) (string, bool) {
	if strings.EqualFold(claims.Role, jwtutil.RoleAdmin) {
		return "", true
	}
	storeID := strings.TrimSpace(claims.StoreID)
	return storeID, storeID != ""
}

// bindOptionalJSON accepts an absent body, including chunked requests that
// carry no content length.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
