package v1

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/model"
	jwtutil "loyalty-hub/pkg/jwt"
)

// RedemptionWorkflow is implemented by service.RedemptionService.
type RedemptionWorkflow interface {
	RedeemPoints(ctx context.Context, userID, storeID string) (*model.Redemption, error)
	MarkUsed(ctx context.Context, storeID, code, staffID string) (*model.Redemption, error)
	Verify(ctx context.Context, storeID, code string) (*model.Redemption, error)
	ListByUser(ctx context.Context, userID string, storeID *string, page, pageSize int) ([]*model.Redemption, int64, error)
}

// RedeemLimit throttles manual redemptions per user.
type RedeemLimit struct {
	Limiter   middleware.Limiter
	PerMinute int
	Logger    *zap.Logger
}

type RedemptionHandler struct {
	redemptions RedemptionWorkflow
}

type redemptionView struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	Code          string    `json:"code"`
	RewardValue   string    `json:"reward_value"`
	PointsUsed    int64     `json:"points_used"`
	AutoTriggered bool      `json:"auto_triggered"`
	Used          bool      `json:"used"`
	CreatedAt     time.Time `json:"created_at"`
}

func NewRedemptionHandler(redemptions RedemptionWorkflow) *RedemptionHandler {
	return &RedemptionHandler{redemptions: redemptions}
}

func RegisterRedemptionRoutes(group *gin.RouterGroup, redemptions RedemptionWorkflow, limit RedeemLimit) {
	if redemptions == nil {
		return
	}

	handler := NewRedemptionHandler(redemptions)
	group.GET("/redemptions", handler.ListMine)
	group.POST(
		"/stores/:store_id/redemptions",
		middleware.RequireRole(jwtutil.RoleCustomer),
		middleware.RateLimit(limit.Limiter, "redeem", "user_id", limit.PerMinute, time.Minute, limit.Logger),
		handler.Redeem,
	)

	staff := group.Group("/stores/:store_id/redemptions/:code")
	staff.Use(middleware.RequireStoreStaff())
	staff.GET("", handler.Verify)
	staff.POST("/use", handler.Use)
}

// Redeem
// @Summary Convert the caller's balance into a redemption code
// @Tags redemption
// @Produce json
// @Param store_id path string true "Store ID"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/stores/{store_id}/redemptions [post]
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	redemption, err := h.redemptions.RedeemPoints(c.Request.Context(), claims.UserID, c.Param("store_id"))
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Created(c, toRedemptionView(redemption))
}

// Use
// @Summary Consume a redemption code at the store counter
// @Tags redemption
// @Produce json
// @Param store_id path string true "Store ID"
// @Param code path string true "Redemption code"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/stores/{store_id}/redemptions/{code}/use [post]
func (h *RedemptionHandler) Use(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	redemption, err := h.redemptions.MarkUsed(
		c.Request.Context(),
		c.Param("store_id"),
		strings.TrimSpace(c.Param("code")),
		claims.UserID,
	)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, toRedemptionView(redemption))
}

func (h *RedemptionHandler) Verify(c *gin.Context) {
	redemption, err := h.redemptions.Verify(c.Request.Context(), c.Param("store_id"), strings.TrimSpace(c.Param("code")))
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, toRedemptionView(redemption))
}

func (h *RedemptionHandler) ListMine(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 20)

	var storeID *string
	if raw := strings.TrimSpace(c.Query("store_id")); raw != "" {
		storeID = &raw
	}

	items, total, err := h.redemptions.ListByUser(c.Request.Context(), claims.UserID, storeID, page, pageSize)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	views := make([]redemptionView, 0, len(items))
	for _, item := range items {
		views = append(views, toRedemptionView(item))
	}
	response.Paginated(c, views, page, pageSize, total)
}

func toRedemptionView(r *model.Redemption) redemptionView {
	if r == nil {
		return redemptionView{}
	}
	return redemptionView{
		ID:            r.ID.String(),
		StoreID:       r.StoreID.String(),
		Code:          r.Code,
		RewardValue:   r.RewardValue.StringFixed(2),
		PointsUsed:    r.PointsUsed,
		AutoTriggered: r.AutoTriggered,
		Used:          r.Used,
		CreatedAt:     r.CreatedAt,
	}
}
