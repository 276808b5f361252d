package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/model"
	"loyalty-hub/internal/service"
)

// LedgerReader is implemented by service.LedgerService.
type LedgerReader interface {
	BalanceOf(ctx context.Context, userID, storeID string) (int64, error)
	History(ctx context.Context, userID, storeID string, page, pageSize int) ([]*model.LedgerTransaction, error)
}

// TierReader is implemented by service.ReportService.
type TierReader interface {
	StoreTier(ctx context.Context, storeID string) (*service.StoreTierReport, error)
}

type LedgerHandler struct {
	ledger LedgerReader
	tiers  TierReader
}

func NewLedgerHandler(ledger LedgerReader, tiers TierReader) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, tiers: tiers}
}

func RegisterLedgerRoutes(group *gin.RouterGroup, ledger LedgerReader, tiers TierReader) {
	handler := NewLedgerHandler(ledger, tiers)
	if ledger != nil {
		group.GET("/stores/:store_id/balance", handler.Balance)
		group.GET("/stores/:store_id/ledger", handler.History)
	}
	if tiers != nil {
		group.GET("/stores/:store_id/tier", middleware.RequireStoreStaff(), handler.Tier)
	}
}

// Balance
// @Summary Current points balance of the caller at a store
// @Tags ledger
// @Produce json
// @Param store_id path string true "Store ID"
// @Success 200 {object} response.Response
// @Router /api/v1/stores/{store_id}/balance [get]
func (h *LedgerHandler) Balance(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	storeID := c.Param("store_id")
	balance, err := h.ledger.BalanceOf(c.Request.Context(), claims.UserID, storeID)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"store_id": storeID,
		"balance":  balance,
	})
}

func (h *LedgerHandler) History(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
		return
	}

	page := parseIntOrDefault(c.Query("page"), 1)
	pageSize := parseIntOrDefault(c.Query("page_size"), 20)

	items, err := h.ledger.History(c.Request.Context(), claims.UserID, c.Param("store_id"), page, pageSize)
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, gin.H{
		"items":     items,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *LedgerHandler) Tier(c *gin.Context) {
	report, err := h.tiers.StoreTier(c.Request.Context(), c.Param("store_id"))
	if err != nil {
		handleLoyaltyServiceError(c, err)
		return
	}

	response.Success(c, report)
}
