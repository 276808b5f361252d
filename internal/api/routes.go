package api

import (
	"crypto/rsa"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loyalty-hub/internal/api/middleware"
	"loyalty-hub/internal/api/response"
	v1 "loyalty-hub/internal/api/v1"
	systemlog "loyalty-hub/pkg/logger"
)

const maxAnomalyEntries = 500

type Services struct {
	Visits      v1.VisitWorkflow
	Redemptions v1.RedemptionWorkflow
	Ledger      v1.LedgerReader
	Tiers       v1.TierReader
}

// RegisterV1Routes mounts the authenticated /api/v1 surface.
func RegisterV1Routes(
	router gin.IRouter,
	publicKey *rsa.PublicKey,
	services Services,
	redeemLimit v1.RedeemLimit,
) {
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.JWTAuth(publicKey))

	v1.RegisterVisitRoutes(apiV1, services.Visits)
	v1.RegisterRedemptionRoutes(apiV1, services.Redemptions, redeemLimit)
	v1.RegisterLedgerRoutes(apiV1, services.Ledger, services.Tiers)
}

// RegisterInternalRoutes mounts operator endpoints behind the internal token.
func RegisterInternalRoutes(router gin.IRouter, internalToken string, anomalies *systemlog.AnomalyLog, logger *zap.Logger) {
	internal := router.Group("/internal")
	internal.Use(middleware.InternalTokenAuth(internalToken, logger))
	internal.GET("/metrics", gin.WrapH(promhttp.Handler()))
	internal.GET("/logs", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit <= 0 || limit > maxAnomalyEntries {
			limit = 100
		}
		response.Success(c, anomalies.Recent(limit))
	})
}
