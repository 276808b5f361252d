package middleware

import (
	"crypto/subtle"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loyalty-hub/internal/api/response"
)

// InternalTokenAuth guards the operator endpoints (/internal/metrics and
// /internal/logs). Loopback callers such as the container healthcheck pass
// without a token; everyone else presents X-Internal-Token or a bearer token.
// An empty configured token locks the group for remote callers.
func InternalTokenAuth(token string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	expected := []byte(strings.TrimSpace(token))

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if isLoopbackClient(clientIP) {
			c.Next()
			return
		}

		provided := internalTokenFromRequest(c.Request)
		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			logger.Warn("internal endpoint denied",
				zap.String("path", c.FullPath()),
				zap.String("client_ip", clientIP),
				zap.Bool("token_present", provided != ""),
			)
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		c.Next()
	}
}

func internalTokenFromRequest(req *http.Request) string {
	if provided := strings.TrimSpace(req.Header.Get("X-Internal-Token")); provided != "" {
		return provided
	}
	return bearerTokenFromRequest(req.Header.Get("Authorization"))
}

func bearerTokenFromRequest(header string) string {
	scheme, value, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func isLoopbackClient(clientIP string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	return err == nil && addr.IsLoopback()
}
