package v1

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"loyalty-hub/internal/api/middleware"
	jwtutil "loyalty-hub/pkg/jwt"
)

type apiResponse struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Retryable bool            `json:"retryable"`
}

type testRouter struct {
	engine *gin.Engine
	key    *rsa.PrivateKey
}

type routeOptions struct {
	visits      VisitWorkflow
	redemptions RedemptionWorkflow
	ledger      LedgerReader
	tiers       TierReader
	limit       RedeemLimit
}

func newTestRouter(t *testing.T, opts routeOptions) *testRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	router := gin.New()
	group := router.Group("/api/v1")
	group.Use(middleware.JWTAuth(&key.PublicKey))
	RegisterVisitRoutes(group, opts.visits)
	RegisterRedemptionRoutes(group, opts.redemptions, opts.limit)
	RegisterLedgerRoutes(group, opts.ledger, opts.tiers)

	return &testRouter{engine: router, key: key}
}

func (r *testRouter) token(t *testing.T, userID, role, storeID string) string {
	t.Helper()

	token, err := jwtutil.GenerateAccessToken(jwtutil.NewClaims(userID, role, storeID, time.Hour), r.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func performJSONRequest(
	t *testing.T,
	router http.Handler,
	method string,
	path string,
	payload map[string]any,
	token string,
) *httptest.ResponseRecorder {
	t.Helper()

	var bodyBytes []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		bodyBytes = raw
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeAPIResponse(t *testing.T, raw []byte) apiResponse {
	t.Helper()

	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return resp
}
