package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"loyalty-hub/internal/api/response"
	"loyalty-hub/internal/service"
)

func handleLoyaltyServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidPolicy):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidInput, "invalid request")
	case errors.Is(err, service.ErrStoreNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrStoreNotFound, "store not found")
	case errors.Is(err, service.ErrVisitNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrVisitNotFound, "visit not found")
	case errors.Is(err, service.ErrCodeNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrCodeNotFound, "code not found")
	case errors.Is(err, service.ErrVisitNotPending):
		response.Fail(c, http.StatusConflict, response.ErrVisitNotPending, "visit is not pending")
	case errors.Is(err, service.ErrAlreadyUsed):
		response.Fail(c, http.StatusConflict, response.ErrCodeUsed, "code already used")
	case errors.Is(err, service.ErrInsufficientPoints):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInsufficientPoints, "insufficient points")
	case errors.Is(err, service.ErrInsufficientBalance):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrInsufficientBalance, "insufficient balance")
	case errors.Is(err, service.ErrNotConnectedToStore):
		response.Fail(c, http.StatusForbidden, response.ErrNotConnectedToStore, "not connected to store")
	case errors.Is(err, service.ErrNotAuthorizedForStore):
		response.Fail(c, http.StatusForbidden, response.ErrNotAuthorizedForStore, "not authorized for store")
	case errors.Is(err, service.ErrCodeSpaceExhausted):
		response.FailRetryable(c, http.StatusConflict, response.ErrCodeSpaceExhausted, "could not allocate redemption code")
	case service.IsRetryable(err):
		response.FailRetryable(c, http.StatusConflict, response.ErrConcurrencyConflict, "concurrent update, retry")
	default:
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal, "internal error")
	}
}

func parseIntOrDefault(raw string, def int) int {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return def
	}
	return value
}
