package response

import "github.com/gin-gonic/gin"

const (
	CodeSuccess = 0
)

const (
	ErrUnauthorized          = 10001
	ErrTokenExpired          = 10002
	ErrForbidden             = 10003
	ErrNotAuthorizedForStore = 10004
	ErrInvalidInput          = 10005
	ErrTooManyRequests       = 10006
)

const (
	ErrStoreNotFound       = 20001
	ErrNotConnectedToStore = 20002
)

const (
	ErrVisitNotFound   = 30001
	ErrVisitNotPending = 30002
)

const (
	ErrInsufficientPoints  = 40001
	ErrInsufficientBalance = 40002
)

const (
	ErrCodeNotFound       = 50001
	ErrCodeUsed           = 50002
	ErrCodeSpaceExhausted = 50003
)

const (
	ErrConcurrencyConflict = 90001
	ErrInternal            = 99999
)

type Response struct {
	Code       int         `json:"code"`
	Message    string      `json:"message"`
	Retryable  bool        `json:"retryable,omitempty"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

func Success(c *gin.Context, data any) {
	c.JSON(200, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(201, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Paginated(c *gin.Context, data any, page, pageSize int, total int64) {
	c.JSON(200, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
		Pagination: &Pagination{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

func Fail(c *gin.Context, httpStatus, appCode int, message string) {
	c.JSON(httpStatus, Response{
		Code:    appCode,
		Message: message,
	})
}

// FailRetryable marks a failure that left no side effects, so the caller
// may replay the whole request.
func FailRetryable(c *gin.Context, httpStatus, appCode int, message string) {
	c.JSON(httpStatus, Response{
		Code:      appCode,
		Message:   message,
		Retryable: true,
	})
}
