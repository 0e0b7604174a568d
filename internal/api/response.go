package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/omeyang/xtrack/pkg/business/xtracking"
)

// 错误码
const (
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeGenerationFailed  = "GENERATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorResponse 统一错误响应。
type ErrorResponse struct {
	ErrorCode string    `json:"errorCode"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AllocateResponse 分配成功的响应。
type AllocateResponse struct {
	TrackingNumber string    `json:"trackingNumber"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         string    `json:"status"`
}

func newAllocateResponse(r *xtracking.Record) AllocateResponse {
	return AllocateResponse{
		TrackingNumber: r.TrackingNumber,
		CreatedAt:      r.CreatedAt,
		Status:         "success",
	}
}

// abortWithError 记录原始错误供访问日志使用，并返回统一错误响应。
func abortWithError(c *gin.Context, status int, code string, err error, msg string) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		ErrorCode: code,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	})
}

func abortInvalid(c *gin.Context, err error) {
	abortWithError(c, http.StatusBadRequest, CodeInvalidParameters, err,
		"Invalid request parameters: "+err.Error())
}

// abortServiceError 把服务层错误映射为 HTTP 响应。基础设施错误不向客户端暴露细节。
func abortServiceError(c *gin.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, xtracking.ErrGenerationExhausted):
		abortWithError(c, http.StatusConflict, CodeGenerationFailed, err,
			"Unable to generate unique tracking number after multiple attempts")
	case errors.Is(err, xtracking.ErrNotFound):
		abortWithError(c, http.StatusNotFound, CodeNotFound, err, "Tracking number not found")
	case errors.Is(err, xtracking.ErrInvalidPage):
		abortWithError(c, http.StatusBadRequest, CodeInvalidParameters, err, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, CodeInternalError, err, internalMsg)
	}
}
