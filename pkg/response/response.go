package response

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"NPSEngine/pkg/errors"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func errorToHTTPStatus(err error) int {
	def, ok := err.(errors.Definition)
	if !ok {
		return http.StatusInternalServerError
	}

	// 根据错误码映射 HTTP 状态码
	switch def.Code {
	case "WEBHOOK_TOKEN_INVALID":
		return http.StatusUnauthorized // 401
	case "WEBHOOK_PAYLOAD_INVALID", "PHONE_TOO_SHORT",
		"WINDOW_MALFORMED", "INVALID_REPLY", "INVALID_TRANSITION":
		return http.StatusBadRequest // 400
	case "RATE_LIMITED":
		return http.StatusTooManyRequests // 429
	case "CAMPAIGN_NOT_FOUND", "CONVERSATION_NOT_FOUND":
		return http.StatusNotFound // 404
	case "CAMPAIGN_INACTIVE", "CAMPAIGN_WINDOW_CLOSED", "NUMBER_INCAPABLE":
		return http.StatusConflict // 409
	default:
		return http.StatusInternalServerError // 500
	}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := errorToHTTPStatus(err)

	var code, message string
	if def, ok := err.(errors.Definition); ok {
		code = def.Code
		message = def.Message
	} else {
		code = "INTERNAL_ERROR"
		message = err.Error()
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "INVALID_REQUEST",
			Message: err.Error(),
		},
	})
}

// Accepted 返回 202（webhook 入队成功）
func Accepted(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusAccepted)
}
