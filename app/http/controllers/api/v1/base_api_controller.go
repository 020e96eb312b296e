// Package v1 处理业务逻辑, v1 版本的 API 控制器
package v1

import (
	"errors"

	"github.com/gin-gonic/gin"

	"paygate/app/requests"
	"paygate/pkg/payment"
	"paygate/pkg/reconcile"
	"paygate/pkg/response"
	"paygate/pkg/risk"
)

// RespondError 将业务错误映射为响应码
func RespondError(c *gin.Context, err error) {
	var validation requests.ValidationError
	var blocked *risk.BlockedError

	switch {
	case errors.As(err, &validation):
		response.ValidationError(c, validation.Errors)
	case errors.As(err, &blocked):
		response.Fail(c, response.CodeRiskBlocked, "交易被风控拦截", "RISK_CONTROL_BLOCKED")
	case errors.Is(err, payment.ErrValidation):
		response.Fail(c, response.CodeBadRequest, err.Error(), "VALIDATION_FAILED")
	case errors.Is(err, payment.ErrNotFound), errors.Is(err, reconcile.ErrNotFound):
		response.Fail(c, response.CodeNotFound, "支付记录不存在", "PAYMENT_NOT_FOUND")
	case errors.Is(err, reconcile.ErrInvalidSignature), errors.Is(err, payment.ErrInvalidSignature):
		response.Fail(c, response.CodeUnauthorized, "签名验证失败", "INVALID_SIGNATURE")
	case errors.Is(err, payment.ErrNotCancelable):
		response.Fail(c, response.CodeConflict, err.Error(), "CANNOT_CANCEL")
	case errors.Is(err, payment.ErrRetryExhausted):
		response.Fail(c, response.CodeConflict, err.Error(), "RETRY_EXHAUSTED")
	case errors.Is(err, payment.ErrStateConflict):
		response.Fail(c, response.CodeConflict, err.Error(), "STATE_CONFLICT")
	default:
		response.ServerError(c, err)
	}
}

// RespondBindError 请求体无法解析或校验失败
func RespondBindError(c *gin.Context, err error) {
	var validation requests.ValidationError
	if errors.As(err, &validation) {
		response.ValidationError(c, validation.Errors)
		return
	}
	response.BadRequest(c, err, "无效的请求格式")
}
