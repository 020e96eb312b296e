// Package response 提供统一的 HTTP 响应处理

package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paygate/pkg/logger"
)

// 业务码，写在响应体的 code 字段
const (
	CodeSuccess         = 200
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeNotFound        = 404
	CodeTooManyRequests = 429
	CodeServerError     = 500
	CodeConflict        = 4001 // 状态冲突、不可取消
	CodeRiskBlocked     = 4003 // 风控拦截
)

/* 标准响应结构
{
    "code": 200,
    "message": "success",
    "data": {},     // 成功时返回的数据
    "error": "",    // 错误标识
}
*/

// Response 统一响应结构体
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HTTPStatus 业务码对应的 HTTP 状态码
func HTTPStatus(code int) int {
	switch code {
	case CodeConflict:
		return http.StatusConflict
	case CodeRiskBlocked:
		return http.StatusForbidden
	}
	if code >= 100 && code < 600 {
		return code
	}
	return http.StatusInternalServerError
}

// ------------------ 成功响应系列 ------------------

// Data 响应 200 和数据
func Data(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Success 响应 200，不带数据
func Success(c *gin.Context, msg ...string) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: getMsg("success", msg...),
	})
}

// JSON 直接返回 JSON 数据
func JSON(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

//  ------------------ 错误响应系列 ------------------

// Fail 按业务码响应错误，errorCode 为机器可读的错误标识
func Fail(c *gin.Context, code int, message, errorCode string) {
	c.AbortWithStatusJSON(HTTPStatus(code), Response{
		Code:    code,
		Message: message,
		Error:   errorCode,
	})
}

// Abort400 响应 400 错误
func Abort400(c *gin.Context, msg ...string) {
	Fail(c, CodeBadRequest, getMsg("请求参数错误", msg...), "BAD_REQUEST")
}

// Abort401 响应 401 错误
func Abort401(c *gin.Context, msg ...string) {
	Fail(c, CodeUnauthorized, getMsg("未授权", msg...), "UNAUTHORIZED")
}

// Abort404 响应 404 错误
func Abort404(c *gin.Context, msg ...string) {
	Fail(c, CodeNotFound, getMsg("资源不存在", msg...), "NOT_FOUND")
}

// Abort500 响应 500 错误
func Abort500(c *gin.Context, msg ...string) {
	Fail(c, CodeServerError, getMsg("服务器内部错误", msg...), "INTERNAL_ERROR")
}

// TooManyRequests 响应 429
func TooManyRequests(c *gin.Context) {
	Fail(c, CodeTooManyRequests, "请求太频繁，请稍后再试", "TOO_MANY_REQUESTS")
}

// BadRequest 响应 400 错误（带错误信息）
func BadRequest(c *gin.Context, err error, msg ...string) {
	logger.LogWarnIf(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Code:    CodeBadRequest,
		Message: getMsg("请求格式错误", msg...),
		Error:   err.Error(),
	})
}

// ServerError 响应 500 错误，错误详情只写日志
func ServerError(c *gin.Context, err error, msg ...string) {
	logger.LogIf(err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Code:    CodeServerError,
		Message: getMsg("服务器内部错误", msg...),
		Error:   "INTERNAL_ERROR",
	})
}

// ValidationError 响应 400 表单验证错误
func ValidationError(c *gin.Context, errors map[string][]string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Code:    CodeBadRequest,
		Message: "表单验证失败",
		Data:    errors,
		Error:   "VALIDATION_FAILED",
	})
}

// getMsg 获取消息内容
func getMsg(defaultMsg string, msg ...string) string {
	if len(msg) > 0 {
		return msg[0]
	}
	return defaultMsg
}
