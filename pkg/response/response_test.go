package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusConflict, HTTPStatus(CodeConflict))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(CodeRiskBlocked))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(CodeNotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(CodeTooManyRequests))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(42))
}

func record(handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)
	handler(c)

	var body Response
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestEnvelope(t *testing.T) {
	w, body := record(func(c *gin.Context) { Data(c, gin.H{"id": 1}) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeSuccess, body.Code)
	assert.Equal(t, "success", body.Message)
	assert.Empty(t, body.Error)

	w, body = record(func(c *gin.Context) { Fail(c, CodeRiskBlocked, "blocked", "RISK_CONTROL_BLOCKED") })
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, CodeRiskBlocked, body.Code)
	assert.Equal(t, "RISK_CONTROL_BLOCKED", body.Error)
	assert.Nil(t, body.Data)

	w, body = record(func(c *gin.Context) { Fail(c, CodeConflict, "busy", "STATE_CONFLICT") })
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeConflict, body.Code)

	w, body = record(func(c *gin.Context) { ServerError(c, errors.New("db exploded")) })
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", body.Error)
	assert.NotContains(t, w.Body.String(), "db exploded")

	w, body = record(func(c *gin.Context) { ValidationError(c, map[string][]string{"amount": {"金额不能为空"}}) })
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", body.Error)
	require.IsType(t, map[string]interface{}{}, body.Data)
	assert.Contains(t, body.Data.(map[string]interface{}), "amount")

	_, body = record(func(c *gin.Context) { Abort404(c) })
	assert.Equal(t, "资源不存在", body.Message)
	_, body = record(func(c *gin.Context) { Abort401(c, "内部令牌无效") })
	assert.Equal(t, "内部令牌无效", body.Message)
}
