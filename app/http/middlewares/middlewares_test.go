package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func get(r *gin.Engine, path string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInternalToken(t *testing.T) {
	r := newEngine(InternalToken("secret"))
	assert.Equal(t, http.StatusUnauthorized, get(r, "/ping").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/ping", InternalTokenHeader, "nope").Code)
	assert.Equal(t, http.StatusOK, get(r, "/ping", InternalTokenHeader, "secret").Code)

	// 未配置令牌时全部拒绝
	r = newEngine(InternalToken(""))
	assert.Equal(t, http.StatusUnauthorized, get(r, "/ping", InternalTokenHeader, "").Code)
}

func TestLimitPerRouteLocal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	limited := LimitPerRoute("1-H", nil)
	r.GET("/limited", limited, func(c *gin.Context) { c.Status(http.StatusOK) })

	allowed := 0
	for i := 0; i < DefaultBurst+5; i++ {
		if get(r, "/limited").Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, DefaultBurst, allowed)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/limited").Code)
}

func TestLimitIgnoresInvalidFormat(t *testing.T) {
	r := newEngine(LimitIP("lots"))
	assert.Equal(t, http.StatusOK, get(r, "/ping").Code)
}

func TestSecurityHeadersAndCors(t *testing.T) {
	r := newEngine(SecurityHeaders(), Cors())
	w := get(r, "/ping")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	req := httptest.NewRequest("OPTIONS", "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecovery(t *testing.T) {
	r := newEngine(Logger(), Recovery())
	w := get(r, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}
