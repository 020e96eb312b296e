package bootstrap

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"paygate/app/http/middlewares"
	"paygate/pkg/response"
	"paygate/routes"
)

// SetupRoute 路由初始化
func SetupRoute(router *gin.Engine, ctl routes.Controllers) {
	// 注册全局中间件
	registerGlobalMiddleWare(router)

	// 注册 API 路由
	routes.RegisterAPIRoutes(router, ctl)

	// 配置 404 路由处理器
	setup404Handler(router)
}

// registerGlobalMiddleWare 注册全局中间件
func registerGlobalMiddleWare(router *gin.Engine) {
	router.Use(
		middlewares.Logger(),
		middlewares.Recovery(),
	)
}

// setup404Handler 根据 Accept 头返回文本或 JSON 格式的 404
func setup404Handler(router *gin.Engine) {
	router.NoRoute(func(c *gin.Context) {
		acceptString := c.Request.Header.Get("Accept")
		if strings.Contains(acceptString, "text/html") {
			c.String(http.StatusNotFound, "页面返回 404")
			return
		}
		response.Fail(c, response.CodeNotFound, "路由未定义，请确认 url 和请求方法是否正确。", "ROUTE_NOT_FOUND")
	})
}
