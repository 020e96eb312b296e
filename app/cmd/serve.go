package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	v1 "paygate/app/http/controllers/api/v1"
	"paygate/app/http/controllers/api/v1/admin"
	"paygate/app/http/controllers/api/v1/payment"
	"paygate/bootstrap"
	"paygate/pkg/config"
	"paygate/pkg/limiter"
	"paygate/pkg/logger"
	"paygate/pkg/redis"
	"paygate/routes"
)

// CmdServe 启动 Web 服务
var CmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	db := setup()
	if err := bootstrap.MigrateDB(); err != nil {
		return err
	}

	redisReady := bootstrap.SetupRedis()
	notification := bootstrap.SetupQueue(db, true)
	recorder := bootstrap.SetupFraudGraph()

	services, err := bootstrap.SetupPayment(context.Background(), db, notification.Notifier, recorder)
	if err != nil {
		return err
	}
	if services.Sweeper != nil {
		services.Sweeper.Start()
	}

	var limitStore *limiter.Store
	if redisReady {
		if limitStore, err = limiter.NewStore(redis.GetRedis(redis.MainDB), "paygate:limiter"); err != nil {
			logger.WarnString("Limiter", "Setup", err.Error())
		}
	}

	// 设置 gin 为生产模式
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	bootstrap.SetupRoute(router, routes.Controllers{
		Payment:         payment.NewPaymentController(services.Payments, services.Reconciler),
		Delivery:        admin.NewDeliveryController(services.Reconciler),
		Health:          v1.NewHealthController(db, notification.Queue, notification.Worker),
		InternalToken:   config.GetString("security.internal_token"),
		LimitStore:      limitStore,
		GlobalRateLimit: config.GetString("app.global_rate_limit"),
		CreateRateLimit: config.GetString("app.create_rate_limit"),
	})

	server := &http.Server{
		Addr:    ":" + config.Get("app.port"),
		Handler: router,
	}

	// 创建系统信号监听器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoString("Server", "Start", "服务器正在启动，监听端口 "+server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-quit:
	case err := <-serveErr:
		return err
	}
	logger.InfoString("Server", "Shutdown", "正在关闭服务器...")

	// 创建一个带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.ErrorString("Server", "Shutdown", err.Error())
	}

	if services.Sweeper != nil {
		services.Sweeper.Stop()
	}
	notification.Stop()
	logger.LogIf(recorder.Close(ctx))
	redis.Close()

	logger.InfoString("Server", "Shutdown", "服务器已成功关闭")
	return nil
}
