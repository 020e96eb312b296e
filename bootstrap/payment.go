package bootstrap

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"paygate/app/repositories"
	"paygate/pkg/config"
	"paygate/pkg/fraudgraph"
	"paygate/pkg/notify"
	"paygate/pkg/payment"
	"paygate/pkg/payment/alipay"
	"paygate/pkg/payment/factory"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/wechat"
	"paygate/pkg/reconcile"
	"paygate/pkg/risk"
)

// Services 业务服务
type Services struct {
	Payments   *payment.Service
	Reconciler *reconcile.Service
	Sweeper    *payment.Sweeper
}

// SetupPayment 根据配置组装渠道、风控、状态机和外部订单对接
func SetupPayment(ctx context.Context, db *gorm.DB, notifier notify.Notifier, recorder fraudgraph.Recorder) (*Services, error) {
	registry, err := factory.New(ctx, gatewayConfig())
	if err != nil {
		return nil, err
	}

	maxAmount, err := decimal.NewFromString(config.GetString("fraud.max_amount"))
	if err != nil {
		return nil, fmt.Errorf("fraud.max_amount: %w", err)
	}
	smallAmount, err := decimal.NewFromString(config.GetString("fraud.small_amount"))
	if err != nil {
		return nil, fmt.Errorf("fraud.small_amount: %w", err)
	}
	scorer := risk.NewScorer(risk.Config{
		MaxAmount:             maxAmount,
		MaxHourlyTransactions: config.GetInt64("fraud.max_hourly_transactions"),
		MaxFailedAttempts:     config.GetInt64("fraud.max_failed_attempts"),
		SmallAmount:           smallAmount,
	}, repositories.NewTransactionRepository(db))

	payments := payment.NewService(db, payment.Config{
		Timeout:    config.GetDuration("payment.timeout", 900),
		RetryLimit: config.GetInt("payment.retry_times", 3),
	}, registry, scorer, notifier, payment.WithFraudRecorder(recorder))

	reconciler := reconcile.NewService(db, reconcile.Config{
		ExternalSystem:  config.GetString("external.default_system"),
		OrderUpdateURL:  config.GetString("external.booking_panel.order_update_url"),
		InternalToken:   config.GetString("security.internal_token"),
		Timeout:         config.GetDuration("external.booking_panel.timeout", 5),
		MaxRetries:      config.GetInt("external.booking_panel.max_retries", 3),
		RetryInterval:   config.GetDuration("external.booking_panel.retry_interval", 5),
		CallbackSecret:  config.GetString("security.callback_secret_key"),
		VerifySignature: config.GetBool("security.verify_callback_signature"),
		BaseURL:         config.GetString("app.base_url"),
	}, payments, nil)

	var sweeper *payment.Sweeper
	if interval := config.GetDuration("payment.sweep_interval", 60); interval > 0 {
		sweeper = payment.NewSweeper(payments, interval)
	}

	return &Services{
		Payments:   payments,
		Reconciler: reconciler,
		Sweeper:    sweeper,
	}, nil
}

// gatewayConfig 读取 payment.gateways 下的渠道配置
func gatewayConfig() factory.Config {
	cfg := factory.Config{}
	for _, method := range types.Methods {
		prefix := "payment.gateways." + string(method) + "."
		gc := factory.GatewayConfig{
			Mode: config.GetString(prefix+"mode", factory.ModeSimulate),
			Sim: types.Config{
				SuccessRate: config.GetFloat64(prefix + "success_rate"),
				MinLatency:  config.GetDuration(prefix + "min_latency"),
				MaxLatency:  config.GetDuration(prefix + "max_latency"),
				Secret:      config.GetString(prefix + "secret"),
			},
		}

		switch method {
		case types.MethodAlipay:
			gc.Alipay = alipay.LiveConfig{
				AppID:        config.GetString(prefix + "app_id"),
				PrivateKey:   config.GetString(prefix + "private_key"),
				PublicKey:    config.GetString(prefix + "public_key"),
				NotifyURL:    config.GetString(prefix + "notify_url"),
				ReturnURL:    config.GetString(prefix + "return_url"),
				IsProduction: config.GetBool(prefix + "production"),
			}
		case types.MethodWechat:
			gc.Wechat = wechat.LiveConfig{
				AppID:      config.GetString(prefix + "app_id"),
				MchID:      config.GetString(prefix + "mch_id"),
				SerialNo:   config.GetString(prefix + "serial_no"),
				PrivateKey: config.GetString(prefix + "private_key"),
				APIv3Key:   config.GetString(prefix + "api_v3_key"),
				NotifyURL:  config.GetString(prefix + "notify_url"),
				Secret:     config.GetString(prefix + "secret"),
			}
		}
		cfg[method] = gc
	}
	return cfg
}
