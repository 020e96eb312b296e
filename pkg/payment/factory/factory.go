package factory

import (
	"context"
	"errors"
	"fmt"

	"paygate/pkg/payment/alipay"
	"paygate/pkg/payment/bankcard"
	"paygate/pkg/payment/creditcard"
	"paygate/pkg/payment/types"
	"paygate/pkg/payment/wechat"
)

// ErrUnsupportedMethod 没有对应渠道
var ErrUnsupportedMethod = errors.New("unsupported payment method")

const (
	ModeSimulate = "simulate"
	ModeLive     = "live"
)

// GatewayConfig 单个渠道的配置
type GatewayConfig struct {
	Mode   string
	Sim    types.Config
	Alipay alipay.LiveConfig
	Wechat wechat.LiveConfig
}

// Config 全部渠道配置
type Config map[types.Method]GatewayConfig

// Registry 按支付方式查找渠道
type Registry struct {
	gateways map[types.Method]types.Gateway
}

// New 根据配置创建全部渠道，缺少或无法创建的渠道视为配置错误
func New(ctx context.Context, cfg Config) (*Registry, error) {
	r := &Registry{gateways: make(map[types.Method]types.Gateway, len(cfg))}
	for method, gc := range cfg {
		gw, err := NewGateway(ctx, method, gc)
		if err != nil {
			return nil, err
		}
		r.gateways[method] = gw
	}
	for _, m := range types.Methods {
		if _, ok := r.gateways[m]; !ok {
			return nil, fmt.Errorf("no gateway configured for %s", m)
		}
	}
	return r, nil
}

// NewRegistry 直接由渠道实例组成，测试中使用
func NewRegistry(gateways ...types.Gateway) *Registry {
	r := &Registry{gateways: make(map[types.Method]types.Gateway, len(gateways))}
	for _, gw := range gateways {
		r.gateways[gw.Method()] = gw
	}
	return r
}

// NewGateway 创建支付渠道
func NewGateway(ctx context.Context, method types.Method, cfg GatewayConfig) (types.Gateway, error) {
	live := cfg.Mode == ModeLive
	if cfg.Mode != "" && cfg.Mode != ModeSimulate && !live {
		return nil, fmt.Errorf("%s: unknown gateway mode %q", method, cfg.Mode)
	}

	switch method {
	case types.MethodAlipay:
		if live {
			return alipay.NewLive(cfg.Alipay)
		}
		return alipay.NewSimulated(cfg.Sim)

	case types.MethodWechat:
		if live {
			return wechat.NewLive(ctx, cfg.Wechat)
		}
		return wechat.NewSimulated(cfg.Sim)

	case types.MethodBankCard:
		if live {
			return nil, fmt.Errorf("%s: live mode is not available", method)
		}
		return bankcard.NewSimulated(cfg.Sim)

	case types.MethodCreditCard:
		if live {
			return nil, fmt.Errorf("%s: live mode is not available", method)
		}
		return creditcard.NewSimulated(cfg.Sim)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
}

// Get 获取支付渠道
func (r *Registry) Get(method types.Method) (types.Gateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return gw, nil
}
