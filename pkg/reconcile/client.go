package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"paygate/pkg/logger"
)

// StatusUpdate 推送给外部系统的订单状态
type StatusUpdate struct {
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	PaymentID   string `json:"paymentId"`
	PaymentTime string `json:"paymentTime"`
}

// Delivery 一次推送（含重试）的结果
type Delivery struct {
	Success  bool
	Attempts int
	Response string
	Err      error
}

// Deliverer 外部系统状态推送
type Deliverer interface {
	Send(ctx context.Context, update StatusUpdate) Delivery
}

type ackBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client 基于 resty 的状态推送客户端
// 重试由 Send 自己控制，每次重试之间等待固定间隔
type Client struct {
	http          *resty.Client
	url           string
	token         string
	maxRetries    int
	retryInterval time.Duration
}

// NewClient 创建推送客户端
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		url:           cfg.OrderUpdateURL,
		token:         cfg.InternalToken,
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
	}
}

// Send 推送状态，首次请求失败后最多重试 maxRetries 次
// 只有 HTTP 200 且响应体 code 为 200 才算成功
func (c *Client) Send(ctx context.Context, update StatusUpdate) Delivery {
	var out Delivery

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.WarnString("Reconcile", "Retry", fmt.Sprintf("order %s retry %d/%d", update.OrderID, attempt, c.maxRetries))
			select {
			case <-ctx.Done():
				out.Err = ctx.Err()
				return out
			case <-time.After(c.retryInterval):
			}
		}

		out.Attempts++
		ok, body, err := c.post(ctx, update)
		out.Response = body
		out.Err = err
		if ok {
			out.Success = true
			logger.InfoString("Reconcile", "Deliver", fmt.Sprintf("order %s -> %s delivered", update.OrderID, update.Status))
			return out
		}
		logger.WarnString("Reconcile", "Deliver", fmt.Sprintf("order %s attempt %d: %v", update.OrderID, out.Attempts, err))
	}

	return out
}

func (c *Client) post(ctx context.Context, update StatusUpdate) (bool, string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Internal-Token", c.token).
		SetBody(update).
		Post(c.url)
	if err != nil {
		return false, "", fmt.Errorf("post status update: %w", err)
	}

	body := resp.String()
	if resp.StatusCode() != 200 {
		return false, body, fmt.Errorf("external system returned http %d", resp.StatusCode())
	}

	var ack ackBody
	if err := json.Unmarshal(resp.Body(), &ack); err != nil {
		return false, body, fmt.Errorf("decode ack: %w", err)
	}
	if ack.Code != 200 {
		return false, body, fmt.Errorf("external system rejected update: code %d %s", ack.Code, ack.Message)
	}
	return true, body, nil
}
