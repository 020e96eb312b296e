package payment

import "errors"

var (
	// ErrValidation 请求参数不合法
	ErrValidation = errors.New("validation failed")
	// ErrNotFound 交易不存在
	ErrNotFound = errors.New("transaction not found")
	// ErrStateConflict 当前状态不允许该操作，或并发操作已抢先改变状态
	ErrStateConflict = errors.New("transaction state conflict")
	// ErrNotCancelable 交易已结束，不能取消
	ErrNotCancelable = errors.New("transaction cannot be cancelled")
	// ErrRetryExhausted 处理次数已用尽
	ErrRetryExhausted = errors.New("transaction retry limit reached")
	// ErrInvalidSignature 渠道通知验签失败
	ErrInvalidSignature = errors.New("invalid notification signature")
)
