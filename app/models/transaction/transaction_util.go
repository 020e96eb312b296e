package transaction

// Cancelable 可以被取消或超时关闭的状态
var Cancelable = []Status{StatusPending, StatusProcessing}

// CanCancel 仅待处理和处理中的交易可以取消
func (t *Transaction) CanCancel() bool {
	return t.Status == StatusPending || t.Status == StatusProcessing
}

// IsFinal 成功、超时、取消为终态；失败交易在重试次数用尽后才是终态
func (t *Transaction) IsFinal(attempts, limit int) bool {
	switch t.Status {
	case StatusSuccess, StatusTimeout, StatusCancelled:
		return true
	case StatusFailed:
		return attempts >= limit
	}
	return false
}
