package migrations

import (
	"paygate/app/models/fraudlog"
	"paygate/app/models/notification"
	"paygate/app/models/ordermapping"
	"paygate/app/models/paymentdetail"
	"paygate/app/models/transaction"
	"paygate/app/models/user"
)

// RegisterTables 返回需要迁移的表的模型列表
func RegisterTables() []interface{} {
	return []interface{}{
		&user.User{},
		&transaction.Transaction{},
		&paymentdetail.PaymentDetail{},
		&ordermapping.OrderMapping{},
		&fraudlog.FraudLog{},
		&notification.Notification{},
	}
}
