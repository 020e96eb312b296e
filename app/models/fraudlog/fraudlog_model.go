// Package fraudlog 风控日志，只追加
package fraudlog

import (
	"paygate/app/models"
)

// FraudLog 风控日志
type FraudLog struct {
	models.BaseModel

	// 被拦截的交易没有落库，TransactionID 为空
	TransactionID *uint64 `gorm:"column:transaction_id;index" json:"transaction_id"`
	UserID        uint64  `gorm:"column:user_id;index;not null" json:"user_id"`
	RiskLevel     string  `gorm:"column:risk_level;type:varchar(20);not null" json:"risk_level"`
	RiskType      string  `gorm:"column:risk_type;type:varchar(50)" json:"risk_type"`
	Description   string  `gorm:"column:description;type:text" json:"description"`
	IPAddress     string  `gorm:"column:ip_address;type:varchar(45)" json:"ip_address"`
	ActionTaken   string  `gorm:"column:action_taken;type:varchar(20)" json:"action_taken"`

	models.CommonTimestampsField
}

// TableName 表名
func (FraudLog) TableName() string {
	return "fraud_logs"
}
