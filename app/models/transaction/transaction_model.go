// Package transaction 存放交易 Model 相关逻辑
package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	"paygate/app/models"
)

// Status 交易状态
type Status string

const (
	StatusPending    Status = "pending"    // 待处理
	StatusProcessing Status = "processing" // 处理中
	StatusSuccess    Status = "success"    // 支付成功
	StatusFailed     Status = "failed"     // 支付失败
	StatusTimeout    Status = "timeout"    // 已超时
	StatusCancelled  Status = "cancelled"  // 已取消
)

// Transaction 交易模型
type Transaction struct {
	models.BaseModel

	TransactionNo  string          `gorm:"column:transaction_no;type:varchar(32);uniqueIndex;not null" json:"transaction_no"`
	UserID         uint64          `gorm:"column:user_id;index;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"column:amount;type:decimal(12,2);not null" json:"amount"`
	PaymentMethod  string          `gorm:"column:payment_method;type:varchar(20);not null" json:"payment_method"`
	Status         Status          `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	Description    string          `gorm:"column:description;type:varchar(255)" json:"description"`
	RiskLevel      string          `gorm:"column:risk_level;type:varchar(20)" json:"risk_level"`
	ReviewRequired bool            `gorm:"column:review_required;default:false" json:"review_required"`
	CompletedAt    *time.Time      `gorm:"column:completed_at" json:"completed_at"`

	models.CommonTimestampsField
}

// TableName 表名
func (Transaction) TableName() string {
	return "transactions"
}
