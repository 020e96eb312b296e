// Package ordermapping 外部订单与本地交易的映射
package ordermapping

import (
	"time"

	"paygate/app/models"
)

// DeliveryStatus 状态推送结果
type DeliveryStatus string

const (
	DeliveryNone    DeliveryStatus = "none"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// OrderMapping 外部订单映射，(external_system, external_order_id) 唯一
type OrderMapping struct {
	models.BaseModel

	TransactionID    uint64         `gorm:"column:transaction_id;index;not null" json:"transaction_id"`
	ExternalSystem   string         `gorm:"column:external_system;type:varchar(50);uniqueIndex:idx_external_order;not null" json:"external_system"`
	ExternalOrderID  string         `gorm:"column:external_order_id;type:varchar(100);uniqueIndex:idx_external_order;not null" json:"external_order_id"`
	PaymentID        string         `gorm:"column:payment_id;type:varchar(64);uniqueIndex;not null" json:"payment_id"`
	NotifyURL        string         `gorm:"column:notify_url;type:varchar(500)" json:"notify_url"`
	ReturnURL        string         `gorm:"column:return_url;type:varchar(500)" json:"return_url"`
	DeliveryStatus   DeliveryStatus `gorm:"column:delivery_status;type:varchar(20);default:'none';not null" json:"delivery_status"`
	DeliveredStatus  string         `gorm:"column:delivered_status;type:varchar(20)" json:"delivered_status"`
	DeliveryAttempts int            `gorm:"column:delivery_attempts;not null;default:0" json:"delivery_attempts"`
	DeliveryResponse string         `gorm:"column:delivery_response;type:text" json:"delivery_response"`
	NeedsManual      bool           `gorm:"column:needs_manual;index;default:false" json:"needs_manual"`
	DeliveredAt      *time.Time     `gorm:"column:delivered_at" json:"delivered_at"`

	models.CommonTimestampsField
}

// TableName 表名
func (OrderMapping) TableName() string {
	return "external_order_mappings"
}

// Delivered 指定的外部状态已经推送成功
func (m *OrderMapping) Delivered(externalStatus string) bool {
	return m.DeliveryStatus == DeliverySuccess && m.DeliveredStatus == externalStatus
}
