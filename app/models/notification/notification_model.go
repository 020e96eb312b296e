// Package notification 用户通知记录
package notification

import (
	"time"

	"paygate/app/models"
)

// Channel 通知渠道
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Status 发送结果
type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Notification 通知记录
type Notification struct {
	models.BaseModel

	TransactionID uint64     `gorm:"column:transaction_id;index;not null" json:"transaction_id"`
	UserID        uint64     `gorm:"column:user_id;index" json:"user_id"`
	Type          Channel    `gorm:"column:type;type:varchar(10);not null" json:"type"`
	Recipient     string     `gorm:"column:recipient;type:varchar(255)" json:"recipient"`
	Event         string     `gorm:"column:event;type:varchar(20)" json:"event"`
	Content       string     `gorm:"column:content;type:text" json:"content"`
	Status        Status     `gorm:"column:status;type:varchar(10);not null" json:"status"`
	ErrorMessage  string     `gorm:"column:error_message;type:varchar(255)" json:"error_message"`
	SentAt        *time.Time `gorm:"column:sent_at" json:"sent_at"`

	models.CommonTimestampsField
}

// TableName 表名
func (Notification) TableName() string {
	return "notifications"
}
