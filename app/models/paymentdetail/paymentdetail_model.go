// Package paymentdetail 交易的处理明细，与交易一对一
package paymentdetail

import (
	"paygate/app/models"
)

// PaymentDetail 支付尝试明细
type PaymentDetail struct {
	models.BaseModel

	TransactionID   uint64      `gorm:"column:transaction_id;uniqueIndex;not null" json:"transaction_id"`
	IPAddress       string      `gorm:"column:ip_address;type:varchar(45)" json:"ip_address"`
	UserAgent       string      `gorm:"column:user_agent;type:varchar(255)" json:"user_agent"`
	Attempts        int         `gorm:"column:attempts;not null;default:0" json:"attempts"`
	GatewayResponse models.JSON `gorm:"column:gateway_response;type:text" json:"gateway_response"`
	Signature       string      `gorm:"column:signature;type:varchar(255)" json:"signature"`
	ErrorMessage    string      `gorm:"column:error_message;type:varchar(500)" json:"error_message"`

	models.CommonTimestampsField
}

// TableName 表名
func (PaymentDetail) TableName() string {
	return "payment_details"
}
