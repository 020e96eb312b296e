// Package user 存放用户 Model 相关逻辑
package user

import (
	"paygate/app/models"
)

// User 用户模型，仅用于查找通知的接收方
type User struct {
	models.BaseModel

	Email    string `gorm:"type:varchar(255);index" json:"email"`
	Phone    string `gorm:"type:varchar(20)" json:"phone"`
	Nickname string `gorm:"type:varchar(50)" json:"nickname"`

	models.CommonTimestampsField
}

// TableName 表名
func (User) TableName() string {
	return "users"
}
