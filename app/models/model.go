// Package models 模型通用属性和方法
package models

import (
	"time"

	"gorm.io/datatypes"
)

// BaseModel 模型基类
type BaseModel struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement;" json:"id,omitempty"`
}

// CommonTimestampsField 时间戳
type CommonTimestampsField struct {
	CreatedAt time.Time `gorm:"column:created_at;index;" json:"created_at,omitempty"`
	UpdatedAt time.Time `gorm:"column:updated_at;index;" json:"updated_at,omitempty"`
}

// JSON 以 JSON 文本落库的 map 字段，渠道原始返回和回调报文都存这里
type JSON = datatypes.JSONMap
