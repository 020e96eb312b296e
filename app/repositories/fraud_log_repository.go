package repositories

import (
	"context"

	"gorm.io/gorm"

	"paygate/app/models/fraudlog"
)

// FraudLogRepository 风控日志仓库，只追加
type FraudLogRepository struct {
	db *gorm.DB
}

// NewFraudLogRepository 创建仓库实例
func NewFraudLogRepository(db *gorm.DB) *FraudLogRepository {
	return &FraudLogRepository{
		db: db,
	}
}

// WithTx 返回绑定到事务上的仓库
func (r *FraudLogRepository) WithTx(tx *gorm.DB) *FraudLogRepository {
	return &FraudLogRepository{db: tx}
}

// Create 写入风控日志
func (r *FraudLogRepository) Create(ctx context.Context, log *fraudlog.FraudLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// ListByUser 获取用户最近的风控日志
func (r *FraudLogRepository) ListByUser(ctx context.Context, userID uint64, limit int) ([]fraudlog.FraudLog, error) {
	var logs []fraudlog.FraudLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
