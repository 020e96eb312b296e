package repositories

import (
	"context"

	"gorm.io/gorm"

	"paygate/app/models/notification"
	"paygate/app/models/user"
)

// NotificationRepository 通知记录及接收人查询
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建仓库实例
func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{
		db: db,
	}
}

// Create 写入通知记录
func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

// ListByTransaction 获取交易的全部通知
func (r *NotificationRepository) ListByTransaction(ctx context.Context, transactionID uint64) ([]notification.Notification, error) {
	var list []notification.Notification
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// FindUser 获取通知接收人
func (r *NotificationRepository) FindUser(ctx context.Context, userID uint64) (*user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).First(&u, userID).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}
