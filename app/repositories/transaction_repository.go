package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"paygate/app/models"
	"paygate/app/models/paymentdetail"
	"paygate/app/models/transaction"
)

// TransactionRepository 交易及处理明细仓库
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建仓库实例
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{
		db: db,
	}
}

// WithTx 返回绑定到事务上的仓库
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

// Create 创建交易记录
func (r *TransactionRepository) Create(ctx context.Context, txn *transaction.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// CreateDetail 创建处理明细
func (r *TransactionRepository) CreateDetail(ctx context.Context, detail *paymentdetail.PaymentDetail) error {
	return r.db.WithContext(ctx).Create(detail).Error
}

// GetByNo 根据交易号获取交易
func (r *TransactionRepository) GetByNo(ctx context.Context, transactionNo string) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetByID 根据主键获取交易
func (r *TransactionRepository) GetByID(ctx context.Context, id uint64) (*transaction.Transaction, error) {
	var txn transaction.Transaction
	err := r.db.WithContext(ctx).First(&txn, id).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetDetail 获取交易的处理明细
func (r *TransactionRepository) GetDetail(ctx context.Context, transactionID uint64) (*paymentdetail.PaymentDetail, error) {
	var detail paymentdetail.PaymentDetail
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&detail).Error
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// CompareAndSetStatus 仅当当前状态属于 from 时更新为 to，返回是否更新成功
func (r *TransactionRepository) CompareAndSetStatus(ctx context.Context, id uint64, from []transaction.Status, to transaction.Status, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": r.db.NowFunc(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&transaction.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// RecordAttempt 处理次数加一并记录渠道返回，返回最新的处理次数
func (r *TransactionRepository) RecordAttempt(ctx context.Context, transactionID uint64, response models.JSON, signature, errorMessage string) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&paymentdetail.PaymentDetail{}).
		Where("transaction_id = ?", transactionID).
		Updates(map[string]interface{}{
			"attempts":         gorm.Expr("attempts + 1"),
			"gateway_response": response,
			"signature":        signature,
			"error_message":    errorMessage,
			"updated_at":       r.db.NowFunc(),
		}).Error
	if err != nil {
		return 0, err
	}

	detail, err := r.GetDetail(ctx, transactionID)
	if err != nil {
		return 0, err
	}
	return detail.Attempts, nil
}

// UpdateDetail 更新处理明细的部分字段
func (r *TransactionRepository) UpdateDetail(ctx context.Context, transactionID uint64, fields map[string]interface{}) error {
	fields["updated_at"] = r.db.NowFunc()
	return r.db.WithContext(ctx).
		Model(&paymentdetail.PaymentDetail{}).
		Where("transaction_id = ?", transactionID).
		Updates(fields).Error
}

// ListStale 获取创建时间早于 before 且仍未结束的交易
func (r *TransactionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]transaction.Transaction, error) {
	var txns []transaction.Transaction
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", transaction.Cancelable, before).
		Order("id ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

// GetByUserID 获取用户的历史交易
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID uint64, page, pageSize int) ([]transaction.Transaction, int64, error) {
	var txns []transaction.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&transaction.Transaction{}).Where("user_id = ?", userID)

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 分页查询
	err := query.Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txns).Error

	return txns, total, err
}

// CountSince 统计用户在 since 之后创建的交易数
func (r *TransactionRepository) CountSince(ctx context.Context, userID uint64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&transaction.Transaction{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// CountFailedSince 统计用户在 since 之后失败的交易数
func (r *TransactionRepository) CountFailedSince(ctx context.Context, userID uint64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&transaction.Transaction{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, transaction.StatusFailed, since).
		Count(&count).Error
	return count, err
}

// RecentSuccessIPs 用户最近成功交易使用过的 IP
func (r *TransactionRepository) RecentSuccessIPs(ctx context.Context, userID uint64, limit int) ([]string, error) {
	var ips []string
	err := r.db.WithContext(ctx).
		Table("transactions AS t").
		Joins("JOIN payment_details AS d ON d.transaction_id = t.id").
		Where("t.user_id = ? AND t.status = ?", userID, transaction.StatusSuccess).
		Order("t.created_at DESC").
		Limit(limit).
		Pluck("d.ip_address", &ips).Error
	return ips, err
}
