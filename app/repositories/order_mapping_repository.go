package repositories

import (
	"context"

	"gorm.io/gorm"

	"paygate/app/models/ordermapping"
)

// OrderMappingRepository 外部订单映射仓库
type OrderMappingRepository struct {
	db *gorm.DB
}

// NewOrderMappingRepository 创建仓库实例
func NewOrderMappingRepository(db *gorm.DB) *OrderMappingRepository {
	return &OrderMappingRepository{
		db: db,
	}
}

// WithTx 返回绑定到事务上的仓库
func (r *OrderMappingRepository) WithTx(tx *gorm.DB) *OrderMappingRepository {
	return &OrderMappingRepository{db: tx}
}

// Create 创建映射，唯一键冲突时返回 gorm.ErrDuplicatedKey
func (r *OrderMappingRepository) Create(ctx context.Context, mapping *ordermapping.OrderMapping) error {
	return r.db.WithContext(ctx).Create(mapping).Error
}

// GetByExternal 根据外部系统和外部订单号获取映射
func (r *OrderMappingRepository) GetByExternal(ctx context.Context, system, orderID string) (*ordermapping.OrderMapping, error) {
	var mapping ordermapping.OrderMapping
	err := r.db.WithContext(ctx).
		Where("external_system = ? AND external_order_id = ?", system, orderID).
		First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// GetByPaymentID 根据支付 ID 获取映射
func (r *OrderMappingRepository) GetByPaymentID(ctx context.Context, paymentID string) (*ordermapping.OrderMapping, error) {
	var mapping ordermapping.OrderMapping
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// GetByTransactionID 根据本地交易获取映射
func (r *OrderMappingRepository) GetByTransactionID(ctx context.Context, transactionID uint64) (*ordermapping.OrderMapping, error) {
	var mapping ordermapping.OrderMapping
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&mapping).Error
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// UpdateDelivery 记录推送结果
func (r *OrderMappingRepository) UpdateDelivery(ctx context.Context, id uint64, fields map[string]interface{}) error {
	fields["updated_at"] = r.db.NowFunc()
	return r.db.WithContext(ctx).
		Model(&ordermapping.OrderMapping{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ListNeedsManual 推送重试耗尽、需要人工跟进的映射
func (r *OrderMappingRepository) ListNeedsManual(ctx context.Context, page, pageSize int) ([]ordermapping.OrderMapping, int64, error) {
	var mappings []ordermapping.OrderMapping
	var total int64

	query := r.db.WithContext(ctx).Model(&ordermapping.OrderMapping{}).Where("needs_manual = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&mappings).Error

	return mappings, total, err
}
