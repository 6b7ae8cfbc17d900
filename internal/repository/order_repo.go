package repository

import (
	"context"
	"errors"
	"time"

	"imagepay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("订单不存在")
)

// OrderRepository 充值订单的状态迁移入口
//
// 所有迁出 PENDING 的更新都带 WHERE status = 0 条件，
// 一个订单至多有一次迁出会成功；重放的 MarkPaid / Cancel
// 影响 0 行，调用方把它当"已处理过"，不是错误
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.RechargeOrder) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByOrderNo(ctx context.Context, tx *gorm.DB, orderNo string) (*model.RechargeOrder, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.RechargeOrder
	err := tx.WithContext(ctx).Where("order_no = ?", orderNo).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkPaid 条件更新 PENDING -> PAID，同时落支付平台交易号和回调原文
// 返回是否真的发生了迁移；false 表示订单已经不在 PENDING（重放或已取消）
func (r *OrderRepository) MarkPaid(ctx context.Context, tx *gorm.DB, orderNo, tradeNo, payChannel, notifyPayload string) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":         model.OrderStatusPaid,
			"trade_no":       tradeNo,
			"pay_channel":    payChannel,
			"notify_payload": notifyPayload,
			"paid_at":        &now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Cancel 条件更新 PENDING -> CANCELLED
// 和 MarkPaid 互斥：谁先提交谁生效，输的一方看到 false
func (r *OrderRepository) Cancel(ctx context.Context, tx *gorm.DB, orderNo string) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPending).
		Update("status", model.OrderStatusCancelled)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkRefunded 条件更新 PAID -> REFUNDED（预留，极少走到）
func (r *OrderRepository) MarkRefunded(ctx context.Context, tx *gorm.DB, orderNo string) (bool, error) {
	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("order_no = ? AND status = ?", orderNo, model.OrderStatusPaid).
		Update("status", model.OrderStatusRefunded)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetExpiredPending 取已过期的待支付订单，按创建时间从老到新
func (r *OrderRepository) GetExpiredPending(ctx context.Context, limit int) ([]*model.RechargeOrder, error) {
	var orders []*model.RechargeOrder
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", model.OrderStatusPending, time.Now()).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *OrderRepository) CountExpiredPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("status = ? AND expires_at < ?", model.OrderStatusPending, time.Now()).
		Count(&count).Error
	return count, err
}

// ListByUserID 用户充值记录，充值页默认不展示已取消的订单
func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int, excludeCancelled bool) ([]*model.RechargeOrder, int64, error) {
	var orders []*model.RechargeOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&model.RechargeOrder{}).Where("user_id = ?", userID)
	if excludeCancelled {
		query = query.Where("status <> ?", model.OrderStatusCancelled)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
