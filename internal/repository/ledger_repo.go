package repository

import (
	"context"

	"imagepay/internal/model"

	"gorm.io/gorm"
)

// LedgerRepository 余额流水，只有 Create 一个写操作
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.BalanceLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ListByUserID 用户流水分页，visibleOnly 时只返回对用户展示的条目
// （在线充值在订单列表里展示，流水里不重复出现）
func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int, visibleOnly bool) ([]*model.BalanceLog, int64, error) {
	var entries []*model.BalanceLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BalanceLog{}).Where("user_id = ?", userID)
	if visibleOnly {
		query = query.Where("visible_to_user = ?", true)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// ListAllAscending 用户全部流水按创建顺序，对账折叠用
func (r *LedgerRepository) ListAllAscending(ctx context.Context, userID int64) ([]*model.BalanceLog, error) {
	var entries []*model.BalanceLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
