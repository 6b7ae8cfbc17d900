package repository

import (
	"context"

	"imagepay/internal/model"

	"gorm.io/gorm"
)

type ConsumptionRepository struct {
	db *gorm.DB
}

func NewConsumptionRepository(db *gorm.DB) *ConsumptionRepository {
	return &ConsumptionRepository{db: db}
}

func (r *ConsumptionRepository) Create(ctx context.Context, tx *gorm.DB, logEntry *model.ConsumptionLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(logEntry).Error
}

func (r *ConsumptionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.ConsumptionLog, int64, error) {
	var logs []*model.ConsumptionLog
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ConsumptionLog{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error

	return logs, total, err
}

// ConsumptionStats 用户消费统计
type ConsumptionStats struct {
	TotalCount  int64 `json:"total_count"`
	TotalAmount int64 `json:"total_amount"` // 分
	TotalImages int64 `json:"total_images"`
}

func (r *ConsumptionRepository) StatsByUserID(ctx context.Context, userID int64) (*ConsumptionStats, error) {
	var stats ConsumptionStats
	err := r.db.WithContext(ctx).
		Model(&model.ConsumptionLog{}).
		Select("COUNT(*) AS total_count, COALESCE(SUM(amount), 0) AS total_amount, COALESCE(SUM(image_count), 0) AS total_images").
		Where("user_id = ?", userID).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
