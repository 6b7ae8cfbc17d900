package service

import (
	"context"
	"time"

	"imagepay/internal/model"
	"imagepay/internal/repository"

	"gorm.io/gorm"
)

// Statistics 管理后台总览数据
type Statistics struct {
	TotalRecharge     int64 `json:"total_recharge"` // 累计到账充值（分）
	TodayRecharge     int64 `json:"today_recharge"`
	TotalConsumption  int64 `json:"total_consumption"`
	TodayConsumption  int64 `json:"today_consumption"`
	TotalImages       int64 `json:"total_images"`
	ExpiredPendingCnt int64 `json:"expired_pending_count"` // 待清理的过期订单数
}

type StatsService struct {
	db        *gorm.DB
	orderRepo *repository.OrderRepository
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{
		db:        db,
		orderRepo: repository.NewOrderRepository(db),
	}
}

func (s *StatsService) Overview(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	todayStart := time.Now().Truncate(24 * time.Hour)

	err := s.db.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("status = ?", model.OrderStatusPaid).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TotalRecharge).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Model(&model.RechargeOrder{}).
		Where("status = ? AND paid_at >= ?", model.OrderStatusPaid, todayStart).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TodayRecharge).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Model(&model.ConsumptionLog{}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TotalConsumption).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Model(&model.ConsumptionLog{}).
		Where("created_at >= ?", todayStart).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&stats.TodayConsumption).Error
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).
		Model(&model.ConsumptionLog{}).
		Select("COALESCE(SUM(image_count), 0)").
		Scan(&stats.TotalImages).Error
	if err != nil {
		return nil, err
	}

	stats.ExpiredPendingCnt, err = s.orderRepo.CountExpiredPending(ctx)
	if err != nil {
		return nil, err
	}

	return stats, nil
}
