package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"imagepay/internal/config"
	"imagepay/internal/model"
	"imagepay/internal/repository"
	"imagepay/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrAmountOutOfRange = errors.New("充值金额超出允许范围")
)

type OrderService struct {
	orderRepo *repository.OrderRepository
	db        *gorm.DB
	cfg       *config.Config
}

func NewOrderService(db *gorm.DB, cfg *config.Config) *OrderService {
	return &OrderService{
		orderRepo: repository.NewOrderRepository(db),
		db:        db,
		cfg:       cfg,
	}
}

// CreateOrder 创建待支付充值订单并返回商户订单号
// 下游的支付跳转由外层网页完成，这里只负责落单
func (s *OrderService) CreateOrder(ctx context.Context, userID, amount int64, payChannel string) (*model.RechargeOrder, error) {
	if amount < s.cfg.Business.MinRecharge || amount > s.cfg.Business.MaxRecharge {
		return nil, fmt.Errorf("%w: amount=%d", ErrAmountOutOfRange, amount)
	}

	expireMinutes := s.cfg.Business.OrderExpireMinutes
	order := &model.RechargeOrder{
		OrderNo:    idgen.GenerateOrderNo(),
		UserID:     userID,
		Amount:     amount,
		PayChannel: payChannel,
		Status:     model.OrderStatusPending,
		ExpiresAt:  time.Now().Add(time.Duration(expireMinutes) * time.Minute),
	}

	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.RechargeOrder, error) {
	return s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
}

// CancelOrder 手动取消待支付订单
// 返回 false 表示订单已不在待支付（已支付或已被取消），按无操作处理
func (s *OrderService) CancelOrder(ctx context.Context, orderNo string) (bool, error) {
	if _, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo); err != nil {
		return false, err
	}
	return s.orderRepo.Cancel(ctx, nil, orderNo)
}

// SweepExpired 批量取消已过期的待支付订单，返回实际取消的数量
//
// 扫到的订单可能在取消前被并发的支付回调抢先改成 PAID，
// Cancel 的条件更新保证这种竞争安全：只有仍处于 PENDING 的才会被取消，
// 所以返回值是真实迁移数，不是扫描数
func (s *OrderService) SweepExpired(ctx context.Context, maxBatch int) (int, error) {
	orders, err := s.orderRepo.GetExpiredPending(ctx, maxBatch)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, order := range orders {
		ok, err := s.orderRepo.Cancel(ctx, nil, order.OrderNo)
		if err != nil {
			log.Printf("[OrderService] 取消过期订单失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		if ok {
			cancelled++
		}
	}

	return cancelled, nil
}

func (s *OrderService) CountExpiredPending(ctx context.Context) (int64, error) {
	return s.orderRepo.CountExpiredPending(ctx)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int, excludeCancelled bool) ([]*model.RechargeOrder, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize, excludeCancelled)
}
