package job

import (
	"context"
	"log"
	"time"

	"imagepay/internal/config"
	"imagepay/internal/service"

	"gorm.io/gorm"
)

// OrderSweeper 周期性取消过期的待支付充值订单
//
// 任务幂等，随时中断重跑都安全：每个订单的取消是独立的条件更新，
// 和并发的支付回调竞争时只有仍处于 PENDING 的才会被取消。
// 瞬时的存储错误只记日志，等下一轮再扫
type OrderSweeper struct {
	orderService *service.OrderService
	stopCh       chan struct{}
	interval     time.Duration
	batchSize    int
}

func NewOrderSweeper(db *gorm.DB, cfg *config.Config) *OrderSweeper {
	interval := time.Duration(cfg.Business.SweepIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batchSize := cfg.Business.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &OrderSweeper{
		orderService: service.NewOrderService(db, cfg),
		stopCh:       make(chan struct{}),
		interval:     interval,
		batchSize:    batchSize,
	}
}

func (j *OrderSweeper) Start(ctx context.Context) {
	log.Println("[OrderSweeper] 过期订单清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OrderSweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[OrderSweeper] 任务停止")
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *OrderSweeper) Stop() {
	close(j.stopCh)
}

func (j *OrderSweeper) sweep(ctx context.Context) {
	cancelled, err := j.orderService.SweepExpired(ctx, j.batchSize)
	if err != nil {
		log.Printf("[OrderSweeper] 清理过期订单失败，等待下一轮: %v", err)
		return
	}
	if cancelled > 0 {
		log.Printf("[OrderSweeper] 本轮取消 %d 个过期订单", cancelled)
	}
}
