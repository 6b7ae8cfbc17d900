package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"imagepay/internal/config"
	"imagepay/internal/model"
	"imagepay/internal/repository"
	"imagepay/pkg/sign"

	"gorm.io/gorm"
)

// TradeStatusSuccess 支付平台回调里表示支付成功的交易状态
const TradeStatusSuccess = "TRADE_SUCCESS"

// amountEpsilonCents 金额比对容差：支付平台以元为单位的小数串上报，
// 换算成分后允许 1 分以内的浮点格式化误差
const amountEpsilonCents = 1

var (
	ErrSignInvalid     = errors.New("签名校验失败")
	ErrTradeNotSuccess = errors.New("交易状态非成功")
	ErrOrderFinalized  = errors.New("订单已终态，拒绝入账")
	ErrAmountMismatch  = errors.New("通知金额与订单金额不一致")
)

// errAlreadyHandled 并发回调输掉条件更新、但订单确实已支付时的内部信号，
// 对外等同于处理成功
var errAlreadyHandled = errors.New("订单已处理")

// NotifyService 支付回调对账
//
// 支付平台至少一次投递，收到非 success 应答就会重试，
// 所以同一笔通知可能被任意多次、甚至并发地处理。幂等性由两层保证：
//  1. 已支付订单直接短路返回成功，不再入账
//  2. 入账事务里 MarkPaid 带 WHERE status = 0 条件，两个进程同时处理
//     同一笔通知时只有一个能更新成功，输的一方确认订单已支付后按已处理返回
type NotifyService struct {
	db          *gorm.DB
	cfg         *config.Config
	orderRepo   *repository.OrderRepository
	accountRepo *repository.AccountRepository
	outboxRepo  *repository.OutboxRepository
	mutator     *BalanceMutator
}

func NewNotifyService(db *gorm.DB, cfg *config.Config) *NotifyService {
	return &NotifyService{
		db:          db,
		cfg:         cfg,
		orderRepo:   repository.NewOrderRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		mutator:     NewBalanceMutator(db),
	}
}

// HandleNotify 处理一次支付平台异步通知
//
// 返回 nil 表示应答 success（包括重放的已处理通知），
// 返回错误表示应答 fail，支付平台稍后重试
func (s *NotifyService) HandleNotify(ctx context.Context, params map[string]string) error {
	// 1. 验签
	if !sign.Verify(params, s.cfg.Gateway.MerchantKey) {
		log.Printf("[Notify] 签名校验失败: out_trade_no=%s", params["out_trade_no"])
		return ErrSignInvalid
	}

	// 2. 交易状态必须是支付成功
	if params["trade_status"] != TradeStatusSuccess {
		return ErrTradeNotSuccess
	}

	// 3. 查订单
	orderNo := params["out_trade_no"]
	order, err := s.orderRepo.GetByOrderNo(ctx, nil, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Printf("[Notify] 订单不存在: orderNo=%s", orderNo)
		}
		return err
	}

	// 4. 幂等短路：已支付的订单不再入账，直接应答成功让平台停止重试
	if order.Status == model.OrderStatusPaid {
		log.Printf("[Notify] 重复通知，订单已支付: orderNo=%s", orderNo)
		return nil
	}

	// 5. 已取消（用户手动或清理任务）的订单拒绝入账
	// 用户可能确实付了钱，这类订单要靠人工对账处理，不能静默入账
	if order.Status != model.OrderStatusPending {
		log.Printf("[Notify] 订单已终态仍收到支付成功通知，需人工对账: orderNo=%s, status=%s",
			orderNo, order.Status)
		return ErrOrderFinalized
	}

	// 6. 金额校验
	moneyCents, err := parseMoneyCents(params["money"])
	if err != nil || abs64(moneyCents-order.Amount) > amountEpsilonCents {
		log.Printf("[Notify] 金额不一致: orderNo=%s, order=%d, notified=%q",
			orderNo, order.Amount, params["money"])
		return ErrAmountMismatch
	}

	// 过期只是逻辑状态：订单超时但仍是 PENDING 时，迟到的支付成功照常入账
	if order.Expired(time.Now()) {
		log.Printf("[Notify] 订单已过期但支付成功，继续入账: orderNo=%s", orderNo)
	}

	// 入账前确保账户存在（注册即建账户，这里兜底）
	if _, err := s.accountRepo.GetOrCreate(ctx, order.UserID); err != nil {
		return fmt.Errorf("获取账户失败: %w", err)
	}

	payloadBytes, _ := json.Marshal(params)

	// 7. 一个事务完成：订单迁移 + 余额入账 + 流水 + 事务消息
	// 任何一步失败整体回滚，平台重试后重新走一遍
	err = s.db.Transaction(func(tx *gorm.DB) error {
		moved, err := s.orderRepo.MarkPaid(ctx, tx, orderNo, params["trade_no"], params["type"], string(payloadBytes))
		if err != nil {
			return fmt.Errorf("更新订单状态失败: %w", err)
		}
		if !moved {
			// 条件更新没抢到：并发的另一次投递先提交了，或者清理任务刚取消了订单
			current, err := s.orderRepo.GetByOrderNo(ctx, tx, orderNo)
			if err != nil {
				return err
			}
			if current.Status == model.OrderStatusPaid {
				return errAlreadyHandled
			}
			return ErrOrderFinalized
		}

		// 在线充值对用户隐藏流水（充值记录在订单列表里展示，不重复）
		mutation, err := s.mutator.Credit(ctx, tx, Change{
			UserID:        order.UserID,
			Amount:        order.Amount,
			Kind:          model.LogKindOnlineRecharge,
			Remark:        fmt.Sprintf("在线充值-%s-%s", params["type"], orderNo),
			VisibleToUser: false,
			OrderID:       &order.ID,
		})
		if err != nil {
			return fmt.Errorf("充值入账失败: %w", err)
		}

		msgPayload, _ := json.Marshal(map[string]interface{}{
			"order_no":      orderNo,
			"trade_no":      params["trade_no"],
			"user_id":       order.UserID,
			"amount":        order.Amount,
			"balance_after": mutation.BalanceAfter,
			"status":        model.OrderStatusPaid.String(),
			"paid_at":       time.Now().Format(time.RFC3339),
		})
		outboxMsg := &model.OutboxMessage{
			MessageKey: orderNo,
			Topic:      s.cfg.Kafka.Topic.RechargeResult,
			Payload:    string(msgPayload),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入事务消息失败: %w", err)
		}

		return nil
	})

	if errors.Is(err, errAlreadyHandled) {
		log.Printf("[Notify] 并发通知已由其他进程处理: orderNo=%s", orderNo)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("[Notify] 充值入账成功: orderNo=%s, userID=%d, amount=%d", orderNo, order.UserID, order.Amount)
	return nil
}

// parseMoneyCents 把支付平台上报的元为单位的金额串换算成分
func parseMoneyCents(money string) (int64, error) {
	f, err := strconv.ParseFloat(money, 64)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(f * 100)), nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
