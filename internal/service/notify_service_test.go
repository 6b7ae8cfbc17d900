package service

import (
	"context"
	"testing"
	"time"

	"imagepay/internal/model"
	"imagepay/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPendingOrder(t *testing.T, svc *NotifyService, userID, amount int64, expiresAt time.Time) *model.RechargeOrder {
	t.Helper()
	order := &model.RechargeOrder{
		OrderNo:   "RC20260828000000001",
		UserID:    userID,
		Amount:    amount,
		Status:    model.OrderStatusPending,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, svc.orderRepo.Create(context.Background(), nil, order))
	return order
}

func TestHandleNotifySuccess(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotifyService(db, newTestConfig())
	ctx := context.Background()

	order := seedPendingOrder(t, svc, 1001, 1000, time.Now().Add(5*time.Minute))
	params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)

	require.NoError(t, svc.HandleNotify(ctx, params))

	// 订单迁移到已支付，交易号落库
	got, err := svc.orderRepo.GetByOrderNo(ctx, nil, order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, got.Status)
	assert.Equal(t, "T2026082801", got.TradeNo)
	assert.NotNil(t, got.PaidAt)
	assert.NotEmpty(t, got.NotifyPayload)

	// 余额到账
	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), account.Balance)

	// 恰好一条流水：在线充值、对用户隐藏、关联订单
	ledgerRepo := repository.NewLedgerRepository(db)
	entries, err := ledgerRepo.ListAllAscending(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogKindOnlineRecharge, entries[0].Kind)
	assert.Equal(t, int64(1000), entries[0].Amount)
	assert.False(t, entries[0].VisibleToUser)
	require.NotNil(t, entries[0].OrderID)
	assert.Equal(t, got.ID, *entries[0].OrderID)

	// 事务消息已落库待发
	var messages []model.OutboxMessage
	require.NoError(t, db.Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, order.OrderNo, messages[0].MessageKey)
	assert.Equal(t, model.OutboxStatusPending, messages[0].Status)
}

// 同一笔通知重放任意多次，只入账一次
func TestHandleNotifyReplayCreditsOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotifyService(db, newTestConfig())
	ctx := context.Background()

	order := seedPendingOrder(t, svc, 1001, 1000, time.Now().Add(5*time.Minute))
	params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.HandleNotify(ctx, params))
	}

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), account.Balance)

	entries, err := repository.NewLedgerRepository(db).ListAllAscending(ctx, 1001)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// 订单已被清理任务取消后才收到支付成功通知：拒绝入账，留给人工对账
func TestHandleNotifyCancelledOrderRejected(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotifyService(db, newTestConfig())
	ctx := context.Background()

	order := seedPendingOrder(t, svc, 1001, 1000, time.Now().Add(-time.Minute))
	cancelled, err := svc.orderRepo.Cancel(ctx, nil, order.OrderNo)
	require.NoError(t, err)
	require.True(t, cancelled)

	params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)
	err = svc.HandleNotify(ctx, params)
	assert.ErrorIs(t, err, ErrOrderFinalized)

	// 没有任何入账
	_, err = svc.accountRepo.GetByUserID(ctx, 1001)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

// 过期只是逻辑状态：订单超时但仍待支付时，迟到的支付成功照常入账
func TestHandleNotifyExpiredButPendingStillCredits(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotifyService(db, newTestConfig())
	ctx := context.Background()

	order := seedPendingOrder(t, svc, 1001, 1000, time.Now().Add(-10*time.Minute))
	params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)

	require.NoError(t, svc.HandleNotify(ctx, params))

	got, err := svc.orderRepo.GetByOrderNo(ctx, nil, order.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPaid, got.Status)

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), account.Balance)
}

func TestHandleNotifyRejections(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotifyService(db, newTestConfig())
	ctx := context.Background()

	order := seedPendingOrder(t, svc, 1001, 1000, time.Now().Add(5*time.Minute))

	t.Run("签名错误", func(t *testing.T) {
		params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)
		params["sign"] = "0000000000000000000000000000dead"
		assert.ErrorIs(t, svc.HandleNotify(ctx, params), ErrSignInvalid)
	})

	t.Run("篡改金额导致验签失败", func(t *testing.T) {
		params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)
		params["money"] = "99999.00"
		assert.ErrorIs(t, svc.HandleNotify(ctx, params), ErrSignInvalid)
	})

	t.Run("交易状态非成功", func(t *testing.T) {
		params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)
		delete(params, "sign")
		params["trade_status"] = "WAIT_BUYER_PAY"
		params["sign"] = resign(params)
		assert.ErrorIs(t, svc.HandleNotify(ctx, params), ErrTradeNotSuccess)
	})

	t.Run("金额与订单不一致", func(t *testing.T) {
		params := signedNotifyParams(order.OrderNo, "T2026082801", 500)
		assert.ErrorIs(t, svc.HandleNotify(ctx, params), ErrAmountMismatch)
	})

	t.Run("订单不存在", func(t *testing.T) {
		params := signedNotifyParams("RC404", "T2026082801", 1000)
		assert.ErrorIs(t, svc.HandleNotify(ctx, params), repository.ErrOrderNotFound)
	})

	// 上面的拒绝路径都不产生入账
	_, err := svc.accountRepo.GetByUserID(ctx, 1001)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

// 1 分以内的换算误差不拦截
func TestHandleNotifyAmountEpsilon(t *testing.T) {
	db := newTestDB(t)
	svc := NewNotifyService(db, newTestConfig())
	ctx := context.Background()

	order := seedPendingOrder(t, svc, 1001, 1000, time.Now().Add(5*time.Minute))

	params := signedNotifyParams(order.OrderNo, "T2026082801", order.Amount)
	delete(params, "sign")
	params["money"] = "10.01"
	params["sign"] = resign(params)

	require.NoError(t, svc.HandleNotify(ctx, params))

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	// 入账金额以订单为准，不是通知金额
	assert.Equal(t, int64(1000), account.Balance)
}
