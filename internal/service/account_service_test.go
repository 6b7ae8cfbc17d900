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

func TestManualRecharge(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccountService(db, nil)
	ctx := context.Background()

	// 账户不存在时自动创建
	result, err := svc.ManualRecharge(ctx, 1001, 500, "活动补偿", "admin", true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.BalanceBefore)
	assert.Equal(t, int64(500), result.BalanceAfter)

	account, err := svc.GetAccount(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(500), account.Balance)

	entries, _, err := svc.ListLedger(ctx, 1001, 1, 10, true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogKindManualRecharge, entries[0].Kind)
	assert.True(t, entries[0].VisibleToUser)

	// 备注必填
	_, err = svc.ManualRecharge(ctx, 1001, 500, "", "admin", true)
	assert.ErrorIs(t, err, ErrRemarkRequired)

	_, err = svc.ManualRecharge(ctx, 1001, 0, "x", "admin", true)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestManualDeduct(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccountService(db, nil)
	ctx := context.Background()

	_, err := svc.ManualRecharge(ctx, 1001, 300, "初始", "admin", true)
	require.NoError(t, err)

	// 人工扣款允许把余额扣成负数（追回误充值）
	result, err := svc.ManualDeduct(ctx, 1001, 500, "追回误充值", "admin", false)
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.BalanceBefore)
	assert.Equal(t, int64(-200), result.BalanceAfter)

	// 不可见的流水用户侧看不到，管理后台能看到
	visible, _, err := svc.ListLedger(ctx, 1001, 1, 10, true)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, _, err := svc.ListLedger(ctx, 1001, 1, 10, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// 不存在的账户不能扣款
	_, err = svc.ManualDeduct(ctx, 9999, 100, "x", "admin", true)
	assert.ErrorIs(t, err, repository.ErrAccountNotFound)
}

// 混合几种变更后，流水按创建顺序折叠必须等于实时余额
func TestAuditLedgerFoldInvariant(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig()
	accountSvc := NewAccountService(db, nil)
	notifySvc := NewNotifyService(db, cfg)
	billingSvc := NewBillingService(db, cfg)
	ctx := context.Background()

	// 在线充值 10 元
	order := &model.RechargeOrder{
		OrderNo:   "RC20260828000000001",
		UserID:    1001,
		Amount:    1000,
		Status:    model.OrderStatusPending,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	require.NoError(t, notifySvc.orderRepo.Create(ctx, nil, order))
	require.NoError(t, notifySvc.HandleNotify(ctx, signedNotifyParams(order.OrderNo, "T2026082801", 1000)))

	// 人工充值 + 扣款
	_, err := accountSvc.ManualRecharge(ctx, 1001, 200, "补偿", "admin", true)
	require.NoError(t, err)
	_, err = accountSvc.ManualDeduct(ctx, 1001, 50, "修正", "admin", true)
	require.NoError(t, err)

	// 一次成功生成 + 一次失败冲正
	_, err = billingSvc.ChargeGeneration(ctx, &GenerationRequest{
		UserID: 1001, Action: model.ConsumeActionGenerate, ImageCount: 1, ModelName: "sdxl",
	}, func(ctx context.Context) (*GenerationResult, error) {
		return &GenerationResult{Images: []string{"a.png"}}, nil
	})
	require.NoError(t, err)
	_, err = billingSvc.ChargeGeneration(ctx, &GenerationRequest{
		UserID: 1001, Action: model.ConsumeActionGenerate, ImageCount: 1, ModelName: "sdxl",
	}, func(ctx context.Context) (*GenerationResult, error) {
		return nil, context.DeadlineExceeded
	})
	require.Error(t, err)

	report, err := accountSvc.AuditLedger(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, 6, report.EntryCount)
	assert.True(t, report.ChainOK)
	assert.True(t, report.Consistent)
	// 1000 + 200 - 50 - 20 + (-20 + 20) = 1130
	assert.Equal(t, int64(1130), report.FoldedAfter)
	assert.Equal(t, int64(1130), report.LiveBalance)
}

func TestAuditLedgerDetectsTamper(t *testing.T) {
	db := newTestDB(t)
	svc := NewAccountService(db, nil)
	ctx := context.Background()

	_, err := svc.ManualRecharge(ctx, 1001, 500, "初始", "admin", true)
	require.NoError(t, err)

	// 绕过变更入口直接改余额，对账必须发现
	require.NoError(t, db.Model(&model.Account{}).
		Where("user_id = ?", 1001).
		Update("balance", 9999).Error)

	report, err := svc.AuditLedger(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, report.ChainOK)
	assert.False(t, report.Consistent)
	assert.Equal(t, int64(500), report.FoldedAfter)
	assert.Equal(t, int64(9999), report.LiveBalance)
}
