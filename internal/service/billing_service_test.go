package service

import (
	"context"
	"errors"
	"testing"

	"imagepay/internal/model"
	"imagepay/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeGenerationSuccess(t *testing.T) {
	db := newTestDB(t)
	cfg := newTestConfig() // 单张 20 分
	svc := NewBillingService(db, cfg)
	ctx := context.Background()

	require.NoError(t, svc.accountRepo.Create(ctx, &model.Account{UserID: 1001, Balance: 100}))

	result, err := svc.ChargeGeneration(ctx, &GenerationRequest{
		UserID:     1001,
		Action:     model.ConsumeActionGenerate,
		ImageCount: 2,
		ModelName:  "sdxl",
		Prompt:     "a cat wearing sunglasses",
	}, func(ctx context.Context) (*GenerationResult, error) {
		return &GenerationResult{Images: []string{"a.png", "b.png"}}, nil
	})
	require.NoError(t, err)
	require.Len(t, result.Images, 2)

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(60), account.Balance)

	// 消费记录的前后余额取自扣费那一刻
	logs, _, err := svc.ListConsumption(ctx, 1001, 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(40), logs[0].Amount)
	assert.Equal(t, int64(100), logs[0].BalanceBefore)
	assert.Equal(t, int64(60), logs[0].BalanceAfter)
	assert.Equal(t, 2, logs[0].ImageCount)
	assert.Equal(t, "sdxl", logs[0].ModelName)
	assert.Contains(t, logs[0].Remark, "a.png")

	// 成功路径只有一条扣费流水
	entries, err := repository.NewLedgerRepository(db).ListAllAscending(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LogKindConsume, entries[0].Kind)
	assert.Equal(t, int64(-40), entries[0].Amount)
}

// 生成失败：退款冲正，净变动为零，留下扣费 + 冲正两条流水
func TestChargeGenerationFailureRefunds(t *testing.T) {
	db := newTestDB(t)
	svc := NewBillingService(db, newTestConfig())
	ctx := context.Background()

	require.NoError(t, svc.accountRepo.Create(ctx, &model.Account{UserID: 1001, Balance: 100}))

	_, err := svc.ChargeGeneration(ctx, &GenerationRequest{
		UserID:     1001,
		Action:     model.ConsumeActionGenerate,
		ImageCount: 1,
		ModelName:  "sdxl",
	}, func(ctx context.Context) (*GenerationResult, error) {
		return nil, errors.New("上游超时")
	})
	require.Error(t, err)

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)

	entries, err := repository.NewLedgerRepository(db).ListAllAscending(ctx, 1001)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LogKindConsume, entries[0].Kind)
	assert.Equal(t, int64(-20), entries[0].Amount)
	assert.Equal(t, model.LogKindRefund, entries[1].Kind)
	assert.Equal(t, int64(20), entries[1].Amount)

	// 失败不落消费记录
	logs, _, err := svc.ListConsumption(ctx, 1001, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// 零产出按失败处理，同样冲正
func TestChargeGenerationEmptyResultRefunds(t *testing.T) {
	db := newTestDB(t)
	svc := NewBillingService(db, newTestConfig())
	ctx := context.Background()

	require.NoError(t, svc.accountRepo.Create(ctx, &model.Account{UserID: 1001, Balance: 100}))

	_, err := svc.ChargeGeneration(ctx, &GenerationRequest{
		UserID:     1001,
		Action:     model.ConsumeActionGenerate,
		ImageCount: 1,
		ModelName:  "sdxl",
	}, func(ctx context.Context) (*GenerationResult, error) {
		return &GenerationResult{}, nil
	})
	require.Error(t, err)

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)
}

// 余额不足：不调用生成，返回带所需金额的错误
func TestChargeGenerationInsufficientBalance(t *testing.T) {
	db := newTestDB(t)
	svc := NewBillingService(db, newTestConfig())
	ctx := context.Background()

	require.NoError(t, svc.accountRepo.Create(ctx, &model.Account{UserID: 1001, Balance: 10}))

	workCalled := false
	_, err := svc.ChargeGeneration(ctx, &GenerationRequest{
		UserID:     1001,
		Action:     model.ConsumeActionGenerate,
		ImageCount: 3,
		ModelName:  "sdxl",
	}, func(ctx context.Context) (*GenerationResult, error) {
		workCalled = true
		return &GenerationResult{Images: []string{"a.png"}}, nil
	})

	var insufficientErr *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, int64(60), insufficientErr.Required)
	assert.Equal(t, int64(10), insufficientErr.Balance)
	assert.False(t, workCalled)

	// 没有任何流水
	entries, err := repository.NewLedgerRepository(db).ListAllAscending(ctx, 1001)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// 张数缺省按 1 张计费，且不回写调用方的请求
func TestChargeGenerationDefaultImageCount(t *testing.T) {
	db := newTestDB(t)
	svc := NewBillingService(db, newTestConfig())
	ctx := context.Background()

	require.NoError(t, svc.accountRepo.Create(ctx, &model.Account{UserID: 1001, Balance: 100}))

	req := &GenerationRequest{
		UserID:    1001,
		Action:    model.ConsumeActionGenerate,
		ModelName: "sdxl",
	}
	_, err := svc.ChargeGeneration(ctx, req, func(ctx context.Context) (*GenerationResult, error) {
		return &GenerationResult{Images: []string{"a.png"}}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 0, req.ImageCount)

	account, err := svc.accountRepo.GetByUserID(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(80), account.Balance)

	logs, _, err := svc.ListConsumption(ctx, 1001, 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].ImageCount)
	assert.Equal(t, int64(20), logs[0].Amount)
}

func TestConsumptionStats(t *testing.T) {
	db := newTestDB(t)
	svc := NewBillingService(db, newTestConfig())
	ctx := context.Background()

	require.NoError(t, svc.accountRepo.Create(ctx, &model.Account{UserID: 1001, Balance: 1000}))

	for i := 0; i < 3; i++ {
		_, err := svc.ChargeGeneration(ctx, &GenerationRequest{
			UserID:     1001,
			Action:     model.ConsumeActionGenerate,
			ImageCount: 2,
			ModelName:  "sdxl",
		}, func(ctx context.Context) (*GenerationResult, error) {
			return &GenerationResult{Images: []string{"a.png", "b.png"}}, nil
		})
		require.NoError(t, err)
	}

	stats, err := svc.ConsumptionStats(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalCount)
	assert.Equal(t, int64(120), stats.TotalAmount)
	assert.Equal(t, int64(6), stats.TotalImages)
}
