package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"imagepay/internal/config"
	"imagepay/internal/model"
	"imagepay/internal/repository"

	"gorm.io/gorm"
)

// InsufficientBalanceError 余额不足，带上本次需要的金额供前端提示充值
type InsufficientBalanceError struct {
	Required int64 // 分
	Balance  int64 // 分
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("余额不足: 需要 %d 分，当前 %d 分", e.Required, e.Balance)
}

// GenerationRequest 一次生成任务的计费描述
type GenerationRequest struct {
	UserID     int64
	Action     string // model.ConsumeAction*
	ImageCount int    // 生成张数，计费单位
	ModelName  string
	Prompt     string
}

// GenerationResult 生成任务产出
type GenerationResult struct {
	Images []string // 产物文件名
	Text   string
}

// GenerateFunc 外部生成调用，由上层注入
// 刻意放在任何事务之外执行：外部 API 再慢也不会占着数据库连接或行锁
type GenerateFunc func(ctx context.Context) (*GenerationResult, error)

// BillingService 预扣费 + 失败补偿
//
// 流程：先扣费（写一条消费流水），再调外部生成；生成失败或零产出
// 就把钱原路退回（写一条冲正流水），净变动为零。扣费和生成之间
// 没有事务跨越，崩溃窗口的结果是"已扣费未生成"，由冲正流水对账发现
type BillingService struct {
	db              *gorm.DB
	cfg             *config.Config
	accountRepo     *repository.AccountRepository
	consumptionRepo *repository.ConsumptionRepository
	mutator         *BalanceMutator
}

func NewBillingService(db *gorm.DB, cfg *config.Config) *BillingService {
	return &BillingService{
		db:              db,
		cfg:             cfg,
		accountRepo:     repository.NewAccountRepository(db),
		consumptionRepo: repository.NewConsumptionRepository(db),
		mutator:         NewBalanceMutator(db),
	}
}

// ChargeGeneration 带补偿的计费执行
//
// 预扣费失败直接返回 InsufficientBalanceError，不会调用 work；
// work 失败或零产出时退款冲正，账户净变动为零，留下扣费/冲正两条流水；
// work 成功时用扣费时捕获的前后余额写消费记录，不再读余额（没有第二个竞态窗口）
func (s *BillingService) ChargeGeneration(ctx context.Context, req *GenerationRequest, work GenerateFunc) (*GenerationResult, error) {
	imageCount := req.ImageCount
	if imageCount <= 0 {
		imageCount = 1
	}
	amount := s.cfg.Business.PricePerImage * int64(imageCount)

	// 预扣费（独立事务：扣余额 + 消费流水）
	debit, err := s.mutator.Debit(ctx, nil, Change{
		UserID:        req.UserID,
		Amount:        amount,
		Kind:          model.LogKindConsume,
		Remark:        fmt.Sprintf("生成扣费-%s-%d张", req.ModelName, imageCount),
		VisibleToUser: true,
	})
	if err != nil {
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			account, accErr := s.accountRepo.GetByUserID(ctx, req.UserID)
			balance := int64(0)
			if accErr == nil {
				balance = account.Balance
			}
			return nil, &InsufficientBalanceError{Required: amount, Balance: balance}
		}
		return nil, fmt.Errorf("预扣费失败: %w", err)
	}

	// 外部生成调用，任何事务之外
	result, workErr := work(ctx)

	if workErr != nil || result == nil || len(result.Images) == 0 {
		// 补偿：生成没有产出，退回扣掉的钱
		if _, refundErr := s.mutator.Credit(ctx, nil, Change{
			UserID:        req.UserID,
			Amount:        amount,
			Kind:          model.LogKindRefund,
			Remark:        fmt.Sprintf("生成失败退款-%s", req.ModelName),
			VisibleToUser: true,
		}); refundErr != nil {
			// 退款失败只能靠流水对账兜底，必须留痕
			log.Printf("[Billing] 退款冲正失败，需人工处理: userID=%d, amount=%d, err=%v",
				req.UserID, amount, refundErr)
			return nil, fmt.Errorf("生成失败且退款异常: %w", refundErr)
		}

		log.Printf("[Billing] 生成失败已冲正: userID=%d, amount=%d", req.UserID, amount)
		if workErr != nil {
			return nil, fmt.Errorf("生成失败: %w", workErr)
		}
		return nil, errors.New("生成未返回任何图片")
	}

	// 消费记录用扣费时捕获的前后余额
	consumption := &model.ConsumptionLog{
		UserID:        req.UserID,
		Action:        req.Action,
		Amount:        amount,
		BalanceBefore: debit.BalanceBefore,
		BalanceAfter:  debit.BalanceAfter,
		ImageCount:    imageCount,
		ModelName:     req.ModelName,
		Remark:        consumptionRemark(req.Prompt, result.Images),
	}
	if err := s.consumptionRepo.Create(ctx, nil, consumption); err != nil {
		return nil, fmt.Errorf("记录消费失败: %w", err)
	}

	log.Printf("[Billing] 生成扣费成功: userID=%d, amount=%d, images=%d",
		req.UserID, amount, len(result.Images))
	return result, nil
}

func (s *BillingService) ListConsumption(ctx context.Context, userID int64, page, pageSize int) ([]*model.ConsumptionLog, int64, error) {
	return s.consumptionRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *BillingService) ConsumptionStats(ctx context.Context, userID int64) (*repository.ConsumptionStats, error) {
	return s.consumptionRepo.StatsByUserID(ctx, userID)
}

// consumptionRemark 提示词摘要 + 产物文件名
func consumptionRemark(prompt string, images []string) string {
	summary := []rune(prompt)
	if len(summary) > 100 {
		summary = summary[:100]
	}
	return fmt.Sprintf("%s | %s", string(summary), strings.Join(images, ","))
}
