package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"imagepay/internal/infrastructure/lock"
	"imagepay/internal/model"
	"imagepay/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrRemarkRequired = errors.New("人工调账必须填写备注")
	ErrInvalidAmount  = errors.New("金额必须大于0")
)

// AccountService 账户查询和管理后台的人工调账
type AccountService struct {
	db          *gorm.DB
	redisClient *redis.Client
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	mutator     *BalanceMutator
}

func NewAccountService(db *gorm.DB, redisClient *redis.Client) *AccountService {
	return &AccountService{
		db:          db,
		redisClient: redisClient,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		mutator:     NewBalanceMutator(db),
	}
}

func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, userID)
}

// ManualRecharge 管理员人工充值
// remark 必填，visibleToUser 决定这条流水是否出现在用户自己的流水页
func (s *AccountService) ManualRecharge(ctx context.Context, userID, amount int64, remark, operator string, visibleToUser bool) (*MutationResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if remark == "" {
		return nil, ErrRemarkRequired
	}

	if _, err := s.accountRepo.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	unlock, err := s.lockAdjust(ctx, userID, operator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := s.mutator.Credit(ctx, nil, Change{
		UserID:        userID,
		Amount:        amount,
		Kind:          model.LogKindManualRecharge,
		Remark:        "管理员人工充值: " + remark,
		VisibleToUser: visibleToUser,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Account] 人工充值: userID=%d, amount=%d, operator=%s", userID, amount, operator)
	return result, nil
}

// ManualDeduct 管理员人工扣款
// 唯一允许把余额扣成负数的路径（比如追回误充值的金额）
func (s *AccountService) ManualDeduct(ctx context.Context, userID, amount int64, remark, operator string, visibleToUser bool) (*MutationResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if remark == "" {
		return nil, ErrRemarkRequired
	}

	if _, err := s.accountRepo.GetByUserID(ctx, userID); err != nil {
		return nil, err
	}

	unlock, err := s.lockAdjust(ctx, userID, operator)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, err := s.mutator.Credit(ctx, nil, Change{
		UserID:        userID,
		Amount:        -amount,
		Kind:          model.LogKindManualDeduct,
		Remark:        "管理员人工扣款: " + remark,
		VisibleToUser: visibleToUser,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Account] 人工扣款: userID=%d, amount=%d, operator=%s", userID, amount, operator)
	return result, nil
}

func (s *AccountService) lockAdjust(ctx context.Context, userID int64, operator string) (func(), error) {
	// 没配 Redis 时退化为不加锁
	if s.redisClient == nil {
		return func() {}, nil
	}
	adjustLock := lock.NewAdjustLock(s.redisClient, userID, operator)
	if err := adjustLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	return func() {
		// 释放失败锁会占到 30 秒过期，必须留痕
		if err := adjustLock.Unlock(ctx); err != nil {
			log.Printf("[Account] 释放调账锁失败: userID=%d, operator=%s, err=%v", userID, operator, err)
		}
	}, nil
}

// ListLedger 流水分页；用户侧只看 visible_to_user 的条目，管理后台看全部
func (s *AccountService) ListLedger(ctx context.Context, userID int64, page, pageSize int, visibleOnly bool) ([]*model.BalanceLog, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize, visibleOnly)
}

// AuditReport 对账结果
type AuditReport struct {
	UserID      int64 `json:"user_id"`
	EntryCount  int   `json:"entry_count"`
	FoldedAfter int64 `json:"folded_after"` // 按创建顺序折叠流水得到的余额
	LiveBalance int64 `json:"live_balance"` // 账户实时余额
	ChainOK     bool  `json:"chain_ok"`     // 相邻流水前后余额是否衔接
	Consistent  bool  `json:"consistent"`   // 折叠结果是否等于实时余额
}

// AuditLedger 校验流水折叠不变量：
// 按创建顺序取最后一条流水的 balance_after，必须等于账户实时余额，
// 且每条流水 balance_before + amount == balance_after、与上一条首尾衔接
func (s *AccountService) AuditLedger(ctx context.Context, userID int64) (*AuditReport, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries, err := s.ledgerRepo.ListAllAscending(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &AuditReport{
		UserID:      userID,
		EntryCount:  len(entries),
		LiveBalance: account.Balance,
		ChainOK:     true,
	}

	var folded int64
	for i, entry := range entries {
		if entry.BalanceBefore+entry.Amount != entry.BalanceAfter {
			report.ChainOK = false
		}
		if i > 0 && entries[i-1].BalanceAfter != entry.BalanceBefore {
			report.ChainOK = false
		}
		folded = entry.BalanceAfter
	}

	report.FoldedAfter = folded
	report.Consistent = report.ChainOK && folded == account.Balance
	return report, nil
}
