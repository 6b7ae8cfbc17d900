package service

import (
	"context"

	"imagepay/internal/model"
	"imagepay/internal/repository"
	"imagepay/pkg/idgen"

	"gorm.io/gorm"
)

// BalanceMutator 余额变更的唯一入口
//
// 每次成功的余额变更在同一个事务里恰好写一条流水，前后余额取自
// 条件更新实际作用的值；变更失败则什么都不写。除这里之外，
// 任何代码都不允许直接改 account.balance 或往 balance_log 插数据
type BalanceMutator struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewBalanceMutator(db *gorm.DB) *BalanceMutator {
	return &BalanceMutator{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// Change 一次余额变更的描述
type Change struct {
	UserID        int64
	Amount        int64  // 变更金额（分），语义见 Debit / Credit
	Kind          string // model.LogKind*
	Remark        string
	VisibleToUser bool
	OrderID       *int64 // 关联充值订单，仅在线充值需要
}

// MutationResult 变更实际作用的前后余额
type MutationResult struct {
	LogNo         string
	BalanceBefore int64
	BalanceAfter  int64
}

// Debit 带余额检查的扣费，Amount 必须为正
//
// 余额不足返回 repository.ErrBalanceNotEnough，且不产生任何写入；
// 这是自动扣费的唯一路径，不会把余额扣成负数
func (m *BalanceMutator) Debit(ctx context.Context, tx *gorm.DB, ch Change) (*MutationResult, error) {
	if tx == nil {
		var result *MutationResult
		err := m.db.Transaction(func(innerTx *gorm.DB) error {
			var innerErr error
			result, innerErr = m.Debit(ctx, innerTx, ch)
			return innerErr
		})
		return result, err
	}

	before, after, err := m.accountRepo.Deduct(ctx, tx, ch.UserID, ch.Amount)
	if err != nil {
		return nil, err
	}

	return m.writeLog(ctx, tx, ch, -ch.Amount, before, after)
}

// Credit 无余额下限的入账 / 调整，Amount 为正入账、为负扣减
//
// 充值、退款冲正走正数；管理员人工扣款走负数（允许负余额）
func (m *BalanceMutator) Credit(ctx context.Context, tx *gorm.DB, ch Change) (*MutationResult, error) {
	if tx == nil {
		var result *MutationResult
		err := m.db.Transaction(func(innerTx *gorm.DB) error {
			var innerErr error
			result, innerErr = m.Credit(ctx, innerTx, ch)
			return innerErr
		})
		return result, err
	}

	before, after, err := m.accountRepo.Increase(ctx, tx, ch.UserID, ch.Amount)
	if err != nil {
		return nil, err
	}

	return m.writeLog(ctx, tx, ch, ch.Amount, before, after)
}

func (m *BalanceMutator) writeLog(ctx context.Context, tx *gorm.DB, ch Change, signedAmount, before, after int64) (*MutationResult, error) {
	entry := &model.BalanceLog{
		LogNo:         idgen.GenerateLogNo(),
		UserID:        ch.UserID,
		Amount:        signedAmount,
		Kind:          ch.Kind,
		BalanceBefore: before,
		BalanceAfter:  after,
		Remark:        ch.Remark,
		VisibleToUser: ch.VisibleToUser,
		OrderID:       ch.OrderID,
	}
	if err := m.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	return &MutationResult{
		LogNo:         entry.LogNo,
		BalanceBefore: before,
		BalanceAfter:  after,
	}, nil
}
