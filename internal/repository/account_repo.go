package repository

import (
	"context"
	"errors"

	"imagepay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
)

// maxCASRetry 乐观锁冲突时的最大重试次数
// 冲突只在同一用户并发变更时出现，重试几次就能收敛
const maxCASRetry = 3

// AccountRepository 余额的唯一写入口
//
// 【核心机制】扣费不依赖任何应用层锁，靠单条条件更新保证并发安全：
//
//	UPDATE account SET balance = balance - ?, version = version + 1
//	WHERE user_id = ? AND balance >= ? AND version = ?
//
// 检查和扣减在同一条语句里由存储引擎原子完成，多进程并发扣同一账户时
// 要么都成功（余额够），要么后到的看到 RowsAffected = 0。version 条件保证
// 先读到的余额就是这次更新实际作用的余额，流水的前后值可以直接用读到的值，
// 不需要（也不允许）事后重查
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreate 取账户，不存在则建零余额账户（并发创建用 ON CONFLICT 吞掉冲突）
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	newAccount := &model.Account{UserID: userID, Balance: 0}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newAccount).Error
	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Deduct 原子扣减余额，返回本次扣减实际作用的前后余额
//
// 余额不足时不产生任何写入，返回 ErrBalanceNotEnough；
// RowsAffected = 0 且余额足够说明输给了并发的版本变更，重读后重试
func (r *AccountRepository) Deduct(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (balanceBefore, balanceAfter int64, err error) {
	if tx == nil {
		tx = r.db
	}

	for i := 0; i < maxCASRetry; i++ {
		var account model.Account
		err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, 0, ErrAccountNotFound
			}
			return 0, 0, err
		}

		if account.Balance < amount {
			return account.Balance, account.Balance, ErrBalanceNotEnough
		}

		result := tx.WithContext(ctx).
			Model(&model.Account{}).
			Where("user_id = ? AND balance >= ? AND version = ?", userID, amount, account.Version).
			Updates(map[string]interface{}{
				"balance": gorm.Expr("balance - ?", amount),
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return 0, 0, result.Error
		}
		if result.RowsAffected > 0 {
			return account.Balance, account.Balance - amount, nil
		}
		// 版本变了，重读再试
	}

	return 0, 0, ErrOptimisticLock
}

// Increase 原子变更余额（无余额下限检查），返回前后余额
//
// delta 为正是入账（充值、退款冲正），为负是管理员人工扣款；
// 人工扣款允许把余额扣成负数，这是唯一允许负余额的路径
func (r *AccountRepository) Increase(ctx context.Context, tx *gorm.DB, userID int64, delta int64) (balanceBefore, balanceAfter int64, err error) {
	if tx == nil {
		tx = r.db
	}

	for i := 0; i < maxCASRetry; i++ {
		var account model.Account
		err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return 0, 0, ErrAccountNotFound
			}
			return 0, 0, err
		}

		result := tx.WithContext(ctx).
			Model(&model.Account{}).
			Where("user_id = ? AND version = ?", userID, account.Version).
			Updates(map[string]interface{}{
				"balance": gorm.Expr("balance + ?", delta),
				"version": gorm.Expr("version + 1"),
			})
		if result.Error != nil {
			return 0, 0, result.Error
		}
		if result.RowsAffected > 0 {
			return account.Balance, account.Balance + delta, nil
		}
	}

	return 0, 0, ErrOptimisticLock
}
