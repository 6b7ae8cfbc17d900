package model

import (
	"time"
)

// Account 用户账户表
// 记录用户的余额（单位：分），是整个计费系统的核心数据
//
// 余额只允许通过带条件的原子更新修改（见 repository.AccountRepository），
// 自动扣费路径不允许把余额扣成负数；只有管理员人工扣款可以出现负余额
type Account struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"` // 可用余额（分）
	Version   int       `gorm:"not null;default:0" json:"version"` // 乐观锁版本号
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
