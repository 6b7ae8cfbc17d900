package model

import (
	"time"
)

// ============================================================================
// 余额流水类型常量
// ============================================================================

const (
	LogKindOnlineRecharge = "ONLINE_RECHARGE" // 在线充值（支付回调入账）
	LogKindManualRecharge = "MANUAL_RECHARGE" // 管理员人工充值
	LogKindConsume        = "CONSUME"         // 生成消费扣费
	LogKindManualDeduct   = "MANUAL_DEDUCT"   // 管理员人工扣款
	LogKindRefund         = "REFUND"          // 扣费冲正（生成失败退回）
)

// ============================================================================
// 余额流水实体
// ============================================================================

// BalanceLog 余额流水表
// 记录账户的每一笔资金变动，是对账的核心依据
//
// 【重要】流水表设计原则：
//  1. 只追加，不修改，不删除 —— 保证审计可追溯
//  2. 记录变动前后余额 —— 按创建时间折叠流水，最后一条的 balance_after
//     必须等于账户实时余额
//  3. 每条流水和余额更新写在同一个事务里，且前后余额取自条件更新
//     实际应用的值，不允许事后重查
type BalanceLog struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	LogNo         string `gorm:"type:varchar(64);uniqueIndex;not null" json:"log_no"` // 流水号（全局唯一）
	UserID        int64  `gorm:"index;not null" json:"user_id"`
	Amount        int64  `gorm:"not null" json:"amount"` // 变动金额（分，正数入账，负数出账）
	Kind          string `gorm:"type:varchar(20);not null" json:"kind"`
	BalanceBefore int64  `gorm:"not null" json:"balance_before"` // 变动前余额（分）
	BalanceAfter  int64  `gorm:"not null" json:"balance_after"`  // 变动后余额（分）
	Remark        string `gorm:"type:varchar(256)" json:"remark"`
	// 注意不能给 default:true：gorm 会把零值 false 当默认值省略掉
	VisibleToUser bool      `gorm:"not null" json:"visible_to_user"` // 是否在用户流水页展示
	OrderID       *int64    `gorm:"index" json:"order_id"`           // 关联充值订单（仅在线充值有）
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BalanceLog) TableName() string {
	return "balance_log"
}
