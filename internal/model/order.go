package model

import (
	"time"
)

// OrderStatus 充值订单状态
//
// 数值与支付平台回调约定保持一致：0 待支付，1 已支付，2 已取消，3 已退款
// PAID / CANCELLED / REFUNDED 都是终态；PENDING 只允许发生一次迁出，
// 由 WHERE status = 0 的条件更新保证
type OrderStatus int

const (
	OrderStatusPending   OrderStatus = 0 // 待支付
	OrderStatusPaid      OrderStatus = 1 // 已支付
	OrderStatusCancelled OrderStatus = 2 // 已取消（手动或超时）
	OrderStatusRefunded  OrderStatus = 3 // 已退款（预留）
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusPaid:
		return "PAID"
	case OrderStatusCancelled:
		return "CANCELLED"
	case OrderStatusRefunded:
		return "REFUNDED"
	}
	return "UNKNOWN"
}

// RechargeOrder 充值订单表
// 订单只追加不删除，保留审计；过期是读取时计算出来的状态，不落库
type RechargeOrder struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"` // 商户订单号（对外可见）
	UserID        int64       `gorm:"index;not null" json:"user_id"`
	Amount        int64       `gorm:"not null" json:"amount"`              // 充值金额（分）
	PayChannel    string      `gorm:"type:varchar(32)" json:"pay_channel"` // 支付渠道（alipay/wxpay 等）
	Status        OrderStatus `gorm:"index;not null;default:0" json:"status"`
	TradeNo       string      `gorm:"type:varchar(64)" json:"trade_no"` // 支付平台交易号
	NotifyPayload string      `gorm:"type:text" json:"notify_payload"`  // 回调原始参数（JSON）
	ExpiresAt     time.Time   `gorm:"not null;index" json:"expires_at"`
	PaidAt        *time.Time  `json:"paid_at"`
	CreatedAt     time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RechargeOrder) TableName() string {
	return "recharge_order"
}

// Expired 订单是否已逻辑过期
// 只有待支付订单才有过期语义；过期不阻止迟到的支付成功回调，
// 取消和支付谁先提交谁生效
func (o *RechargeOrder) Expired(now time.Time) bool {
	return o.Status == OrderStatusPending && o.ExpiresAt.Before(now)
}
