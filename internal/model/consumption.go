package model

import (
	"time"
)

const (
	ConsumeActionGenerate = "GENERATE" // 文生图
	ConsumeActionEdit     = "EDIT"     // 图生图/编辑
)

// ConsumptionLog 消费记录表
// 每次预扣费成功且生成任务完成时写一条；生成失败走冲正流水，不写消费记录
type ConsumptionLog struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Action        string    `gorm:"type:varchar(20);not null" json:"action"`
	Amount        int64     `gorm:"not null" json:"amount"` // 扣费金额（分）
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	ImageCount    int       `gorm:"not null;default:1" json:"image_count"` // 生成张数
	ModelName     string    `gorm:"type:varchar(64)" json:"model_name"`    // 使用的生成模型
	Remark        string    `gorm:"type:varchar(512)" json:"remark"`       // 提示词摘要和产物文件名
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ConsumptionLog) TableName() string {
	return "consumption_log"
}
