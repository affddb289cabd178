package models

import "time"

// DynamicCommissionRule 动态佣金规则
type DynamicCommissionRule struct {
	ID          uint      `gorm:"primarykey" json:"id"`                                      // 主键
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`                    // 规则名称
	Priority    int       `gorm:"not null;default:0;index" json:"priority"`                  // 优先级（小者优先）
	IsActive    bool      `gorm:"not null;default:true;index" json:"is_active"`              // 是否启用
	Conditions  JSON      `gorm:"type:json" json:"conditions"`                               // 匹配条件
	ActionType  string    `gorm:"type:varchar(20);not null" json:"action_type"`              // 计算方式
	ActionValue Rate      `gorm:"type:decimal(12,4);not null;default:0" json:"action_value"` // 费率或固定金额
	CreatedAt   time.Time `json:"created_at"`                                                // 创建时间
	UpdatedAt   time.Time `json:"updated_at"`                                                // 更新时间
}

// TableName 指定表名
func (DynamicCommissionRule) TableName() string {
	return "dynamic_commission_rules"
}
