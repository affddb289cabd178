package models

import "time"

// CommissionGroup 佣金分组
type CommissionGroup struct {
	ID          uint      `gorm:"primarykey" json:"id"`                               // 主键
	Name        string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"` // 分组名称
	DefaultRate *Rate     `gorm:"type:decimal(12,4)" json:"default_rate,omitempty"`   // 默认费率（可空）
	DefaultType string    `gorm:"type:varchar(20)" json:"default_type"`               // 默认计算方式
	CreatedAt   time.Time `json:"created_at"`                                         // 创建时间
	UpdatedAt   time.Time `json:"updated_at"`                                         // 更新时间
}

// TableName 指定表名
func (CommissionGroup) TableName() string {
	return "commission_groups"
}

// CommissionTier 推广等级
type CommissionTier struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                          // 主键
	Name           string    `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`            // 等级名称
	DefaultRate    *Rate     `gorm:"type:decimal(12,4)" json:"default_rate,omitempty"`              // 默认费率（可空）
	DefaultType    string    `gorm:"type:varchar(20)" json:"default_type"`                          // 默认计算方式
	MinSalesAmount Money     `gorm:"type:decimal(20,2);not null;default:0" json:"min_sales_amount"` // 晋升所需累计收益
	MinSalesCount  int       `gorm:"not null;default:0" json:"min_sales_count"`                     // 晋升所需有效订单数
	CreatedAt      time.Time `json:"created_at"`                                                    // 创建时间
	UpdatedAt      time.Time `json:"updated_at"`                                                    // 更新时间
}

// TableName 指定表名
func (CommissionTier) TableName() string {
	return "commission_tiers"
}
