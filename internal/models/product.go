package models

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品（仅保留计佣所需字段）
type Product struct {
	ID              uint           `gorm:"primarykey" json:"id"`                                          // 主键
	Slug            string         `gorm:"uniqueIndex;not null" json:"slug"`                              // 唯一标识
	CategoryID      uint           `gorm:"index" json:"category_id"`                                      // 分类ID
	PriceAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price_amount"`     // 售价
	CostAmount      Money          `gorm:"type:decimal(20,2);not null;default:0" json:"cost_amount"`      // 成本价（利润基数）
	CommissionValue Money          `gorm:"type:decimal(20,2);not null;default:0" json:"commission_value"` // CV 值（多级分销基数）
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt       time.Time      `gorm:"index" json:"updated_at"`                                       // 更新时间
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`                                                // 软删除时间
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
