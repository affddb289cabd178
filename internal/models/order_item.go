package models

import "time"

// OrderItem 订单项
type OrderItem struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                         // 主键
	OrderID        uint      `gorm:"index;not null" json:"order_id"`                               // 订单ID
	ProductID      uint      `gorm:"index;not null" json:"product_id"`                             // 商品ID
	CategoryID     uint      `gorm:"index" json:"category_id"`                                     // 商品分类快照
	Quantity       int       `gorm:"not null" json:"quantity"`                                     // 数量
	UnitPrice      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"unit_price"`      // 单价
	LineTotal      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"line_total"`      // 行合计（含税与分摊运费）
	TaxAmount      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"tax_amount"`      // 行税费
	ShippingAmount Money     `gorm:"type:decimal(20,2);not null;default:0" json:"shipping_amount"` // 行分摊运费
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                                      // 创建时间
}

// TableName 指定表名
func (OrderItem) TableName() string {
	return "order_items"
}
