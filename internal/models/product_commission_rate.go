package models

import "time"

// ProductCommissionRate 商品佣金覆盖配置（按推广者或分组）
type ProductCommissionRate struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                              // 主键
	ProductID          uint      `gorm:"not null;index" json:"product_id"`                  // 商品ID
	AffiliateAccountID *uint     `gorm:"index" json:"affiliate_account_id,omitempty"`       // 指定推广者
	GroupID            *uint     `gorm:"index" json:"group_id,omitempty"`                   // 指定分组
	Rate               Rate      `gorm:"type:decimal(12,4);not null;default:0" json:"rate"` // 费率或固定金额
	Type               string    `gorm:"type:varchar(20);not null" json:"type"`             // 计算方式
	IsDisabled         bool      `gorm:"not null;default:false" json:"is_disabled"`         // 是否禁止该商品返佣
	CreatedAt          time.Time `json:"created_at"`                                        // 创建时间
	UpdatedAt          time.Time `json:"updated_at"`                                        // 更新时间
}

// TableName 指定表名
func (ProductCommissionRate) TableName() string {
	return "product_commission_rates"
}
