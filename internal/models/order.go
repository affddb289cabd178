package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单快照（由下单流程写入，引擎只读）
type Order struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                                         // 主键
	OrderNo            string         `gorm:"uniqueIndex;not null" json:"order_no"`                         // 订单编号
	UserID             uint           `gorm:"index;not null;default:0" json:"user_id,omitempty"`            // 用户ID（游客订单为 0）
	GuestEmail         string         `gorm:"index" json:"guest_email,omitempty"`                           // 游客邮箱
	Status             string         `gorm:"index;not null" json:"status"`                                 // 订单状态
	SubtotalAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal_amount"` // 商品小计
	TaxAmount          Money          `gorm:"type:decimal(20,2);not null;default:0" json:"tax_amount"`      // 税费
	ShippingAmount     Money          `gorm:"type:decimal(20,2);not null;default:0" json:"shipping_amount"` // 运费
	TotalAmount        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`    // 实付金额
	ClientIP           string         `gorm:"type:varchar(64)" json:"client_ip,omitempty"`                  // 下单客户端IP
	AffiliateAccountID *uint          `gorm:"index" json:"affiliate_account_id,omitempty"`                  // 直接归因推广者（cookie）
	AffiliateCode      string         `gorm:"type:varchar(32)" json:"affiliate_code,omitempty"`             // 直接归因推广码
	PaidAt             *time.Time     `gorm:"index" json:"paid_at"`                                         // 支付时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                                      // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                                               // 软删除时间

	Items     []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`     // 订单项
	Referrals []Referral  `gorm:"foreignKey:OrderID" json:"referrals,omitempty"` // 已生成佣金
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

