package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Referral 佣金记录（每个订单 × 推广者一条）
type Referral struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                                                                // 主键
	AffiliateAccountID uint           `gorm:"not null;uniqueIndex:idx_referral_order_affiliate;index" json:"affiliate_account_id"` // 推广账户ID
	OrderID            uint           `gorm:"not null;uniqueIndex:idx_referral_order_affiliate;index" json:"order_id"`             // 订单ID
	OrderNo            string         `gorm:"type:varchar(64);index" json:"order_no"`                                              // 订单号快照
	GrossAmount        Money          `gorm:"type:decimal(20,2);not null;default:0" json:"gross_amount"`                           // 订单总额
	NetAmount          Money          `gorm:"type:decimal(20,2);not null;default:0" json:"net_amount"`                             // 计佣基数合计
	CommissionAmount   Money          `gorm:"type:decimal(20,2);not null;default:0" json:"commission_amount"`                      // 佣金金额
	Status             string         `gorm:"type:varchar(20);not null;index" json:"status"`                                       // 状态
	AttributionSource  string         `gorm:"type:varchar(20)" json:"attribution_source"`                                          // 归因来源 COOKIE/LIFETIME
	IsMlmReward        bool           `gorm:"not null;default:false;index" json:"is_mlm_reward"`                                   // 是否为多级分销奖励
	MlmLevel           int            `gorm:"not null;default:0" json:"mlm_level"`                                                 // 分销层级（直推为 0）
	SourceAffiliateID  *uint          `gorm:"index" json:"source_affiliate_id,omitempty"`                                          // 直推推广者（多级奖励时）
	CalculationLog     CalculationLog `gorm:"type:json" json:"calculation_log"`                                                    // 计算过程
	Note               string         `gorm:"type:varchar(500)" json:"note,omitempty"`                                             // 备注（驳回原因等）
	AvailableAt        time.Time      `gorm:"index;not null" json:"available_at"`                                                  // 冷却期截止时间
	PaidAt             *time.Time     `gorm:"index" json:"paid_at,omitempty"`                                                      // 入账时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                                                             // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                                                             // 更新时间
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}

// CalculationLogEntry 单行计算记录
type CalculationLogEntry struct {
	OrderItemID       uint   `json:"order_item_id,omitempty"`
	ProductID         uint   `json:"product_id,omitempty"`
	Source            string `json:"source"`
	Type              string `json:"type,omitempty"`
	Rate              string `json:"rate,omitempty"`
	Base              string `json:"base,omitempty"`
	Commission        string `json:"commission"`
	Excluded          bool   `json:"excluded,omitempty"`
	Level             int    `json:"level,omitempty"`
	UplineAffiliateID uint   `json:"upline_affiliate_id,omitempty"`
	Note              string `json:"note,omitempty"`
}

// CalculationLog 计算过程审计
type CalculationLog []CalculationLogEntry

// Value 实现 driver.Valuer 接口
func (l CalculationLog) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口
func (l *CalculationLog) Scan(value interface{}) error {
	if value == nil {
		*l = CalculationLog{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, l)
}
