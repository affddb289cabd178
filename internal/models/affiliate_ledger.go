package models

import "time"

// AffiliateLedger 推广账户余额流水（只追加）
type AffiliateLedger struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                        // 主键
	EntryNo            string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"entry_no"`       // 流水号
	AffiliateAccountID uint      `gorm:"not null;index" json:"affiliate_account_id"`                  // 推广账户ID
	ReferralID         *uint     `gorm:"uniqueIndex" json:"referral_id,omitempty"`                    // 关联佣金记录
	Type               string    `gorm:"type:varchar(20);not null;index" json:"type"`                 // 流水类型
	Amount             Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`         // 变动金额（有符号）
	BalanceBefore      Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance_before"` // 变动前余额
	BalanceAfter       Money     `gorm:"type:decimal(20,2);not null;default:0" json:"balance_after"`  // 变动后余额
	Remark             string    `gorm:"type:varchar(255)" json:"remark,omitempty"`                   // 备注
	CreatedAt          time.Time `gorm:"index" json:"created_at"`                                     // 创建时间
}

// TableName 指定表名
func (AffiliateLedger) TableName() string {
	return "affiliate_ledgers"
}
