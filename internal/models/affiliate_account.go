package models

import (
	"time"

	"gorm.io/gorm"
)

// AffiliateAccount 推广账户
type AffiliateAccount struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                        // 主键
	UserID        uint           `gorm:"index" json:"user_id"`                                        // 关联用户ID（0 表示外部推广者）
	Email         string         `gorm:"type:varchar(255);index" json:"email"`                        // 推广者邮箱
	AffiliateCode string         `gorm:"type:varchar(32);not null;uniqueIndex" json:"code"`           // 推广码
	Status        string         `gorm:"type:varchar(20);not null;index" json:"status"`               // 状态
	GroupID       *uint          `gorm:"index" json:"group_id,omitempty"`                             // 佣金分组
	TierID        *uint          `gorm:"index" json:"tier_id,omitempty"`                              // 当前等级
	SponsorID     *uint          `gorm:"index" json:"sponsor_id,omitempty"`                           // 上级推广者（多级分销）
	Balance       Money          `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`        // 可提现余额
	TotalEarnings Money          `gorm:"type:decimal(20,2);not null;default:0" json:"total_earnings"` // 累计收益（只增不减）
	RiskScore     int            `gorm:"not null;default:0" json:"risk_score"`                        // 风险分（0-100）
	RiskFlags     JSON           `gorm:"type:json" json:"risk_flags,omitempty"`                       // 风险标记
	SignupIP      string         `gorm:"type:varchar(64)" json:"signup_ip,omitempty"`                 // 注册IP
	LastLoginIP   string         `gorm:"type:varchar(64)" json:"last_login_ip,omitempty"`             // 最近登录IP
	RiskUpdatedAt *time.Time     `json:"risk_updated_at,omitempty"`                                   // 风险分更新时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                     // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                     // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                              // 软删除时间
}

// TableName 指定表名
func (AffiliateAccount) TableName() string {
	return "affiliate_accounts"
}

// IsDeleted 是否已软删除
func (a *AffiliateAccount) IsDeleted() bool {
	return a != nil && a.DeletedAt.Valid
}
