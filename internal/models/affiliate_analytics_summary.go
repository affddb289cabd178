package models

import "time"

// AffiliateAnalyticsSummary 推广者按日汇总
type AffiliateAnalyticsSummary struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                                                  // 主键
	AffiliateAccountID uint      `gorm:"not null;uniqueIndex:idx_analytics_affiliate_day" json:"affiliate_account_id"`          // 推广账户ID
	SummaryDate        string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_analytics_affiliate_day" json:"summary_date"` // 日期 YYYY-MM-DD
	Conversions        int       `gorm:"not null;default:0" json:"conversions"`                                                 // 转化数
	Revenue            Money     `gorm:"type:decimal(20,2);not null;default:0" json:"revenue"`                                  // 成交额
	Commission         Money     `gorm:"type:decimal(20,2);not null;default:0" json:"commission"`                               // 佣金
	CreatedAt          time.Time `json:"created_at"`                                                                            // 创建时间
	UpdatedAt          time.Time `json:"updated_at"`                                                                            // 更新时间
}

// TableName 指定表名
func (AffiliateAnalyticsSummary) TableName() string {
	return "affiliate_analytics_summaries"
}
