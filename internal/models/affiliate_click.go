package models

import "time"

// AffiliateClick 推广点击记录，用于点击去重、速率检查与风险评分
type AffiliateClick struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                                                                                   // 主键
	AffiliateAccountID uint      `gorm:"not null;index:idx_click_account_time,priority:1;index:idx_click_account_visitor,priority:1" json:"affiliate_account_id"` // 推广账户ID
	VisitorKey         string    `gorm:"type:varchar(128);index:idx_click_account_visitor,priority:2" json:"visitor_key"`                                        // 访客标识（cookie/设备指纹）
	LandingPath        string    `gorm:"type:varchar(512)" json:"landing_path"`                                                                                  // 落地页
	ClientIP           string    `gorm:"type:varchar(64);index" json:"client_ip"`                                                                                // 访客IP（独立 IP 占比）
	UserAgent          string    `gorm:"type:varchar(1024)" json:"user_agent"`                                                                                   // 访客UA
	CreatedAt          time.Time `gorm:"not null;index;index:idx_click_account_time,priority:2;index:idx_click_account_visitor,priority:3" json:"created_at"`    // 点击时间
}

// TableName 指定表名
func (AffiliateClick) TableName() string {
	return "affiliate_clicks"
}
