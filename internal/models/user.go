package models

import (
	"time"

	"gorm.io/gorm"
)

// User 买家用户（终身归因链接挂在此表）
type User struct {
	ID                    uint           `gorm:"primarykey" json:"id"`                            // 主键
	Email                 string         `gorm:"uniqueIndex;not null" json:"email"`               // 邮箱
	DisplayName           string         `gorm:"default:''" json:"display_name"`                  // 昵称
	Status                string         `gorm:"default:'active'" json:"status"`                  // 账号状态
	ReferredByAffiliateID *uint          `gorm:"index" json:"referred_by_affiliate_id,omitempty"` // 终身归因推广者
	ReferredAt            *time.Time     `json:"referred_at,omitempty"`                           // 归因绑定时间
	LastLoginIP           string         `gorm:"type:varchar(64)" json:"last_login_ip,omitempty"` // 最近登录IP
	CreatedAt             time.Time      `gorm:"index" json:"created_at"`                         // 创建时间
	UpdatedAt             time.Time      `gorm:"index" json:"updated_at"`                         // 更新时间
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`                                  // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
