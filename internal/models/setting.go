package models

import "time"

// Setting 键值设置（推广计划配置存于 affiliate_config）
type Setting struct {
	Key       string    `gorm:"primarykey;type:varchar(64)" json:"key"` // 配置键
	ValueJSON JSON      `gorm:"type:json" json:"value"`                 // 配置值
	Revision  int64     `gorm:"not null;default:1" json:"revision"`     // 写入次数，每次覆盖递增
	UpdatedAt time.Time `json:"updated_at"`                             // 更新时间
}

// TableName 指定表名
func (Setting) TableName() string {
	return "settings"
}
