package models

import "time"

// NotificationQueue 待发送通知（由外部发送器消费）
type NotificationQueue struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                    // 主键
	MessageID string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"message_id"` // 消息ID
	Channel   string    `gorm:"type:varchar(20);not null" json:"channel"`                // 渠道
	Recipient string    `gorm:"type:varchar(255);not null" json:"recipient"`             // 接收人
	Template  string    `gorm:"type:varchar(100);not null;index" json:"template"`        // 模板标识
	Metadata  JSON      `gorm:"type:json" json:"metadata"`                               // 模板参数
	Status    string    `gorm:"type:varchar(20);not null;index" json:"status"`           // 状态
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                              // 更新时间
}

// TableName 指定表名
func (NotificationQueue) TableName() string {
	return "notification_queue"
}
