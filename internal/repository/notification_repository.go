package repository

import (
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// NotificationRepository 通知队列数据访问接口
type NotificationRepository interface {
	WithTx(tx *gorm.DB) NotificationRepository
	Create(row *models.NotificationQueue) error
	ListByTemplate(template string) ([]models.NotificationQueue, error)
}

// GormNotificationRepository GORM 通知队列仓储
type GormNotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository 创建通知队列仓储
func NewNotificationRepository(db *gorm.DB) *GormNotificationRepository {
	return &GormNotificationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormNotificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	if tx == nil {
		return r
	}
	return &GormNotificationRepository{db: tx}
}

// Create 写入待发送通知
func (r *GormNotificationRepository) Create(row *models.NotificationQueue) error {
	if row == nil {
		return nil
	}
	return r.db.Create(row).Error
}

// ListByTemplate 按模板列出通知
func (r *GormNotificationRepository) ListByTemplate(template string) ([]models.NotificationQueue, error) {
	var rows []models.NotificationQueue
	if err := r.db.Where("template = ?", template).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
