package repository

import (
	"errors"
	"time"

	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository 键值设置数据访问接口
type SettingRepository interface {
	GetByKey(key string) (*models.Setting, error)
	Upsert(key string, value models.JSON) (*models.Setting, error)
}

// GormSettingRepository GORM 实现
type GormSettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository 创建设置仓储
func NewSettingRepository(db *gorm.DB) *GormSettingRepository {
	return &GormSettingRepository{db: db}
}

// GetByKey 获取设置，不存在时返回 nil
func (r *GormSettingRepository) GetByKey(key string) (*models.Setting, error) {
	var setting models.Setting
	if err := r.db.Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

// Upsert 写入设置，已存在时覆盖值并递增 revision，返回写入后的记录
func (r *GormSettingRepository) Upsert(key string, value models.JSON) (*models.Setting, error) {
	now := time.Now()
	setting := &models.Setting{
		Key:       key,
		ValueJSON: value,
		Revision:  1,
		UpdatedAt: now,
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value_json": value,
			"updated_at": now,
			"revision":   gorm.Expr("settings.revision + 1"),
		}),
	}).Create(setting).Error
	if err != nil {
		return nil, err
	}
	stored, err := r.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return setting, nil
	}
	return stored, nil
}
