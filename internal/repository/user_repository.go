package repository

import (
	"errors"
	"time"

	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// UserRepository 买家用户数据访问接口
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	GetByID(id uint) (*models.User, error)
	BindReferredByIfEmpty(userID, affiliateID uint, at time.Time) (bool, error)
}

// GormUserRepository GORM 用户仓储
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// WithTx 绑定事务
func (r *GormUserRepository) WithTx(tx *gorm.DB) UserRepository {
	if tx == nil {
		return r
	}
	return &GormUserRepository{db: tx}
}

// GetByID 获取用户
func (r *GormUserRepository) GetByID(id uint) (*models.User, error) {
	if id == 0 {
		return nil, nil
	}
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// BindReferredByIfEmpty 仅在尚未绑定时写入终身归因推广者
func (r *GormUserRepository) BindReferredByIfEmpty(userID, affiliateID uint, at time.Time) (bool, error) {
	if userID == 0 || affiliateID == 0 {
		return false, nil
	}
	result := r.db.Model(&models.User{}).
		Where("id = ? AND referred_by_affiliate_id IS NULL", userID).
		Updates(map[string]interface{}{
			"referred_by_affiliate_id": affiliateID,
			"referred_at":              at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
