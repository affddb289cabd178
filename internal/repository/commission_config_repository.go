package repository

import (
	"errors"

	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// CommissionConfigRepository 佣金配置数据访问接口（分组、等级、规则、商品覆盖）
type CommissionConfigRepository interface {
	ListActiveRules() ([]models.DynamicCommissionRule, error)
	GetGroupByID(id uint) (*models.CommissionGroup, error)
	GetTierByID(id uint) (*models.CommissionTier, error)
	ListTiersByThresholdDesc() ([]models.CommissionTier, error)
	ListProductRates() ([]models.ProductCommissionRate, error)
}

// GormCommissionConfigRepository GORM 佣金配置仓储
type GormCommissionConfigRepository struct {
	db *gorm.DB
}

// NewCommissionConfigRepository 创建佣金配置仓储
func NewCommissionConfigRepository(db *gorm.DB) *GormCommissionConfigRepository {
	return &GormCommissionConfigRepository{db: db}
}

// ListActiveRules 按优先级列出启用的动态规则
func (r *GormCommissionConfigRepository) ListActiveRules() ([]models.DynamicCommissionRule, error) {
	var rows []models.DynamicCommissionRule
	if err := r.db.Where("is_active = ?", true).
		Order("priority asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetGroupByID 获取佣金分组
func (r *GormCommissionConfigRepository) GetGroupByID(id uint) (*models.CommissionGroup, error) {
	if id == 0 {
		return nil, nil
	}
	var group models.CommissionGroup
	if err := r.db.First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

// GetTierByID 获取推广等级
func (r *GormCommissionConfigRepository) GetTierByID(id uint) (*models.CommissionTier, error) {
	if id == 0 {
		return nil, nil
	}
	var tier models.CommissionTier
	if err := r.db.First(&tier, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tier, nil
}

// ListTiersByThresholdDesc 按门槛从高到低列出等级
func (r *GormCommissionConfigRepository) ListTiersByThresholdDesc() ([]models.CommissionTier, error) {
	var rows []models.CommissionTier
	if err := r.db.Order("min_sales_amount desc, min_sales_count desc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListProductRates 列出全部推广者/分组商品覆盖费率，随配置快照整体加载
func (r *GormCommissionConfigRepository) ListProductRates() ([]models.ProductCommissionRate, error) {
	var rows []models.ProductCommissionRate
	if err := r.db.Where("affiliate_account_id IS NOT NULL OR group_id IS NOT NULL").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
