package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AffiliateRepository 推广账户数据访问接口
type AffiliateRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) AffiliateRepository

	GetAccountByID(id uint) (*models.AffiliateAccount, error)
	GetAccountByIDUnscoped(id uint) (*models.AffiliateAccount, error)
	GetAccountByIDForUpdate(id uint) (*models.AffiliateAccount, error)
	GetAccountByCode(code string) (*models.AffiliateAccount, error)
	CreateAccount(account *models.AffiliateAccount) error
	UpdateAccountBalance(id uint, balance, totalEarnings models.Money, updatedAt time.Time) error
	UpdateAccountTier(id uint, tierID uint, updatedAt time.Time) error
	UpdateRiskScore(id uint, score int, flags models.JSON, updatedAt time.Time) error
	ListTierCandidates(tier models.CommissionTier) ([]models.AffiliateAccount, error)

	CreateClick(click *models.AffiliateClick) error
	HasRecentClick(accountID uint, visitorKey, landingPath string, since time.Time) (bool, error)
	CountClicksSince(accountID uint, since time.Time) (int64, error)
	CountDistinctClickIPsSince(accountID uint, since time.Time) (int64, error)
	ListAccountIDsWithClicksSince(since time.Time) ([]uint, error)
}

// GormAffiliateRepository GORM 推广账户仓储
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository 创建推广账户仓储
func NewAffiliateRepository(db *gorm.DB) *GormAffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

// Transaction 执行事务
func (r *GormAffiliateRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormAffiliateRepository) WithTx(tx *gorm.DB) AffiliateRepository {
	if tx == nil {
		return r
	}
	return &GormAffiliateRepository{db: tx}
}

// GetAccountByID 获取推广账户（不含已删除）
func (r *GormAffiliateRepository) GetAccountByID(id uint) (*models.AffiliateAccount, error) {
	if id == 0 {
		return nil, nil
	}
	var account models.AffiliateAccount
	if err := r.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetAccountByIDUnscoped 获取推广账户（含已软删除）
func (r *GormAffiliateRepository) GetAccountByIDUnscoped(id uint) (*models.AffiliateAccount, error) {
	if id == 0 {
		return nil, nil
	}
	var account models.AffiliateAccount
	if err := r.db.Unscoped().First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetAccountByIDForUpdate 加锁获取推广账户
func (r *GormAffiliateRepository) GetAccountByIDForUpdate(id uint) (*models.AffiliateAccount, error) {
	if id == 0 {
		return nil, nil
	}
	var account models.AffiliateAccount
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetAccountByCode 按推广码获取账户
func (r *GormAffiliateRepository) GetAccountByCode(code string) (*models.AffiliateAccount, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	var account models.AffiliateAccount
	if err := r.db.Where("affiliate_code = ?", code).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// CreateAccount 创建推广账户
func (r *GormAffiliateRepository) CreateAccount(account *models.AffiliateAccount) error {
	if account == nil {
		return nil
	}
	return r.db.Create(account).Error
}

// UpdateAccountBalance 写入余额与累计收益
func (r *GormAffiliateRepository) UpdateAccountBalance(id uint, balance, totalEarnings models.Money, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"balance":        balance,
			"total_earnings": totalEarnings,
			"updated_at":     updatedAt,
		}).Error
}

// UpdateAccountTier 调整推广等级
func (r *GormAffiliateRepository) UpdateAccountTier(id uint, tierID uint, updatedAt time.Time) error {
	if id == 0 || tierID == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tier_id":    tierID,
			"updated_at": updatedAt,
		}).Error
}

// UpdateRiskScore 写入风险分
func (r *GormAffiliateRepository) UpdateRiskScore(id uint, score int, flags models.JSON, updatedAt time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.AffiliateAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"risk_score":      score,
			"risk_flags":      flags,
			"risk_updated_at": updatedAt,
			"updated_at":      updatedAt,
		}).Error
}

// ListTierCandidates 查询满足金额门槛且当前等级低于目标等级的活跃账户
func (r *GormAffiliateRepository) ListTierCandidates(tier models.CommissionTier) ([]models.AffiliateAccount, error) {
	if tier.ID == 0 {
		return nil, nil
	}
	lowerTiers := r.db.Model(&models.CommissionTier{}).
		Select("id").
		Where("min_sales_amount < ?", tier.MinSalesAmount)

	var accounts []models.AffiliateAccount
	err := r.db.Where("status = ?", constants.AffiliateStatusActive).
		Where("total_earnings >= ?", tier.MinSalesAmount).
		Where("(tier_id IS NULL OR tier_id IN (?))", lowerTiers).
		Order("id asc").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// CreateClick 记录推广点击
func (r *GormAffiliateRepository) CreateClick(click *models.AffiliateClick) error {
	if click == nil {
		return nil
	}
	return r.db.Create(click).Error
}

// HasRecentClick 查询是否存在近期重复点击记录
func (r *GormAffiliateRepository) HasRecentClick(accountID uint, visitorKey, landingPath string, since time.Time) (bool, error) {
	if accountID == 0 || strings.TrimSpace(visitorKey) == "" {
		return false, nil
	}
	query := r.db.Model(&models.AffiliateClick{}).
		Where("affiliate_account_id = ? AND visitor_key = ? AND created_at >= ?",
			accountID,
			strings.TrimSpace(visitorKey),
			since,
		)
	if path := strings.TrimSpace(landingPath); path != "" {
		query = query.Where("landing_path = ?", path)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}

// CountClicksSince 统计时间窗口内点击数
func (r *GormAffiliateRepository) CountClicksSince(accountID uint, since time.Time) (int64, error) {
	if accountID == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.AffiliateClick{}).
		Where("affiliate_account_id = ? AND created_at >= ?", accountID, since).
		Count(&total).Error
	return total, err
}

// CountDistinctClickIPsSince 统计时间窗口内点击来源 IP 数
func (r *GormAffiliateRepository) CountDistinctClickIPsSince(accountID uint, since time.Time) (int64, error) {
	if accountID == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.AffiliateClick{}).
		Where("affiliate_account_id = ? AND created_at >= ? AND client_ip <> ''", accountID, since).
		Distinct("client_ip").
		Count(&total).Error
	return total, err
}

// ListAccountIDsWithClicksSince 查询时间窗口内有点击的账户
func (r *GormAffiliateRepository) ListAccountIDsWithClicksSince(since time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.AffiliateClick{}).
		Where("created_at >= ?", since).
		Distinct().
		Order("affiliate_account_id asc").
		Pluck("affiliate_account_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
