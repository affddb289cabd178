package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// ReferralRepository 佣金记录数据访问接口
type ReferralRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) ReferralRepository

	Create(referral *models.Referral) error
	GetByID(id uint) (*models.Referral, error)
	CountByOrder(orderID uint) (int64, error)
	ListByOrder(orderID uint) ([]models.Referral, error)
	ListDue(now time.Time, limit int) ([]models.Referral, error)
	TransitionStatus(id uint, from, to string, updates map[string]interface{}) (int64, error)
	TransitionOrderStatus(orderID uint, from, to string, updates map[string]interface{}) (int64, error)
	CountCreatedSince(accountID uint, since time.Time) (int64, error)
	CountByAccountAndStatuses(accountID uint, statuses []string) (int64, error)
	CountByAccountStatusSince(accountID uint, status string, since time.Time) (int64, error)
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
}

// GormReferralRepository GORM 佣金记录仓储
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建佣金记录仓储
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// Transaction 执行事务
func (r *GormReferralRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormReferralRepository) WithTx(tx *gorm.DB) ReferralRepository {
	if tx == nil {
		return r
	}
	return &GormReferralRepository{db: tx}
}

// Create 创建佣金记录
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	if referral == nil {
		return nil
	}
	return r.db.Create(referral).Error
}

// GetByID 获取佣金记录
func (r *GormReferralRepository) GetByID(id uint) (*models.Referral, error) {
	if id == 0 {
		return nil, nil
	}
	var referral models.Referral
	if err := r.db.First(&referral, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// CountByOrder 统计订单已有佣金记录数（幂等判定）
func (r *GormReferralRepository) CountByOrder(orderID uint) (int64, error) {
	if orderID == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.Referral{}).Where("order_id = ?", orderID).Count(&total).Error
	return total, err
}

// ListByOrder 查询订单全部佣金记录
func (r *GormReferralRepository) ListByOrder(orderID uint) ([]models.Referral, error) {
	if orderID == 0 {
		return nil, nil
	}
	var rows []models.Referral
	if err := r.db.Where("order_id = ?", orderID).Order("mlm_level asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDue 查询冷却期已结束的待结算记录（最早优先）
func (r *GormReferralRepository) ListDue(now time.Time, limit int) ([]models.Referral, error) {
	query := r.db.Where("status = ? AND available_at <= ?", constants.ReferralStatusPending, now).
		Order("available_at asc, id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.Referral
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionStatus 条件更新状态，返回受影响行数（0 表示已被其他流程处理）
func (r *GormReferralRepository) TransitionStatus(id uint, from, to string, updates map[string]interface{}) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	result := r.db.Model(&models.Referral{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return result.RowsAffected, result.Error
}

// TransitionOrderStatus 批量条件更新订单下的佣金状态
func (r *GormReferralRepository) TransitionOrderStatus(orderID uint, from, to string, updates map[string]interface{}) (int64, error) {
	if orderID == 0 {
		return 0, nil
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	result := r.db.Model(&models.Referral{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(values)
	return result.RowsAffected, result.Error
}

// CountCreatedSince 统计时间窗口内直推转化数
func (r *GormReferralRepository) CountCreatedSince(accountID uint, since time.Time) (int64, error) {
	if accountID == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.Referral{}).
		Where("affiliate_account_id = ? AND is_mlm_reward = ? AND created_at >= ?", accountID, false, since).
		Count(&total).Error
	return total, err
}

// CountByAccountAndStatuses 按状态统计账户佣金记录数
func (r *GormReferralRepository) CountByAccountAndStatuses(accountID uint, statuses []string) (int64, error) {
	if accountID == 0 {
		return 0, nil
	}
	query := r.db.Model(&models.Referral{}).Where("affiliate_account_id = ?", accountID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var total int64
	err := query.Count(&total).Error
	return total, err
}

// CountByAccountStatusSince 统计时间窗口内指定状态记录数
func (r *GormReferralRepository) CountByAccountStatusSince(accountID uint, status string, since time.Time) (int64, error) {
	if accountID == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.Model(&models.Referral{}).
		Where("affiliate_account_id = ? AND status = ? AND created_at >= ?", accountID, status, since).
		Count(&total).Error
	return total, err
}

// List 分页查询佣金记录
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{})
	if filter.AffiliateAccountID != 0 {
		query = query.Where("affiliate_account_id = ?", filter.AffiliateAccountID)
	}
	if filter.OrderID != 0 {
		query = query.Where("order_id = ?", filter.OrderID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var rows []models.Referral
	if err := query.Order("id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
