package repository

import (
	"errors"

	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalyticsRepository 推广日汇总数据访问接口
type AnalyticsRepository interface {
	WithTx(tx *gorm.DB) AnalyticsRepository
	IncrementDaily(row *models.AffiliateAnalyticsSummary) error
	GetDaily(accountID uint, date string) (*models.AffiliateAnalyticsSummary, error)
}

// GormAnalyticsRepository GORM 日汇总仓储
type GormAnalyticsRepository struct {
	db *gorm.DB
}

// NewAnalyticsRepository 创建日汇总仓储
func NewAnalyticsRepository(db *gorm.DB) *GormAnalyticsRepository {
	return &GormAnalyticsRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAnalyticsRepository) WithTx(tx *gorm.DB) AnalyticsRepository {
	if tx == nil {
		return r
	}
	return &GormAnalyticsRepository{db: tx}
}

// IncrementDaily 累加写入日汇总（冲突时在原值基础上增加）
func (r *GormAnalyticsRepository) IncrementDaily(row *models.AffiliateAnalyticsSummary) error {
	if row == nil || row.AffiliateAccountID == 0 || row.SummaryDate == "" {
		return nil
	}
	table := row.TableName()
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "affiliate_account_id"}, {Name: "summary_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"conversions": gorm.Expr(table + ".conversions + excluded.conversions"),
			"revenue":     gorm.Expr(table + ".revenue + excluded.revenue"),
			"commission":  gorm.Expr(table + ".commission + excluded.commission"),
			"updated_at":  gorm.Expr("excluded.updated_at"),
		}),
	}).Create(row).Error
}

// GetDaily 获取某日汇总
func (r *GormAnalyticsRepository) GetDaily(accountID uint, date string) (*models.AffiliateAnalyticsSummary, error) {
	var row models.AffiliateAnalyticsSummary
	if err := r.db.Where("affiliate_account_id = ? AND summary_date = ?", accountID, date).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
