package repository

import (
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// LedgerRepository 推广账户流水数据访问接口（只追加）
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	Create(entry *models.AffiliateLedger) error
	ListByAccount(accountID uint) ([]models.AffiliateLedger, error)
}

// GormLedgerRepository GORM 流水仓储
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建流水仓储
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// Create 追加流水
func (r *GormLedgerRepository) Create(entry *models.AffiliateLedger) error {
	if entry == nil {
		return nil
	}
	return r.db.Create(entry).Error
}

// ListByAccount 按写入顺序（自增 id）列出账户流水，流水在账户行锁内写入，id 顺序即余额变更顺序
func (r *GormLedgerRepository) ListByAccount(accountID uint) ([]models.AffiliateLedger, error) {
	if accountID == 0 {
		return nil, nil
	}
	var rows []models.AffiliateLedger
	if err := r.db.Where("affiliate_account_id = ?", accountID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
