package repository

import (
	"errors"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// OrderRepository 订单快照数据访问接口
type OrderRepository interface {
	GetByIDWithDetails(id uint) (*models.Order, error)
	CountPriorOrders(order *models.Order) (int64, error)
}

// GormOrderRepository GORM 订单仓储
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// GetByIDWithDetails 获取订单及其订单项、已生成佣金
func (r *GormOrderRepository) GetByIDWithDetails(id uint) (*models.Order, error) {
	if id == 0 {
		return nil, nil
	}
	var order models.Order
	err := r.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	}).Preload("Referrals").First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// CountPriorOrders 统计买家在本单之前已支付的订单数（不含本单）
func (r *GormOrderRepository) CountPriorOrders(order *models.Order) (int64, error) {
	if order == nil {
		return 0, nil
	}
	query := r.db.Model(&models.Order{}).
		Where("id <> ?", order.ID).
		Where("created_at < ?", order.CreatedAt).
		Where("status IN ?", []string{
			constants.OrderStatusPaid,
			constants.OrderStatusDelivered,
			constants.OrderStatusCompleted,
		})
	switch {
	case order.UserID != 0:
		query = query.Where("user_id = ?", order.UserID)
	case strings.TrimSpace(order.GuestEmail) != "":
		query = query.Where("user_id = 0 AND guest_email = ?", strings.TrimSpace(order.GuestEmail))
	default:
		return 0, nil
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
