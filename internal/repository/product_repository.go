package repository

import (
	"github.com/dujiao-next/commission-engine/internal/models"

	"gorm.io/gorm"
)

// ProductRepository 商品数据访问接口，仅供多级分佣按利润计算基数时读取成本价
type ProductRepository interface {
	MapByIDs(ids []uint) (map[uint]models.Product, error)
}

// GormProductRepository GORM 商品仓储
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓储
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// MapByIDs 按 ID 批量读取商品，已下架商品同样返回
func (r *GormProductRepository) MapByIDs(ids []uint) (map[uint]models.Product, error) {
	result := make(map[uint]models.Product, len(ids))
	unique := uniqueIDs(ids)
	if len(unique) == 0 {
		return result, nil
	}
	var rows []models.Product
	if err := r.db.Unscoped().Select("id", "slug", "category_id", "cost_amount", "commission_value", "deleted_at").
		Where("id IN ?", unique).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
