package service

import (
	"time"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MLMDistributionInput 多级分销输入
type MLMDistributionInput struct {
	Setting           AffiliateSetting
	Order             *models.Order
	DirectAccount     *models.AffiliateAccount
	AttributionSource string
	Commission        OrderCommission
	Products          map[uint]models.Product
	AvailableAt       time.Time
}

// MLMDistributor 沿推荐人链向上生成多级分销奖励
type MLMDistributor struct {
	affiliateRepo repository.AffiliateRepository
	referralRepo  repository.ReferralRepository
}

// NewMLMDistributor 创建多级分销器
func NewMLMDistributor(affiliateRepo repository.AffiliateRepository, referralRepo repository.ReferralRepository) *MLMDistributor {
	return &MLMDistributor{affiliateRepo: affiliateRepo, referralRepo: referralRepo}
}

// Distribute 在调用方事务内为上级推荐人创建分销奖励，遇到缺失/停用/删除的推荐人即停止
func (d *MLMDistributor) Distribute(tx *gorm.DB, input MLMDistributionInput) ([]models.Referral, error) {
	setting := input.Setting
	if !setting.MLMEnabled || setting.MLMMaxLevels <= 0 || input.DirectAccount == nil || input.Order == nil {
		return nil, nil
	}
	affiliateRepo := d.affiliateRepo.WithTx(tx)
	referralRepo := d.referralRepo.WithTx(tx)

	basis := MLMBasisAmount(setting.MLMCommissionBasis, input.Commission, input.Products)
	directID := input.DirectAccount.ID
	visited := map[uint]struct{}{directID: {}}
	sponsorID := input.DirectAccount.SponsorID
	created := make([]models.Referral, 0, setting.MLMMaxLevels)

	for level := 1; level <= setting.MLMMaxLevels; level++ {
		if sponsorID == nil || *sponsorID == 0 {
			break
		}
		if _, seen := visited[*sponsorID]; seen {
			logger.Warnw("affiliate_mlm_sponsor_cycle",
				"order_id", input.Order.ID,
				"affiliate_id", directID,
				"sponsor_id", *sponsorID,
				"level", level,
			)
			break
		}
		visited[*sponsorID] = struct{}{}

		sponsor, err := affiliateRepo.GetAccountByIDUnscoped(*sponsorID)
		if err != nil {
			return nil, err
		}
		if sponsor == nil || sponsor.IsDeleted() || sponsor.Status != constants.AffiliateStatusActive {
			logger.Debugw("affiliate_mlm_chain_stopped",
				"order_id", input.Order.ID,
				"sponsor_id", *sponsorID,
				"level", level,
			)
			break
		}
		rate, ok := setting.MLMRateForLevel(level)
		if !ok {
			break
		}

		amount := models.Percent(basis, rate)
		if amount.IsPositive() {
			source := directID
			referral := models.Referral{
				AffiliateAccountID: sponsor.ID,
				OrderID:            input.Order.ID,
				OrderNo:            input.Order.OrderNo,
				GrossAmount:        input.Order.TotalAmount,
				NetAmount:          models.NewMoneyFromDecimal(basis),
				CommissionAmount:   models.NewMoneyFromDecimal(amount),
				Status:             constants.ReferralStatusPending,
				AttributionSource:  input.AttributionSource,
				IsMlmReward:        true,
				MlmLevel:           level,
				SourceAffiliateID:  &source,
				CalculationLog: models.CalculationLog{{
					Source:            constants.RateSourceMLMLevel,
					Type:              constants.CommissionTypePercentage,
					Rate:              rate.String(),
					Base:              basis.StringFixed(models.MoneyScale),
					Commission:        amount.StringFixed(models.MoneyScale),
					Level:             level,
					UplineAffiliateID: sponsor.ID,
					Note:              "basis=" + setting.MLMCommissionBasis,
				}},
				AvailableAt: input.AvailableAt,
			}
			if err := referralRepo.Create(&referral); err != nil {
				return nil, err
			}
			created = append(created, referral)
		}
		sponsorID = sponsor.SponsorID
	}
	return created, nil
}

// MLMBasisAmount 分销计算基数：销售额、毛利（基数 - 成本 × 数量）或 CV 值 × 数量
func MLMBasisAmount(basis string, commission OrderCommission, products map[uint]models.Product) decimal.Decimal {
	switch basis {
	case constants.MLMBasisProfit:
		total := decimal.Zero
		for _, line := range commission.Lines {
			if line.Resolution.Excluded {
				continue
			}
			cost := decimal.Zero
			if product, ok := products[line.Line.ProductID]; ok {
				cost = models.MulMoney(product.CostAmount.Decimal, decimal.NewFromInt(int64(line.Line.Quantity)))
			}
			total = models.AddMoney(total, models.NonNegative(models.SubMoney(line.Base, cost)))
		}
		return total
	case constants.MLMBasisCV:
		total := decimal.Zero
		for _, line := range commission.Lines {
			if line.Resolution.Excluded {
				continue
			}
			if product, ok := products[line.Line.ProductID]; ok {
				total = models.AddMoney(total, models.MulMoney(product.CommissionValue.Decimal, decimal.NewFromInt(int64(line.Line.Quantity))))
			}
		}
		return total
	default:
		return commission.Base
	}
}
