package service

import (
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// CommissionLine 订单行计佣输入
type CommissionLine struct {
	OrderItemID    uint
	ProductID      uint
	CategoryID     uint
	Quantity       int
	LineTotal      decimal.Decimal
	TaxAmount      decimal.Decimal
	ShippingAmount decimal.Decimal
}

// ResolveContext 单个订单 × 推广者的费率解析上下文
type ResolveContext struct {
	AffiliateID    uint
	Group          *models.CommissionGroup
	Tier           *models.CommissionTier
	UserOverrides  map[uint]models.ProductCommissionRate // 按商品ID
	GroupOverrides map[uint]models.ProductCommissionRate // 按商品ID
	OrderAmount    decimal.Decimal
	CustomerType   string
}

// RateResolution 费率解析结果
type RateResolution struct {
	Rate     decimal.Decimal
	Type     string
	Source   string
	Excluded bool
}

// LineCommission 单行佣金
type LineCommission struct {
	Line       CommissionLine
	Resolution RateResolution
	Base       decimal.Decimal
	Commission decimal.Decimal
}

// OrderCommission 订单佣金汇总
type OrderCommission struct {
	Lines []LineCommission
	Base  decimal.Decimal // 未排除行的计佣基数合计
	Total decimal.Decimal
}

// ResolveRate 按优先级解析单行费率：商品×推广者 → 商品×分组 → 动态规则 → 分组默认 → 等级默认 → 全局默认
func ResolveRate(snap *ConfigSnapshot, rc ResolveContext, line CommissionLine) RateResolution {
	if override, ok := rc.UserOverrides[line.ProductID]; ok {
		return overrideResolution(override, constants.RateSourceProductUserOverride)
	}
	if override, ok := rc.GroupOverrides[line.ProductID]; ok {
		return overrideResolution(override, constants.RateSourceProductGroupOverride)
	}

	input := RuleMatchInput{
		OrderAmount:  rc.OrderAmount,
		CategoryID:   line.CategoryID,
		CustomerType: rc.CustomerType,
	}
	for _, rule := range snap.Rules {
		if rule.Matches(input) {
			return RateResolution{Rate: rule.Value, Type: rule.Type, Source: rule.Source()}
		}
	}

	if rc.Group != nil && rc.Group.DefaultRate != nil {
		return RateResolution{
			Rate:   rc.Group.DefaultRate.Decimal,
			Type:   defaultCommissionType(rc.Group.DefaultType),
			Source: constants.RateSourceGroupDefault,
		}
	}
	if rc.Tier != nil && rc.Tier.DefaultRate != nil {
		return RateResolution{
			Rate:   rc.Tier.DefaultRate.Decimal,
			Type:   defaultCommissionType(rc.Tier.DefaultType),
			Source: constants.RateSourceTierDefault,
		}
	}
	return RateResolution{
		Rate:   snap.Setting.GlobalDefaultRate,
		Type:   constants.CommissionTypePercentage,
		Source: constants.RateSourceGlobalDefault,
	}
}

func overrideResolution(override models.ProductCommissionRate, source string) RateResolution {
	if override.IsDisabled {
		return RateResolution{Rate: decimal.Zero, Type: defaultCommissionType(override.Type), Source: source, Excluded: true}
	}
	return RateResolution{Rate: override.Rate.Decimal, Type: defaultCommissionType(override.Type), Source: source}
}

func defaultCommissionType(raw string) string {
	normalized, err := normalizeCommissionType(raw)
	if err != nil {
		return constants.CommissionTypePercentage
	}
	return normalized
}

// LineBase 计佣基数 = 行金额 - 税（配置排除时）- 运费（配置排除时），不低于 0
func LineBase(setting AffiliateSetting, line CommissionLine) decimal.Decimal {
	base := line.LineTotal
	if setting.ExcludeTax {
		base = models.SubMoney(base, line.TaxAmount)
	}
	if setting.ExcludeShipping {
		base = models.SubMoney(base, line.ShippingAmount)
	}
	return models.NonNegative(base)
}

// CommissionFor 按计算方式求佣金：固定金额 × 数量，或基数百分比
func CommissionFor(resolution RateResolution, base decimal.Decimal, quantity int) decimal.Decimal {
	if resolution.Excluded {
		return decimal.Zero
	}
	if resolution.Type == constants.CommissionTypeFixed {
		if quantity < 0 {
			quantity = 0
		}
		return models.MulMoney(resolution.Rate, decimal.NewFromInt(int64(quantity)))
	}
	return models.Percent(base, resolution.Rate)
}

// ComputeOrderCommission 逐行解析并汇总订单佣金
func ComputeOrderCommission(snap *ConfigSnapshot, rc ResolveContext, lines []CommissionLine) OrderCommission {
	result := OrderCommission{
		Lines: make([]LineCommission, 0, len(lines)),
		Base:  decimal.Zero,
		Total: decimal.Zero,
	}
	for _, line := range lines {
		resolution := ResolveRate(snap, rc, line)
		base := LineBase(snap.Setting, line)
		commission := CommissionFor(resolution, base, line.Quantity)
		result.Lines = append(result.Lines, LineCommission{
			Line:       line,
			Resolution: resolution,
			Base:       base,
			Commission: commission,
		})
		if resolution.Excluded {
			continue
		}
		result.Base = models.AddMoney(result.Base, base)
		result.Total = models.AddMoney(result.Total, commission)
	}
	return result
}

// CalculationLog 生成计算过程审计记录
func (c OrderCommission) CalculationLog() models.CalculationLog {
	entries := make(models.CalculationLog, 0, len(c.Lines))
	for _, line := range c.Lines {
		entry := models.CalculationLogEntry{
			OrderItemID: line.Line.OrderItemID,
			ProductID:   line.Line.ProductID,
			Source:      line.Resolution.Source,
			Type:        line.Resolution.Type,
			Rate:        line.Resolution.Rate.String(),
			Base:        line.Base.StringFixed(models.MoneyScale),
			Commission:  line.Commission.StringFixed(models.MoneyScale),
			Excluded:    line.Resolution.Excluded,
		}
		if line.Resolution.Excluded {
			entry.Note = "product commission disabled"
		}
		entries = append(entries, entry)
	}
	return entries
}

// CommissionResolver 装载解析上下文所需的分组与等级，商品覆盖取自配置快照
type CommissionResolver struct {
	configRepo repository.CommissionConfigRepository
}

// NewCommissionResolver 创建费率解析器
func NewCommissionResolver(configRepo repository.CommissionConfigRepository) *CommissionResolver {
	return &CommissionResolver{configRepo: configRepo}
}

// BuildContext 加载推广者的分组、等级，并从快照中取出相关商品覆盖
func (r *CommissionResolver) BuildContext(snap *ConfigSnapshot, account *models.AffiliateAccount, lines []CommissionLine, orderAmount decimal.Decimal, customerType string) (ResolveContext, error) {
	rc := ResolveContext{
		AffiliateID:    account.ID,
		UserOverrides:  map[uint]models.ProductCommissionRate{},
		GroupOverrides: map[uint]models.ProductCommissionRate{},
		OrderAmount:    orderAmount,
		CustomerType:   customerType,
	}

	if account.GroupID != nil {
		group, err := r.configRepo.GetGroupByID(*account.GroupID)
		if err != nil {
			return rc, err
		}
		rc.Group = group
	}
	if account.TierID != nil {
		tier, err := r.configRepo.GetTierByID(*account.TierID)
		if err != nil {
			return rc, err
		}
		rc.Tier = tier
	}

	for _, line := range lines {
		if line.ProductID == 0 {
			continue
		}
		if rate, ok := snap.UserRate(line.ProductID, account.ID); ok {
			rc.UserOverrides[line.ProductID] = rate
		}
		if account.GroupID == nil || *account.GroupID == 0 {
			continue
		}
		if rate, ok := snap.GroupRate(line.ProductID, *account.GroupID); ok {
			rc.GroupOverrides[line.ProductID] = rate
		}
	}
	return rc, nil
}
