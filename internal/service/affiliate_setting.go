package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"github.com/shopspring/decimal"
)

const (
	affiliateHoldingDaysMax         = 3650
	affiliateMLMLevelsMax           = 10
	affiliateVelocityWindowMax      = 7 * 24 * 60
	affiliateSettlementBatchMin     = 1
	affiliateSettlementBatchMax     = 1000
	affiliateSettlementBatchDefault = 100
)

var (
	affiliateRateMin = decimal.Zero
	affiliateRateMax = decimal.NewFromInt(100)
)

// AffiliateSetting 推广计划配置
type AffiliateSetting struct {
	Enabled                bool              `json:"enabled"`
	HoldingPeriodDays      int               `json:"holding_period_days"`
	AllowSelfReferral      bool              `json:"allow_self_referral"`
	ZeroValueReferrals     bool              `json:"zero_value_referrals"`
	LifetimeCommissions    bool              `json:"lifetime_commissions"`
	GlobalDefaultRate      decimal.Decimal   `json:"global_default_rate"`
	ExcludeTax             bool              `json:"exclude_tax"`
	ExcludeShipping        bool              `json:"exclude_shipping"`
	MLMEnabled             bool              `json:"mlm_enabled"`
	MLMMaxLevels           int               `json:"mlm_max_levels"`
	MLMCommissionBasis     string            `json:"mlm_commission_basis"`
	MLMLevelRates          []decimal.Decimal `json:"mlm_level_rates"`
	VelocityWindowMinutes  int               `json:"velocity_window_minutes"`
	VelocityMaxConversions int               `json:"velocity_max_conversions"`
	VelocityMaxClicks      int               `json:"velocity_max_clicks"`
	SettlementBatchSize    int               `json:"settlement_batch_size"`
}

// AffiliateDefaultSetting 默认推广计划配置
func AffiliateDefaultSetting() AffiliateSetting {
	return NormalizeAffiliateSetting(AffiliateSetting{
		Enabled:             false,
		HoldingPeriodDays:   30,
		GlobalDefaultRate:   decimal.Zero,
		MLMCommissionBasis:  constants.MLMBasisSales,
		MLMLevelRates:       []decimal.Decimal{},
		SettlementBatchSize: affiliateSettlementBatchDefault,
	})
}

// NormalizeAffiliateSetting 归一化推广计划配置
func NormalizeAffiliateSetting(setting AffiliateSetting) AffiliateSetting {
	setting.HoldingPeriodDays = clampInt(setting.HoldingPeriodDays, 0, affiliateHoldingDaysMax)
	setting.GlobalDefaultRate = models.ClampMoney(setting.GlobalDefaultRate.Round(models.RateScale), affiliateRateMin, affiliateRateMax)

	setting.MLMMaxLevels = clampInt(setting.MLMMaxLevels, 0, affiliateMLMLevelsMax)
	basis := strings.ToLower(strings.TrimSpace(setting.MLMCommissionBasis))
	switch basis {
	case constants.MLMBasisSales, constants.MLMBasisProfit, constants.MLMBasisCV:
	default:
		basis = constants.MLMBasisSales
	}
	setting.MLMCommissionBasis = basis

	rates := make([]decimal.Decimal, 0, len(setting.MLMLevelRates))
	for _, rate := range setting.MLMLevelRates {
		if len(rates) >= affiliateMLMLevelsMax {
			break
		}
		rates = append(rates, models.ClampMoney(rate.Round(models.RateScale), affiliateRateMin, affiliateRateMax))
	}
	setting.MLMLevelRates = rates

	setting.VelocityWindowMinutes = clampInt(setting.VelocityWindowMinutes, 0, affiliateVelocityWindowMax)
	if setting.VelocityMaxConversions < 0 {
		setting.VelocityMaxConversions = 0
	}
	if setting.VelocityMaxClicks < 0 {
		setting.VelocityMaxClicks = 0
	}
	if setting.SettlementBatchSize <= 0 {
		setting.SettlementBatchSize = affiliateSettlementBatchDefault
	}
	setting.SettlementBatchSize = clampInt(setting.SettlementBatchSize, affiliateSettlementBatchMin, affiliateSettlementBatchMax)
	return setting
}

// ValidateAffiliateSetting 校验推广计划配置（在归一化前调用以拒绝越界输入）
func ValidateAffiliateSetting(setting AffiliateSetting) error {
	if setting.HoldingPeriodDays < 0 || setting.HoldingPeriodDays > affiliateHoldingDaysMax {
		return fmt.Errorf("%w: 冷却期天数必须在 0-%d 之间", ErrAffiliateConfigInvalid, affiliateHoldingDaysMax)
	}
	if setting.GlobalDefaultRate.LessThan(affiliateRateMin) || setting.GlobalDefaultRate.GreaterThan(affiliateRateMax) {
		return fmt.Errorf("%w: 全局默认费率必须在 0-100 之间", ErrAffiliateConfigInvalid)
	}
	if setting.MLMMaxLevels < 0 || setting.MLMMaxLevels > affiliateMLMLevelsMax {
		return fmt.Errorf("%w: 分销层级必须在 0-%d 之间", ErrAffiliateConfigInvalid, affiliateMLMLevelsMax)
	}
	for i, rate := range setting.MLMLevelRates {
		if rate.LessThan(affiliateRateMin) || rate.GreaterThan(affiliateRateMax) {
			return fmt.Errorf("%w: 第 %d 级分销费率必须在 0-100 之间", ErrAffiliateConfigInvalid, i+1)
		}
	}
	if basis := strings.TrimSpace(setting.MLMCommissionBasis); basis != "" {
		switch strings.ToLower(basis) {
		case constants.MLMBasisSales, constants.MLMBasisProfit, constants.MLMBasisCV:
		default:
			return fmt.Errorf("%w: 不支持的分销计算基数 %s", ErrAffiliateConfigInvalid, basis)
		}
	}
	if setting.VelocityWindowMinutes < 0 || setting.VelocityMaxConversions < 0 || setting.VelocityMaxClicks < 0 {
		return fmt.Errorf("%w: 速率风控参数不能为负数", ErrAffiliateConfigInvalid)
	}
	if setting.SettlementBatchSize > affiliateSettlementBatchMax {
		return fmt.Errorf("%w: 结算批量不能超过 %d", ErrAffiliateConfigInvalid, affiliateSettlementBatchMax)
	}
	return nil
}

// MLMRateForLevel 获取第 level 级（从 1 开始）的分销费率
func (s AffiliateSetting) MLMRateForLevel(level int) (decimal.Decimal, bool) {
	if level < 1 || level > len(s.MLMLevelRates) {
		return decimal.Zero, false
	}
	return s.MLMLevelRates[level-1], true
}

// AffiliateSettingToMap 将推广计划配置转换为 settings 存储结构
func AffiliateSettingToMap(setting AffiliateSetting) map[string]interface{} {
	normalized := NormalizeAffiliateSetting(setting)
	rates := make([]interface{}, 0, len(normalized.MLMLevelRates))
	for _, rate := range normalized.MLMLevelRates {
		rates = append(rates, rate.StringFixed(models.RateScale))
	}
	return map[string]interface{}{
		"enabled":                  normalized.Enabled,
		"holding_period_days":      normalized.HoldingPeriodDays,
		"allow_self_referral":      normalized.AllowSelfReferral,
		"zero_value_referrals":     normalized.ZeroValueReferrals,
		"lifetime_commissions":     normalized.LifetimeCommissions,
		"global_default_rate":      normalized.GlobalDefaultRate.StringFixed(models.RateScale),
		"exclude_tax":              normalized.ExcludeTax,
		"exclude_shipping":         normalized.ExcludeShipping,
		"mlm_enabled":              normalized.MLMEnabled,
		"mlm_max_levels":           normalized.MLMMaxLevels,
		"mlm_commission_basis":     normalized.MLMCommissionBasis,
		"mlm_level_rates":          rates,
		"velocity_window_minutes":  normalized.VelocityWindowMinutes,
		"velocity_max_conversions": normalized.VelocityMaxConversions,
		"velocity_max_clicks":      normalized.VelocityMaxClicks,
		"settlement_batch_size":    normalized.SettlementBatchSize,
	}
}

func affiliateSettingFromJSON(raw models.JSON, fallback AffiliateSetting) AffiliateSetting {
	result := fallback

	boolFields := map[string]*bool{
		"enabled":              &result.Enabled,
		"allow_self_referral":  &result.AllowSelfReferral,
		"zero_value_referrals": &result.ZeroValueReferrals,
		"lifetime_commissions": &result.LifetimeCommissions,
		"exclude_tax":          &result.ExcludeTax,
		"exclude_shipping":     &result.ExcludeShipping,
		"mlm_enabled":          &result.MLMEnabled,
	}
	for key, target := range boolFields {
		if value, ok := raw[key]; ok {
			*target = parseSettingBool(value)
		}
	}

	intFields := map[string]*int{
		"holding_period_days":      &result.HoldingPeriodDays,
		"mlm_max_levels":           &result.MLMMaxLevels,
		"velocity_window_minutes":  &result.VelocityWindowMinutes,
		"velocity_max_conversions": &result.VelocityMaxConversions,
		"velocity_max_clicks":      &result.VelocityMaxClicks,
		"settlement_batch_size":    &result.SettlementBatchSize,
	}
	for key, target := range intFields {
		if value, ok := raw[key]; ok {
			if parsed, err := parseSettingInt(value); err == nil {
				*target = parsed
			}
		}
	}

	if value, ok := raw["global_default_rate"]; ok {
		if parsed, err := parseSettingDecimal(value); err == nil {
			result.GlobalDefaultRate = parsed
		}
	}
	if value, ok := raw["mlm_commission_basis"]; ok {
		if basis, ok := value.(string); ok {
			result.MLMCommissionBasis = basis
		}
	}
	if value, ok := raw["mlm_level_rates"]; ok {
		if list, ok := value.([]interface{}); ok {
			rates := make([]decimal.Decimal, 0, len(list))
			for _, item := range list {
				parsed, err := parseSettingDecimal(item)
				if err != nil {
					continue
				}
				rates = append(rates, parsed)
			}
			result.MLMLevelRates = rates
		}
	}

	return NormalizeAffiliateSetting(result)
}

// GetAffiliateSetting 获取推广计划配置（优先 settings，空时回退默认）
func (s *SettingService) GetAffiliateSetting() (AffiliateSetting, error) {
	fallback := AffiliateDefaultSetting()
	if s == nil {
		return fallback, nil
	}

	value, err := s.GetByKey(constants.SettingKeyAffiliateConfig)
	if err != nil {
		return fallback, err
	}
	if value == nil {
		return fallback, nil
	}
	return affiliateSettingFromJSON(value, fallback), nil
}

// UpdateAffiliateSetting 更新推广计划配置
func (s *SettingService) UpdateAffiliateSetting(setting AffiliateSetting) (AffiliateSetting, error) {
	if err := ValidateAffiliateSetting(setting); err != nil {
		return AffiliateDefaultSetting(), err
	}
	normalized := NormalizeAffiliateSetting(setting)
	if _, err := s.Update(constants.SettingKeyAffiliateConfig, AffiliateSettingToMap(normalized)); err != nil {
		return AffiliateDefaultSetting(), err
	}
	return normalized, nil
}

// parseSettingDecimal 解析费率等小数配置，浮点输入按字符串转换避免精度漂移
func parseSettingDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return decimal.Zero, fmt.Errorf("empty string")
		}
		return decimal.NewFromString(trimmed)
	case json.Number:
		return decimal.NewFromString(v.String())
	case float64:
		return decimal.NewFromString(strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		return decimal.NewFromString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported value type")
	}
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
