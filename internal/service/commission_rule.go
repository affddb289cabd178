package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"

	"github.com/shopspring/decimal"
)

// 规则条件键
const (
	ruleConditionMinOrderAmount = "min_order_amount"
	ruleConditionMaxOrderAmount = "max_order_amount"
	ruleConditionCategoryIDs    = "category_ids"
	ruleConditionCustomerType   = "customer_type"
)

// 规则条件种类
const (
	RuleConditionKindAmountRange  = "amount_range"
	RuleConditionKindCategorySet  = "category_set"
	RuleConditionKindCustomerType = "customer_type"
)

// RuleMatchInput 单行规则匹配输入
type RuleMatchInput struct {
	OrderAmount  decimal.Decimal
	CategoryID   uint
	CustomerType string
}

// RuleCondition 已编译的规则条件
type RuleCondition interface {
	Kind() string
	Matches(input RuleMatchInput) bool
}

// AmountRangeCondition 订单金额区间（闭区间，任一端可空）
type AmountRangeCondition struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// Kind 条件种类
func (c AmountRangeCondition) Kind() string { return RuleConditionKindAmountRange }

// Matches 判断订单金额是否落在区间内
func (c AmountRangeCondition) Matches(input RuleMatchInput) bool {
	if c.Min != nil && input.OrderAmount.LessThan(*c.Min) {
		return false
	}
	if c.Max != nil && input.OrderAmount.GreaterThan(*c.Max) {
		return false
	}
	return true
}

// CategorySetCondition 商品分类集合
type CategorySetCondition struct {
	CategoryIDs map[uint]struct{}
}

// Kind 条件种类
func (c CategorySetCondition) Kind() string { return RuleConditionKindCategorySet }

// Matches 判断商品分类是否在集合内
func (c CategorySetCondition) Matches(input RuleMatchInput) bool {
	if input.CategoryID == 0 {
		return false
	}
	_, ok := c.CategoryIDs[input.CategoryID]
	return ok
}

// CustomerTypeCondition 新老客户
type CustomerTypeCondition struct {
	CustomerType string
}

// Kind 条件种类
func (c CustomerTypeCondition) Kind() string { return RuleConditionKindCustomerType }

// Matches 判断客户类型
func (c CustomerTypeCondition) Matches(input RuleMatchInput) bool {
	return c.CustomerType == input.CustomerType
}

// CompiledRule 加载期校验后的动态佣金规则
type CompiledRule struct {
	ID         uint
	Name       string
	Priority   int
	Conditions []RuleCondition
	Type       string
	Value      decimal.Decimal
}

// Source 费率来源标识
func (r CompiledRule) Source() string {
	return constants.RateSourceRulePrefix + r.Name
}

// Matches 所有条件均满足才命中
func (r CompiledRule) Matches(input RuleMatchInput) bool {
	for _, cond := range r.Conditions {
		if !cond.Matches(input) {
			return false
		}
	}
	return true
}

// CompileRule 将规则条件 JSON 编译为强类型条件
func CompileRule(rule models.DynamicCommissionRule) (CompiledRule, error) {
	name := strings.TrimSpace(rule.Name)
	if name == "" {
		return CompiledRule{}, fmt.Errorf("%w: 规则 #%d 缺少名称", ErrCommissionRuleInvalid, rule.ID)
	}
	actionType, err := normalizeCommissionType(rule.ActionType)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("%w: 规则 %s %v", ErrCommissionRuleInvalid, name, err)
	}
	value := rule.ActionValue.Decimal
	if value.IsNegative() {
		return CompiledRule{}, fmt.Errorf("%w: 规则 %s 数值不能为负", ErrCommissionRuleInvalid, name)
	}
	if actionType == constants.CommissionTypePercentage && value.GreaterThan(affiliateRateMax) {
		return CompiledRule{}, fmt.Errorf("%w: 规则 %s 百分比不能超过 100", ErrCommissionRuleInvalid, name)
	}

	conditions, err := compileRuleConditions(rule.Conditions)
	if err != nil {
		return CompiledRule{}, fmt.Errorf("%w: 规则 %s %v", ErrCommissionRuleInvalid, name, err)
	}

	return CompiledRule{
		ID:         rule.ID,
		Name:       name,
		Priority:   rule.Priority,
		Conditions: conditions,
		Type:       actionType,
		Value:      value,
	}, nil
}

// CompileRules 批量编译，非法规则被跳过并随错误列表返回
func CompileRules(rules []models.DynamicCommissionRule) ([]CompiledRule, []error) {
	compiled := make([]CompiledRule, 0, len(rules))
	var errs []error
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		item, err := CompileRule(rule)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		compiled = append(compiled, item)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Priority != compiled[j].Priority {
			return compiled[i].Priority < compiled[j].Priority
		}
		return compiled[i].ID < compiled[j].ID
	})
	return compiled, errs
}

func compileRuleConditions(raw models.JSON) ([]RuleCondition, error) {
	conditions := make([]RuleCondition, 0, 3)
	var amount AmountRangeCondition
	hasAmount := false

	for key, value := range raw {
		switch key {
		case ruleConditionMinOrderAmount, ruleConditionMaxOrderAmount:
			parsed, err := parseSettingDecimal(value)
			if err != nil {
				return nil, fmt.Errorf("条件 %s 非法", key)
			}
			if parsed.IsNegative() {
				return nil, fmt.Errorf("条件 %s 不能为负", key)
			}
			if key == ruleConditionMinOrderAmount {
				amount.Min = &parsed
			} else {
				amount.Max = &parsed
			}
			hasAmount = true
		case ruleConditionCategoryIDs:
			list, ok := value.([]interface{})
			if !ok || len(list) == 0 {
				return nil, fmt.Errorf("条件 %s 必须为非空数组", key)
			}
			set := make(map[uint]struct{}, len(list))
			for _, item := range list {
				id, err := parseSettingInt(item)
				if err != nil || id <= 0 {
					return nil, fmt.Errorf("条件 %s 包含非法分类", key)
				}
				set[uint(id)] = struct{}{}
			}
			conditions = append(conditions, CategorySetCondition{CategoryIDs: set})
		case ruleConditionCustomerType:
			text, _ := value.(string)
			customerType := strings.ToUpper(strings.TrimSpace(text))
			if customerType != constants.CustomerTypeNew && customerType != constants.CustomerTypeReturning {
				return nil, fmt.Errorf("条件 %s 仅支持 NEW/RETURNING", key)
			}
			conditions = append(conditions, CustomerTypeCondition{CustomerType: customerType})
		default:
			return nil, fmt.Errorf("未知条件 %s", key)
		}
	}

	if hasAmount {
		if amount.Min != nil && amount.Max != nil && amount.Min.GreaterThan(*amount.Max) {
			return nil, fmt.Errorf("金额区间下限大于上限")
		}
		conditions = append(conditions, amount)
	}
	sort.SliceStable(conditions, func(i, j int) bool {
		return conditions[i].Kind() < conditions[j].Kind()
	})
	return conditions, nil
}

func normalizeCommissionType(raw string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case constants.CommissionTypePercentage:
		return constants.CommissionTypePercentage, nil
	case constants.CommissionTypeFixed:
		return constants.CommissionTypeFixed, nil
	default:
		return "", fmt.Errorf("不支持的计算方式 %q", raw)
	}
}
