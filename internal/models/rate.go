package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateScale 费率保留小数位（12.345% 可精确保存）
const RateScale = 4

// Rate 费率或固定佣金值，精度高于金额
type Rate struct {
	decimal.Decimal
}

// NewRateFromDecimal 从 decimal 创建费率
func NewRateFromDecimal(value decimal.Decimal) Rate {
	return Rate{Decimal: value.Round(RateScale)}
}

// NewRateFromString 从字符串创建费率
func NewRateFromString(value string) (Rate, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Rate{}, fmt.Errorf("parse rate %q: %w", value, err)
	}
	return NewRateFromDecimal(d), nil
}

// MarshalJSON 输出去掉多余尾零的字符串
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON 解析费率（字符串或数字）
func (r *Rate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	parsed, err := NewRateFromString(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value 用于数据库写入
func (r Rate) Value() (driver.Value, error) {
	return r.Decimal.Round(RateScale).Value()
}

// Scan 用于数据库读取
func (r *Rate) Scan(value interface{}) error {
	if err := r.Decimal.Scan(value); err != nil {
		return err
	}
	r.Decimal = r.Decimal.Round(RateScale)
	return nil
}

// String 返回费率字符串
func (r Rate) String() string {
	return r.Decimal.Round(RateScale).String()
}
