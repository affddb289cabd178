package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRateJSONKeepsFourDecimals(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"12.345"`, "12.345"},
		{`7.12345`, "7.1235"},
		{`"15"`, "15"},
	}
	for _, tc := range cases {
		var r Rate
		if err := json.Unmarshal([]byte(tc.raw), &r); err != nil {
			t.Fatalf("unmarshal %s failed: %v", tc.raw, err)
		}
		if r.String() != tc.want {
			t.Fatalf("unmarshal %s: want %s, got %s", tc.raw, tc.want, r.String())
		}
	}

	out, err := json.Marshal(NewRateFromDecimal(decimal.RequireFromString("12.3450")))
	if err != nil || string(out) != `"12.345"` {
		t.Fatalf("unexpected marshal output %s err=%v", out, err)
	}
	var bad Rate
	if err := json.Unmarshal([]byte(`"abc"`), &bad); err == nil {
		t.Fatalf("expected invalid rate to fail")
	}
}

func TestRateColumnsRoundTripFractionalPercent(t *testing.T) {
	dsn := fmt.Sprintf("file:models_rate_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := Open("sqlite", dsn, DBPoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	rule := DynamicCommissionRule{
		Name:        "fractional",
		IsActive:    true,
		Conditions:  JSON{},
		ActionType:  "PERCENTAGE",
		ActionValue: NewRateFromDecimal(decimal.RequireFromString("12.345")),
	}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("create rule failed: %v", err)
	}
	var loaded DynamicCommissionRule
	if err := db.First(&loaded, rule.ID).Error; err != nil {
		t.Fatalf("load rule failed: %v", err)
	}
	if !loaded.ActionValue.Equal(decimal.RequireFromString("12.345")) {
		t.Fatalf("expected 12.345 preserved, got %s", loaded.ActionValue.String())
	}
}
