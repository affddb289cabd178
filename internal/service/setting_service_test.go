package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/models"
)

type mockSettingRepo struct {
	store map[string]models.JSON
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{store: map[string]models.JSON{}}
}

func (m *mockSettingRepo) GetByKey(key string) (*models.Setting, error) {
	value, ok := m.store[key]
	if !ok {
		return nil, nil
	}
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func (m *mockSettingRepo) Upsert(key string, value models.JSON) (*models.Setting, error) {
	m.store[key] = value
	return &models.Setting{Key: key, ValueJSON: value}, nil
}

func TestUpdateAffiliateConfigNormalized(t *testing.T) {
	repo := newMockSettingRepo()
	svc := NewSettingService(repo)

	result, err := svc.Update(constants.SettingKeyAffiliateConfig, map[string]interface{}{
		"enabled":             "on",
		"holding_period_days": "99999",
		"global_default_rate": 250.5,
		"unknown":             "drop",
	})
	if err != nil {
		t.Fatalf("update affiliate config failed: %v", err)
	}
	if result["enabled"] != true {
		t.Fatalf("expected enabled true, got %v", result["enabled"])
	}
	days, err := parseSettingInt(result["holding_period_days"])
	if err != nil || days != affiliateHoldingDaysMax {
		t.Fatalf("expected holding days clamp to %d, got %v", affiliateHoldingDaysMax, result["holding_period_days"])
	}
	if result["global_default_rate"] != "100.0000" {
		t.Fatalf("expected rate clamp to 100.0000, got %v", result["global_default_rate"])
	}
	if _, ok := result["unknown"]; ok {
		t.Fatalf("expected unknown field dropped")
	}
}

func TestUpdateOtherKeyKeptAsIs(t *testing.T) {
	repo := newMockSettingRepo()
	svc := NewSettingService(repo)

	result, err := svc.Update("ops_note", map[string]interface{}{"extra": "keep"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if result["extra"] != "keep" {
		t.Fatalf("unexpected extra field: %v", result["extra"])
	}
}

func TestParseSettingBool(t *testing.T) {
	cases := map[interface{}]bool{
		true:    true,
		"yes":   true,
		" ON ":  true,
		"0":     false,
		1:       true,
		0.0:     false,
		"maybe": false,
	}
	for input, expected := range cases {
		if got := parseSettingBool(input); got != expected {
			t.Fatalf("parseSettingBool(%v) expected %v got %v", input, expected, got)
		}
	}
}

type failingSettingRepo struct{ mockSettingRepo }

func (f *failingSettingRepo) Upsert(key string, value models.JSON) (*models.Setting, error) {
	return nil, errors.New("disk full")
}

func TestSettingOnChangeNotifiesAfterWrite(t *testing.T) {
	svc := NewSettingService(newMockSettingRepo())
	var notified []string
	svc.OnChange(constants.SettingKeyAffiliateConfig, func(key string) { notified = append(notified, key) })
	svc.OnChange(constants.SettingKeyAffiliateConfig, nil)

	if _, err := svc.Update("ops_note", map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(notified) != 0 {
		t.Fatalf("unrelated key must not notify, got %v", notified)
	}
	if _, err := svc.UpdateAffiliateSetting(AffiliateDefaultSetting()); err != nil {
		t.Fatalf("update affiliate setting failed: %v", err)
	}
	if len(notified) != 1 || notified[0] != constants.SettingKeyAffiliateConfig {
		t.Fatalf("expected one notification, got %v", notified)
	}

	failing := NewSettingService(&failingSettingRepo{mockSettingRepo: *newMockSettingRepo()})
	calls := 0
	failing.OnChange(constants.SettingKeyAffiliateConfig, func(string) { calls++ })
	if _, err := failing.UpdateAffiliateSetting(AffiliateDefaultSetting()); err == nil {
		t.Fatalf("expected upsert error")
	}
	if calls != 0 {
		t.Fatalf("failed write must not notify")
	}
}

func TestSettingUpdateInvalidatesSnapshot(t *testing.T) {
	env := setupCommissionTest(t)
	ctx := context.Background()

	before, err := env.provider.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if before.Setting.Enabled {
		t.Fatalf("default setting should be disabled")
	}
	if _, err := env.settings.UpdateAffiliateSetting(enabledTestSetting()); err != nil {
		t.Fatalf("update setting failed: %v", err)
	}
	after, err := env.provider.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot after update failed: %v", err)
	}
	if !after.Setting.Enabled || after.Version == before.Version {
		t.Fatalf("expected fresh snapshot, before=%s after=%s enabled=%v", before.Version, after.Version, after.Setting.Enabled)
	}
}

func TestParseSettingInt(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int
		ok   bool
	}{
		{7, 7, true},
		{int64(9), 9, true},
		{30.9, 30, true},
		{json.Number("14"), 14, true},
		{" 21 ", 21, true},
		{"", 0, false},
		{"x", 0, false},
		{[]int{1}, 0, false},
	}
	for _, tc := range cases {
		got, err := parseSettingInt(tc.in)
		if (err == nil) != tc.ok || (tc.ok && got != tc.want) {
			t.Fatalf("parseSettingInt(%v) = %d, %v", tc.in, got, err)
		}
	}
}
