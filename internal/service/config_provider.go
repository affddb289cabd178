package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/dujiao-next/commission-engine/internal/cache"
	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

const defaultSnapshotTTL = 5 * time.Minute

// ConfigSnapshot 不可变的佣金配置快照，随每次调用显式传入
type ConfigSnapshot struct {
	Version  string
	LoadedAt time.Time
	Setting  AffiliateSetting
	Rules    []CompiledRule
	// SkippedRules 编译失败被跳过的规则及原因
	SkippedRules []string

	userRates  map[productRateKey]models.ProductCommissionRate
	groupRates map[productRateKey]models.ProductCommissionRate
}

// productRateKey 商品 × 推广者 或 商品 × 分组
type productRateKey struct {
	productID uint
	ownerID   uint
}

// UserRate 商品 × 推广者覆盖费率
func (s *ConfigSnapshot) UserRate(productID, accountID uint) (models.ProductCommissionRate, bool) {
	rate, ok := s.userRates[productRateKey{productID: productID, ownerID: accountID}]
	return rate, ok
}

// GroupRate 商品 × 分组覆盖费率
func (s *ConfigSnapshot) GroupRate(productID, groupID uint) (models.ProductCommissionRate, bool) {
	rate, ok := s.groupRates[productRateKey{productID: productID, ownerID: groupID}]
	return rate, ok
}

// snapshotPayload 缓存于 Redis 的原始配置
type snapshotPayload struct {
	Setting      AffiliateSetting               `json:"setting"`
	Rules        []models.DynamicCommissionRule `json:"rules"`
	ProductRates []models.ProductCommissionRate `json:"product_rates"`
}

// ConfigProvider 配置快照提供者，缓存刷新边界由调用方通过 Invalidate 控制
type ConfigProvider struct {
	settingService *SettingService
	configRepo     repository.CommissionConfigRepository
	ttl            time.Duration
	now            func() time.Time

	mu        sync.RWMutex
	current   *ConfigSnapshot
	expiresAt time.Time
}

// NewConfigProvider 创建配置快照提供者
func NewConfigProvider(settingService *SettingService, configRepo repository.CommissionConfigRepository, ttl time.Duration) *ConfigProvider {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	p := &ConfigProvider{
		settingService: settingService,
		configRepo:     configRepo,
		ttl:            ttl,
		now:            time.Now,
	}
	settingService.OnChange(constants.SettingKeyAffiliateConfig, p.onSettingChanged)
	return p
}

// onSettingChanged 推广计划设置写入后立即丢弃快照
func (p *ConfigProvider) onSettingChanged(key string) {
	if err := p.Invalidate(context.Background()); err != nil {
		logger.Warnw("commission_snapshot_invalidate_failed", "key", key, "error", err)
	}
}

// Snapshot 获取当前配置快照（进程内 → Redis → 数据库）
func (p *ConfigProvider) Snapshot(ctx context.Context) (*ConfigSnapshot, error) {
	now := p.now()
	p.mu.RLock()
	if p.current != nil && now.Before(p.expiresAt) {
		snap := p.current
		p.mu.RUnlock()
		return snap, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && now.Before(p.expiresAt) {
		return p.current, nil
	}

	payload, err := p.loadPayload(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := buildConfigSnapshot(payload, now)
	if err != nil {
		return nil, err
	}
	p.current = snap
	p.expiresAt = now.Add(p.ttl)
	return snap, nil
}

// Invalidate 丢弃进程内与 Redis 中的快照，下次调用重新加载
func (p *ConfigProvider) Invalidate(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.expiresAt = time.Time{}
	p.mu.Unlock()
	return cache.Del(ctx, constants.CacheKeyCommissionSnapshot)
}

func (p *ConfigProvider) loadPayload(ctx context.Context) (*snapshotPayload, error) {
	var cached snapshotPayload
	hit, err := cache.GetJSON(ctx, constants.CacheKeyCommissionSnapshot, &cached)
	if err != nil {
		logger.Warnw("commission_snapshot_cache_get_failed", "error", err)
	}
	if hit {
		cached.Setting = NormalizeAffiliateSetting(cached.Setting)
		return &cached, nil
	}

	setting, err := p.settingService.GetAffiliateSetting()
	if err != nil {
		return nil, err
	}
	rules, err := p.configRepo.ListActiveRules()
	if err != nil {
		return nil, err
	}
	rates, err := p.configRepo.ListProductRates()
	if err != nil {
		return nil, err
	}
	payload := &snapshotPayload{Setting: setting, Rules: rules, ProductRates: rates}
	if err := cache.SetJSON(ctx, constants.CacheKeyCommissionSnapshot, payload, p.ttl); err != nil {
		logger.Warnw("commission_snapshot_cache_set_failed", "error", err)
	}
	return payload, nil
}

func buildConfigSnapshot(payload *snapshotPayload, now time.Time) (*ConfigSnapshot, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(raw)

	compiled, errs := CompileRules(payload.Rules)
	skipped := make([]string, 0, len(errs))
	for _, ruleErr := range errs {
		logger.Warnw("commission_rule_skipped", "error", ruleErr)
		skipped = append(skipped, ruleErr.Error())
	}

	snap := &ConfigSnapshot{
		Version:      hex.EncodeToString(sum[:]),
		LoadedAt:     now,
		Setting:      payload.Setting,
		Rules:        compiled,
		SkippedRules: skipped,
		userRates:    make(map[productRateKey]models.ProductCommissionRate),
		groupRates:   make(map[productRateKey]models.ProductCommissionRate),
	}
	// 同一键有多条时保留 id 最小的一条
	for _, rate := range payload.ProductRates {
		switch {
		case rate.AffiliateAccountID != nil:
			key := productRateKey{productID: rate.ProductID, ownerID: *rate.AffiliateAccountID}
			if _, ok := snap.userRates[key]; !ok {
				snap.userRates[key] = rate
			}
		case rate.GroupID != nil:
			key := productRateKey{productID: rate.ProductID, ownerID: *rate.GroupID}
			if _, ok := snap.groupRates[key]; !ok {
				snap.groupRates[key] = rate
			}
		}
	}
	return snap, nil
}

// NewStaticConfigSnapshot 由给定配置直接构建快照
func NewStaticConfigSnapshot(setting AffiliateSetting, rules []models.DynamicCommissionRule, rates ...models.ProductCommissionRate) (*ConfigSnapshot, error) {
	return buildConfigSnapshot(&snapshotPayload{
		Setting:      NormalizeAffiliateSetting(setting),
		Rules:        rules,
		ProductRates: rates,
	}, time.Now())
}
