package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dujiao-next/commission-engine/internal/constants"
	"github.com/dujiao-next/commission-engine/internal/logger"
	"github.com/dujiao-next/commission-engine/internal/models"
	"github.com/dujiao-next/commission-engine/internal/repository"
)

// SettingNormalizer 按设置键归一化写入值
type SettingNormalizer func(value models.JSON) models.JSON

// SettingService 设置读写，写入后通知订阅方（如配置快照失效）
type SettingService struct {
	repo        repository.SettingRepository
	normalizers map[string]SettingNormalizer

	mu        sync.RWMutex
	listeners map[string][]func(key string)
}

// NewSettingService 创建设置服务
func NewSettingService(repo repository.SettingRepository) *SettingService {
	return &SettingService{
		repo: repo,
		normalizers: map[string]SettingNormalizer{
			constants.SettingKeyAffiliateConfig: func(value models.JSON) models.JSON {
				return AffiliateSettingToMap(affiliateSettingFromJSON(value, AffiliateDefaultSetting()))
			},
		},
		listeners: map[string][]func(key string){},
	}
}

// OnChange 订阅指定键的写入事件，回调在写入成功后同步执行
func (s *SettingService) OnChange(key string, fn func(key string)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[key] = append(s.listeners[key], fn)
}

// GetByKey 获取设置
func (s *SettingService) GetByKey(key string) (models.JSON, error) {
	setting, err := s.repo.GetByKey(key)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, nil
	}
	return setting.ValueJSON, nil
}

// Update 归一化后写入设置值
func (s *SettingService) Update(key string, value map[string]interface{}) (models.JSON, error) {
	normalized := models.JSON(value)
	if normalize, ok := s.normalizers[key]; ok {
		normalized = normalize(normalized)
	}

	setting, err := s.repo.Upsert(key, normalized)
	if err != nil {
		return nil, err
	}
	s.notify(key)
	return setting.ValueJSON, nil
}

func (s *SettingService) notify(key string) {
	s.mu.RLock()
	listeners := append([]func(string){}, s.listeners[key]...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(key)
	}
	if len(listeners) > 0 {
		logger.Debugw("setting_change_notified", "key", key, "listeners", len(listeners))
	}
}

func parseSettingBool(raw interface{}) bool {
	switch value := raw.(type) {
	case bool:
		return value
	case int:
		return value != 0
	case int64:
		return value != 0
	case float64:
		return value != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true
		}
	}
	return false
}

func parseSettingInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid json number %q", v.String())
		}
		return int(f), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.Atoi(trimmed)
	default:
		return 0, fmt.Errorf("unsupported value type %T", value)
	}
}
