package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/config"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/pricing"
	"github.com/MorseWayne/apparel_shop/internal/repo"
)

const settingsCacheKey = "settings:store"

// SettingsService 店铺计价配置，表中没有记录时使用配置文件中的默认值
type SettingsService interface {
	Get(ctx context.Context) (*domain.StoreSettings, error)
	Update(ctx context.Context, req *domain.UpdateSettingsRequest) (*domain.StoreSettings, error)
	// Rules 当前计价规则；读取失败时回落到默认值并记录日志
	Rules(ctx context.Context) pricing.Rules
}

type settingsService struct {
	repo     repo.SettingsRepository
	cache    cache.Cache
	ttl      time.Duration
	defaults config.ShopConfig
	clock    clock.Clock
	logger   *zap.Logger
}

// NewSettingsService 创建店铺配置服务
func NewSettingsService(settingsRepo repo.SettingsRepository, c cache.Cache, ttl time.Duration, defaults config.ShopConfig, clk clock.Clock, logger *zap.Logger) SettingsService {
	if c == nil {
		c = cache.NewNullCache()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &settingsService{
		repo:     settingsRepo,
		cache:    c,
		ttl:      ttl,
		defaults: defaults,
		clock:    clk,
		logger:   logger,
	}
}

func (s *settingsService) defaultSettings() *domain.StoreSettings {
	return &domain.StoreSettings{
		TaxRate:               s.defaults.TaxRate,
		ShippingFlat:          s.defaults.ShippingFlat,
		FreeShippingThreshold: s.defaults.FreeShippingThreshold,
	}
}

func (s *settingsService) Get(ctx context.Context) (*domain.StoreSettings, error) {
	var cached domain.StoreSettings
	err := s.cache.Get(ctx, settingsCacheKey, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("读取店铺配置缓存失败", zap.Error(err))
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = s.defaultSettings()
	}

	if err := s.cache.Set(ctx, settingsCacheKey, settings, s.ttl); err != nil {
		s.logger.Warn("写入店铺配置缓存失败", zap.Error(err))
	}
	return settings, nil
}

func (s *settingsService) Update(ctx context.Context, req *domain.UpdateSettingsRequest) (*domain.StoreSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	next := *current
	if req.TaxRate != nil {
		if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, domain.ValidationError("tax_rate must be between 0 and 1")
		}
		next.TaxRate = *req.TaxRate
	}
	if req.ShippingFlat != nil {
		if req.ShippingFlat.IsNegative() {
			return nil, domain.ValidationError("shipping_flat must not be negative")
		}
		next.ShippingFlat = *req.ShippingFlat
	}
	if req.FreeShippingThreshold != nil {
		if req.FreeShippingThreshold.IsNegative() {
			return nil, domain.ValidationError("free_shipping_threshold must not be negative")
		}
		next.FreeShippingThreshold = *req.FreeShippingThreshold
	}
	next.UpdatedAt = s.clock.Now()

	if err := s.repo.Upsert(ctx, &next); err != nil {
		return nil, err
	}
	if err := s.cache.Del(ctx, settingsCacheKey); err != nil {
		s.logger.Warn("清除店铺配置缓存失败", zap.Error(err))
	}

	s.logger.Info("店铺配置已更新",
		zap.String("tax_rate", next.TaxRate.String()),
		zap.String("shipping_flat", next.ShippingFlat.String()),
		zap.String("free_shipping_threshold", next.FreeShippingThreshold.String()))
	return &next, nil
}

func (s *settingsService) Rules(ctx context.Context) pricing.Rules {
	settings, err := s.Get(ctx)
	if err != nil {
		s.logger.Warn("读取店铺配置失败，使用默认计价规则", zap.Error(err))
		settings = s.defaultSettings()
	}
	return pricing.Rules{
		TaxRate:               settings.TaxRate,
		ShippingFlat:          settings.ShippingFlat,
		FreeShippingThreshold: settings.FreeShippingThreshold,
	}
}
