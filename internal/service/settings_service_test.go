package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

func newTestSettings() (SettingsService, *mockSettingsRepo) {
	settingsRepo := &mockSettingsRepo{memStore: newMemStore()}
	svc := NewSettingsService(settingsRepo, cache.NewMemoryCache(), time.Minute, testShopConfig(), clock.NewFixed(testNow), nil)
	return svc, settingsRepo
}

func TestSettingsService_DefaultsAndCache(t *testing.T) {
	svc, settingsRepo := newTestSettings()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := svc.Get(ctx)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.TaxRate.StringFixed(2) != "0.10" || got.ShippingFlat.StringFixed(2) != "10.00" {
			t.Errorf("defaults = %+v", got)
		}
	}
	if settingsRepo.gets != 1 {
		t.Errorf("repository read %d times, want 1", settingsRepo.gets)
	}
}

func TestSettingsService_Update(t *testing.T) {
	svc, _ := newTestSettings()
	ctx := context.Background()

	rate := decimal.RequireFromString("0.08")
	threshold := decimal.NewFromInt(150)
	got, err := svc.Update(ctx, &domain.UpdateSettingsRequest{TaxRate: &rate, FreeShippingThreshold: &threshold})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !got.TaxRate.Equal(rate) || !got.FreeShippingThreshold.Equal(threshold) || got.ShippingFlat.StringFixed(2) != "10.00" {
		t.Errorf("settings = %+v", got)
	}
	if !got.UpdatedAt.Equal(testNow) {
		t.Errorf("updated_at = %v", got.UpdatedAt)
	}

	rules := svc.Rules(ctx)
	if !rules.TaxRate.Equal(rate) || !rules.FreeShippingThreshold.Equal(threshold) {
		t.Errorf("rules not refreshed after update: %+v", rules)
	}
}

func TestSettingsService_UpdateValidation(t *testing.T) {
	svc, _ := newTestSettings()
	negative := decimal.NewFromInt(-1)
	tooHigh := decimal.RequireFromString("1.5")

	tests := []struct {
		name string
		req  *domain.UpdateSettingsRequest
	}{
		{name: "negative tax", req: &domain.UpdateSettingsRequest{TaxRate: &negative}},
		{name: "tax above one", req: &domain.UpdateSettingsRequest{TaxRate: &tooHigh}},
		{name: "negative shipping", req: &domain.UpdateSettingsRequest{ShippingFlat: &negative}},
		{name: "negative threshold", req: &domain.UpdateSettingsRequest{FreeShippingThreshold: &negative}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Update(context.Background(), tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Update() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSettingsService_RulesFallBackOnError(t *testing.T) {
	svc, settingsRepo := newTestSettings()
	settingsRepo.fail["SettingsGet"] = errors.New("db down")

	rules := svc.Rules(context.Background())
	if rules.TaxRate.StringFixed(2) != "0.10" || rules.FreeShippingThreshold.StringFixed(2) != "100.00" {
		t.Errorf("fallback rules = %+v", rules)
	}
}
