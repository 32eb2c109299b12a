package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/clock"
	"github.com/MorseWayne/apparel_shop/internal/config"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv 组装全部服务，底层共享同一个 memStore
type testEnv struct {
	store     *memStore
	tx        *mockTx
	publisher *mockPublisher
	cache     *mockProductCache
	idem      *cache.IdempotencyStore

	alerts   AlertService
	ledger   LedgerService
	numbers  OrderNumberAllocator
	settings SettingsService
	orders   OrderService
	products ProductService
}

func testShopConfig() config.ShopConfig {
	return config.ShopConfig{
		OrderNumberPrefix:     "ORD",
		TaxRate:               decimal.RequireFromString("0.10"),
		ShippingFlat:          decimal.NewFromInt(10),
		FreeShippingThreshold: decimal.NewFromInt(100),
		Currency:              "USD",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	env := &testEnv{
		store:     store,
		tx:        &mockTx{},
		publisher: &mockPublisher{},
		cache:     &mockProductCache{},
		idem:      cache.NewIdempotencyStore(cache.NewMemoryCache(), time.Hour),
	}
	clk := clock.NewFixed(testNow)

	stock := mockStockRepo{store}
	env.alerts = NewAlertService(mockAlertRepo{store}, stock, env.publisher, nil, clk, nil)
	env.ledger = NewLedgerService(env.tx, stock, mockOrderRepo{store}, env.alerts, env.cache, env.publisher, nil, clk, nil)
	env.numbers = NewOrderNumberAllocator(mockCounterRepo{store}, "ORD", nil, clk, nil)
	env.settings = NewSettingsService(&mockSettingsRepo{memStore: store}, cache.NewMemoryCache(), time.Minute, testShopConfig(), clk, nil)
	env.orders = NewOrderService(env.tx, mockOrderRepo{store}, stock, env.ledger, env.numbers, env.settings,
		env.idem, env.publisher, nil, clk, nil)
	env.products = NewProductService(mockProductRepo{store}, stock, env.alerts, nil)
	return env
}

// tracked 跟踪库存的在售商品
func tracked(name string, price string, quantity, alertLevel int) domain.Product {
	return domain.Product{
		Name:           name,
		SKU:            name,
		Price:          decimal.RequireFromString(price),
		Status:         domain.ProductStatusActive,
		Quantity:       quantity,
		AlertLevel:     alertLevel,
		TrackInventory: true,
	}
}

func strPtr(s string) *string { return &s }
