package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/middleware"
)

// fakeOrderService 未设置的函数返回零值
type fakeOrderService struct {
	createFunc       func(ctx context.Context, req *domain.CreateOrderRequest, key string) (*domain.Order, bool, error)
	getFunc          func(ctx context.Context, idOrNumber string) (*domain.Order, error)
	listFunc         func(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error)
	updateStatusFunc func(ctx context.Context, id string, status domain.OrderStatus, actor *string) (*domain.Order, error)
	updateFunc       func(ctx context.Context, id string, req *domain.UpdateOrderRequest) (*domain.Order, error)
	addTrackingFunc  func(ctx context.Context, id, tracking string, actor *string) (*domain.Order, error)
	deleteFunc       func(ctx context.Context, id string, actor *string) (*domain.Order, error)
}

func (f *fakeOrderService) Create(ctx context.Context, req *domain.CreateOrderRequest, key string) (*domain.Order, bool, error) {
	return f.createFunc(ctx, req, key)
}

func (f *fakeOrderService) Get(ctx context.Context, idOrNumber string) (*domain.Order, error) {
	return f.getFunc(ctx, idOrNumber)
}

func (f *fakeOrderService) List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error) {
	return f.listFunc(ctx, req)
}

func (f *fakeOrderService) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, actor *string) (*domain.Order, error) {
	return f.updateStatusFunc(ctx, id, status, actor)
}

func (f *fakeOrderService) Update(ctx context.Context, id string, req *domain.UpdateOrderRequest) (*domain.Order, error) {
	return f.updateFunc(ctx, id, req)
}

func (f *fakeOrderService) AddTracking(ctx context.Context, id, tracking string, actor *string) (*domain.Order, error) {
	return f.addTrackingFunc(ctx, id, tracking, actor)
}

func (f *fakeOrderService) Delete(ctx context.Context, id string, actor *string) (*domain.Order, error) {
	return f.deleteFunc(ctx, id, actor)
}

func (f *fakeOrderService) Stats(ctx context.Context) (*domain.OrderStats, error) {
	return &domain.OrderStats{TotalOrders: 3}, nil
}

func (f *fakeOrderService) DashboardRevenue(ctx context.Context) (*domain.RevenueSummary, error) {
	return &domain.RevenueSummary{OrderCount: 2, ExcludedStatuses: domain.RevenueExcludedStatuses}, nil
}

type fakeLedger struct {
	adjustFunc   func(ctx context.Context, productID int64, delta int, note string, actor *string) (*domain.StockChange, error)
	validateFunc func(ctx context.Context, items []domain.CartItem) (*domain.CartValidation, error)
	availFunc    func(ctx context.Context, productID int64, requested int) (*domain.Availability, error)
	historyLimit int
}

func (f *fakeLedger) GetStatus(ctx context.Context) (*domain.StockStatus, error) {
	return &domain.StockStatus{TotalProducts: 4, InStock: 2, LowStock: 1, OutOfStock: 1}, nil
}

func (f *fakeLedger) SetQuantity(ctx context.Context, productID int64, quantity int, note string, actor *string) (*domain.StockChange, error) {
	return &domain.StockChange{}, nil
}

func (f *fakeLedger) AdjustQuantity(ctx context.Context, productID int64, delta int, note string, actor *string) (*domain.StockChange, error) {
	return f.adjustFunc(ctx, productID, delta, note, actor)
}

func (f *fakeLedger) Restock(ctx context.Context, productID int64, quantity int, note string, actor *string) (*domain.StockChange, error) {
	return &domain.StockChange{}, nil
}

func (f *fakeLedger) CheckAvailability(ctx context.Context, productID int64, requested int) (*domain.Availability, error) {
	return f.availFunc(ctx, productID, requested)
}

func (f *fakeLedger) ValidateCart(ctx context.Context, items []domain.CartItem) (*domain.CartValidation, error) {
	return f.validateFunc(ctx, items)
}

func (f *fakeLedger) History(ctx context.Context, productID int64, limit int) ([]*domain.StockHistoryEntry, error) {
	f.historyLimit = limit
	return []*domain.StockHistoryEntry{}, nil
}

func (f *fakeLedger) ApplyOrderPurchase(ctx context.Context, order *domain.Order) error { return nil }

func (f *fakeLedger) ApplyOrderReturn(ctx context.Context, order *domain.Order, actor *string) error {
	return nil
}

func (f *fakeLedger) ReconcileOrder(ctx context.Context, orderID string) error { return nil }

type fakeAlerts struct {
	resolveFunc func(ctx context.Context, alertID, note string, actor *string) (*domain.StockAlert, error)
}

func (f *fakeAlerts) Create(ctx context.Context, productID int64, alertType domain.AlertType, note string) (*domain.StockAlert, error) {
	return &domain.StockAlert{ProductID: productID, AlertType: alertType, Note: note}, nil
}

func (f *fakeAlerts) Resolve(ctx context.Context, alertID, note string, actor *string) (*domain.StockAlert, error) {
	return f.resolveFunc(ctx, alertID, note, actor)
}

func (f *fakeAlerts) ResolveOpen(ctx context.Context, productID int64, alertType domain.AlertType, note string, actor *string) error {
	return nil
}

func (f *fakeAlerts) ListOpen(ctx context.Context) ([]*domain.AlertWithProduct, error) {
	return []*domain.AlertWithProduct{}, nil
}

func (f *fakeAlerts) CountOpen(ctx context.Context) (int64, error) { return 0, nil }

func (f *fakeAlerts) Evaluate(ctx context.Context, product *domain.Product, quantity int) error {
	return nil
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// withUser 模拟认证中间件写入调用方
func withUser(user *domain.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(middleware.WithUser(c.Request.Context(), user))
		c.Next()
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid json %q: %v", w.Body.String(), err)
	}
	return w, env
}
