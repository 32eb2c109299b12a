package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/middleware"
	"github.com/MorseWayne/apparel_shop/internal/resp"
)

func validOrderBody() map[string]any {
	return map[string]any{
		"customer_email": "ana@example.com",
		"customer_name":  "Ana",
		"shipping_address": map[string]any{
			"line1":       "1 Main St",
			"city":        "Springfield",
			"postal_code": "12345",
			"country":     "US",
		},
		"items": []map[string]any{
			{"product_id": 1, "quantity": 2, "size": "M"},
		},
	}
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		key        string
		createErr  error
		replayed   bool
		wantStatus int
		wantCode   int
	}{
		{name: "created", body: validOrderBody(), wantStatus: http.StatusCreated, wantCode: resp.CodeOK},
		{name: "replayed", body: validOrderBody(), key: "k-1", replayed: true, wantStatus: http.StatusOK, wantCode: resp.CodeOK},
		{name: "missing items", body: map[string]any{"customer_email": "ana@example.com", "customer_name": "Ana"},
			wantStatus: http.StatusBadRequest, wantCode: resp.CodeInvalidParam},
		{name: "invalid email", body: func() map[string]any {
			b := validOrderBody()
			b["customer_email"] = "not-an-email"
			return b
		}(), wantStatus: http.StatusBadRequest, wantCode: resp.CodeInvalidParam},
		{name: "validation error from service", body: validOrderBody(), createErr: domain.ValidationError("no valid items"),
			wantStatus: http.StatusBadRequest, wantCode: resp.CodeInvalidParam},
		{name: "insufficient stock", body: validOrderBody(),
			createErr:  &domain.CartError{Issues: []domain.CartIssue{{ProductID: 1, Message: "only 1 left", CurrentStock: 1, Requested: 2}}},
			wantStatus: http.StatusConflict, wantCode: resp.CodeInsufficientStock},
		{name: "in progress", body: validOrderBody(), key: "k-2", createErr: cache.ErrRequestInProgress,
			wantStatus: http.StatusConflict, wantCode: resp.CodeInvalidParam},
		{name: "persistence", body: validOrderBody(), createErr: fmt.Errorf("%w: db down", domain.ErrPersistence),
			wantStatus: http.StatusInternalServerError, wantCode: resp.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			svc := &fakeOrderService{
				createFunc: func(ctx context.Context, req *domain.CreateOrderRequest, key string) (*domain.Order, bool, error) {
					gotKey = key
					if tt.createErr != nil {
						return nil, false, tt.createErr
					}
					return &domain.Order{ID: "o-1", OrderNumber: "ORD-1001", Total: decimal.RequireFromString("114.50")}, tt.replayed, nil
				},
			}
			h := NewOrderHandler(svc, zap.NewNop())
			router := setupTestRouter()
			router.POST("/orders", middleware.IdempotencyMiddleware(), h.CreateOrder)

			headers := map[string]string{}
			if tt.key != "" {
				headers["X-Idempotency-Key"] = tt.key
			}
			w, env := doJSON(t, router, http.MethodPost, "/orders", tt.body, headers)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if env.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", env.Code, tt.wantCode)
			}
			if tt.wantStatus < 400 && gotKey != tt.key {
				t.Errorf("idempotency key = %q, want %q", gotKey, tt.key)
			}
			if replayed := w.Header().Get(HeaderIdempotentReplayed) == "true"; replayed != tt.replayed {
				t.Errorf("replayed header = %v, want %v", replayed, tt.replayed)
			}
		})
	}
}

func TestOrderHandler_CreateOrderReturnsCartIssues(t *testing.T) {
	svc := &fakeOrderService{
		createFunc: func(ctx context.Context, req *domain.CreateOrderRequest, key string) (*domain.Order, bool, error) {
			return nil, false, &domain.CartError{Issues: []domain.CartIssue{
				{ProductID: 1, Message: "only 1 left", CurrentStock: 1, Requested: 2},
				{ProductID: 2, Message: "product is not available", Requested: 1},
			}}
		},
	}
	router := setupTestRouter()
	router.POST("/orders", NewOrderHandler(svc, nil).CreateOrder)

	_, env := doJSON(t, router, http.MethodPost, "/orders", validOrderBody(), nil)

	var data struct {
		Errors []domain.CartIssue `json:"errors"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Errors) != 2 || data.Errors[0].CurrentStock != 1 || data.Errors[1].ProductID != 2 {
		t.Errorf("unexpected issues: %+v", data.Errors)
	}
}

func TestOrderHandler_GetOrder(t *testing.T) {
	svc := &fakeOrderService{
		getFunc: func(ctx context.Context, idOrNumber string) (*domain.Order, error) {
			if idOrNumber == "ORD-1001" {
				return &domain.Order{ID: "o-1", OrderNumber: idOrNumber}, nil
			}
			return nil, domain.ErrOrderNotFound
		},
	}
	router := setupTestRouter()
	router.GET("/orders/:id", NewOrderHandler(svc, nil).GetOrder)

	w, env := doJSON(t, router, http.MethodGet, "/orders/ORD-1001", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var order domain.Order
	if err := json.Unmarshal(env.Data, &order); err != nil || order.ID != "o-1" {
		t.Errorf("unexpected order %s: %v", env.Data, err)
	}

	w, env = doJSON(t, router, http.MethodGet, "/orders/ORD-9999", nil, nil)
	if w.Code != http.StatusNotFound || env.Code != resp.CodeNotFound {
		t.Errorf("missing order: status = %d code = %d", w.Code, env.Code)
	}
}

func TestOrderHandler_ListOrders(t *testing.T) {
	var got *domain.OrderListRequest
	svc := &fakeOrderService{
		listFunc: func(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error) {
			got = req
			return []*domain.Order{}, nil
		},
	}
	router := setupTestRouter()
	router.GET("/orders", NewOrderHandler(svc, nil).ListOrders)

	w, _ := doJSON(t, router, http.MethodGet, "/orders?status=shipped&search=ana&limit=10", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got.Status == nil || *got.Status != domain.OrderStatusShipped || got.Search != "ana" || got.Limit != 10 {
		t.Errorf("unexpected list request: %+v", got)
	}
}

func TestOrderHandler_UpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		err        error
		wantStatus int
		wantCode   int
	}{
		{name: "ok", body: map[string]string{"status": "processing"}, wantStatus: http.StatusOK, wantCode: resp.CodeOK},
		{name: "missing status", body: map[string]string{}, wantStatus: http.StatusBadRequest, wantCode: resp.CodeInvalidParam},
		{name: "invalid transition", body: map[string]string{"status": "delivered"},
			err:        &domain.TransitionError{From: domain.OrderStatusPending, To: domain.OrderStatusDelivered},
			wantStatus: http.StatusConflict, wantCode: resp.CodeInvalidTransition},
		{name: "not found", body: map[string]string{"status": "processing"}, err: domain.ErrOrderNotFound,
			wantStatus: http.StatusNotFound, wantCode: resp.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor *string
			svc := &fakeOrderService{
				updateStatusFunc: func(ctx context.Context, id string, status domain.OrderStatus, actor *string) (*domain.Order, error) {
					gotActor = actor
					if tt.err != nil {
						return nil, tt.err
					}
					return &domain.Order{ID: id, Status: status}, nil
				},
			}
			router := setupTestRouter()
			router.PUT("/orders/:id/status", withUser(&domain.User{ID: 1, Username: "admin", Role: domain.UserRoleAdmin}),
				NewOrderHandler(svc, nil).UpdateStatus)

			w, env := doJSON(t, router, http.MethodPut, "/orders/o-1/status", tt.body, nil)
			if w.Code != tt.wantStatus || env.Code != tt.wantCode {
				t.Fatalf("status = %d code = %d, want %d/%d", w.Code, env.Code, tt.wantStatus, tt.wantCode)
			}
			if tt.wantStatus == http.StatusOK && (gotActor == nil || *gotActor != "admin") {
				t.Errorf("actor = %v, want admin", gotActor)
			}
		})
	}
}

func TestOrderHandler_AddTrackingAndDelete(t *testing.T) {
	tracking := ""
	svc := &fakeOrderService{
		addTrackingFunc: func(ctx context.Context, id, tn string, actor *string) (*domain.Order, error) {
			tracking = tn
			return &domain.Order{ID: id, Status: domain.OrderStatusShipped, TrackingNumber: &tn}, nil
		},
		deleteFunc: func(ctx context.Context, id string, actor *string) (*domain.Order, error) {
			return nil, &domain.TransitionError{From: domain.OrderStatusShipped, To: domain.OrderStatusCancelled}
		},
	}
	h := NewOrderHandler(svc, nil)
	router := setupTestRouter()
	router.POST("/orders/:id/tracking", h.AddTracking)
	router.DELETE("/orders/:id", h.DeleteOrder)

	w, _ := doJSON(t, router, http.MethodPost, "/orders/o-1/tracking", map[string]string{"tracking_number": "1Z999"}, nil)
	if w.Code != http.StatusOK || tracking != "1Z999" {
		t.Errorf("add tracking: status = %d tracking = %q", w.Code, tracking)
	}

	w, _ = doJSON(t, router, http.MethodPost, "/orders/o-1/tracking", map[string]string{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty tracking: status = %d, want 400", w.Code)
	}

	w, env := doJSON(t, router, http.MethodDelete, "/orders/o-1", nil, nil)
	if w.Code != http.StatusConflict || env.Code != resp.CodeInvalidTransition {
		t.Errorf("delete shipped: status = %d code = %d", w.Code, env.Code)
	}
}

func TestOrderHandler_StatsAndRevenueAreSeparate(t *testing.T) {
	h := NewOrderHandler(&fakeOrderService{}, nil)
	router := setupTestRouter()
	router.GET("/stats", h.GetStats)
	router.GET("/revenue", h.GetDashboardRevenue)

	_, env := doJSON(t, router, http.MethodGet, "/stats", nil, nil)
	var stats domain.OrderStats
	if err := json.Unmarshal(env.Data, &stats); err != nil || stats.TotalOrders != 3 {
		t.Errorf("stats = %s: %v", env.Data, err)
	}

	_, env = doJSON(t, router, http.MethodGet, "/revenue", nil, nil)
	var summary domain.RevenueSummary
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode revenue: %v", err)
	}
	if summary.OrderCount != 2 || len(summary.ExcludedStatuses) != 2 {
		t.Errorf("unexpected revenue summary: %+v", summary)
	}
}
