package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/pricing"
	"github.com/MorseWayne/apparel_shop/internal/resp"
)

type fakeProductService struct {
	listReq *domain.ProductListRequest
}

func (f *fakeProductService) Create(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if !req.Price.IsPositive() {
		return nil, domain.ValidationError("price must be positive")
	}
	return &domain.Product{ID: 10, Name: req.Name, SKU: req.SKU, Price: req.Price}, nil
}

func (f *fakeProductService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	if id != 10 {
		return nil, domain.ErrProductNotFound
	}
	return &domain.Product{ID: id, Name: "Linen Shirt"}, nil
}

func (f *fakeProductService) Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error) {
	return &domain.Product{ID: id}, nil
}

func (f *fakeProductService) List(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error) {
	f.listReq = req
	return &domain.ProductListResponse{Products: []*domain.Product{}, Page: req.Page, PageSize: req.PageSize}, nil
}

type fakeSettingsService struct {
	current domain.StoreSettings
}

func (f *fakeSettingsService) Get(ctx context.Context) (*domain.StoreSettings, error) {
	s := f.current
	return &s, nil
}

func (f *fakeSettingsService) Update(ctx context.Context, req *domain.UpdateSettingsRequest) (*domain.StoreSettings, error) {
	if req.TaxRate != nil {
		if req.TaxRate.IsNegative() {
			return nil, domain.ValidationError("tax_rate must be between 0 and 1")
		}
		f.current.TaxRate = *req.TaxRate
	}
	s := f.current
	return &s, nil
}

func (f *fakeSettingsService) Rules(ctx context.Context) pricing.Rules {
	return pricing.Rules{TaxRate: f.current.TaxRate}
}

func TestProductHandler(t *testing.T) {
	svc := &fakeProductService{}
	h := NewProductHandler(svc, nil)
	router := setupTestRouter()
	router.POST("/products", h.CreateProduct)
	router.GET("/products", h.ListProducts)
	router.GET("/products/:id", h.GetProduct)

	w, env := doJSON(t, router, http.MethodPost, "/products",
		map[string]any{"name": "Linen Shirt", "sku": "LS-M", "price": "49.90", "alert_level": 5}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d (%s)", w.Code, w.Body.String())
	}
	var p domain.Product
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !p.Price.Equal(decimal.RequireFromString("49.90")) {
		t.Errorf("price = %s, want 49.90", p.Price)
	}

	w, env = doJSON(t, router, http.MethodPost, "/products",
		map[string]any{"name": "Free Shirt", "sku": "FS", "price": "0"}, nil)
	if w.Code != http.StatusBadRequest || env.Code != resp.CodeInvalidParam {
		t.Errorf("zero price: status = %d code = %d", w.Code, env.Code)
	}

	w, _ = doJSON(t, router, http.MethodGet, "/products/11", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing product: status = %d, want 404", w.Code)
	}

	w, _ = doJSON(t, router, http.MethodGet, "/products/x", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}

	doJSON(t, router, http.MethodGet, "/products?page=2&page_size=5&status=active&keyword=linen", nil, nil)
	if svc.listReq == nil || svc.listReq.Page != 2 || svc.listReq.PageSize != 5 ||
		svc.listReq.Status == nil || *svc.listReq.Status != domain.ProductStatusActive || svc.listReq.Keyword != "linen" {
		t.Errorf("unexpected list request: %+v", svc.listReq)
	}
}

func TestSettingsHandler(t *testing.T) {
	svc := &fakeSettingsService{current: domain.StoreSettings{TaxRate: decimal.RequireFromString("0.10")}}
	h := NewSettingsHandler(svc, nil)
	router := setupTestRouter()
	router.GET("/settings", h.GetSettings)
	router.PUT("/settings", h.UpdateSettings)

	w, env := doJSON(t, router, http.MethodPut, "/settings", map[string]any{"tax_rate": "0.08"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d (%s)", w.Code, w.Body.String())
	}
	var s domain.StoreSettings
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !s.TaxRate.Equal(decimal.RequireFromString("0.08")) {
		t.Errorf("tax_rate = %s, want 0.08", s.TaxRate)
	}

	w, _ = doJSON(t, router, http.MethodPut, "/settings", map[string]any{"tax_rate": "-1"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative tax: status = %d, want 400", w.Code)
	}
}
