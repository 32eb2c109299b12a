package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/repo"
)

// ProductService 商品目录的最小管理接口，库存数量只能通过 LedgerService 修改
type ProductService interface {
	Create(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error)
	List(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error)
}

type productService struct {
	products repo.ProductRepository
	stock    repo.StockRepository
	alerts   AlertService
	logger   *zap.Logger
}

// NewProductService 创建商品服务实例
func NewProductService(products repo.ProductRepository, stock repo.StockRepository, alerts AlertService, logger *zap.Logger) ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &productService{
		products: products,
		stock:    stock,
		alerts:   alerts,
		logger:   logger,
	}
}

// Create 创建商品，初始库存为 0，由补货写入
func (s *productService) Create(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if !req.Price.IsPositive() {
		return nil, domain.ValidationError("price must be greater than 0")
	}

	trackInventory := true
	if req.TrackInventory != nil {
		trackInventory = *req.TrackInventory
	}
	product := &domain.Product{
		Name:           req.Name,
		Description:    req.Description,
		Price:          req.Price,
		SKU:            req.SKU,
		ImageURL:       req.ImageURL,
		Status:         domain.ProductStatusActive,
		AlertLevel:     req.AlertLevel,
		TrackInventory: trackInventory,
		AllowBackorder: req.AllowBackorder,
	}

	if err := s.products.Create(ctx, product); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.ValidationError("sku %s already exists", req.SKU)
		}
		return nil, err
	}

	s.logger.Info("商品已创建", zap.Int64("product_id", product.ID), zap.String("sku", product.SKU))
	return product, nil
}

// Get 获取商品详情
func (s *productService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

// Update 更新目录字段；阈值或跟踪方式变化时重新评估告警
func (s *productService) Update(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error) {
	product, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	reevaluate := false
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, domain.ValidationError("price must be greater than 0")
		}
		product.Price = *req.Price
	}
	if req.ImageURL != nil {
		product.ImageURL = *req.ImageURL
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.ProductStatusActive, domain.ProductStatusInactive, domain.ProductStatusDeleted:
		default:
			return nil, domain.ValidationError("unknown product status %q", *req.Status)
		}
		product.Status = *req.Status
	}
	if req.AlertLevel != nil {
		if *req.AlertLevel < 0 {
			return nil, domain.ValidationError("alert_level must not be negative")
		}
		reevaluate = reevaluate || *req.AlertLevel != product.AlertLevel
		product.AlertLevel = *req.AlertLevel
	}
	if req.TrackInventory != nil {
		reevaluate = reevaluate || *req.TrackInventory != product.TrackInventory
		product.TrackInventory = *req.TrackInventory
	}
	if req.AllowBackorder != nil {
		product.AllowBackorder = *req.AllowBackorder
	}

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}

	if reevaluate {
		s.reevaluate(ctx, product.ID)
	}
	return product, nil
}

// reevaluate 缓存中的数量可能滞后，按台账当前数量评估
func (s *productService) reevaluate(ctx context.Context, id int64) {
	fresh, err := s.stock.GetProducts(ctx, []int64{id})
	if err != nil || len(fresh) == 0 {
		s.logger.Warn("读取商品库存失败，跳过告警评估", zap.Int64("product_id", id), zap.Error(err))
		return
	}
	if err := s.alerts.Evaluate(ctx, fresh[0], fresh[0].Quantity); err != nil {
		s.logger.Warn("商品更新后告警评估失败", zap.Int64("product_id", id), zap.Error(err))
	}
}

// List 获取商品列表
func (s *productService) List(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	products, total, err := s.products.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	return &domain.ProductListResponse{
		Products: products,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}
