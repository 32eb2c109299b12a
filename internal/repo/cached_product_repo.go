package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/apparel_shop/internal/cache"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// CachedProductRepository 带缓存的商品仓储。
// 缓存中的 quantity 可能滞后，库存判断一律读 StockRepository。
type CachedProductRepository struct {
	repo   ProductRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProductRepository 创建带缓存的商品仓储
func NewCachedProductRepository(repo ProductRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedProductRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductRepository{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

// Create 创建商品
func (r *CachedProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.repo.Create(ctx, product)
}

// GetByID 根据ID获取商品（带缓存）
func (r *CachedProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := productCacheKey(id)

	var product domain.Product
	if err := r.cache.Get(ctx, key, &product); err == nil {
		return &product, nil
	}

	result, err := r.repo.GetByID(ctx, id)
	if err != nil || result == nil {
		return result, err
	}

	r.set(ctx, key, result)
	return result, nil
}

// GetBySKU 根据SKU获取商品（不缓存）
func (r *CachedProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return r.repo.GetBySKU(ctx, sku)
}

// GetByIDs 批量获取商品，只回源未命中的部分
func (r *CachedProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	products := make([]*domain.Product, 0, len(ids))
	var missing []int64

	for _, id := range ids {
		var product domain.Product
		if err := r.cache.Get(ctx, productCacheKey(id), &product); err == nil {
			products = append(products, &product)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return products, nil
	}

	loaded, err := r.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		r.set(ctx, productCacheKey(p.ID), p)
	}
	return append(products, loaded...), nil
}

// Update 更新商品并清除缓存
func (r *CachedProductRepository) Update(ctx context.Context, product *domain.Product) error {
	if err := r.repo.Update(ctx, product); err != nil {
		return err
	}
	r.Invalidate(ctx, product.ID)
	return nil
}

// List 获取商品列表（不缓存，参数组合太多）
func (r *CachedProductRepository) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	return r.repo.List(ctx, req)
}

// Invalidate 清除商品缓存，台账变更提交后调用
func (r *CachedProductRepository) Invalidate(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productCacheKey(id)
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		r.logger.Warn("清除商品缓存失败", zap.Int64s("product_ids", ids), zap.Error(err))
	}
}

func (r *CachedProductRepository) set(ctx context.Context, key string, p *domain.Product) {
	if err := r.cache.Set(ctx, key, p, r.ttl); err != nil {
		r.logger.Debug("写入商品缓存失败", zap.String("key", key), zap.Error(err))
	}
}

func productCacheKey(id int64) string {
	return fmt.Sprintf("product:id:%d", id)
}

// ProductCache 商品缓存失效接口
type ProductCache interface {
	Invalidate(ctx context.Context, ids ...int64)
}

// NopProductCache 未启用缓存时使用
type NopProductCache struct{}

// Invalidate 实现 ProductCache
func (NopProductCache) Invalidate(context.Context, ...int64) {}
