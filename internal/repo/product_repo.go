// Package repo 实现数据访问层，负责与数据库的交互。
//
// 所有方法通过 database.Conn 取得执行器，处于 WithTx 上下文中时自动加入事务。
package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// ProductRepository 定义商品数据访问接口
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error)
	// Update 只更新目录字段，数量由库存台账维护
	Update(ctx context.Context, product *domain.Product) error
	List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error)
}

// productRepo 实现ProductRepository接口
type productRepo struct {
	db *sql.DB
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = `id, name, description, price, sku, image_url, status, quantity,
	alert_level, track_inventory, allow_backorder, created_at, updated_at`

// rowScanner *sql.Row 与 *sql.Rows 的公共接口
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(s rowScanner) (*domain.Product, error) {
	p := &domain.Product{}
	var description sql.NullString
	err := s.Scan(
		&p.ID,
		&p.Name,
		&description,
		&p.Price,
		&p.SKU,
		&p.ImageURL,
		&p.Status,
		&p.Quantity,
		&p.AlertLevel,
		&p.TrackInventory,
		&p.AllowBackorder,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	return p, nil
}

func scanProducts(rows *sql.Rows) ([]*domain.Product, error) {
	defer rows.Close()
	products := make([]*domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return products, nil
}

// Create 创建商品
func (r *productRepo) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (name, description, price, sku, image_url, status, quantity,
			alert_level, track_inventory, allow_backorder)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		product.Name,
		product.Description,
		product.Price,
		product.SKU,
		product.ImageURL,
		product.Status,
		product.Quantity,
		product.AlertLevel,
		product.TrackInventory,
		product.AllowBackorder,
	)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("sku %s: %w", product.SKU, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	product.ID = id
	return nil
}

// GetByID 根据ID获取商品
func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ? AND status != 'deleted'`

	product, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by id: %w", err)
	}
	return product, nil
}

// GetBySKU 根据SKU获取商品
func (r *productRepo) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = ? AND status != 'deleted'`

	product, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, query, sku))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product by sku: %w", err)
	}
	return product, nil
}

// GetByIDs 根据ID列表批量获取商品，不存在的ID被忽略
func (r *productRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return []*domain.Product{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM products WHERE id IN (%s) AND status != 'deleted' ORDER BY id`,
		productColumns, placeholders(len(ids)))

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products by ids: %w", err)
	}
	return scanProducts(rows)
}

// Update 更新商品
func (r *productRepo) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = ?, description = ?, price = ?, image_url = ?, status = ?,
			alert_level = ?, track_inventory = ?, allow_backorder = ?
		WHERE id = ?
	`

	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		product.Name,
		product.Description,
		product.Price,
		product.ImageURL,
		product.Status,
		product.AlertLevel,
		product.TrackInventory,
		product.AllowBackorder,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// List 获取商品列表
func (r *productRepo) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	conditions := []string{"status != 'deleted'"}
	var args []any

	if req.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *req.Status)
	}
	if req.Keyword != "" {
		conditions = append(conditions, "(name LIKE ? OR sku LIKE ?)")
		keyword := containsPattern(req.Keyword)
		args = append(args, keyword, keyword)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	conn := database.Conn(ctx, r.db)

	var total int64
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		productColumns, where)
	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func placeholders(n int) string {
	return strings.Repeat("?,", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
