package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// StockRepository 库存台账数据访问。数量读写绕过商品缓存
type StockRepository interface {
	// LockProduct 行锁读取商品，必须在事务中调用
	LockProduct(ctx context.Context, productID int64) (*domain.Product, error)
	UpdateQuantity(ctx context.Context, productID int64, quantity int) error
	// InsertHistory 追加流水；同一订单同一商品同一类型重复写入返回 domain.ErrDuplicate
	InsertHistory(ctx context.Context, entry *domain.StockHistoryEntry) error

	GetProducts(ctx context.Context, ids []int64) ([]*domain.Product, error)
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	ListHistory(ctx context.Context, productID int64, limit int) ([]*domain.StockHistoryEntry, error)
	ListOrderMovements(ctx context.Context, orderID string) ([]*domain.StockHistoryEntry, error)
}

type stockRepo struct {
	db *sql.DB
}

// NewStockRepository 创建库存台账仓储
func NewStockRepository(db *sql.DB) StockRepository {
	return &stockRepo{db: db}
}

const historyColumns = `id, product_id, previous_quantity, new_quantity, delta, change_type,
	related_order_id, note, actor, created_at`

// LockProduct SELECT ... FOR UPDATE
func (r *stockRepo) LockProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	if database.TxFromContext(ctx) == nil {
		return nil, errors.New("LockProduct requires a transaction")
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ? AND status != 'deleted' FOR UPDATE`
	product, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, query, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock product: %w", err)
	}
	return product, nil
}

// UpdateQuantity 写入新数量
func (r *stockRepo) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`UPDATE products SET quantity = ? WHERE id = ?`, quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}
	return nil
}

// InsertHistory 追加库存流水
func (r *stockRepo) InsertHistory(ctx context.Context, e *domain.StockHistoryEntry) error {
	query := `
		INSERT INTO stock_history (id, product_id, previous_quantity, new_quantity, delta, change_type,
			related_order_id, note, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		e.ID,
		e.ProductID,
		e.PreviousQuantity,
		e.NewQuantity,
		e.Delta,
		e.ChangeType,
		e.RelatedOrderID,
		e.Note,
		e.Actor,
		e.CreatedAt,
	)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("stock movement for product %d: %w", e.ProductID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert stock history: %w", err)
	}
	return nil
}

// GetProducts 按ID批量读取商品当前库存
func (r *stockRepo) GetProducts(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return []*domain.Product{}, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id IN (%s) AND status != 'deleted'`,
		productColumns, placeholders(len(ids)))

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	return scanProducts(rows)
}

// ListProducts 全部未删除商品
func (r *stockRepo) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE status != 'deleted' ORDER BY id`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return scanProducts(rows)
}

// ListHistory 商品流水，最新在前
func (r *stockRepo) ListHistory(ctx context.Context, productID int64, limit int) ([]*domain.StockHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM stock_history
		WHERE product_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock history: %w", err)
	}
	return scanHistory(rows)
}

// ListOrderMovements 某订单产生的全部流水，按写入顺序
func (r *stockRepo) ListOrderMovements(ctx context.Context, orderID string) ([]*domain.StockHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM stock_history WHERE related_order_id = ? ORDER BY seq`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list order stock movements: %w", err)
	}
	return scanHistory(rows)
}

func scanHistory(rows *sql.Rows) ([]*domain.StockHistoryEntry, error) {
	defer rows.Close()

	entries := make([]*domain.StockHistoryEntry, 0)
	for rows.Next() {
		e := &domain.StockHistoryEntry{}
		var orderID, actor sql.NullString
		if err := rows.Scan(
			&e.ID,
			&e.ProductID,
			&e.PreviousQuantity,
			&e.NewQuantity,
			&e.Delta,
			&e.ChangeType,
			&orderID,
			&e.Note,
			&actor,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan stock history: %w", err)
		}
		e.RelatedOrderID = nullStringPtr(orderID)
		e.Actor = nullStringPtr(actor)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stock history: %w", err)
	}
	return entries, nil
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
