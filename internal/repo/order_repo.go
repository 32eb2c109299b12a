package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// OrderRepository 订单数据访问。订单从不物理删除
type OrderRepository interface {
	// Create 写入订单头与行快照，需在事务中调用；订单号冲突返回 domain.ErrDuplicate
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error)
	// LockByID 行锁读取订单，必须在事务中调用
	LockByID(ctx context.Context, id string) (*domain.Order, error)
	// SaveStatus 写入状态相关字段（status, payment_status, tracking_number, 时间戳）
	SaveStatus(ctx context.Context, order *domain.Order) error
	// Update 只写入请求中提供的字段，并刷新 updated_at
	Update(ctx context.Context, id string, req *domain.UpdateOrderRequest, now time.Time) (bool, error)
	List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error)
	Stats(ctx context.Context) (*domain.OrderStats, error)
	// Revenue 汇总 total，排除给定状态
	Revenue(ctx context.Context, excluded []domain.OrderStatus) (decimal.Decimal, int64, error)
}

type orderRepo struct {
	db *sql.DB
}

// NewOrderRepository 创建订单仓储
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepo{db: db}
}

const orderColumns = `id, order_number, customer_email, customer_name, customer_phone, shipping_address,
	subtotal, shipping_cost, tax, discount, total, status, payment_method, payment_status, notes,
	tracking_number, created_at, updated_at, cancelled_at, delivered_at`

const orderItemColumns = `id, order_id, product_id, product_name, product_image, product_sku, size, color,
	quantity, unit_price, line_total`

func scanOrder(s rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var phone, paymentMethod, notes, tracking sql.NullString
	var cancelledAt, deliveredAt sql.NullTime
	if err := s.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.CustomerEmail,
		&o.CustomerName,
		&phone,
		&o.ShippingAddress,
		&o.Subtotal,
		&o.ShippingCost,
		&o.Tax,
		&o.Discount,
		&o.Total,
		&o.Status,
		&paymentMethod,
		&o.PaymentStatus,
		&notes,
		&tracking,
		&o.CreatedAt,
		&o.UpdatedAt,
		&cancelledAt,
		&deliveredAt,
	); err != nil {
		return nil, err
	}
	o.CustomerPhone = nullStringPtr(phone)
	o.PaymentMethod = nullStringPtr(paymentMethod)
	o.Notes = nullStringPtr(notes)
	o.TrackingNumber = nullStringPtr(tracking)
	o.CancelledAt = nullTimePtr(cancelledAt)
	o.DeliveredAt = nullTimePtr(deliveredAt)
	o.Items = []domain.OrderItem{}
	return o, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// Create 创建订单
func (r *orderRepo) Create(ctx context.Context, o *domain.Order) error {
	conn := database.Conn(ctx, r.db)

	query := `
		INSERT INTO orders (id, order_number, customer_email, customer_name, customer_phone, shipping_address,
			subtotal, shipping_cost, tax, discount, total, status, payment_method, payment_status, notes,
			tracking_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := conn.ExecContext(ctx, query,
		o.ID,
		o.OrderNumber,
		o.CustomerEmail,
		o.CustomerName,
		o.CustomerPhone,
		o.ShippingAddress,
		o.Subtotal,
		o.ShippingCost,
		o.Tax,
		o.Discount,
		o.Total,
		o.Status,
		o.PaymentMethod,
		o.PaymentStatus,
		o.Notes,
		o.TrackingNumber,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("order number %s: %w", o.OrderNumber, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, product_name, product_image, product_sku, size, color,
			quantity, unit_price, line_total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		result, err := conn.ExecContext(ctx, itemQuery,
			it.OrderID,
			it.ProductID,
			it.ProductName,
			it.ProductImage,
			it.ProductSKU,
			it.Size,
			it.Color,
			it.Quantity,
			it.UnitPrice,
			it.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			it.ID = id
		}
	}
	return nil
}

// GetByID 根据ID获取订单（含行项目）
func (r *orderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetByNumber 根据订单号获取订单
func (r *orderRepo) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, orderNumber)
}

// LockByID SELECT ... FOR UPDATE
func (r *orderRepo) LockByID(ctx context.Context, id string) (*domain.Order, error) {
	if database.TxFromContext(ctx) == nil {
		return nil, errors.New("LockByID requires a transaction")
	}
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

func (r *orderRepo) getOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	o, err := scanOrder(database.Conn(ctx, r.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if err := r.loadItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// loadItems 批量加载行项目
func (r *orderRepo) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Order, len(orders))
	args := make([]any, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		args = append(args, o.ID)
	}

	query := fmt.Sprintf(`SELECT %s FROM order_items WHERE order_id IN (%s) ORDER BY id`,
		orderItemColumns, placeholders(len(orders)))
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(
			&it.ID,
			&it.OrderID,
			&it.ProductID,
			&it.ProductName,
			&it.ProductImage,
			&it.ProductSKU,
			&it.Size,
			&it.Color,
			&it.Quantity,
			&it.UnitPrice,
			&it.LineTotal,
		); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[it.OrderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate order items: %w", err)
	}
	return nil
}

// SaveStatus 写入状态迁移结果
func (r *orderRepo) SaveStatus(ctx context.Context, o *domain.Order) error {
	query := `
		UPDATE orders
		SET status = ?, payment_status = ?, tracking_number = ?, updated_at = ?, cancelled_at = ?, delivered_at = ?
		WHERE id = ?
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		o.Status, o.PaymentStatus, o.TrackingNumber, o.UpdatedAt, o.CancelledAt, o.DeliveredAt, o.ID)
	if err != nil {
		return fmt.Errorf("failed to save order status: %w", err)
	}
	return nil
}

// Update 局部更新
func (r *orderRepo) Update(ctx context.Context, id string, req *domain.UpdateOrderRequest, now time.Time) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []any{now}

	if req.TrackingNumber != nil {
		sets = append(sets, "tracking_number = ?")
		args = append(args, *req.TrackingNumber)
	}
	if req.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *req.Notes)
	}
	if req.PaymentStatus != nil {
		sets = append(sets, "payment_status = ?")
		args = append(args, *req.PaymentStatus)
	}
	if req.PaymentMethod != nil {
		sets = append(sets, "payment_method = ?")
		args = append(args, *req.PaymentMethod)
	}
	args = append(args, id)

	query := "UPDATE orders SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// List 订单列表，最新在前
func (r *orderRepo) List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error) {
	var conditions []string
	var args []any

	if req.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *req.Status)
	}
	if req.Search != "" {
		conditions = append(conditions, "(order_number LIKE ? OR customer_email LIKE ? OR customer_name LIKE ?)")
		s := containsPattern(req.Search)
		args = append(args, s, s, s)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT ?`, orderColumns, where)
	args = append(args, req.Limit)

	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}
	rows.Close()

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Stats 订单统计，收入包含全部状态
func (r *orderRepo) Stats(ctx context.Context) (*domain.OrderStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(total), 0),
			COALESCE(SUM(status = 'pending'), 0),
			COALESCE(SUM(status = 'processing'), 0),
			COALESCE(SUM(status = 'shipped'), 0),
			COALESCE(SUM(status = 'delivered'), 0)
		FROM orders
	`
	s := &domain.OrderStats{}
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, query).Scan(
		&s.TotalOrders, &s.TotalRevenue, &s.Pending, &s.Processing, &s.Shipped, &s.Delivered)
	if err != nil {
		return nil, fmt.Errorf("failed to get order stats: %w", err)
	}
	return s, nil
}

// Revenue 看板收入
func (r *orderRepo) Revenue(ctx context.Context, excluded []domain.OrderStatus) (decimal.Decimal, int64, error) {
	query := `SELECT COALESCE(SUM(total), 0), COUNT(*) FROM orders`
	args := make([]any, 0, len(excluded))
	if len(excluded) > 0 {
		query += fmt.Sprintf(" WHERE status NOT IN (%s)", placeholders(len(excluded)))
		for _, s := range excluded {
			args = append(args, s)
		}
	}

	var revenue decimal.Decimal
	var count int64
	if err := database.Conn(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(&revenue, &count); err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to sum revenue: %w", err)
	}
	return revenue, count, nil
}
