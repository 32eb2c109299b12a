package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// AlertRepository 库存告警数据访问
type AlertRepository interface {
	// Insert 同一商品同一类型已有未解决告警时返回 domain.ErrDuplicate
	Insert(ctx context.Context, alert *domain.StockAlert) error
	GetByID(ctx context.Context, id string) (*domain.StockAlert, error)
	GetOpen(ctx context.Context, productID int64, alertType domain.AlertType) (*domain.StockAlert, error)
	// Resolve 仅对未解决的告警生效，返回是否有行被更新
	Resolve(ctx context.Context, id string, resolvedAt time.Time, resolvedBy *string, note string) (bool, error)
	ListOpen(ctx context.Context) ([]*domain.AlertWithProduct, error)
	CountOpen(ctx context.Context) (int64, error)
}

type alertRepo struct {
	db *sql.DB
}

// NewAlertRepository 创建告警仓储
func NewAlertRepository(db *sql.DB) AlertRepository {
	return &alertRepo{db: db}
}

const alertColumns = `id, product_id, alert_type, quantity_at_alert, is_resolved, resolved_at, resolved_by, note, created_at`

func scanAlert(s rowScanner) (*domain.StockAlert, error) {
	a := &domain.StockAlert{}
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullString
	if err := s.Scan(
		&a.ID,
		&a.ProductID,
		&a.AlertType,
		&a.QuantityAtAlert,
		&a.IsResolved,
		&resolvedAt,
		&resolvedBy,
		&a.Note,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	a.ResolvedBy = nullStringPtr(resolvedBy)
	return a, nil
}

// Insert 新建告警
func (r *alertRepo) Insert(ctx context.Context, a *domain.StockAlert) error {
	query := `
		INSERT INTO stock_alerts (id, product_id, alert_type, quantity_at_alert, is_resolved, note, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		a.ID, a.ProductID, a.AlertType, a.QuantityAtAlert, a.Note, a.CreatedAt)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return fmt.Errorf("open %s alert for product %d: %w", a.AlertType, a.ProductID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetByID 根据ID获取告警
func (r *alertRepo) GetByID(ctx context.Context, id string) (*domain.StockAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts WHERE id = ?`
	a, err := scanAlert(database.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// GetOpen 商品某类型的未解决告警
func (r *alertRepo) GetOpen(ctx context.Context, productID int64, alertType domain.AlertType) (*domain.StockAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM stock_alerts
		WHERE product_id = ? AND alert_type = ? AND is_resolved = 0`
	a, err := scanAlert(database.Conn(ctx, r.db).QueryRowContext(ctx, query, productID, alertType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open alert: %w", err)
	}
	return a, nil
}

// Resolve 标记告警已解决，note 为空时保留原备注
func (r *alertRepo) Resolve(ctx context.Context, id string, resolvedAt time.Time, resolvedBy *string, note string) (bool, error) {
	query := `
		UPDATE stock_alerts
		SET is_resolved = 1, resolved_at = ?, resolved_by = ?, note = IF(? = '', note, ?)
		WHERE id = ? AND is_resolved = 0
	`
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, resolvedAt, resolvedBy, note, note, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// ListOpen 未解决告警及商品快照，最新在前
func (r *alertRepo) ListOpen(ctx context.Context) ([]*domain.AlertWithProduct, error) {
	query := `
		SELECT a.id, a.product_id, a.alert_type, a.quantity_at_alert, a.is_resolved, a.resolved_at,
			a.resolved_by, a.note, a.created_at,
			p.id, p.name, p.description, p.price, p.sku, p.image_url, p.status, p.quantity,
			p.alert_level, p.track_inventory, p.allow_backorder, p.created_at, p.updated_at
		FROM stock_alerts a
		JOIN products p ON p.id = a.product_id
		WHERE a.is_resolved = 0
		ORDER BY a.created_at DESC
	`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open alerts: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.AlertWithProduct, 0)
	for rows.Next() {
		a := &domain.StockAlert{}
		p := &domain.Product{}
		var resolvedAt sql.NullTime
		var resolvedBy, description sql.NullString
		if err := rows.Scan(
			&a.ID, &a.ProductID, &a.AlertType, &a.QuantityAtAlert, &a.IsResolved, &resolvedAt,
			&resolvedBy, &a.Note, &a.CreatedAt,
			&p.ID, &p.Name, &description, &p.Price, &p.SKU, &p.ImageURL, &p.Status, &p.Quantity,
			&p.AlertLevel, &p.TrackInventory, &p.AllowBackorder, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		p.Description = description.String
		out = append(out, &domain.AlertWithProduct{StockAlert: a, Product: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return out, nil
}

// CountOpen 未解决告警数
func (r *alertRepo) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_alerts WHERE is_resolved = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open alerts: %w", err)
	}
	return n, nil
}
