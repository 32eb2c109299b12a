package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/apparel_shop/internal/database"
	"github.com/MorseWayne/apparel_shop/internal/domain"
)

// SettingsRepository 店铺计价配置（单行表）
type SettingsRepository interface {
	Get(ctx context.Context) (*domain.StoreSettings, error)
	Upsert(ctx context.Context, s *domain.StoreSettings) error
}

type settingsRepo struct {
	db *sql.DB
}

// NewSettingsRepository 创建配置仓储
func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepo{db: db}
}

// Get 读取配置，未初始化时返回 nil
func (r *settingsRepo) Get(ctx context.Context) (*domain.StoreSettings, error) {
	s := &domain.StoreSettings{}
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT tax_rate, shipping_flat, free_shipping_threshold, updated_at FROM store_settings WHERE id = 1`,
	).Scan(&s.TaxRate, &s.ShippingFlat, &s.FreeShippingThreshold, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store settings: %w", err)
	}
	return s, nil
}

// Upsert 写入配置
func (r *settingsRepo) Upsert(ctx context.Context, s *domain.StoreSettings) error {
	query := `
		INSERT INTO store_settings (id, tax_rate, shipping_flat, free_shipping_threshold, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			tax_rate = VALUES(tax_rate),
			shipping_flat = VALUES(shipping_flat),
			free_shipping_threshold = VALUES(free_shipping_threshold),
			updated_at = VALUES(updated_at)
	`
	_, err := database.Conn(ctx, r.db).ExecContext(ctx, query,
		s.TaxRate, s.ShippingFlat, s.FreeShippingThreshold, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save store settings: %w", err)
	}
	return nil
}
