package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "")
	t.Setenv("SHOP_TAX_RATE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "ORD", cfg.Shop.OrderNumberPrefix)
	assert.True(t, cfg.Shop.TaxRate.Equal(decimal.RequireFromString("0.10")))
	assert.True(t, cfg.Shop.ShippingFlat.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Shop.FreeShippingThreshold.Equal(decimal.NewFromInt(100)))
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_REQUEST_TIMEOUT", "3")
	t.Setenv("SHOP_TAX_RATE", "0.0825")
	t.Setenv("SHOP_ORDER_PREFIX", "APP")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 3*time.Second, cfg.App.RequestTimeout)
	assert.Equal(t, "0.0825", cfg.Shop.TaxRate.String())
	assert.Equal(t, "APP", cfg.Shop.OrderNumberPrefix)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.App.Port = 70000 }, wantErr: true},
		{name: "negative tax", mutate: func(c *Config) { c.Shop.TaxRate = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "prod without secret", mutate: func(c *Config) { c.App.Env = "prod"; c.JWT.Secret = "" }, wantErr: true},
		{name: "bad encoding", mutate: func(c *Config) { c.Log.Encoding = "xml" }, wantErr: true},
		{name: "fixed window limiter", mutate: func(c *Config) { c.RateLimit.Algorithm = "fixed_window" }},
		{name: "unknown limiter", mutate: func(c *Config) { c.RateLimit.Algorithm = "leaky_bucket" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
