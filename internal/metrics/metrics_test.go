package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.StockMutation("purchase", false)
	m.StockMutation("purchase", true)
	m.AlertOpened("low_stock")
	m.OrderTransition("pending", "processing")
	m.EventPublished("order.created", nil)
	m.EventPublished("order.created", errors.New("closed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stockMutations.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockClamped.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsOpened.WithLabelValues("low_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orderTransitions.WithLabelValues("pending", "processing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsPublished.WithLabelValues("order.created", "error")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/healthz", "200", 0.01)
		m.StockMutation("restock", false)
		m.AlertResolved()
		m.OrderCreated()
		m.OrderNumberIssue("degraded")
		m.ReconcileMessage("applied")
		m.RateLimited("/api/v1/orders")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.OrderCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "apparel_shop_orders_created_total 1"))
}
