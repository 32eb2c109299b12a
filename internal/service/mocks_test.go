package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/apparel_shop/internal/domain"
	"github.com/MorseWayne/apparel_shop/internal/repo"
)

// memStore 内存版数据库，各 mock 仓储共享同一份数据
type memStore struct {
	mu sync.Mutex

	products      map[int64]*domain.Product
	nextProductID int64
	history       []*domain.StockHistoryEntry
	alerts        map[string]*domain.StockAlert
	orders        map[string]*domain.Order
	counters      map[string]int64
	settings      *domain.StoreSettings

	// rowLocks 模拟 SELECT ... FOR UPDATE 的行锁，事务结束时释放
	rowLocksMu sync.Mutex
	rowLocks   map[int64]*sync.Mutex

	// fail 按操作名注入错误
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		products:      make(map[int64]*domain.Product),
		nextProductID: 1,
		alerts:        make(map[string]*domain.StockAlert),
		orders:        make(map[string]*domain.Order),
		counters:      make(map[string]int64),
		rowLocks:      make(map[int64]*sync.Mutex),
		fail:          make(map[string]error),
	}
}

func (s *memStore) rowLock(id int64) *sync.Mutex {
	s.rowLocksMu.Lock()
	defer s.rowLocksMu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.rowLocks[id] = l
	}
	return l
}

func (s *memStore) failure(op string) error {
	return s.fail[op]
}

// addProduct 直接写入商品，返回其 ID
func (s *memStore) addProduct(p domain.Product) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextProductID
	s.nextProductID++
	if p.Status == "" {
		p.Status = domain.ProductStatusActive
	}
	s.products[p.ID] = &p
	return p.ID
}

func (s *memStore) quantity(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Quantity
}

func (s *memStore) historyFor(productID int64) []*domain.StockHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.StockHistoryEntry
	for _, e := range s.history {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) openAlerts(productID int64) []domain.AlertType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.AlertType
	for _, a := range s.alerts {
		if a.ProductID == productID && !a.IsResolved {
			out = append(out, a.AlertType)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func copyProduct(p *domain.Product) *domain.Product {
	c := *p
	return &c
}

// txLocks 当前事务持有的行锁
type txLocks struct {
	held map[int64]*sync.Mutex
}

type txLocksKey struct{}

// acquire 同一事务内重复锁同一行不会阻塞
func (t *txLocks) acquire(id int64, l *sync.Mutex) {
	if _, ok := t.held[id]; ok {
		return
	}
	l.Lock()
	t.held[id] = l
}

// mockTx 执行回调并在结束时释放回调内获取的行锁，嵌套调用复用外层事务
type mockTx struct {
	calls atomic.Int64
}

func (m *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls.Add(1)
	if _, ok := ctx.Value(txLocksKey{}).(*txLocks); ok {
		return fn(ctx)
	}
	locks := &txLocks{held: make(map[int64]*sync.Mutex)}
	defer func() {
		for _, l := range locks.held {
			l.Unlock()
		}
	}()
	return fn(context.WithValue(ctx, txLocksKey{}, locks))
}

// mockStockRepo 实现 repo.StockRepository
type mockStockRepo struct{ *memStore }

var _ repo.StockRepository = mockStockRepo{}

func (m mockStockRepo) LockProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	if locks, ok := ctx.Value(txLocksKey{}).(*txLocks); ok {
		locks.acquire(productID, m.rowLock(productID))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("LockProduct"); err != nil {
		return nil, err
	}
	p, ok := m.products[productID]
	if !ok || p.Status == domain.ProductStatusDeleted {
		return nil, nil
	}
	return copyProduct(p), nil
}

func (m mockStockRepo) UpdateQuantity(ctx context.Context, productID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("product %d missing", productID)
	}
	p.Quantity = quantity
	return nil
}

func (m mockStockRepo) InsertHistory(ctx context.Context, e *domain.StockHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("InsertHistory"); err != nil {
		return err
	}
	if e.RelatedOrderID != nil {
		for _, h := range m.history {
			if h.RelatedOrderID != nil && *h.RelatedOrderID == *e.RelatedOrderID &&
				h.ProductID == e.ProductID && h.ChangeType == e.ChangeType {
				return domain.ErrDuplicate
			}
		}
	}
	m.history = append(m.history, e)
	return nil
}

func (m mockStockRepo) GetProducts(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("GetProducts"); err != nil {
		return nil, err
	}
	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok && p.Status != domain.ProductStatusDeleted {
			out = append(out, copyProduct(p))
		}
	}
	return out, nil
}

func (m mockStockRepo) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Product, 0, len(m.products))
	for _, p := range m.products {
		if p.Status != domain.ProductStatusDeleted {
			out = append(out, copyProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m mockStockRepo) ListHistory(ctx context.Context, productID int64, limit int) ([]*domain.StockHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.StockHistoryEntry, 0)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		if m.history[i].ProductID == productID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m mockStockRepo) ListOrderMovements(ctx context.Context, orderID string) ([]*domain.StockHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.StockHistoryEntry, 0)
	for _, h := range m.history {
		if h.RelatedOrderID != nil && *h.RelatedOrderID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// mockAlertRepo 实现 repo.AlertRepository
type mockAlertRepo struct{ *memStore }

var _ repo.AlertRepository = mockAlertRepo{}

func (m mockAlertRepo) Insert(ctx context.Context, a *domain.StockAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.alerts {
		if existing.ProductID == a.ProductID && existing.AlertType == a.AlertType && !existing.IsResolved {
			return domain.ErrDuplicate
		}
	}
	c := *a
	m.alerts[a.ID] = &c
	return nil
}

func (m mockAlertRepo) GetByID(ctx context.Context, id string) (*domain.StockAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	c := *a
	return &c, nil
}

func (m mockAlertRepo) GetOpen(ctx context.Context, productID int64, alertType domain.AlertType) (*domain.StockAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ProductID == productID && a.AlertType == alertType && !a.IsResolved {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (m mockAlertRepo) Resolve(ctx context.Context, id string, resolvedAt time.Time, resolvedBy *string, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.IsResolved {
		return false, nil
	}
	a.IsResolved = true
	a.ResolvedAt = &resolvedAt
	a.ResolvedBy = resolvedBy
	if note != "" {
		a.Note = note
	}
	return true, nil
}

func (m mockAlertRepo) ListOpen(ctx context.Context) ([]*domain.AlertWithProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.AlertWithProduct, 0)
	for _, a := range m.alerts {
		if a.IsResolved {
			continue
		}
		c := *a
		out = append(out, &domain.AlertWithProduct{StockAlert: &c, Product: copyProduct(m.products[a.ProductID])})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m mockAlertRepo) CountOpen(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.alerts {
		if !a.IsResolved {
			n++
		}
	}
	return n, nil
}

// mockOrderRepo 实现 repo.OrderRepository
type mockOrderRepo struct{ *memStore }

var _ repo.OrderRepository = mockOrderRepo{}

func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	return &c
}

func (m mockOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CreateOrder"); err != nil {
		return err
	}
	for _, existing := range m.orders {
		if existing.OrderNumber == o.OrderNumber {
			return domain.ErrDuplicate
		}
	}
	for i := range o.Items {
		o.Items[i].ID = int64(i + 1)
		o.Items[i].OrderID = o.ID
	}
	m.orders[o.ID] = copyOrder(o)
	return nil
}

func (m mockOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (m mockOrderRepo) GetByNumber(ctx context.Context, number string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNumber == number {
			return copyOrder(o), nil
		}
	}
	return nil, nil
}

func (m mockOrderRepo) LockByID(ctx context.Context, id string) (*domain.Order, error) {
	return m.GetByID(ctx, id)
}

func (m mockOrderRepo) SaveStatus(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s missing", o.ID)
	}
	stored.Status = o.Status
	stored.PaymentStatus = o.PaymentStatus
	stored.TrackingNumber = o.TrackingNumber
	stored.UpdatedAt = o.UpdatedAt
	stored.CancelledAt = o.CancelledAt
	stored.DeliveredAt = o.DeliveredAt
	return nil
}

func (m mockOrderRepo) Update(ctx context.Context, id string, req *domain.UpdateOrderRequest, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, nil
	}
	o.UpdatedAt = now
	if req.TrackingNumber != nil {
		o.TrackingNumber = req.TrackingNumber
	}
	if req.Notes != nil {
		o.Notes = req.Notes
	}
	if req.PaymentStatus != nil {
		o.PaymentStatus = *req.PaymentStatus
	}
	if req.PaymentMethod != nil {
		o.PaymentMethod = req.PaymentMethod
	}
	return true, nil
}

func (m mockOrderRepo) List(ctx context.Context, req *domain.OrderListRequest) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Order, 0)
	for _, o := range m.orders {
		if req.Status != nil && o.Status != *req.Status {
			continue
		}
		if req.Search != "" && !strings.Contains(o.OrderNumber+o.CustomerEmail+o.CustomerName, req.Search) {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (m mockOrderRepo) Stats(ctx context.Context) (*domain.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.OrderStats{TotalRevenue: decimal.Zero}
	for _, o := range m.orders {
		s.TotalOrders++
		s.TotalRevenue = s.TotalRevenue.Add(o.Total)
		switch o.Status {
		case domain.OrderStatusPending:
			s.Pending++
		case domain.OrderStatusProcessing:
			s.Processing++
		case domain.OrderStatusShipped:
			s.Shipped++
		case domain.OrderStatusDelivered:
			s.Delivered++
		}
	}
	return s, nil
}

func (m mockOrderRepo) Revenue(ctx context.Context, excluded []domain.OrderStatus) (decimal.Decimal, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	revenue := decimal.Zero
	var n int64
next:
	for _, o := range m.orders {
		for _, s := range excluded {
			if o.Status == s {
				continue next
			}
		}
		revenue = revenue.Add(o.Total)
		n++
	}
	return revenue, n, nil
}

// mockCounterRepo 实现 repo.CounterRepository
type mockCounterRepo struct{ *memStore }

var _ repo.CounterRepository = mockCounterRepo{}

func (m mockCounterRepo) Next(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("CounterNext"); err != nil {
		return 0, err
	}
	v, ok := m.counters[name]
	if !ok {
		return 0, repo.ErrCounterMissing
	}
	m.counters[name] = v + 1
	return v + 1, nil
}

func (m mockCounterRepo) Seed(ctx context.Context, name string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.counters[name]; !ok {
		m.counters[name] = value
	}
	return nil
}

func (m mockCounterRepo) MaxOrderSequence(ctx context.Context, prefix string, maxDigits int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var highest int64
	for _, o := range m.orders {
		rest, ok := strings.CutPrefix(o.OrderNumber, prefix+"-")
		if !ok || len(rest) > maxDigits {
			continue
		}
		if n, ok := ParseOrderSequence(prefix, o.OrderNumber); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// mockSettingsRepo 实现 repo.SettingsRepository
type mockSettingsRepo struct {
	*memStore
	gets int
}

func (m *mockSettingsRepo) Get(ctx context.Context) (*domain.StoreSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if err := m.failure("SettingsGet"); err != nil {
		return nil, err
	}
	if m.settings == nil {
		return nil, nil
	}
	c := *m.settings
	return &c, nil
}

func (m *mockSettingsRepo) Upsert(ctx context.Context, s *domain.StoreSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.settings = &c
	return nil
}

// mockProductRepo 实现 repo.ProductRepository
type mockProductRepo struct{ *memStore }

var _ repo.ProductRepository = mockProductRepo{}

func (m mockProductRepo) Create(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.products {
		if existing.SKU == p.SKU {
			return fmt.Errorf("sku %s: %w", p.SKU, domain.ErrDuplicate)
		}
	}
	p.ID = m.nextProductID
	m.nextProductID++
	m.products[p.ID] = copyProduct(p)
	return nil
}

func (m mockProductRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok || p.Status == domain.ProductStatusDeleted {
		return nil, nil
	}
	return copyProduct(p), nil
}

func (m mockProductRepo) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.SKU == sku {
			return copyProduct(p), nil
		}
	}
	return nil, nil
}

func (m mockProductRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	return mockStockRepo(m).GetProducts(ctx, ids)
}

func (m mockProductRepo) Update(ctx context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.products[p.ID]
	if !ok {
		return fmt.Errorf("product %d missing", p.ID)
	}
	quantity := stored.Quantity
	*stored = *p
	stored.Quantity = quantity
	return nil
}

func (m mockProductRepo) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	all, _ := mockStockRepo(m).ListProducts(ctx)
	out := make([]*domain.Product, 0)
	for _, p := range all {
		if req.Status != nil && p.Status != *req.Status {
			continue
		}
		if req.Keyword != "" && !strings.Contains(p.Name, req.Keyword) {
			continue
		}
		out = append(out, p)
	}
	total := int64(len(out))
	start := (req.Page - 1) * req.PageSize
	if start > len(out) {
		start = len(out)
	}
	end := start + req.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

// mockPublisher 记录发布的事件类型
type mockPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, eventType)
	return m.err
}

func (m *mockPublisher) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// mockProductCache 记录被清除的商品
type mockProductCache struct {
	mu          sync.Mutex
	invalidated []int64
}

func (m *mockProductCache) Invalidate(ctx context.Context, ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, ids...)
}
