package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"table-service/internal/models"
	"table-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*models.Product
	lookups  int
}

func newFakeCatalog(products ...*models.Product) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]*models.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (c *fakeCatalog) Lookup(ctx context.Context, productID string) (*models.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++

	p, ok := c.products[productID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (c *fakeCatalog) setPrice(productID, price string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID].Price = decimal.RequireFromString(price)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func (p *recordingPublisher) last() models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type failingProfileStore struct {
	panics bool
}

func (s *failingProfileStore) GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	if s.panics {
		panic("profile store exploded")
	}
	return nil, errors.New("profile store unavailable")
}

func (s *failingProfileStore) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	return errors.New("profile store unavailable")
}

type fixture struct {
	repo     *store.MemoryStore
	pub      *recordingPublisher
	catalog  *fakeCatalog
	exec     *TableExecutor
	tables   *TableService
	orders   *OrderService
	payments *PaymentService
	stats    *CustomerStats
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := store.NewMemoryStore()
	pub := &recordingPublisher{}
	catalog := newFakeCatalog(
		&models.Product{ID: "burger", Name: "Burger", Price: decimal.RequireFromString("12.50"), Available: true},
		&models.Product{ID: "fries", Name: "Fries", Price: decimal.RequireFromString("4.00"), Available: true},
		&models.Product{ID: "soup", Name: "Soup of the day", Price: decimal.RequireFromString("6.00"), Available: false},
	)

	exec := NewTableExecutor(repo, pub, "test-instance")
	exec.now = func() time.Time { return testNow }

	stats := NewCustomerStats(repo, time.Second)
	stats.now = func() time.Time { return testNow }

	return &fixture{
		repo:     repo,
		pub:      pub,
		catalog:  catalog,
		exec:     exec,
		tables:   NewTableService(exec),
		orders:   NewOrderService(exec, catalog),
		payments: NewPaymentService(exec, stats),
		stats:    stats,
	}
}

func strPtr(s string) *string { return &s }

func (f *fixture) connect(t *testing.T, number int, name string) *ConnectDeviceResponse {
	t.Helper()
	resp, err := f.tables.ConnectDevice(context.Background(), &ConnectDeviceRequest{
		TableNumber: number,
		DisplayName: name,
	})
	require.NoError(t, err)
	return resp
}

func (f *fixture) order(t *testing.T, seat *ConnectDeviceResponse, items ...OrderItemRequest) *models.Order {
	t.Helper()
	if len(items) == 0 {
		items = []OrderItemRequest{{ProductID: "burger", Quantity: 1}}
	}
	o, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{
		TableID:  seat.TableID,
		DeviceID: seat.DeviceID,
		Items:    items,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) pay(t *testing.T, orderID string) *models.Order {
	t.Helper()
	ctx := context.Background()
	_, err := f.payments.SubmitPayment(ctx, orderID, &SubmitPaymentRequest{Method: models.PaymentMethodCash})
	require.NoError(t, err)
	o, err := f.payments.ConfirmPayment(ctx, orderID)
	require.NoError(t, err)
	return o
}

func (f *fixture) table(t *testing.T, number int) *models.Table {
	t.Helper()
	table, err := f.repo.GetTableByNumber(context.Background(), number)
	require.NoError(t, err)
	require.NotNil(t, table)
	return table
}

// requireTableTotal checks the table total against its non-cancelled orders
func (f *fixture) requireTableTotal(t *testing.T, number int) {
	t.Helper()
	ctx := context.Background()
	table := f.table(t, number)
	orders, err := f.repo.GetOrdersByIDs(ctx, table.OrderIDs)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, o := range orders {
		itemSum := decimal.Zero
		for _, it := range o.Items {
			itemSum = itemSum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		require.True(t, itemSum.Equal(o.Total), "order %s total %s != items %s", o.ID, o.Total, itemSum)
		if o.State != models.OrderStateCancelled {
			sum = sum.Add(o.Total)
		}
	}
	require.True(t, sum.Equal(table.Total), "table total %s != orders %s", table.Total, sum)
}
