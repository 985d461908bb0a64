package store

import (
	"context"
	"sync"

	"table-service/internal/models"
)

// MemoryStore keeps tables, orders, products and customer profiles in process.
// Every read and write copies, so callers never share mutable state with it.
type MemoryStore struct {
	mu       sync.RWMutex
	tables   map[string]*models.Table
	numbers  map[int]string
	orders   map[string]*models.Order
	products map[string]*models.Product
	profiles map[string]*models.CustomerProfile
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:   make(map[string]*models.Table),
		numbers:  make(map[int]string),
		orders:   make(map[string]*models.Order),
		products: make(map[string]*models.Product),
		profiles: make(map[string]*models.CustomerProfile),
	}
}

// GetTable retrieves a table by ID
func (m *MemoryStore) GetTable(ctx context.Context, id string) (*models.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[id]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

// GetTableByNumber retrieves a table by its number
func (m *MemoryStore) GetTableByNumber(ctx context.Context, number int) (*models.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.numbers[number]
	if !ok {
		return nil, nil
	}
	return m.tables[id].Clone(), nil
}

// ListTables retrieves all tables
func (m *MemoryStore) ListTables(ctx context.Context) ([]*models.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Table, 0, len(m.tables))
	for _, t := range m.tables {
		out = append(out, t.Clone())
	}
	return out, nil
}

// GetOrder retrieves an order by ID
func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return o.Clone(), nil
}

// GetOrdersByIDs retrieves orders preserving the order of ids
func (m *MemoryStore) GetOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := m.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out, nil
}

// SaveTable stores the table and orders together. The write is rejected with
// models.ErrVersionConflict when the stored table moved past table.Version.
func (m *MemoryStore) SaveTable(ctx context.Context, table *models.Table, orders []*models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if cur, ok := m.tables[table.ID]; ok {
		current = cur.Version
	}
	if current != table.Version {
		return models.ErrVersionConflict
	}
	if id, ok := m.numbers[table.Number]; ok && id != table.ID {
		return models.ErrVersionConflict
	}

	stored := table.Clone()
	stored.Version++
	m.tables[table.ID] = stored
	m.numbers[table.Number] = table.ID
	for _, o := range orders {
		m.orders[o.ID] = o.Clone()
	}
	table.Version = stored.Version
	return nil
}

// GetProductByID retrieves a product by ID
func (m *MemoryStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// UpsertProduct creates or replaces a product
func (m *MemoryStore) UpsertProduct(ctx context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.products[p.ID] = &cp
	return nil
}

// GetProfile retrieves a customer profile
func (m *MemoryStore) GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[customerID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

// SaveProfile creates or replaces a customer profile if profile.Version still
// matches the stored one
func (m *MemoryStore) SaveProfile(ctx context.Context, profile *models.CustomerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current int64
	if cur, ok := m.profiles[profile.CustomerID]; ok {
		current = cur.Version
	}
	if current != profile.Version {
		return models.ErrVersionConflict
	}

	stored := cloneProfile(profile)
	stored.Version++
	m.profiles[profile.CustomerID] = stored
	profile.Version = stored.Version
	return nil
}

func cloneProfile(p *models.CustomerProfile) *models.CustomerProfile {
	cp := *p
	cp.PreferredProducts = append([]models.ProductCount(nil), p.PreferredProducts...)
	return &cp
}
