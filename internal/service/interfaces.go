package service

import (
	"context"

	"table-service/internal/models"
)

// Repository persists tables and orders. Getters return (nil, nil) when the
// record does not exist and always hand out copies.
type Repository interface {
	GetTable(ctx context.Context, id string) (*models.Table, error)
	GetTableByNumber(ctx context.Context, number int) (*models.Table, error)
	ListTables(ctx context.Context) ([]*models.Table, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error)
	// SaveTable upserts the table together with the given orders atomically
	SaveTable(ctx context.Context, table *models.Table, orders []*models.Order) error
}

// Catalog resolves products at order creation time
type Catalog interface {
	Lookup(ctx context.Context, productID string) (*models.Product, error)
}

// ProfileStore keeps customer statistics keyed by customer identity
type ProfileStore interface {
	GetProfile(ctx context.Context, customerID string) (*models.CustomerProfile, error)
	SaveProfile(ctx context.Context, profile *models.CustomerProfile) error
}

// Publisher receives committed events; it must not block on delivery
type Publisher interface {
	Publish(ctx context.Context, events ...models.Event)
}
