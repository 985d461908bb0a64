package store

import (
	"context"
	"os"
	"testing"
	"time"

	"table-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to TEST_DATABASE_URL or skips the test
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database (set TEST_DATABASE_URL)")
	}

	store, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestStoreSaveTableRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	number := int(time.Now().UnixNano()%1_000_000) + 1000
	tableID := uuid.New().String()

	order := &models.Order{
		ID:           uuid.New().String(),
		TableID:      tableID,
		TableNumber:  number,
		DeviceID:     uuid.New().String(),
		CustomerID:   strRef("V-1"),
		DisplayName:  "Ana",
		Items:        models.LineItems{{ProductID: "burger", Name: "Burger", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50"), Customizations: map[string]string{"cook": "rare"}}},
		State:        models.OrderStateReceived,
		Tip:          decimal.Zero,
		PaymentState: models.PaymentStateUnset,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Recalculate()

	table := &models.Table{
		ID:         tableID,
		Number:     number,
		State:      models.TableStateAwaitingPayment,
		Devices:    models.Devices{{DeviceID: order.DeviceID, DisplayName: "Ana", ConnectedAt: now}},
		OrderIDs:   models.IDList{order.ID},
		Total:      order.Total,
		OccupiedAt: &now,
		UpdatedAt:  now,
	}

	require.NoError(t, store.SaveTable(ctx, table, []*models.Order{order}))

	loaded, err := store.GetTableByNumber(ctx, number)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, table.ID, loaded.ID)
	assert.Equal(t, table.OrderIDs, loaded.OrderIDs)
	assert.Equal(t, "Ana", loaded.Devices[0].DisplayName)
	assert.True(t, table.Total.Equal(loaded.Total))
	require.NotNil(t, loaded.OccupiedAt)
	assert.WithinDuration(t, now, *loaded.OccupiedAt, time.Millisecond)

	orders, err := store.GetOrdersByIDs(ctx, loaded.OrderIDs)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, decimal.RequireFromString("25.00").Equal(orders[0].Total))
	assert.Equal(t, "rare", orders[0].Items[0].Customizations["cook"])
	assert.Equal(t, "V-1", *orders[0].CustomerID)

	order.Paid = true
	order.PaymentState = models.PaymentStateConfirmed
	table.State = models.TableStateOccupied
	require.NoError(t, store.SaveTable(ctx, table, []*models.Order{order}))

	reloaded, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Paid)
	assert.Equal(t, models.PaymentStateConfirmed, reloaded.PaymentState)
}

func TestStoreSaveTableRejectsStaleVersion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	number := int(time.Now().UnixNano()%1_000_000) + 1_000_000
	table := &models.Table{
		ID:        uuid.New().String(),
		Number:    number,
		State:     models.TableStateFree,
		Total:     decimal.Zero,
		UpdatedAt: now,
	}
	require.NoError(t, store.SaveTable(ctx, table, nil))
	assert.EqualValues(t, 1, table.Version)

	mine, err := store.GetTableByNumber(ctx, number)
	require.NoError(t, err)
	theirs, err := store.GetTableByNumber(ctx, number)
	require.NoError(t, err)

	theirs.Devices = models.Devices{{DeviceID: "d1", DisplayName: "Luis", ConnectedAt: now}}
	require.NoError(t, store.SaveTable(ctx, theirs, nil))
	assert.EqualValues(t, 2, theirs.Version)

	mine.Devices = models.Devices{{DeviceID: "d2", DisplayName: "Marta", ConnectedAt: now}}
	assert.ErrorIs(t, store.SaveTable(ctx, mine, nil), models.ErrVersionConflict)

	stored, err := store.GetTableByNumber(ctx, number)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.Version)
	require.Len(t, stored.Devices, 1)
	assert.Equal(t, "Luis", stored.Devices[0].DisplayName)

	// another instance creating the same table number lazily
	duplicate := &models.Table{ID: uuid.New().String(), Number: number, State: models.TableStateFree, Total: decimal.Zero, UpdatedAt: now}
	assert.ErrorIs(t, store.SaveTable(ctx, duplicate, nil), models.ErrVersionConflict)
}

func TestStoreKeepsFullPricePrecision(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	number := int(time.Now().UnixNano()%1_000_000) + 3_000_000
	tableID := uuid.New().String()

	order := &models.Order{
		ID:           uuid.New().String(),
		TableID:      tableID,
		TableNumber:  number,
		DeviceID:     "d1",
		Items:        models.LineItems{{ProductID: "tea", Name: "Tea", Quantity: 3, UnitPrice: decimal.RequireFromString("1.125")}},
		State:        models.OrderStateReceived,
		Tip:          decimal.Zero,
		PaymentState: models.PaymentStateUnset,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	order.Recalculate()
	table := &models.Table{
		ID:        tableID,
		Number:    number,
		State:     models.TableStateAwaitingPayment,
		OrderIDs:  models.IDList{order.ID},
		Total:     order.Total,
		UpdatedAt: now,
	}
	require.NoError(t, store.SaveTable(ctx, table, []*models.Order{order}))

	loaded, err := store.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.375").Equal(loaded.Total))
	assert.True(t, loaded.Items[0].UnitPrice.Mul(decimal.NewFromInt(3)).Equal(loaded.Total))

	loadedTable, err := store.GetTableByNumber(ctx, number)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("3.375").Equal(loadedTable.Total))
}

func TestStoreMissingRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	table, err := store.GetTable(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, table)

	order, err := store.GetOrder(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, order)

	product, err := store.GetProductByID(ctx, "no-such-product")
	require.NoError(t, err)
	assert.Nil(t, product)
}

func TestStoreProducts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id := "test-" + uuid.New().String()
	require.NoError(t, store.UpsertProduct(ctx, &models.Product{ID: id, Name: "Tea", Price: decimal.RequireFromString("2.40"), Available: true}))
	require.NoError(t, store.UpsertProduct(ctx, &models.Product{ID: id, Name: "Tea", Price: decimal.RequireFromString("2.60"), Available: false}))

	p, err := store.GetProductByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.60").Equal(p.Price))
	assert.False(t, p.Available)
}

func strRef(s string) *string { return &s }
