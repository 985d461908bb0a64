package service

import (
	"context"
	"testing"

	"table-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	seat := f.connect(t, 4, "Ana")
	f.pub.reset()

	o := f.order(t, seat,
		OrderItemRequest{ProductID: "burger", Quantity: 2, Customizations: map[string]string{"cook": "medium"}},
		OrderItemRequest{ProductID: "fries", Quantity: 1},
	)

	assert.Equal(t, models.OrderStateReceived, o.State)
	assert.Equal(t, models.PaymentStateUnset, o.PaymentState)
	assert.False(t, o.Paid)
	assert.Equal(t, seat.TableID, o.TableID)
	assert.Equal(t, 4, o.TableNumber)
	assert.Equal(t, "Ana", o.DisplayName)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Burger", o.Items[0].Name)
	assert.True(t, dec("25.00").Equal(o.Items[0].Subtotal))
	assert.Equal(t, "medium", o.Items[0].Customizations["cook"])
	assert.True(t, dec("29.00").Equal(o.Total))

	table := f.table(t, 4)
	assert.Equal(t, models.IDList{o.ID}, table.OrderIDs)
	assert.Equal(t, models.TableStateAwaitingPayment, table.State)
	assert.True(t, dec("29.00").Equal(table.Total))
	f.requireTableTotal(t, 4)

	assert.Equal(t, []string{models.EventTypeOrderCreated, models.EventTypeTableStateChanged}, f.pub.types())
	created := f.pub.events[0]
	assert.Equal(t, 4, created.TableNumber)
	assert.Equal(t, "test-instance", created.Origin)
	assert.Equal(t, []string{"table.4", models.AdminTopic}, created.Topics())
}

func TestCreateOrderOverridePrice(t *testing.T) {
	f := newFixture(t)
	seat := f.connect(t, 1, "Ana")

	price := dec("9.99")
	o := f.order(t, seat, OrderItemRequest{ProductID: "burger", Quantity: 3, Price: &price})

	assert.True(t, dec("9.99").Equal(o.Items[0].UnitPrice))
	assert.True(t, dec("29.97").Equal(o.Total))
	f.requireTableTotal(t, 1)
}

func TestCreateOrderSnapshotsCatalog(t *testing.T) {
	f := newFixture(t)
	seat := f.connect(t, 1, "Ana")
	o := f.order(t, seat, OrderItemRequest{ProductID: "burger", Quantity: 1})

	f.catalog.setPrice("burger", "99.00")

	stored, err := f.orders.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, dec("12.50").Equal(stored.Items[0].UnitPrice))
	assert.True(t, dec("12.50").Equal(stored.Total))

	next := f.order(t, seat, OrderItemRequest{ProductID: "burger", Quantity: 1})
	assert.True(t, dec("99.00").Equal(next.Total))
	f.requireTableTotal(t, 1)
}

func TestCreateOrderCustomerIdentity(t *testing.T) {
	f := newFixture(t)
	resp, err := f.tables.ConnectDevice(context.Background(), &ConnectDeviceRequest{
		TableNumber: 2,
		DisplayName: "Luis",
		NationalID:  strPtr(" 12345678 "),
	})
	require.NoError(t, err)

	o := f.order(t, resp)
	require.NotNil(t, o.CustomerID)
	assert.Equal(t, "12345678", *o.CustomerID)
	assert.Equal(t, "Luis", o.DisplayName)
}

func TestCreateOrderErrors(t *testing.T) {
	f := newFixture(t)
	seat := f.connect(t, 6, "Ana")
	f.pub.reset()

	tests := []struct {
		name    string
		req     *CreateOrderRequest
		wantErr error
	}{
		{
			name:    "unknown table",
			req:     &CreateOrderRequest{TableID: "missing", DeviceID: seat.DeviceID, Items: []OrderItemRequest{{ProductID: "burger", Quantity: 1}}},
			wantErr: ErrNotFound,
		},
		{
			name:    "no items",
			req:     &CreateOrderRequest{TableID: seat.TableID, DeviceID: seat.DeviceID},
			wantErr: ErrValidation,
		},
		{
			name:    "zero quantity",
			req:     &CreateOrderRequest{TableID: seat.TableID, DeviceID: seat.DeviceID, Items: []OrderItemRequest{{ProductID: "burger", Quantity: 0}}},
			wantErr: ErrValidation,
		},
		{
			name:    "negative override price",
			req:     &CreateOrderRequest{TableID: seat.TableID, DeviceID: seat.DeviceID, Items: []OrderItemRequest{{ProductID: "burger", Quantity: 1, Price: func() *decimal.Decimal { d := dec("-1"); return &d }()}}},
			wantErr: ErrValidation,
		},
		{
			name:    "unknown product",
			req:     &CreateOrderRequest{TableID: seat.TableID, DeviceID: seat.DeviceID, Items: []OrderItemRequest{{ProductID: "burger", Quantity: 1}, {ProductID: "lobster", Quantity: 1}}},
			wantErr: ErrNotFound,
		},
		{
			name:    "device not connected",
			req:     &CreateOrderRequest{TableID: seat.TableID, DeviceID: "stranger", Items: []OrderItemRequest{{ProductID: "burger", Quantity: 1}}},
			wantErr: ErrValidation,
		},
		{
			name:    "disabled product",
			req:     &CreateOrderRequest{TableID: seat.TableID, DeviceID: seat.DeviceID, Items: []OrderItemRequest{{ProductID: "soup", Quantity: 2}}},
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.table(t, 6)

			_, err := f.orders.CreateOrder(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, before, f.table(t, 6))
			assert.Empty(t, f.pub.types())
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.OrderState
		want     bool
	}{
		{models.OrderStateReceived, models.OrderStatePreparing, true},
		{models.OrderStatePreparing, models.OrderStateReady, true},
		{models.OrderStateReady, models.OrderStateDelivered, true},
		{models.OrderStateReceived, models.OrderStateCancelled, true},
		{models.OrderStateReady, models.OrderStateCancelled, true},
		{models.OrderStateReceived, models.OrderStateReady, false},
		{models.OrderStateReady, models.OrderStatePreparing, false},
		{models.OrderStatePreparing, models.OrderStatePreparing, false},
		{models.OrderStateDelivered, models.OrderStateCancelled, false},
		{models.OrderStateCancelled, models.OrderStateReceived, false},
		{models.OrderStateCancelled, models.OrderStateCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestUpdateOrderStateLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, f.connect(t, 3, "Ana"))

	for _, next := range []models.OrderState{models.OrderStatePreparing, models.OrderStateReady, models.OrderStateDelivered} {
		f.pub.reset()
		previous := o.State

		updated, err := f.orders.UpdateOrderState(ctx, o.ID, next)
		require.NoError(t, err)
		assert.Equal(t, next, updated.State)

		require.NotEmpty(t, f.pub.events)
		evt := f.pub.events[0]
		assert.Equal(t, models.EventTypeOrderStateChanged, evt.EventType)
		payload := evt.Payload.(models.OrderEventPayload)
		assert.Equal(t, next, payload.State)
		assert.Equal(t, previous, payload.PreviousState)
		o = updated
	}

	_, err := f.orders.UpdateOrderState(ctx, o.ID, models.OrderStateCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateOrderStateRejectsSkippingAndUnknownStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, f.connect(t, 3, "Ana"))
	f.pub.reset()

	_, err := f.orders.UpdateOrderState(ctx, o.ID, models.OrderStateDelivered)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.orders.UpdateOrderState(ctx, o.ID, models.OrderState("BURNT"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.UpdateOrderState(ctx, "missing", models.OrderStatePreparing)
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateReceived, stored.State)
	assert.Empty(t, f.pub.types())
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seat := f.connect(t, 8, "Ana")
	keep := f.order(t, seat, OrderItemRequest{ProductID: "fries", Quantity: 2})
	drop := f.order(t, seat, OrderItemRequest{ProductID: "burger", Quantity: 1})

	_, err := f.orders.UpdateOrderState(ctx, drop.ID, models.OrderStatePreparing)
	require.NoError(t, err)

	cancelled, err := f.orders.CancelOrder(ctx, drop.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateCancelled, cancelled.State)

	table := f.table(t, 8)
	assert.True(t, keep.Total.Equal(table.Total))
	assert.Len(t, table.OrderIDs, 2)
	f.requireTableTotal(t, 8)

	_, err = f.orders.CancelOrder(ctx, drop.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelPaidOrderConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.order(t, f.connect(t, 2, "Ana"))
	f.pay(t, o.ID)
	f.pub.reset()

	_, err := f.orders.CancelOrder(ctx, o.ID)
	assert.ErrorIs(t, err, ErrConflict)

	stored, err := f.orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStateReceived, stored.State)
	assert.True(t, stored.Paid)
	assert.Empty(t, f.pub.types())
}

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
