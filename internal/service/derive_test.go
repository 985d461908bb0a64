package service

import (
	"testing"
	"time"

	"table-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func order(total string, state models.OrderState, paid bool) *models.Order {
	return &models.Order{Total: dec(total), State: state, Paid: paid}
}

func TestDeriveTableState(t *testing.T) {
	earlier := testNow.Add(-time.Hour)
	device := models.Devices{{DeviceID: "d1", DisplayName: "Ana"}}

	tests := []struct {
		name       string
		devices    models.Devices
		orders     []*models.Order
		wantState  models.TableState
		wantTotal  string
		wantClosed *time.Time
		wantOccAt  *time.Time
	}{
		{
			name:      "empty table is free and reset",
			wantState: models.TableStateFree,
			wantTotal: "0",
		},
		{
			name:      "connected device with no orders is occupied",
			devices:   device,
			wantState: models.TableStateOccupied,
			wantTotal: "0",
			wantOccAt: &earlier,
		},
		{
			name:      "device keeps a fully paid table occupied",
			devices:   device,
			orders:    []*models.Order{order("20.00", models.OrderStateDelivered, true)},
			wantState: models.TableStateOccupied,
			wantTotal: "20.00",
			wantOccAt: &earlier,
		},
		{
			// total stays at the paid sum instead of dropping to 0; it always
			// equals the non-cancelled order totals
			name:       "no devices and every active order paid frees the table",
			orders:     []*models.Order{order("15.00", models.OrderStateDelivered, true), order("9.00", models.OrderStateCancelled, false)},
			wantState:  models.TableStateFree,
			wantTotal:  "15.00",
			wantClosed: &testNow,
			wantOccAt:  &earlier,
		},
		{
			name:      "only cancelled orders and a device is occupied",
			devices:   device,
			orders:    []*models.Order{order("9.00", models.OrderStateCancelled, false)},
			wantState: models.TableStateOccupied,
			wantTotal: "0",
			wantOccAt: &earlier,
		},
		{
			name:      "only cancelled orders and no device is free",
			orders:    []*models.Order{order("9.00", models.OrderStateCancelled, false)},
			wantState: models.TableStateFree,
			wantTotal: "0",
			wantOccAt: &earlier,
		},
		{
			name:      "unpaid order awaits payment",
			devices:   device,
			orders:    []*models.Order{order("12.50", models.OrderStateReceived, false)},
			wantState: models.TableStateAwaitingPayment,
			wantTotal: "12.50",
			wantOccAt: &earlier,
		},
		{
			name:    "one unpaid among paid awaits payment",
			devices: device,
			orders: []*models.Order{
				order("10.00", models.OrderStateDelivered, true),
				order("5.25", models.OrderStatePreparing, false),
			},
			wantState: models.TableStateAwaitingPayment,
			wantTotal: "15.25",
			wantOccAt: &earlier,
		},
		{
			name:      "unpaid order without devices still awaits payment",
			orders:    []*models.Order{order("7.00", models.OrderStateReady, false)},
			wantState: models.TableStateAwaitingPayment,
			wantTotal: "7.00",
			wantOccAt: &earlier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occupied := earlier
			table := &models.Table{
				Number:     1,
				State:      models.TableStateOccupied,
				Devices:    tt.devices,
				OccupiedAt: &occupied,
			}

			d := DeriveTableState(table, tt.orders, testNow)

			assert.Equal(t, tt.wantState, d.State)
			assert.True(t, dec(tt.wantTotal).Equal(d.Total), "total %s", d.Total)
			assert.Equal(t, tt.wantClosed, d.ClosedAt)
			assert.Equal(t, tt.wantOccAt, d.OccupiedAt)
		})
	}
}

func TestDeriveTableStateDoesNotMutateInput(t *testing.T) {
	table := &models.Table{Number: 3, State: models.TableStateOccupied}
	orders := []*models.Order{order("4.00", models.OrderStateReceived, false)}

	DeriveTableState(table, orders, testNow)

	assert.Equal(t, models.TableStateOccupied, table.State)
	assert.True(t, table.Total.IsZero())
}

func TestApplyDerivation(t *testing.T) {
	table := &models.Table{Number: 2, Devices: models.Devices{{DeviceID: "d1"}}}
	orders := []*models.Order{order("8.00", models.OrderStateReceived, false)}

	applyDerivation(table, DeriveTableState(table, orders, testNow))

	assert.Equal(t, models.TableStateAwaitingPayment, table.State)
	assert.True(t, dec("8.00").Equal(table.Total))
}
