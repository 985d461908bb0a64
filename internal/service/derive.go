package service

import (
	"time"

	"table-service/internal/models"

	"github.com/shopspring/decimal"
)

// TableDerivation is the computed part of a table
type TableDerivation struct {
	State      models.TableState
	Total      decimal.Decimal
	OccupiedAt *time.Time
	ClosedAt   *time.Time
}

// DeriveTableState recomputes state and total from the table's devices and the
// orders it references. The order of the checks is significant.
func DeriveTableState(table *models.Table, orders []*models.Order, now time.Time) TableDerivation {
	d := TableDerivation{
		State:      table.State,
		OccupiedAt: table.OccupiedAt,
		ClosedAt:   table.ClosedAt,
	}

	active := make([]*models.Order, 0, len(orders))
	total := decimal.Zero
	for _, o := range orders {
		if o.State == models.OrderStateCancelled {
			continue
		}
		active = append(active, o)
		total = total.Add(o.Total)
	}
	d.Total = total

	noDevices := len(table.Devices) == 0

	if noDevices && len(orders) == 0 {
		d.State = models.TableStateFree
		d.OccupiedAt = nil
		d.ClosedAt = nil
		d.Total = decimal.Zero
		return d
	}

	if len(active) == 0 {
		d.State = freeOrOccupied(noDevices)
		return d
	}

	allPaid := true
	anyUnpaid := false
	for _, o := range active {
		if o.Paid {
			continue
		}
		allPaid = false
		anyUnpaid = true
	}

	if allPaid {
		// connected devices keep the table occupied even when everything is paid
		d.State = freeOrOccupied(noDevices)
		if noDevices {
			closed := now
			d.ClosedAt = &closed
		}
		return d
	}

	if anyUnpaid {
		d.State = models.TableStateAwaitingPayment
		return d
	}

	// unreachable with the checks above; kept so edge cases never change outcome
	d.State = models.TableStateOccupied
	return d
}

func freeOrOccupied(noDevices bool) models.TableState {
	if noDevices {
		return models.TableStateFree
	}
	return models.TableStateOccupied
}

func applyDerivation(table *models.Table, d TableDerivation) {
	table.State = d.State
	table.Total = d.Total
	table.OccupiedAt = d.OccupiedAt
	table.ClosedAt = d.ClosedAt
}
