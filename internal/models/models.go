package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrVersionConflict is returned by stores when a record changed after it was
// read. Callers reload and retry.
var ErrVersionConflict = errors.New("version conflict")

// TableState is the derived occupancy/payment status of a table
type TableState string

const (
	TableStateFree            TableState = "FREE"
	TableStateOccupied        TableState = "OCCUPIED"
	TableStateAwaitingPayment TableState = "AWAITING_PAYMENT"
)

// OrderState is the kitchen lifecycle of an order
type OrderState string

const (
	OrderStateReceived  OrderState = "RECEIVED"
	OrderStatePreparing OrderState = "PREPARING"
	OrderStateReady     OrderState = "READY"
	OrderStateDelivered OrderState = "DELIVERED"
	OrderStateCancelled OrderState = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed
func (s OrderState) Terminal() bool {
	return s == OrderStateDelivered || s == OrderStateCancelled
}

// PaymentState is the lifecycle of the current payment attempt
type PaymentState string

const (
	PaymentStateUnset      PaymentState = "UNSET"
	PaymentStateProcessing PaymentState = "PROCESSING"
	PaymentStateConfirmed  PaymentState = "CONFIRMED"
	PaymentStateRejected   PaymentState = "REJECTED"
)

// Payment methods
const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

// Product is the catalog view consumed at order creation
type Product struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Available bool            `db:"available" json:"available"`
}

// Device is one client session connected to a table
type Device struct {
	DeviceID    string    `json:"device_id"`
	DisplayName string    `json:"display_name"`
	NationalID  *string   `json:"national_id,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Table is the shared aggregate for one physical table
type Table struct {
	ID         string          `db:"id" json:"id"`
	Number     int             `db:"number" json:"number"`
	State      TableState      `db:"state" json:"state"`
	Devices    Devices         `db:"devices" json:"devices"`
	OrderIDs   IDList          `db:"order_ids" json:"order_ids"`
	Total      decimal.Decimal `db:"total" json:"total"`
	OccupiedAt *time.Time      `db:"occupied_at" json:"occupied_at,omitempty"`
	ClosedAt   *time.Time      `db:"closed_at" json:"closed_at,omitempty"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
	Version    int64           `db:"version" json:"-"`
}

// Clone returns a deep copy so callers can mutate without touching shared state
func (t *Table) Clone() *Table {
	c := *t
	c.Devices = append(Devices(nil), t.Devices...)
	c.OrderIDs = append(IDList(nil), t.OrderIDs...)
	c.OccupiedAt = cloneTime(t.OccupiedAt)
	c.ClosedAt = cloneTime(t.ClosedAt)
	return &c
}

// HasDevice reports whether the device session is attached
func (t *Table) HasDevice(deviceID string) bool {
	return t.Device(deviceID) != nil
}

// Device returns the attached descriptor or nil
func (t *Table) Device(deviceID string) *Device {
	for i := range t.Devices {
		if t.Devices[i].DeviceID == deviceID {
			return &t.Devices[i]
		}
	}
	return nil
}

// LineItem is a quantity of one product at a price captured when the order was placed
type LineItem struct {
	ProductID      string            `json:"product_id"`
	Name           string            `json:"name"`
	Quantity       int               `json:"quantity"`
	UnitPrice      decimal.Decimal   `json:"unit_price"`
	Customizations map[string]string `json:"customizations,omitempty"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
}

// Order is one device's set of line items with its own payment lifecycle
type Order struct {
	ID              string          `db:"id" json:"id"`
	TableID         string          `db:"table_id" json:"table_id"`
	TableNumber     int             `db:"table_number" json:"table_number"`
	DeviceID        string          `db:"device_id" json:"device_id"`
	CustomerID      *string         `db:"customer_id" json:"customer_id,omitempty"`
	DisplayName     string          `db:"display_name" json:"display_name"`
	Items           LineItems       `db:"items" json:"items"`
	Total           decimal.Decimal `db:"total" json:"total"`
	State           OrderState      `db:"state" json:"state"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method,omitempty"`
	Tip             decimal.Decimal `db:"tip" json:"tip"`
	Paid            bool            `db:"paid" json:"paid"`
	PaymentState    PaymentState    `db:"payment_state" json:"payment_state"`
	PaymentProof    *string         `db:"payment_proof" json:"payment_proof,omitempty"`
	PaymentRef      *string         `db:"payment_ref" json:"payment_ref,omitempty"`
	RejectionReason *string         `db:"rejection_reason" json:"rejection_reason,omitempty"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make(LineItems, len(o.Items))
	for i, it := range o.Items {
		if it.Customizations != nil {
			m := make(map[string]string, len(it.Customizations))
			for k, v := range it.Customizations {
				m[k] = v
			}
			it.Customizations = m
		}
		c.Items[i] = it
	}
	c.CustomerID = cloneString(o.CustomerID)
	c.PaymentProof = cloneString(o.PaymentProof)
	c.PaymentRef = cloneString(o.PaymentRef)
	c.RejectionReason = cloneString(o.RejectionReason)
	return &c
}

// Recalculate refreshes every subtotal and the order total from the line items
func (o *Order) Recalculate() {
	total := decimal.Zero
	for i := range o.Items {
		o.Items[i].Subtotal = o.Items[i].UnitPrice.Mul(decimal.NewFromInt(int64(o.Items[i].Quantity)))
		total = total.Add(o.Items[i].Subtotal)
	}
	o.Total = total
}

// ProductCount tracks how many confirmed orders of a customer contained a product
type ProductCount struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

// CustomerProfile holds aggregate statistics for a returning customer
type CustomerProfile struct {
	CustomerID        string          `json:"customer_id"`
	Visits            int             `json:"visits"`
	LifetimeSpend     decimal.Decimal `json:"lifetime_spend"`
	PreferredProducts []ProductCount  `json:"preferred_products"`
	LastVisitAt       time.Time       `json:"last_visit_at"`
	Version           int64           `json:"-"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
