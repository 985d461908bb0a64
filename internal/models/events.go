package models

import (
	"fmt"
	"time"
)

// Event types
const (
	EventTypeOrderCreated      = "order.created"
	EventTypeOrderStateChanged = "order.state_changed"
	EventTypePaymentSubmitted  = "payment.submitted"
	EventTypePaymentConfirmed  = "payment.confirmed"
	EventTypePaymentRejected   = "payment.rejected"
	EventTypeTableStateChanged = "table.state_changed"
	EventTypeTableReleased     = "table.released"
)

// AdminTopic receives every event regardless of table
const AdminTopic = "admin"

// TableTopic is the per-table topic observers of one table subscribe to
func TableTopic(number int) string {
	return fmt.Sprintf("table.%d", number)
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	TableNumber int       `json:"table_number"`
	Origin      string    `json:"origin,omitempty"`
}

// Event is the envelope handed to the broadcaster
type Event struct {
	BaseEvent
	Payload interface{} `json:"payload"`
}

// Topics returns every topic the event is delivered to
func (e Event) Topics() []string {
	return []string{TableTopic(e.TableNumber), AdminTopic}
}

// OrderEventPayload is carried by order.* and payment.* events
type OrderEventPayload struct {
	OrderID       string       `json:"order_id"`
	DeviceID      string       `json:"device_id"`
	State         OrderState   `json:"state"`
	PreviousState OrderState   `json:"previous_state,omitempty"`
	Total         string       `json:"total"`
	Paid          bool         `json:"paid"`
	PaymentState  PaymentState `json:"payment_state"`
	Method        string       `json:"method,omitempty"`
}

// TableEventPayload is carried by table.state_changed
type TableEventPayload struct {
	TableID     string     `json:"table_id"`
	State       TableState `json:"state"`
	Total       string     `json:"total"`
	DeviceCount int        `json:"device_count"`
	OrderCount  int        `json:"order_count"`
}

// TableReleasedPayload tells every observer of a table to end its session
type TableReleasedPayload struct {
	TableNumber int    `json:"tableNumber"`
	Message     string `json:"message"`
}
