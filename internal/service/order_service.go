package service

import (
	"context"
	"fmt"

	"table-service/internal/models"
	"table-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService is the order ledger: it owns order records and their lifecycle
type OrderService struct {
	exec    *TableExecutor
	catalog Catalog
	logger  *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(exec *TableExecutor, catalog Catalog) *OrderService {
	return &OrderService{
		exec:    exec,
		catalog: catalog,
		logger:  util.ComponentLogger("order-ledger"),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	TableID     string             `json:"table_id" binding:"required"`
	DeviceID    string             `json:"device_id" binding:"required"`
	DisplayName string             `json:"display_name"`
	Items       []OrderItemRequest `json:"items"`
	Notes       string             `json:"notes"`
}

// OrderItemRequest represents an item in an order. Price overrides the
// catalog price when set.
type OrderItemRequest struct {
	ProductID      string            `json:"product_id"`
	Quantity       int               `json:"quantity"`
	Price          *decimal.Decimal  `json:"price,omitempty"`
	Customizations map[string]string `json:"customizations,omitempty"`
}

// legal forward edges; Cancelled is reachable from any non-terminal state
var nextOrderState = map[models.OrderState]models.OrderState{
	models.OrderStateReceived:  models.OrderStatePreparing,
	models.OrderStatePreparing: models.OrderStateReady,
	models.OrderStateReady:     models.OrderStateDelivered,
}

// CanTransition reports whether an order may move from one state to another
func CanTransition(from, to models.OrderState) bool {
	if from.Terminal() {
		return false
	}
	if to == models.OrderStateCancelled {
		return true
	}
	return nextOrderState[from] == to
}

func validOrderState(s models.OrderState) bool {
	switch s {
	case models.OrderStateReceived, models.OrderStatePreparing, models.OrderStateReady,
		models.OrderStateDelivered, models.OrderStateCancelled:
		return true
	}
	return false
}

// CreateOrder places a new order on a table, snapshotting catalog name and price
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	order, err := s.createOrder(ctx, req)
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("create_order", errorReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.Int("table_number", order.TableNumber),
		zap.String("total", order.Total.String()))
	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	number, err := s.exec.resolveTableNumber(ctx, req.TableID)
	if err != nil {
		return nil, err
	}

	if err := validateOrderItems(req.Items); err != nil {
		return nil, err
	}

	items, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	_, _, err = s.exec.Run(ctx, number, false, func(ctx context.Context, u *tableUnit) error {
		if u.Table.ID != req.TableID {
			return fmt.Errorf("%w: table %s", ErrNotFound, req.TableID)
		}
		device := u.Table.Device(req.DeviceID)
		if device == nil {
			return fmt.Errorf("%w: device %s is not connected to table %d", ErrValidation, req.DeviceID, u.Table.Number)
		}

		order := &models.Order{
			ID:           uuid.New().String(),
			TableID:      u.Table.ID,
			TableNumber:  u.Table.Number,
			DeviceID:     req.DeviceID,
			DisplayName:  req.DisplayName,
			Items:        items,
			State:        models.OrderStateReceived,
			Tip:          decimal.Zero,
			PaymentState: models.PaymentStateUnset,
			Notes:        req.Notes,
			CreatedAt:    u.Now,
		}
		if order.DisplayName == "" {
			order.DisplayName = device.DisplayName
		}
		if device.NationalID != nil {
			id := *device.NationalID
			order.CustomerID = &id
		}
		order.Recalculate()

		u.AddOrder(order)
		u.EmitOrder(models.EventTypeOrderCreated, order, "")
		created = order.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// validateOrderItems checks the request shape before anything is looked up
func validateOrderItems(items []OrderItemRequest) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range items {
		if item.ProductID == "" {
			return fmt.Errorf("%w: item %d has no product", ErrValidation, i)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrValidation, i)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return fmt.Errorf("%w: item %d price must not be negative", ErrValidation, i)
		}
	}
	return nil
}

// snapshotItems resolves every product once and copies its name and price
func (s *OrderService) snapshotItems(ctx context.Context, reqItems []OrderItemRequest) (models.LineItems, error) {
	items := make(models.LineItems, 0, len(reqItems))
	for _, item := range reqItems {
		product, err := s.catalog.Lookup(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up product %s: %w", item.ProductID, err)
		}
		if product == nil {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, item.ProductID)
		}
		if !product.Available {
			return nil, fmt.Errorf("%w: product %s is disabled", ErrUnavailable, item.ProductID)
		}

		price := product.Price
		if item.Price != nil {
			price = *item.Price
		}

		items = append(items, models.LineItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Quantity:       item.Quantity,
			UnitPrice:      price,
			Customizations: item.Customizations,
		})
	}
	return items, nil
}

// UpdateOrderState moves an order along its lifecycle
func (s *OrderService) UpdateOrderState(ctx context.Context, orderID string, newState models.OrderState) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderState")
	defer span.End()

	order, err := s.transition(ctx, orderID, newState, false)
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("update_order_state", errorReason(err)).Inc()
		return nil, err
	}
	return order, nil
}

// CancelOrder cancels an order that has not been paid
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.transition(ctx, orderID, models.OrderStateCancelled, true)
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("cancel_order", errorReason(err)).Inc()
		return nil, err
	}
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, orderID string, newState models.OrderState, rejectPaid bool) (*models.Order, error) {
	if !validOrderState(newState) {
		return nil, fmt.Errorf("%w: unknown order state %q", ErrValidation, newState)
	}

	order, err := s.exec.RunForOrder(ctx, orderID, func(ctx context.Context, u *tableUnit, o *models.Order) error {
		if rejectPaid && o.Paid {
			return fmt.Errorf("%w: order %s is already paid", ErrConflict, o.ID)
		}
		if !CanTransition(o.State, newState) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, newState)
		}

		previous := o.State
		o.State = newState
		o.Recalculate()
		u.Touch(o)
		u.EmitOrder(models.EventTypeOrderStateChanged, o, previous)
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.OrderTransitionsTotal.WithLabelValues(string(newState)).Inc()
	s.logger.Info("Order state changed",
		zap.String("order_id", order.ID),
		zap.String("state", string(order.State)))
	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.exec.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}
	return order, nil
}
