package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"table-service/internal/models"
	"table-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxCommitAttempts bounds how often a command is replayed after another
// instance committed the same table first
const maxCommitAttempts = 8

// TableExecutor runs table commands inside the table's serialized section.
// Commands mutate private copies; derivation, commit and event hand-off happen
// here so that a failing command leaves the stored state untouched.
type TableExecutor struct {
	repo      Repository
	publisher Publisher
	locks     *TableLocks
	origin    string
	now       func() time.Time
	logger    *zap.Logger
}

// NewTableExecutor creates a new table executor
func NewTableExecutor(repo Repository, publisher Publisher, origin string) *TableExecutor {
	return &TableExecutor{
		repo:      repo,
		publisher: publisher,
		locks:     NewTableLocks(),
		origin:    origin,
		now:       time.Now,
		logger:    util.ComponentLogger("table-executor"),
	}
}

// tableUnit is the working set of one command
type tableUnit struct {
	Table *models.Table
	Now   time.Time

	isNew      bool
	orders     map[string]*models.Order
	dirty      map[string]bool
	outbox     []models.Event
	stateEvent bool
	released   bool
	origin     string
	repo       Repository
}

// Orders returns the orders referenced by the table, in table order
func (u *tableUnit) Orders() []*models.Order {
	out := make([]*models.Order, 0, len(u.Table.OrderIDs))
	for _, id := range u.Table.OrderIDs {
		if o, ok := u.orders[id]; ok {
			out = append(out, o)
		}
	}
	return out
}

// Order returns an order of this table, including ones already dropped from
// the table's set by a forced close.
func (u *tableUnit) Order(ctx context.Context, id string) (*models.Order, error) {
	if o, ok := u.orders[id]; ok {
		return o, nil
	}
	o, err := u.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if o == nil || o.TableNumber != u.Table.Number {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	u.orders[id] = o
	return o, nil
}

// AddOrder attaches a new order to the table
func (u *tableUnit) AddOrder(o *models.Order) {
	u.orders[o.ID] = o
	u.Table.OrderIDs = append(u.Table.OrderIDs, o.ID)
	u.Touch(o)
}

// Touch marks an order for commit
func (u *tableUnit) Touch(o *models.Order) {
	o.UpdatedAt = u.Now
	u.dirty[o.ID] = true
}

// Emit appends an event to the outbox
func (u *tableUnit) Emit(eventType string, payload interface{}) {
	u.outbox = append(u.outbox, models.Event{
		BaseEvent: models.BaseEvent{
			EventID:     uuid.New().String(),
			EventType:   eventType,
			Timestamp:   u.Now,
			TableNumber: u.Table.Number,
			Origin:      u.origin,
		},
		Payload: payload,
	})
}

// EmitOrder appends an order-scoped event
func (u *tableUnit) EmitOrder(eventType string, o *models.Order, previous models.OrderState) {
	u.Emit(eventType, orderPayload(o, previous))
}

func orderPayload(o *models.Order, previous models.OrderState) models.OrderEventPayload {
	return models.OrderEventPayload{
		OrderID:       o.ID,
		DeviceID:      o.DeviceID,
		State:         o.State,
		PreviousState: previous,
		Total:         o.Total.StringFixed(2),
		Paid:          o.Paid,
		PaymentState:  o.PaymentState,
		Method:        o.PaymentMethod,
	}
}

func tablePayload(t *models.Table) models.TableEventPayload {
	return models.TableEventPayload{
		TableID:     t.ID,
		State:       t.State,
		Total:       t.Total.StringFixed(2),
		DeviceCount: len(t.Devices),
		OrderCount:  len(t.OrderIDs),
	}
}

// Run executes fn for the table with the given number. When create is set a
// missing table is created lazily; otherwise it is reported as not found.
func (e *TableExecutor) Run(ctx context.Context, number int, create bool, fn func(ctx context.Context, u *tableUnit) error) (*models.Table, []models.Event, error) {
	start := time.Now()
	unlock := e.locks.Lock(number)
	util.TableLockWait.Observe(time.Since(start).Seconds())

	var (
		table  *models.Table
		events []models.Event
		err    error
	)
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		table, events, err = e.runLocked(ctx, number, create, fn)
		if !errors.Is(err, models.ErrVersionConflict) {
			break
		}
		util.TableCommitConflictsTotal.Inc()
		e.logger.Debug("Table changed concurrently, replaying command",
			zap.Int("table_number", number),
			zap.Int("attempt", attempt))
	}
	unlock()

	if errors.Is(err, models.ErrVersionConflict) {
		err = fmt.Errorf("%w: table %d kept changing concurrently", ErrConflict, number)
	}

	if err != nil {
		return nil, nil, err
	}

	if len(events) > 0 {
		e.publisher.Publish(ctx, events...)
	}
	return table, events, nil
}

func (e *TableExecutor) runLocked(ctx context.Context, number int, create bool, fn func(ctx context.Context, u *tableUnit) error) (*models.Table, []models.Event, error) {
	table, err := e.repo.GetTableByNumber(ctx, number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load table: %w", err)
	}

	now := e.now()
	isNew := false
	if table == nil {
		if !create {
			return nil, nil, fmt.Errorf("%w: table %d", ErrNotFound, number)
		}
		table = &models.Table{
			ID:     uuid.New().String(),
			Number: number,
			State:  models.TableStateFree,
		}
		isNew = true
	}

	orders, err := e.repo.GetOrdersByIDs(ctx, table.OrderIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load orders: %w", err)
	}

	u := &tableUnit{
		Table:  table,
		Now:    now,
		isNew:  isNew,
		orders: make(map[string]*models.Order, len(orders)),
		dirty:  make(map[string]bool),
		origin: e.origin,
		repo:   e.repo,
	}
	for _, o := range orders {
		u.orders[o.ID] = o
	}

	prevState, prevTotal := table.State, table.Total

	if err := fn(ctx, u); err != nil {
		return nil, nil, err
	}

	if !u.released {
		applyDerivation(table, DeriveTableState(table, u.Orders(), now))
		if u.stateEvent || table.State != prevState || !table.Total.Equal(prevTotal) {
			u.Emit(models.EventTypeTableStateChanged, tablePayload(table))
		}
	}
	table.UpdatedAt = now

	touched := make([]*models.Order, 0, len(u.dirty))
	for id := range u.dirty {
		touched = append(touched, u.orders[id])
	}

	if err := e.repo.SaveTable(ctx, table, touched); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			return nil, nil, err
		}
		e.logger.Error("Failed to commit table",
			zap.Int("table_number", number),
			zap.Error(err))
		return nil, nil, fmt.Errorf("failed to save table: %w", err)
	}

	return table, u.outbox, nil
}

// resolveTableNumber maps a table id to its number
func (e *TableExecutor) resolveTableNumber(ctx context.Context, tableID string) (int, error) {
	table, err := e.repo.GetTable(ctx, tableID)
	if err != nil {
		return 0, fmt.Errorf("failed to load table: %w", err)
	}
	if table == nil {
		return 0, fmt.Errorf("%w: table %s", ErrNotFound, tableID)
	}
	return table.Number, nil
}

// RunForOrder executes fn inside the section of the table owning the order
func (e *TableExecutor) RunForOrder(ctx context.Context, orderID string, fn func(ctx context.Context, u *tableUnit, o *models.Order) error) (*models.Order, error) {
	existing, err := e.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderID)
	}

	var result *models.Order
	_, _, err = e.Run(ctx, existing.TableNumber, false, func(ctx context.Context, u *tableUnit) error {
		o, err := u.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if err := fn(ctx, u, o); err != nil {
			return err
		}
		result = o.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Snapshot returns a consistent view of a table and its orders
func (e *TableExecutor) Snapshot(ctx context.Context, number int) (*models.Table, []*models.Order, error) {
	unlock := e.locks.Lock(number)
	defer unlock()

	table, err := e.repo.GetTableByNumber(ctx, number)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load table: %w", err)
	}
	if table == nil {
		return nil, nil, fmt.Errorf("%w: table %d", ErrNotFound, number)
	}
	orders, err := e.repo.GetOrdersByIDs(ctx, table.OrderIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return table, orders, nil
}
