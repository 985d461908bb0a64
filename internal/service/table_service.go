package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"table-service/internal/models"
	"table-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TableReleasedMessage is sent to every observer of a force-closed table
const TableReleasedMessage = "The table has been closed. Please start a new session."

// TableService is the table registry: it owns the table aggregate
type TableService struct {
	exec   *TableExecutor
	logger *zap.Logger
}

// NewTableService creates a new table service
func NewTableService(exec *TableExecutor) *TableService {
	return &TableService{
		exec:   exec,
		logger: util.ComponentLogger("table-registry"),
	}
}

// ConnectDeviceRequest represents a device joining a table
type ConnectDeviceRequest struct {
	TableNumber int     `json:"-"`
	DisplayName string  `json:"display_name" binding:"required"`
	NationalID  *string `json:"national_id,omitempty"`
	Phone       *string `json:"phone,omitempty"`
}

// ConnectDeviceResponse identifies the new device session
type ConnectDeviceResponse struct {
	TableID  string `json:"table_id"`
	DeviceID string `json:"device_id"`
}

// TableSnapshot is a table together with the orders it references
type TableSnapshot struct {
	Table  *models.Table   `json:"table"`
	Orders []*models.Order `json:"orders"`
}

func validateTableNumber(number int) error {
	if number < 1 {
		return fmt.Errorf("%w: table number must be positive", ErrValidation)
	}
	return nil
}

// ConnectDevice attaches a new device session, creating the table on first use
func (ts *TableService) ConnectDevice(ctx context.Context, req *ConnectDeviceRequest) (*ConnectDeviceResponse, error) {
	ctx, span := util.StartTableSpan(ctx, "TableService.ConnectDevice", req.TableNumber)
	defer span.End()

	if err := validateTableNumber(req.TableNumber); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrValidation)
	}

	deviceID := uuid.New().String()
	table, _, err := ts.exec.Run(ctx, req.TableNumber, true, func(ctx context.Context, u *tableUnit) error {
		u.Table.Devices = append(u.Table.Devices, models.Device{
			DeviceID:    deviceID,
			DisplayName: name,
			NationalID:  nonEmpty(req.NationalID),
			Phone:       nonEmpty(req.Phone),
			ConnectedAt: u.Now,
		})
		if u.Table.OccupiedAt == nil {
			occupied := u.Now
			u.Table.OccupiedAt = &occupied
		}
		u.stateEvent = true
		return nil
	})
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("connect_device", errorReason(err)).Inc()
		return nil, err
	}

	util.DeviceConnectionsTotal.WithLabelValues("connect").Inc()
	ts.logger.Info("Device connected",
		zap.Int("table_number", table.Number),
		zap.String("device_id", deviceID),
		zap.Int("devices", len(table.Devices)))

	return &ConnectDeviceResponse{TableID: table.ID, DeviceID: deviceID}, nil
}

// DisconnectDevice detaches a device session; unknown devices are ignored
func (ts *TableService) DisconnectDevice(ctx context.Context, tableNumber int, deviceID string) (*models.Table, error) {
	ctx, span := util.StartTableSpan(ctx, "TableService.DisconnectDevice", tableNumber)
	defer span.End()

	table, _, err := ts.exec.Run(ctx, tableNumber, false, func(ctx context.Context, u *tableUnit) error {
		kept := u.Table.Devices[:0:0]
		for _, d := range u.Table.Devices {
			if d.DeviceID != deviceID {
				kept = append(kept, d)
			}
		}
		u.Table.Devices = kept
		u.stateEvent = true
		return nil
	})
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("disconnect_device", errorReason(err)).Inc()
		return nil, err
	}

	util.DeviceConnectionsTotal.WithLabelValues("disconnect").Inc()
	ts.logger.Info("Device disconnected",
		zap.Int("table_number", tableNumber),
		zap.String("device_id", deviceID))
	return table, nil
}

// CloseTable force-releases a fully paid table and tells every observer to leave
func (ts *TableService) CloseTable(ctx context.Context, tableID string) (*models.Table, error) {
	ctx, span := util.StartSpan(ctx, "TableService.CloseTable")
	defer span.End()

	table, err := ts.closeTable(ctx, tableID)
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("close_table", errorReason(err)).Inc()
		return nil, err
	}

	util.TablesReleasedTotal.Inc()
	ts.logger.Info("Table released", zap.Int("table_number", table.Number))
	return table, nil
}

func (ts *TableService) closeTable(ctx context.Context, tableID string) (*models.Table, error) {
	number, err := ts.exec.resolveTableNumber(ctx, tableID)
	if err != nil {
		return nil, err
	}

	table, _, err := ts.exec.Run(ctx, number, false, func(ctx context.Context, u *tableUnit) error {
		if u.Table.ID != tableID {
			return fmt.Errorf("%w: table %s", ErrNotFound, tableID)
		}
		for _, o := range u.Orders() {
			if o.State != models.OrderStateCancelled && !o.Paid {
				return fmt.Errorf("%w: order %s on table %d is unpaid", ErrConflict, o.ID, u.Table.Number)
			}
		}

		closed := u.Now
		u.Table.OrderIDs = models.IDList{}
		u.Table.Devices = models.Devices{}
		u.Table.Total = decimal.Zero
		u.Table.State = models.TableStateFree
		u.Table.ClosedAt = &closed
		u.released = true
		u.Emit(models.EventTypeTableReleased, models.TableReleasedPayload{
			TableNumber: u.Table.Number,
			Message:     TableReleasedMessage,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// CreateTable registers a table explicitly
func (ts *TableService) CreateTable(ctx context.Context, number int) (*models.Table, error) {
	ctx, span := util.StartTableSpan(ctx, "TableService.CreateTable", number)
	defer span.End()

	if err := validateTableNumber(number); err != nil {
		return nil, err
	}

	table, _, err := ts.exec.Run(ctx, number, true, func(ctx context.Context, u *tableUnit) error {
		if !u.isNew {
			return fmt.Errorf("%w: table %d already exists", ErrConflict, number)
		}
		u.stateEvent = true
		return nil
	})
	if err != nil {
		util.CommandsFailedTotal.WithLabelValues("create_table", errorReason(err)).Inc()
		return nil, err
	}

	ts.logger.Info("Table created", zap.Int("table_number", number), zap.String("table_id", table.ID))
	return table, nil
}

// GetTable returns a consistent snapshot used by clients to reconcile missed events
func (ts *TableService) GetTable(ctx context.Context, number int) (*TableSnapshot, error) {
	table, orders, err := ts.exec.Snapshot(ctx, number)
	if err != nil {
		return nil, err
	}
	return &TableSnapshot{Table: table, Orders: orders}, nil
}

// ListTables returns every known table ordered by number
func (ts *TableService) ListTables(ctx context.Context) ([]*models.Table, error) {
	tables, err := ts.exec.repo.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Number < tables[j].Number })
	return tables, nil
}

func nonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
