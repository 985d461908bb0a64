package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"table-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const tableColumns = "id, number, state, devices, order_ids, total, occupied_at, closed_at, updated_at, version"

const orderColumns = `id, table_id, table_number, device_id, customer_id, display_name, items, total, state,
	payment_method, tip, paid, payment_state, payment_proof, payment_ref, rejection_reason, notes,
	created_at, updated_at`

// GetTable retrieves a table by ID
func (s *Store) GetTable(ctx context.Context, id string) (*models.Table, error) {
	return s.getTable(ctx, "SELECT "+tableColumns+" FROM dining_tables WHERE id = $1", id)
}

// GetTableByNumber retrieves a table by its number
func (s *Store) GetTableByNumber(ctx context.Context, number int) (*models.Table, error) {
	return s.getTable(ctx, "SELECT "+tableColumns+" FROM dining_tables WHERE number = $1", number)
}

func (s *Store) getTable(ctx context.Context, query string, arg interface{}) (*models.Table, error) {
	var table models.Table
	err := s.db.GetContext(ctx, &table, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &table, nil
}

// ListTables retrieves all tables
func (s *Store) ListTables(ctx context.Context) ([]*models.Table, error) {
	var tables []*models.Table
	err := s.db.SelectContext(ctx, &tables, "SELECT "+tableColumns+" FROM dining_tables ORDER BY number")
	return tables, err
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByIDs retrieves orders preserving the order of ids
func (s *Store) GetOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error) {
	if len(ids) == 0 {
		return []*models.Order{}, nil
	}

	query, args, err := sqlx.In("SELECT "+orderColumns+" FROM orders WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var orders []*models.Order
	if err := s.db.SelectContext(ctx, &orders, query, args...); err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	out := make([]*models.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// SaveTable writes a table and the given orders in one transaction. A new
// table (version 0) is inserted; an existing one is only updated while its
// stored version still equals table.Version. Losing either race returns
// models.ErrVersionConflict and nothing is written.
func (s *Store) SaveTable(ctx context.Context, table *models.Table, orders []*models.Order) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var res sql.Result
	if table.Version == 0 {
		res, err = tx.NamedExecContext(ctx, `
			INSERT INTO dining_tables (`+tableColumns+`)
			VALUES (:id, :number, :state, :devices, :order_ids, :total, :occupied_at, :closed_at, :updated_at, 1)
			ON CONFLICT DO NOTHING`, table)
	} else {
		res, err = tx.NamedExecContext(ctx, `
			UPDATE dining_tables SET
				state = :state,
				devices = :devices,
				order_ids = :order_ids,
				total = :total,
				occupied_at = :occupied_at,
				closed_at = :closed_at,
				updated_at = :updated_at,
				version = version + 1
			WHERE id = :id AND version = :version`, table)
	}
	if err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrVersionConflict
	}

	for _, o := range orders {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (:id, :table_id, :table_number, :device_id, :customer_id, :display_name, :items, :total, :state,
				:payment_method, :tip, :paid, :payment_state, :payment_proof, :payment_ref, :rejection_reason, :notes,
				:created_at, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				items = EXCLUDED.items,
				total = EXCLUDED.total,
				state = EXCLUDED.state,
				payment_method = EXCLUDED.payment_method,
				tip = EXCLUDED.tip,
				paid = EXCLUDED.paid,
				payment_state = EXCLUDED.payment_state,
				payment_proof = EXCLUDED.payment_proof,
				payment_ref = EXCLUDED.payment_ref,
				rejection_reason = EXCLUDED.rejection_reason,
				updated_at = EXCLUDED.updated_at`, o)
		if err != nil {
			return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	table.Version++
	return nil
}
