// Package storage persists orders and their audit trail in SQLite.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

// OrderStore persists orders with optimistic concurrency and keeps the
// append-only audit event log. One writer per order is enforced upstream by
// the coordinator's per-order lock; the version column catches anything
// that slips past it.
type OrderStore struct {
	db *sql.DB
}

// NewOrderStore opens (or creates) the SQLite database with WAL mode
// enabled and the schema in place.
func NewOrderStore(dbPath string) (*OrderStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			client_order_id TEXT NOT NULL UNIQUE,
			external_id TEXT,
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_orders_external ON orders(external_id);",
		"CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);",
	} {
		if _, err := db.Exec(idx); err != nil {
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			order_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			ts INTEGER NOT NULL,
			PRIMARY KEY (order_id, seq)
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit_events table: %w", err)
	}

	return &OrderStore{db: db}, nil
}

// Save persists the order. A fresh order (Version 0) is inserted at version
// 1; an existing one is updated only if the stored version still matches,
// otherwise ErrVersionConflict is returned and the order is left untouched.
// On success o.Version carries the new version.
func (s *OrderStore) Save(ctx context.Context, o *domain.Order) error {
	prev := o.Version
	o.Version = prev + 1

	payload, err := json.Marshal(o)
	if err != nil {
		o.Version = prev
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	if prev == 0 {
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO orders (id, client_order_id, external_id, status, version, payload) VALUES (?, ?, ?, ?, ?, ?)",
			o.ID, o.ClientOrderID, o.ExternalID, o.Status, o.Version, payload,
		)
		if err != nil {
			o.Version = prev
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return fmt.Errorf("%w: %s", domain.ErrDuplicateOrder, o.ClientOrderID)
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET external_id = ?, status = ?, version = ?, payload = ? WHERE id = ? AND version = ?",
		o.ExternalID, o.Status, o.Version, payload, o.ID, prev,
	)
	if err != nil {
		o.Version = prev
		return fmt.Errorf("failed to update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		o.Version = prev
		return err
	}
	if n == 0 {
		o.Version = prev
		return fmt.Errorf("%w: order %s at version %d", domain.ErrVersionConflict, o.ID, prev)
	}
	return nil
}

// Get loads an order by its internal id.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	return s.queryOne(ctx, "SELECT payload FROM orders WHERE id = ?", id)
}

// GetByClientOrderID loads an order by the caller-supplied idempotency key.
func (s *OrderStore) GetByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error) {
	return s.queryOne(ctx, "SELECT payload FROM orders WHERE client_order_id = ?", clientOrderID)
}

// GetByExternalID loads an order by the broker-assigned id.
func (s *OrderStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	if externalID == "" {
		return nil, domain.ErrOrderNotFound
	}
	return s.queryOne(ctx, "SELECT payload FROM orders WHERE external_id = ?", externalID)
}

func (s *OrderStore) queryOne(ctx context.Context, query string, arg any) (*domain.Order, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	var o domain.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByStatus returns all orders currently in any of the given statuses.
func (s *OrderStore) ListByStatus(ctx context.Context, statuses ...domain.OrderStatus) ([]*domain.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM orders WHERE status IN ("+placeholders+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		var o domain.Order
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order: %w", err)
		}
		orders = append(orders, &o)
	}
	return orders, rows.Err()
}

// AppendEvent stores one lifecycle event. The (order_id, seq) primary key
// makes replays of the same event harmless.
func (s *OrderStore) AppendEvent(ctx context.Context, ev domain.LifecycleEvent) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO audit_events (order_id, seq, from_status, to_status, reason, ts) VALUES (?, ?, ?, ?, ?, ?)",
		ev.OrderID, ev.Seq, ev.From, ev.To, ev.Reason, ev.TsUnixM,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// LoadEvents returns the full transition history of one order in sequence
// order.
func (s *OrderStore) LoadEvents(ctx context.Context, orderID string) ([]domain.LifecycleEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT order_id, seq, from_status, to_status, reason, ts FROM audit_events WHERE order_id = ? ORDER BY seq ASC",
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.LifecycleEvent
	for rows.Next() {
		var ev domain.LifecycleEvent
		if err := rows.Scan(&ev.OrderID, &ev.Seq, &ev.From, &ev.To, &ev.Reason, &ev.TsUnixM); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database connection.
func (s *OrderStore) Close() error {
	return s.db.Close()
}
