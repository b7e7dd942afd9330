package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"overcooked-staffsync/sync-svc/internal/domain"

	"github.com/lib/pq"
)

const requestColumns = `id, location_id, table_id, table_number, type, status, priority, message,
	created_at, acknowledged_at, acknowledged_by, completed_at, completed_by`

const orderColumns = `id, order_number, location_id, table_id, table_number, status, items,
	subtotal, tax, total, created_at, updated_at, notes, customer_name`

type PostgresBackend struct {
	DB *sql.DB
}

func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{DB: db}
}

// Snapshot reads the live requests and orders of a location, plus finished
// ones newer than historySince, inside one read-only transaction.
func (b *PostgresBackend) Snapshot(ctx context.Context, locationID string, historySince time.Time) (domain.Snapshot, error) {
	tx, err := b.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()

	snap := domain.Snapshot{LocationID: locationID}
	if snap.Requests, err = listRequests(ctx, tx, locationID, historySince); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Orders, err = listOrders(ctx, tx, locationID, historySince); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, tx.Commit()
}

func listRequests(ctx context.Context, tx *sql.Tx, locationID string, since time.Time) ([]domain.ServiceRequest, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM service_requests
		WHERE location_id = $1
		  AND (status IN ('pending', 'acknowledged', 'in_progress')
		       OR (status = 'completed' AND completed_at >= $2))
		ORDER BY created_at
	`, locationID, since)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func listOrders(ctx context.Context, tx *sql.Tx, locationID string, since time.Time) ([]domain.Order, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE location_id = $1
		  AND (status NOT IN ('served', 'cancelled') OR updated_at >= $2)
		ORDER BY created_at
	`, locationID, since)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) GetRequest(ctx context.Context, id string) (domain.ServiceRequest, error) {
	req, err := scanRequest(b.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ServiceRequest{}, domain.ErrNotFound
	}
	return req, err
}

func (b *PostgresBackend) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(b.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, err
}

// UpdateRequestStatus applies c in a single conditional UPDATE. When the
// precondition does not hold it returns the stored row with applied=false so
// the caller can tell a lost race from a repeat of its own action.
func (b *PostgresBackend) UpdateRequestStatus(ctx context.Context, c domain.RequestStatusChange) (domain.ServiceRequest, bool, error) {
	query, args, err := requestUpdate(c)
	if err != nil {
		return domain.ServiceRequest{}, false, err
	}
	req, err := scanRequest(b.DB.QueryRowContext(ctx, query, args...))
	if err == nil {
		return req, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.ServiceRequest{}, false, fmt.Errorf("update request %s: %w", c.RequestID, err)
	}
	current, err := b.GetRequest(ctx, c.RequestID)
	if err != nil {
		return domain.ServiceRequest{}, false, err
	}
	return current, false, nil
}

func requestUpdate(c domain.RequestStatusChange) (string, []any, error) {
	from := make([]string, len(c.From))
	for i, s := range c.From {
		from[i] = string(s)
	}
	returning := ` RETURNING ` + requestColumns

	switch c.To {
	case domain.StatusAcknowledged:
		return `UPDATE service_requests
			SET status = $2, acknowledged_by = $3, acknowledged_at = NOW()
			WHERE id = $1 AND status = ANY($4) AND acknowledged_by IS NULL` + returning,
			[]any{c.RequestID, string(c.To), c.ActorID, pq.Array(from)}, nil
	case domain.StatusInProgress:
		return `UPDATE service_requests
			SET status = $2
			WHERE id = $1 AND status = ANY($3) AND acknowledged_by IS NOT NULL` + returning,
			[]any{c.RequestID, string(c.To), pq.Array(from)}, nil
	case domain.StatusCompleted:
		return `UPDATE service_requests
			SET status = $2, completed_by = $3, completed_at = NOW()
			WHERE id = $1 AND status = ANY($4) AND acknowledged_by IS NOT NULL` + returning,
			[]any{c.RequestID, string(c.To), c.ActorID, pq.Array(from)}, nil
	case domain.StatusClosed:
		return `UPDATE service_requests
			SET status = $2
			WHERE id = $1 AND status = ANY($3)` + returning,
			[]any{c.RequestID, string(c.To), pq.Array(from)}, nil
	}
	return "", nil, fmt.Errorf("%w: cannot move a request to %q", domain.ErrUnknownStatus, c.To)
}

// UpdateOrderStatus writes the new status when the stored updated_at still
// equals the caller's copy.
func (b *PostgresBackend) UpdateOrderStatus(ctx context.Context, c domain.OrderStatusChange) (domain.Order, bool, error) {
	var expected any
	if c.ExpectedUpdatedAt != nil {
		expected = *c.ExpectedUpdatedAt
	}
	o, err := scanOrder(b.DB.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, updated_by = $3, updated_at = NOW()
		WHERE id = $1 AND ($4::timestamptz IS NULL OR updated_at = $4)
		RETURNING `+orderColumns,
		c.OrderID, string(c.To), c.ActorID, expected))
	if err == nil {
		return o, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, false, fmt.Errorf("update order %s: %w", c.OrderID, err)
	}
	current, err := b.GetOrder(ctx, c.OrderID)
	if err != nil {
		return domain.Order{}, false, err
	}
	return current, false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (domain.ServiceRequest, error) {
	var (
		req                    domain.ServiceRequest
		message, ackBy, doneBy sql.NullString
		ackAt, doneAt          sql.NullTime
	)
	err := s.Scan(&req.ID, &req.LocationID, &req.TableID, &req.TableNumber, &req.Type, &req.Status,
		&req.Priority, &message, &req.CreatedAt, &ackAt, &ackBy, &doneAt, &doneBy)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	req.Message = message.String
	req.AcknowledgedBy = ackBy.String
	req.CompletedBy = doneBy.String
	if ackAt.Valid {
		req.AcknowledgedAt = &ackAt.Time
	}
	if doneAt.Valid {
		req.CompletedAt = &doneAt.Time
	}
	return req, nil
}

func scanOrder(s scanner) (domain.Order, error) {
	var (
		o                    domain.Order
		items                []byte
		notes, customer, tbl sql.NullString
		tableNumber          sql.NullInt64
	)
	err := s.Scan(&o.ID, &o.OrderNumber, &o.LocationID, &tbl, &tableNumber, &o.Status, &items,
		&o.Subtotal, &o.Tax, &o.Total, &o.CreatedAt, &o.UpdatedAt, &notes, &customer)
	if err != nil {
		return domain.Order{}, err
	}
	o.TableID = tbl.String
	o.TableNumber = int(tableNumber.Int64)
	if len(items) > 0 {
		o.Items = append([]byte(nil), items...)
	}
	o.Notes = notes.String
	o.CustomerName = customer.String
	return o, nil
}
