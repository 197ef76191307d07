package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

const (
	orderColumns = `id, owner_id, items, total, currency, shipping_address,
		payment_intent_id, payment_receipt_id, status, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderByIDSQL     = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByIntentSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_intent_id = $1`

	listOwnerOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	countOwnerOrdersSQL = `SELECT count(*) FROM orders WHERE owner_id = $1`

	// An empty $1 matches every status.
	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	countOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`

	recentOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		ORDER BY created_at DESC, id DESC LIMIT $1`

	transitionOrderSQL = `UPDATE orders SET
		status = $3,
		payment_receipt_id = COALESCE(NULLIF($4, ''), payment_receipt_id),
		updated_at = $5
		WHERE id = $1 AND status = $2`

	countOrdersByStatusSQL = `SELECT status, count(*) FROM orders GROUP BY status`
	orderRevenueSQL        = `SELECT COALESCE(sum(total), 0) FROM orders WHERE status = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and the shipping address are
// serialized to JSON for the JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addrJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = conn(ctx, r.pool).Exec(ctx, createOrderSQL,
		o.ID, o.OwnerID, itemsJSON, o.Total, o.Currency, addrJSON,
		o.PaymentIntentID, o.PaymentReceiptID, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

func (r *OrderRepository) GetByPaymentIntent(ctx context.Context, intentID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIntentSQL, intentID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string, req page.Request) ([]order.Order, int, error) {
	return r.list(ctx, countOwnerOrdersSQL, listOwnerOrdersSQL, ownerID, req)
}

func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	return r.list(ctx, countOrdersSQL, listOrdersSQL, string(f.Status), f.Page)
}

func (r *OrderRepository) list(ctx context.Context, countSQL, listSQL, arg string, req page.Request) ([]order.Order, int, error) {
	q := conn(ctx, r.pool)
	total, err := count(ctx, q, countSQL, arg)
	if err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}
	rows, err := q.Query(ctx, listSQL, arg, req.Limit(), req.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// TransitionStatus is a compare-and-set on the current status.
func (r *OrderRepository) TransitionStatus(ctx context.Context, id string, from, to order.Status, receiptID string, at time.Time) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, transitionOrderSQL, id, string(from), string(to), receiptID, at)
	if err != nil {
		return false, fmt.Errorf("transitioning order %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *OrderRepository) Recent(ctx context.Context, limit int) ([]order.Order, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, recentOrdersSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func (r *OrderRepository) CountByStatus(ctx context.Context) (map[order.Status]int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, countOrdersByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("counting orders by status: %w", err)
	}
	counts := make(map[order.Status]int)
	var (
		status string
		n      int
	)
	_, err = pgx.ForEachRow(rows, []any{&status, &n}, func() error {
		counts[order.Status(status)] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("counting orders by status: %w", err)
	}
	return counts, nil
}

func (r *OrderRepository) Revenue(ctx context.Context, status order.Status) (decimal.Decimal, error) {
	var sum decimal.Decimal
	if err := conn(ctx, r.pool).QueryRow(ctx, orderRevenueSQL, string(status)).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("summing revenue: %w", err)
	}
	return sum, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		items, addr []byte
		status      string
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &items, &o.Total, &o.Currency, &addr,
		&o.PaymentIntentID, &o.PaymentReceiptID, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decoding items of order %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("decoding address of order %q: %w", o.ID, err)
	}
	return o, nil
}
