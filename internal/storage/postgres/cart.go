package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tshirt-store/internal/domain/cart"
)

const (
	getCartSQL = `SELECT id, owner_id, created_at, updated_at FROM carts WHERE owner_id = $1`

	listCartItemsSQL = `SELECT product_id, quantity, size, color FROM cart_items
		WHERE cart_id = $1 ORDER BY position`

	// ensureCartCTE creates the owner's cart on first write and bumps
	// updated_at otherwise. Parameters: $1 new cart id, $2 owner, $3 time.
	ensureCartCTE = `WITH c AS (
		INSERT INTO carts (id, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (owner_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id
	)`

	addCartItemSQL = ensureCartCTE + `
		INSERT INTO cart_items (cart_id, product_id, size, color, quantity)
		SELECT c.id, $4::text, $5::text, $6::text, $7::int FROM c
		ON CONFLICT (cart_id, product_id, size, color)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`

	clearCartSQL = ensureCartCTE + `
		DELETE FROM cart_items USING c WHERE cart_items.cart_id = c.id`

	// touchCartCTE bumps an existing cart; no row means no cart.
	// Parameters: $1 owner, $2 time.
	touchCartCTE = `WITH c AS (
		UPDATE carts SET updated_at = $2 WHERE owner_id = $1 RETURNING id
	)`

	setCartItemQuantitySQL = touchCartCTE + `, u AS (
		UPDATE cart_items SET quantity = $6 FROM c
		WHERE cart_items.cart_id = c.id AND product_id = $3 AND size = $4 AND color = $5
	)
	SELECT id FROM c`

	removeCartItemSQL = touchCartCTE + `, d AS (
		DELETE FROM cart_items USING c
		WHERE cart_items.cart_id = c.id AND product_id = $3 AND size = $4 AND color = $5
	)
	SELECT id FROM c`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Each
// mutation is one statement, so concurrent writers to the same cart merge
// instead of overwriting each other.
type CartRepository struct {
	pool *pgxpool.Pool
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

func (r *CartRepository) Get(ctx context.Context, ownerID string) (*cart.Cart, error) {
	q := conn(ctx, r.pool)

	var c cart.Cart
	err := q.QueryRow(ctx, getCartSQL, ownerID).Scan(&c.ID, &c.OwnerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart of %q: %w", ownerID, err)
	}

	rows, err := q.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Quantity, &it.Size, &it.Color)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return &c, nil
}

func (r *CartRepository) AddItem(ctx context.Context, ownerID string, item cart.Item, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx, addCartItemSQL,
		uuid.NewString(), ownerID, at,
		item.ProductID, item.Size, item.Color, item.Quantity,
	)
	if err != nil {
		if isQuantityViolation(err) {
			return cart.ErrQuantityTooLarge
		}
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

func (r *CartRepository) SetQuantity(ctx context.Context, ownerID string, key cart.Key, qty int, at time.Time) error {
	return r.touch(ctx, setCartItemQuantitySQL, ownerID, at, key.ProductID, key.Size, key.Color, qty)
}

func (r *CartRepository) RemoveItem(ctx context.Context, ownerID string, key cart.Key, at time.Time) error {
	return r.touch(ctx, removeCartItemSQL, ownerID, at, key.ProductID, key.Size, key.Color)
}

func (r *CartRepository) touch(ctx context.Context, sql string, args ...any) error {
	var id string
	if err := conn(ctx, r.pool).QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.ErrNotFound
		}
		if isQuantityViolation(err) {
			return cart.ErrQuantityTooLarge
		}
		return fmt.Errorf("updating cart: %w", err)
	}
	return nil
}

func (r *CartRepository) Clear(ctx context.Context, ownerID string, at time.Time) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, clearCartSQL, uuid.NewString(), ownerID, at); err != nil {
		return fmt.Errorf("clearing cart of %q: %w", ownerID, err)
	}
	return nil
}

// isQuantityViolation reports a breach of cart_items_quantity_check or an
// int4 overflow while merging quantities.
func isQuantityViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "23514":
		return pgErr.ConstraintName == "cart_items_quantity_check"
	case "22003":
		return true
	}
	return false
}
