// Package cart keeps each principal's pre-checkout selection of products.
package cart

import (
	"context"
	"time"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
)

// MaxQuantity bounds the quantity of a single cart entry, including the
// sum produced by merging repeated adds.
const MaxQuantity = 1000

var (
	ErrNotFound         = apperr.New(apperr.NotFound, "cart not found")
	ErrInvalidQuantity  = apperr.New(apperr.InvalidInput, "quantity must be at least 1")
	ErrQuantityTooLarge = apperr.Newf(apperr.InvalidInput, "quantity must be at most %d", MaxQuantity)
	ErrProductRequired  = apperr.New(apperr.InvalidInput, "product id is required")
)

// Key identifies a line item. Absent size or color is the empty string.
type Key struct {
	ProductID string
	Size      string
	Color     string
}

// Item is one line of a cart.
type Item struct {
	ProductID string
	Quantity  int
	Size      string
	Color     string
}

// Key returns the identity of the item within its cart.
func (i Item) Key() Key {
	return Key{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// Cart is a principal's stored selection. Items keep insertion order.
type Cart struct {
	ID        string
	OwnerID   string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository persists carts. Every mutation is a single atomic operation on
// the store; none of them reads the item list back first.
type Repository interface {
	// Get returns ErrNotFound when the owner has never written to a cart.
	Get(ctx context.Context, ownerID string) (*Cart, error)
	// AddItem creates the cart when needed and merges item into the entry
	// with the same key by adding quantities. A merge past MaxQuantity
	// fails with ErrQuantityTooLarge and leaves the entry unchanged.
	AddItem(ctx context.Context, ownerID string, item Item, at time.Time) error
	// SetQuantity sets the quantity of the entry with key; a missing entry
	// is left alone. ErrNotFound when the cart does not exist.
	SetQuantity(ctx context.Context, ownerID string, key Key, qty int, at time.Time) error
	// RemoveItem deletes the entry with key if present. ErrNotFound when the
	// cart does not exist.
	RemoveItem(ctx context.Context, ownerID string, key Key, at time.Time) error
	// Clear empties the cart, creating it when absent.
	Clear(ctx context.Context, ownerID string, at time.Time) error
}
