package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xenking/tshirt-store/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

type CartRepository struct {
	mu    sync.RWMutex
	items map[string]*cart.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{items: make(map[string]*cart.Cart)}
}

func (r *CartRepository) Get(_ context.Context, ownerID string) (*cart.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[ownerID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	out := *c
	out.Items = slices.Clone(c.Items)
	return &out, nil
}

// ensure returns the owner's cart, creating it. Callers hold mu.
func (r *CartRepository) ensure(ownerID string, at time.Time) *cart.Cart {
	c, ok := r.items[ownerID]
	if !ok {
		c = &cart.Cart{
			ID:        uuid.NewString(),
			OwnerID:   ownerID,
			Items:     []cart.Item{},
			CreatedAt: at,
			UpdatedAt: at,
		}
		r.items[ownerID] = c
	}
	return c
}

func (r *CartRepository) AddItem(_ context.Context, ownerID string, item cart.Item, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.Quantity > cart.MaxQuantity {
		return cart.ErrQuantityTooLarge
	}
	c := r.ensure(ownerID, at)
	c.UpdatedAt = at
	key := item.Key()
	for i := range c.Items {
		if c.Items[i].Key() == key {
			if item.Quantity > cart.MaxQuantity-c.Items[i].Quantity {
				return cart.ErrQuantityTooLarge
			}
			c.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

func (r *CartRepository) SetQuantity(_ context.Context, ownerID string, key cart.Key, qty int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if qty > cart.MaxQuantity {
		return cart.ErrQuantityTooLarge
	}
	c, ok := r.items[ownerID]
	if !ok {
		return cart.ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].Key() == key {
			c.Items[i].Quantity = qty
			c.UpdatedAt = at
			break
		}
	}
	return nil
}

func (r *CartRepository) RemoveItem(_ context.Context, ownerID string, key cart.Key, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[ownerID]
	if !ok {
		return cart.ErrNotFound
	}
	c.Items = slices.DeleteFunc(c.Items, func(it cart.Item) bool { return it.Key() == key })
	c.UpdatedAt = at
	return nil
}

func (r *CartRepository) Clear(_ context.Context, ownerID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.ensure(ownerID, at)
	c.Items = []cart.Item{}
	c.UpdatedAt = at
	return nil
}
