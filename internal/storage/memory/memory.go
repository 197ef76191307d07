// Package memory holds map-backed repositories used for development runs
// and handler tests. Every read returns copies so callers cannot mutate
// stored state.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/tshirt-store/internal/domain/order"
)

// Store bundles all in-memory repositories behind one transactor.
type Store struct {
	Users    *UserRepository
	Products *ProductRepository
	Carts    *CartRepository
	Orders   *OrderRepository
	Tx       *Transactor
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		Users:    NewUserRepository(),
		Products: NewProductRepository(),
		Carts:    NewCartRepository(),
		Orders:   NewOrderRepository(),
		Tx:       &Transactor{},
	}
}

var _ order.Transactor = (*Transactor)(nil)

// Transactor serializes transactional blocks. The repositories are not
// rolled back on error, so fn must perform its checks before writing.
type Transactor struct {
	mu sync.Mutex
}

func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(ctx)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}
