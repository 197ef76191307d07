package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

var _ order.Repository = (*OrderRepository)(nil)

type OrderRepository struct {
	mu    sync.RWMutex
	items map[string]order.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{items: make(map[string]order.Order)}
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func newestFirst(a, b order.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID, a.ID)
}

// collect returns copies of orders accepted by keep, newest first.
func (r *OrderRepository) collect(keep func(order.Order) bool) []order.Order {
	r.mu.RLock()
	out := make([]order.Order, 0)
	for _, o := range r.items {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(out, newestFirst)
	return out
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[o.ID] = cloneOrder(*o)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.items[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o = cloneOrder(o)
	return &o, nil
}

func (r *OrderRepository) GetByPaymentIntent(_ context.Context, intentID string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, o := range r.items {
		if o.PaymentIntentID == intentID {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (r *OrderRepository) ListByOwner(_ context.Context, ownerID string, req page.Request) ([]order.Order, int, error) {
	all := r.collect(func(o order.Order) bool { return o.OwnerID == ownerID })
	return page.Slice(all, req), len(all), nil
}

func (r *OrderRepository) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	all := r.collect(func(o order.Order) bool { return f.Status == "" || o.Status == f.Status })
	return page.Slice(all, f.Page), len(all), nil
}

func (r *OrderRepository) TransitionStatus(_ context.Context, id string, from, to order.Status, receiptID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.items[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if receiptID != "" {
		o.PaymentReceiptID = receiptID
	}
	o.UpdatedAt = at
	r.items[id] = o
	return true, nil
}

func (r *OrderRepository) Recent(_ context.Context, limit int) ([]order.Order, error) {
	all := r.collect(func(order.Order) bool { return true })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *OrderRepository) CountByStatus(context.Context) (map[order.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[order.Status]int)
	for _, o := range r.items {
		counts[o.Status]++
	}
	return counts, nil
}

func (r *OrderRepository) Revenue(_ context.Context, status order.Status) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	for _, o := range r.items {
		if o.Status == status {
			sum = sum.Add(o.Total)
		}
	}
	return sum, nil
}
