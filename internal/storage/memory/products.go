package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/xenking/tshirt-store/internal/domain/page"
	"github.com/xenking/tshirt-store/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

type ProductRepository struct {
	mu    sync.RWMutex
	items map[string]product.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{items: make(map[string]product.Product)}
}

func cloneProduct(p product.Product) product.Product {
	p.Images = cloneStrings(p.Images)
	if p.Variants != nil {
		vs := make([]product.Variant, len(p.Variants))
		for i, v := range p.Variants {
			vs[i] = product.Variant{Sizes: cloneStrings(v.Sizes), Colors: cloneStrings(v.Colors)}
		}
		p.Variants = vs
	}
	return p
}

func matches(p product.Product, f product.Filter) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// List returns matching products newest first.
func (r *ProductRepository) List(_ context.Context, f product.Filter) ([]product.Product, int, error) {
	r.mu.RLock()
	var found []product.Product
	for _, p := range r.items {
		if matches(p, f) {
			found = append(found, cloneProduct(p))
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(found, func(a, b product.Product) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page.Slice(found, f.Page), len(found), nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p = cloneProduct(p)
	return &p, nil
}

// GetByIDs skips ids that do not exist.
func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.items[id]; ok {
			out = append(out, cloneProduct(p))
		}
	}
	return out, nil
}

func (r *ProductRepository) Create(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = cloneProduct(*p)
	return nil
}

func (r *ProductRepository) Update(_ context.Context, p *product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[p.ID]; !ok {
		return product.ErrNotFound
	}
	r.items[p.ID] = cloneProduct(*p)
	return nil
}

func (r *ProductRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return product.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *ProductRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}
