package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

var _ auth.Repository = (*UserRepository)(nil)

type UserRepository struct {
	mu      sync.RWMutex
	items   map[string]auth.Principal
	byEmail map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		items:   make(map[string]auth.Principal),
		byEmail: make(map[string]string),
	}
}

func (r *UserRepository) Create(_ context.Context, p *auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(p.Email)
	if _, ok := r.byEmail[email]; ok {
		return auth.ErrEmailTaken
	}
	r.items[p.ID] = *p
	r.byEmail[email] = p.ID
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	return &p, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*auth.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrPrincipalNotFound
	}
	p := r.items[id]
	return &p, nil
}

// List returns principals newest first.
func (r *UserRepository) List(_ context.Context, req page.Request) ([]auth.Principal, int, error) {
	r.mu.RLock()
	all := make([]auth.Principal, 0, len(r.items))
	for _, p := range r.items {
		all = append(all, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b auth.Principal) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return page.Slice(all, req), len(all), nil
}

func (r *UserRepository) SetRole(_ context.Context, id string, role auth.Role, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return auth.ErrPrincipalNotFound
	}
	p.Role = role
	p.UpdatedAt = at
	r.items[id] = p
	return nil
}

func (r *UserRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}
