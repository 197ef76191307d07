package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/tshirt-store/internal/domain/page"
)

// --- Mock implementations ---

type mockUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*Principal
	getErr error
}

func newMockUserRepo(users ...*Principal) *mockUserRepo {
	m := &mockUserRepo{byID: make(map[string]*Principal)}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Create(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == p.Email {
			return ErrEmailTaken
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrPrincipalNotFound
}

func (m *mockUserRepo) List(_ context.Context, req page.Request) ([]Principal, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]Principal, 0, len(m.byID))
	for _, u := range m.byID {
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return page.Slice(all, req), len(all), nil
}

func (m *mockUserRepo) SetRole(_ context.Context, id string, role Role, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrPrincipalNotFound
	}
	p.Role = role
	p.UpdatedAt = at
	return nil
}

func (m *mockUserRepo) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

// plainHasher avoids bcrypt cost in tests that do not exercise hashing.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }
func (plainHasher) Verify(password, digest string) bool  { return digest == "plain:"+password }
