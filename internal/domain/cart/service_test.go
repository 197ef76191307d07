package cart

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/product"
)

// --- Mock implementations ---

type mockCartRepo struct {
	mu     sync.Mutex
	carts  map[string]*Cart
	addErr error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*Cart)}
}

func (m *mockCartRepo) Get(_ context.Context, ownerID string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	return &cp, nil
}

func (m *mockCartRepo) ensure(ownerID string, at time.Time) *Cart {
	c, ok := m.carts[ownerID]
	if !ok {
		c = &Cart{ID: "cart-" + ownerID, OwnerID: ownerID, CreatedAt: at}
		m.carts[ownerID] = c
	}
	c.UpdatedAt = at
	return c
}

func (m *mockCartRepo) AddItem(_ context.Context, ownerID string, item Item, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	c := m.ensure(ownerID, at)
	for i := range c.Items {
		if c.Items[i].Key() == item.Key() {
			c.Items[i].Quantity += item.Quantity
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

func (m *mockCartRepo) SetQuantity(_ context.Context, ownerID string, key Key, qty int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = at
	for i := range c.Items {
		if c.Items[i].Key() == key {
			c.Items[i].Quantity = qty
		}
	}
	return nil
}

func (m *mockCartRepo) RemoveItem(_ context.Context, ownerID string, key Key, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[ownerID]
	if !ok {
		return ErrNotFound
	}
	c.UpdatedAt = at
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.Key() != key {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return nil
}

func (m *mockCartRepo) Clear(_ context.Context, ownerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(ownerID, at).Items = nil
	return nil
}

type mockProductRepo struct {
	product.Repository
	byID map[string]product.Product
}

func newMockProductRepo(products ...product.Product) *mockProductRepo {
	m := &mockProductRepo{byID: make(map[string]product.Product)}
	for _, p := range products {
		m.byID[p.ID] = p
	}
	return m
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func scenarioProducts() *mockProductRepo {
	return newMockProductRepo(
		product.Product{ID: "P", Name: "Graphic Tee", Price: dec("100"), Discount: dec("10")},
		product.Product{ID: "Q", Name: "Plain Tee", Price: dec("50")},
	)
}

// --- Tests ---

func TestGetCart_Absent(t *testing.T) {
	svc := NewService(newMockCartRepo(), scenarioProducts())

	v, err := svc.GetCart(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)
	assert.True(t, decimal.Zero.Equal(v.Total))
	assert.Zero(t, v.ItemCount)
}

func TestGetCart_Total(t *testing.T) {
	svc := NewService(newMockCartRepo(), scenarioProducts())
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: 2, Size: "M"}))
	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "Q", Quantity: 1}))

	v, err := svc.GetCart(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, v.Lines, 2)
	assert.True(t, dec("230").Equal(v.Total), "total %s", v.Total)
	assert.Equal(t, 3, v.ItemCount)
	assert.True(t, dec("90").Equal(v.Lines[0].UnitPrice))
	assert.True(t, dec("180").Equal(v.Lines[0].LineTotal))
}

func TestGetCart_SkipsDeletedProducts(t *testing.T) {
	carts := newMockCartRepo()
	products := scenarioProducts()
	svc := NewService(carts, products)
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: 1}))
	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "Q", Quantity: 2}))
	delete(products.byID, "P")

	v, err := svc.GetCart(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, v.Lines, 2, "stored items are kept")
	assert.Nil(t, v.Lines[0].Product)
	assert.True(t, dec("100").Equal(v.Total))
}

func TestAddItem_Merges(t *testing.T) {
	carts := newMockCartRepo()
	svc := NewService(carts, scenarioProducts())
	ctx := context.Background()

	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "Q", Quantity: 2, Size: "L", Color: "red"}))
	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "Q", Quantity: 3, Size: "L", Color: "red"}))
	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "Q", Quantity: 1, Size: "S", Color: "red"}))

	c, err := carts.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assert.Equal(t, "S", c.Items[1].Size)
}

func TestAddItem_Validation(t *testing.T) {
	svc := NewService(newMockCartRepo(), scenarioProducts())
	ctx := context.Background()

	require.ErrorIs(t, svc.AddItem(ctx, "alice", Item{ProductID: "nope", Quantity: 1}), product.ErrNotFound)
	require.ErrorIs(t, svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: -2}), ErrInvalidQuantity)
	require.ErrorIs(t, svc.AddItem(ctx, "alice", Item{Quantity: 1}), ErrProductRequired)
}

func TestAddItem_QuantityUpperBound(t *testing.T) {
	carts := newMockCartRepo()
	svc := NewService(carts, scenarioProducts())
	ctx := context.Background()

	for _, qty := range []int{MaxQuantity + 1, math.MaxInt} {
		err := svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: qty})
		require.ErrorIs(t, err, ErrQuantityTooLarge)
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	}
	_, err := carts.Get(ctx, "alice")
	require.ErrorIs(t, err, ErrNotFound, "rejected adds must not create the cart")

	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: MaxQuantity}))
	require.ErrorIs(t, svc.UpdateItem(ctx, "alice", Item{ProductID: "P", Quantity: MaxQuantity + 1}), ErrQuantityTooLarge)

	c, err := carts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, c.Items[0].Quantity)
}

func TestAddItem_DefaultQuantity(t *testing.T) {
	carts := newMockCartRepo()
	svc := NewService(carts, scenarioProducts())

	require.NoError(t, svc.AddItem(context.Background(), "alice", Item{ProductID: "P"}))

	c, err := carts.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Items[0].Quantity)
}

func TestAddItem_RepositoryError(t *testing.T) {
	carts := newMockCartRepo()
	carts.addErr = errors.New("deadlock detected")
	svc := NewService(carts, scenarioProducts())

	err := svc.AddItem(context.Background(), "alice", Item{ProductID: "P", Quantity: 1})
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestUpdateItem(t *testing.T) {
	carts := newMockCartRepo()
	svc := NewService(carts, scenarioProducts())
	ctx := context.Background()

	require.ErrorIs(t, svc.UpdateItem(ctx, "alice", Item{ProductID: "P", Quantity: 1}), ErrNotFound)

	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: 1}))
	require.NoError(t, svc.UpdateItem(ctx, "alice", Item{ProductID: "P", Quantity: 4}))
	require.NoError(t, svc.UpdateItem(ctx, "alice", Item{ProductID: "Q", Quantity: 4}), "missing item is a no-op")

	c, err := carts.Get(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 4, c.Items[0].Quantity)

	require.NoError(t, svc.UpdateItem(ctx, "alice", Item{ProductID: "P", Quantity: 0}))
	c, err = carts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestRemoveItem(t *testing.T) {
	carts := newMockCartRepo()
	svc := NewService(carts, scenarioProducts())
	ctx := context.Background()

	require.ErrorIs(t, svc.RemoveItem(ctx, "alice", Key{ProductID: "P"}), ErrNotFound)

	require.NoError(t, svc.AddItem(ctx, "alice", Item{ProductID: "P", Quantity: 1, Size: "M"}))
	require.NoError(t, svc.RemoveItem(ctx, "alice", Key{ProductID: "P"}), "different key is a no-op")
	require.NoError(t, svc.RemoveItem(ctx, "alice", Key{ProductID: "P", Size: "M"}))

	c, err := carts.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestClearCart_CreatesWhenAbsent(t *testing.T) {
	carts := newMockCartRepo()
	svc := NewService(carts, scenarioProducts())

	require.NoError(t, svc.ClearCart(context.Background(), "bob"))

	c, err := carts.Get(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}
