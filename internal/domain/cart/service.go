package cart

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/pricing"
	"github.com/xenking/tshirt-store/internal/domain/product"
)

// Line is a cart item joined with the current product data. Product is nil
// when the product no longer exists; such lines carry zero prices and are
// left out of the cart total.
type Line struct {
	Item
	Product   *product.Product
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// View is a priced cart.
type View struct {
	ID        string
	Lines     []Line
	Total     decimal.Decimal
	ItemCount int
}

// Service implements the cart operations of a single principal.
type Service struct {
	carts    Repository
	products product.Repository
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{
		carts:    carts,
		products: products,
		now:      time.Now,
	}
}

// GetCart returns the owner's cart priced against live product data. An
// absent cart is an empty view.
func (s *Service) GetCart(ctx context.Context, ownerID string) (*View, error) {
	c, err := s.carts.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &View{Lines: []Line{}, Total: decimal.Zero}, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}

	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	var found []product.Product
	if len(ids) > 0 {
		found, err = s.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, errors.Wrap(err, "get cart products")
		}
	}
	byID := make(map[string]*product.Product, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	v := &View{ID: c.ID, Lines: make([]Line, 0, len(c.Items))}
	priced := make([]pricing.Line, 0, len(c.Items))
	for _, it := range c.Items {
		l := Line{Item: it, UnitPrice: decimal.Zero, LineTotal: decimal.Zero}
		v.ItemCount += it.Quantity
		if p, ok := byID[it.ProductID]; ok {
			l.Product = p
			l.UnitPrice = p.EffectivePrice()
			l.LineTotal = pricing.LineTotal(l.UnitPrice, it.Quantity)
			priced = append(priced, pricing.Line{UnitPrice: l.UnitPrice, Quantity: it.Quantity})
		}
		v.Lines = append(v.Lines, l)
	}
	v.Total = pricing.Total(priced)
	return v, nil
}

// AddItem adds quantity units of a product. A zero quantity means one unit.
func (s *Service) AddItem(ctx context.Context, ownerID string, item Item) error {
	item = normalize(item)
	if item.ProductID == "" {
		return ErrProductRequired
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if err := checkQuantity(item.Quantity); err != nil {
		return err
	}
	if _, err := s.products.GetByID(ctx, item.ProductID); err != nil {
		return err
	}
	if err := s.carts.AddItem(ctx, ownerID, item, s.now().UTC()); err != nil {
		return errors.Wrap(err, "add cart item")
	}
	return nil
}

// UpdateItem sets the quantity of an entry, removing it when the quantity
// is not positive.
func (s *Service) UpdateItem(ctx context.Context, ownerID string, item Item) error {
	item = normalize(item)
	if item.ProductID == "" {
		return ErrProductRequired
	}
	if item.Quantity <= 0 {
		return s.RemoveItem(ctx, ownerID, item.Key())
	}
	if err := checkQuantity(item.Quantity); err != nil {
		return err
	}
	if err := s.carts.SetQuantity(ctx, ownerID, item.Key(), item.Quantity, s.now().UTC()); err != nil {
		return errors.Wrap(err, "update cart item")
	}
	return nil
}

// RemoveItem deletes an entry if present.
func (s *Service) RemoveItem(ctx context.Context, ownerID string, key Key) error {
	key = normalize(Item{ProductID: key.ProductID, Size: key.Size, Color: key.Color}).Key()
	if key.ProductID == "" {
		return ErrProductRequired
	}
	if err := s.carts.RemoveItem(ctx, ownerID, key, s.now().UTC()); err != nil {
		return errors.Wrap(err, "remove cart item")
	}
	return nil
}

// ClearCart empties the owner's cart.
func (s *Service) ClearCart(ctx context.Context, ownerID string) error {
	if err := s.carts.Clear(ctx, ownerID, s.now().UTC()); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func normalize(it Item) Item {
	it.ProductID = strings.TrimSpace(it.ProductID)
	it.Size = strings.TrimSpace(it.Size)
	it.Color = strings.TrimSpace(it.Color)
	return it
}

func checkQuantity(qty int) error {
	switch {
	case qty < 1:
		return ErrInvalidQuantity
	case qty > MaxQuantity:
		return ErrQuantityTooLarge
	}
	return nil
}
