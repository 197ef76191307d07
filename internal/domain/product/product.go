package product

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/page"
	"github.com/xenking/tshirt-store/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = apperr.New(apperr.NotFound, "product not found")

// catalogNamespace scopes ids derived by CatalogID.
var catalogNamespace = uuid.MustParse("5f1d7c2e-8a43-4b6e-9c1a-0d2f3e4b5a69")

// CatalogID derives a stable product id from its name and category, so bulk
// loaders can upsert the same product repeatedly. Case and surrounding
// spaces are ignored.
func CatalogID(name, category string) string {
	key := strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(category))
	return uuid.NewSHA1(catalogNamespace, []byte(key)).String()
}

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	Category    string          `json:"category"`
	Variants    []Variant       `json:"variants"`
	Featured    bool            `json:"featured"`
	Images      []string        `json:"images"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// EffectivePrice is the unit price after the product discount.
func (p *Product) EffectivePrice() decimal.Decimal {
	return pricing.EffectivePrice(p.Price, p.Discount)
}

// Thumbnail is the first image reference, if any.
func (p *Product) Thumbnail() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Variant lists the sizes and colors a product is offered in.
type Variant struct {
	Sizes  []string `json:"sizes"`
	Colors []string `json:"colors"`
}

// Filter narrows a catalog listing.
type Filter struct {
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	// Search is a case-insensitive substring of the product name.
	Search string
	Page   page.Request
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, int, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
