package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

// Order is a checkout attempt. Items and Total are frozen at creation.
type Order struct {
	ID               string
	OwnerID          string
	Items            []Item
	Total            decimal.Decimal
	Currency         string
	ShippingAddress  Address
	PaymentIntentID  string
	PaymentReceiptID string
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Item is a priced snapshot of a cart line.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// Address is where an order ships to.
type Address struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Validate checks that the required address fields are present.
func (a Address) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", a.Name},
		{"street", a.Street},
		{"city", a.City},
		{"postalCode", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Newf(apperr.InvalidInput, "shipping address is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// ListFilter narrows the admin order listing. An empty Status matches all.
type ListFilter struct {
	Status Status
	Page   page.Request
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByPaymentIntent(ctx context.Context, intentID string) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string, req page.Request) ([]Order, int, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	// TransitionStatus moves an order from status from to status to and
	// reports whether it did. A non-empty receiptID is recorded with the
	// change.
	TransitionStatus(ctx context.Context, id string, from, to Status, receiptID string, at time.Time) (bool, error)
	Recent(ctx context.Context, limit int) ([]Order, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	// Revenue sums the totals of orders currently in status.
	Revenue(ctx context.Context, status Status) (decimal.Decimal, error)
}

// Transactor runs fn so that every repository call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
