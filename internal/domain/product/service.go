package product

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

var hundred = decimal.NewFromInt(100)

// allowedImageExt lists the accepted upload extensions.
var allowedImageExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// ErrImageType is returned for uploads with an unsupported extension.
var ErrImageType = apperr.New(apperr.InvalidInput, "image must be png, jpg, jpeg or gif")

// ImageStore persists uploaded images and returns the reference clients use
// to fetch them.
type ImageStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
}

// Upload is an image file received from a client.
type Upload struct {
	Filename string
	Content  io.Reader
}

// IsAllowedImage reports whether filename has an accepted image extension.
func IsAllowedImage(filename string) bool {
	return allowedImageExt[strings.ToLower(filepath.Ext(filename))]
}

// CreateRequest holds the input for adding a product.
type CreateRequest struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Category    string
	Variants    []Variant
	Featured    bool
	Images      []Upload
}

// UpdateRequest is a partial update. Nil fields keep their current value.
type UpdateRequest struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	Discount      *decimal.Decimal
	Category      *string
	Variants      *[]Variant
	Featured      *bool
	ReplaceImages bool
	Images        []Upload
}

// Service implements catalog management.
type Service struct {
	products Repository
	images   ImageStore
	lg       *zap.Logger
	now      func() time.Time
}

// NewService creates a catalog Service.
func NewService(products Repository, images ImageStore, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		products: products,
		images:   images,
		lg:       lg,
		now:      time.Now,
	}
}

// List returns one page of products matching f.
func (s *Service) List(ctx context.Context, f Filter) (page.Result[Product], error) {
	f.Page = f.Page.Normalize()
	f.Search = strings.TrimSpace(f.Search)
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return page.Result[Product]{}, apperr.New(apperr.InvalidInput, "min_price must not exceed max_price")
	}

	items, total, err := s.products.List(ctx, f)
	if err != nil {
		return page.Result[Product]{}, errors.Wrap(err, "list products")
	}
	return page.NewResult(items, total, f.Page), nil
}

// Get returns a product by id.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// Create validates and stores a new product together with its images.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Product, error) {
	now := s.now().UTC()
	p := &Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Price:       req.Price,
		Discount:    req.Discount,
		Category:    strings.TrimSpace(req.Category),
		Variants:    req.Variants,
		Featured:    req.Featured,
		Images:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Variants == nil {
		p.Variants = []Variant{}
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	refs, err := s.saveImages(ctx, req.Images)
	if err != nil {
		return nil, err
	}
	p.Images = append(p.Images, refs...)

	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	s.lg.Info("Product created", zap.String("product_id", p.ID))
	return p, nil
}

// Update applies a partial update to an existing product.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Price != nil {
		p.Price = *req.Price
	}
	if req.Discount != nil {
		p.Discount = *req.Discount
	}
	if req.Category != nil {
		p.Category = strings.TrimSpace(*req.Category)
	}
	if req.Variants != nil {
		p.Variants = *req.Variants
	}
	if req.Featured != nil {
		p.Featured = *req.Featured
	}
	if err := validate(p); err != nil {
		return nil, err
	}

	refs, err := s.saveImages(ctx, req.Images)
	if err != nil {
		return nil, err
	}
	if req.ReplaceImages {
		p.Images = []string{}
	}
	p.Images = append(p.Images, refs...)
	p.UpdatedAt = s.now().UTC()

	if err := s.products.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// AddImages appends uploaded images to a product.
func (s *Service) AddImages(ctx context.Context, id string, uploads []Upload) (*Product, error) {
	if len(uploads) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "no images uploaded")
	}
	return s.Update(ctx, id, UpdateRequest{Images: uploads})
}

// Delete removes a product. Carts that still reference it keep the entry;
// it is skipped when pricing.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete product")
	}
	s.lg.Info("Product deleted", zap.String("product_id", id))
	return nil
}

func (s *Service) saveImages(ctx context.Context, uploads []Upload) ([]string, error) {
	for _, u := range uploads {
		if !IsAllowedImage(u.Filename) {
			return nil, ErrImageType
		}
	}
	refs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ref, err := s.images.Save(ctx, u.Filename, u.Content)
		if err != nil {
			return nil, errors.Wrapf(err, "save image %q", u.Filename)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func validate(p *Product) error {
	switch {
	case p.Name == "":
		return apperr.New(apperr.InvalidInput, "name is required")
	case p.Price.IsNegative():
		return apperr.New(apperr.InvalidInput, "price must not be negative")
	case p.Discount.IsNegative() || p.Discount.GreaterThan(hundred):
		return apperr.New(apperr.InvalidInput, "discount must be between 0 and 100")
	}
	return nil
}
