package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tshirt-store/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, discount, category, variants, featured, images, created_at, updated_at`

	getProductByIDSQL   = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	createProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	upsertProductSQL = createProductSQL + `
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			discount = EXCLUDED.discount,
			category = EXCLUDED.category,
			variants = EXCLUDED.variants,
			featured = EXCLUDED.featured,
			images = EXCLUDED.images,
			updated_at = EXCLUDED.updated_at`

	updateProductSQL = `UPDATE products SET
		name = $2, description = $3, price = $4, discount = $5, category = $6,
		variants = $7, featured = $8, images = $9, updated_at = $10
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
	countProductsSQL = `SELECT count(*) FROM products`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns the products matching f, newest first, with the total count
// of matches.
func (r *ProductRepository) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	where, args := productWhere(f)
	q := conn(ctx, r.pool)

	total, err := count(ctx, q, `SELECT count(*) FROM products`+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	n := len(args)
	sql := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		productColumns, where, n+1, n+2)
	rows, err := q.Query(ctx, sql, append(args, f.Page.Limit(), f.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, 0, fmt.Errorf("listing products: %w", err)
	}
	return items, total, nil
}

// productWhere renders the WHERE clause for f with positional arguments.
func productWhere(f product.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if f.MinPrice != nil {
		add("price >= $%d", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		add("price <= $%d", *f.MaxPrice)
	}
	if f.Search != "" {
		add(`name ILIKE '%%' || $%d || '%%'`, escapeLike(f.Search))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	args, err := productArgs(p)
	if err != nil {
		return err
	}
	if _, err := conn(ctx, r.pool).Exec(ctx, createProductSQL, args...); err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts or replaces products in one batch.
func (r *ProductRepository) Upsert(ctx context.Context, products []product.Product) error {
	batch := &pgx.Batch{}
	for i := range products {
		args, err := productArgs(&products[i])
		if err != nil {
			return err
		}
		batch.Queue(upsertProductSQL, args...)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for i := range products {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting product %q: %w", products[i].ID, err)
		}
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	variants, images, err := productJSON(p)
	if err != nil {
		return err
	}
	tag, err := conn(ctx, r.pool).Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Description, p.Price, p.Discount, p.Category,
		variants, p.Featured, images, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	n, err := count(ctx, conn(ctx, r.pool), countProductsSQL)
	if err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

func productJSON(p *product.Product) (variants []byte, images []string, err error) {
	vs := p.Variants
	if vs == nil {
		vs = []product.Variant{}
	}
	variants, err = json.Marshal(vs)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling variants: %w", err)
	}
	images = p.Images
	if images == nil {
		images = []string{}
	}
	return variants, images, nil
}

func productArgs(p *product.Product) ([]any, error) {
	variants, images, err := productJSON(p)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID, p.Name, p.Description, p.Price, p.Discount, p.Category,
		variants, p.Featured, images, p.CreatedAt, p.UpdatedAt,
	}, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p        product.Product
		variants []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Discount, &p.Category,
		&variants, &p.Featured, &p.Images, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(variants, &p.Variants); err != nil {
		return p, fmt.Errorf("decoding variants of %q: %w", p.ID, err)
	}
	return p, nil
}
