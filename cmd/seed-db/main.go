package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/product"
	"github.com/xenking/tshirt-store/internal/storage/postgres"
)

type productJSON struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Price       decimal.Decimal   `json:"price"`
	Discount    decimal.Decimal   `json:"discount"`
	Category    string            `json:"category"`
	Variants    []product.Variant `json:"variants"`
	Featured    bool              `json:"featured"`
	Images      []string          `json:"images"`
}

type adminSeed struct {
	username string
	email    string
	password string
}

func main() {
	var (
		databaseURL  string
		productsFile string
		admin        adminSeed
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&admin.username, "admin-username", "admin", "username of the seeded admin")
	flag.StringVar(&admin.email, "admin-email", "", "email of the seeded admin (or STORE_SEED_ADMIN_EMAIL env)")
	flag.StringVar(&admin.password, "admin-password", "", "password of the seeded admin (or STORE_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if admin.email == "" {
		admin.email = os.Getenv("STORE_SEED_ADMIN_EMAIL")
	}
	if admin.password == "" {
		admin.password = os.Getenv("STORE_SEED_ADMIN_PASSWORD")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, admin); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, admin adminSeed) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if admin.email == "" {
		slog.Info("no admin email given, skipping admin seed")
		return nil
	}
	if err := seedAdmin(ctx, postgres.NewUserRepository(pool), auth.BcryptHasher{}, admin); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	return nil
}

type productUpserter interface {
	Upsert(ctx context.Context, products []product.Product) error
}

func seedProducts(ctx context.Context, repo productUpserter, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	products, err := parseProducts(data, time.Now().UTC())
	if err != nil {
		return err
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	if err := repo.Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	for _, p := range products {
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	return nil
}

// parseProducts decodes the seed file. Entries without an id get the
// catalog id of their name and category.
func parseProducts(data []byte, now time.Time) ([]product.Product, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse products JSON")
	}

	out := make([]product.Product, 0, len(raw))
	for i, p := range raw {
		if strings.TrimSpace(p.Name) == "" {
			return nil, errors.Errorf("product %d: name is required", i)
		}
		if p.Price.IsNegative() {
			return nil, errors.Errorf("product %q: price must not be negative", p.Name)
		}
		id := p.ID
		if id == "" {
			id = product.CatalogID(p.Name, p.Category)
		}
		variants, images := p.Variants, p.Images
		if variants == nil {
			variants = []product.Variant{}
		}
		if images == nil {
			images = []string{}
		}
		out = append(out, product.Product{
			ID:          id,
			Name:        strings.TrimSpace(p.Name),
			Description: p.Description,
			Price:       p.Price,
			Discount:    p.Discount,
			Category:    strings.TrimSpace(p.Category),
			Variants:    variants,
			Featured:    p.Featured,
			Images:      images,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return out, nil
}

// seedAdmin creates the admin principal, or promotes an existing account
// with the same email.
func seedAdmin(ctx context.Context, users auth.Repository, hasher auth.PasswordHasher, admin adminSeed) error {
	slog.Info("seeding admin principal", slog.String("email", admin.email))

	email := strings.ToLower(strings.TrimSpace(admin.email))
	now := time.Now().UTC()

	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if err := users.SetRole(ctx, existing.ID, auth.RoleAdmin, now); err != nil {
			return errors.Wrap(err, "promote existing principal")
		}
		slog.Info("promoted existing principal", slog.String("id", existing.ID))
		return nil
	case !errors.Is(err, auth.ErrPrincipalNotFound):
		return errors.Wrap(err, "look up admin")
	}

	if len(admin.password) < 6 {
		return errors.New("admin password must be at least 6 characters: set --admin-password or STORE_SEED_ADMIN_PASSWORD")
	}
	digest, err := hasher.Hash(admin.password)
	if err != nil {
		return err
	}
	p := &auth.Principal{
		ID:             uuid.NewString(),
		Username:       admin.username,
		Email:          email,
		PasswordDigest: digest,
		Role:           auth.RoleAdmin,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := users.Create(ctx, p); err != nil {
		return errors.Wrap(err, "create admin")
	}

	slog.Info("created admin principal", slog.String("id", p.ID))
	return nil
}
