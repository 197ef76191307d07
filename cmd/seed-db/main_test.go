package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/product"
	"github.com/xenking/tshirt-store/internal/storage/memory"
)

func TestParseProducts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	data := []byte(`[
		{"id": "fixed", "name": "Basic Tee", "price": 499, "category": "tshirts"},
		{"name": " Zip Hoodie ", "price": "1299.50", "discount": 20, "category": "hoodies",
		 "variants": [{"sizes": ["M"], "colors": ["grey"]}], "featured": true}
	]`)

	got, err := parseProducts(data, now)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "fixed", got[0].ID)
	assert.NotNil(t, got[0].Variants)
	assert.NotNil(t, got[0].Images)

	assert.Equal(t, product.CatalogID("Zip Hoodie", "hoodies"), got[1].ID)
	assert.Equal(t, "Zip Hoodie", got[1].Name)
	assert.Equal(t, "1299.5", got[1].Price.String())
	assert.True(t, got[1].Featured)
	assert.Equal(t, now, got[1].CreatedAt)
}

func TestParseProducts_Rejects(t *testing.T) {
	for _, data := range []string{
		`{"name": "not an array"}`,
		`[{"price": 10}]`,
		`[{"name": "Tee", "price": -1}]`,
	} {
		_, err := parseProducts([]byte(data), time.Now())
		assert.Error(t, err, data)
	}
}

func TestSeedAdmin(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

	require.NoError(t, seedAdmin(ctx, users, hasher, adminSeed{
		username: "admin", email: "Admin@Example.com", password: "secret123",
	}))
	p, err := users.GetByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, p.Role)
	assert.True(t, hasher.Verify("secret123", p.PasswordDigest))

	t.Run("promotes existing", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, users.Create(ctx, &auth.Principal{
			ID: "u-1", Username: "ops", Email: "ops@example.com", Role: auth.RoleUser,
			CreatedAt: now, UpdatedAt: now,
		}))
		require.NoError(t, seedAdmin(ctx, users, hasher, adminSeed{email: "ops@example.com"}))
		p, err := users.GetByID(ctx, "u-1")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, p.Role)
	})

	t.Run("short password", func(t *testing.T) {
		err := seedAdmin(ctx, users, hasher, adminSeed{email: "new@example.com", password: "123"})
		assert.Error(t, err)
	})
}
