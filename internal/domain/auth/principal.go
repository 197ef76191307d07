package auth

import (
	"context"
	"time"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

// Role is the capability level of a Principal.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal is an authenticated actor of the storefront.
type Principal struct {
	ID             string
	Username       string
	Email          string
	PasswordDigest string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

var (
	ErrPrincipalNotFound  = apperr.New(apperr.NotFound, "user not found")
	ErrEmailTaken         = apperr.New(apperr.Conflict, "user already exists")
	ErrInvalidCredentials = apperr.New(apperr.Unauthenticated, "invalid credentials")
	ErrTokenMissing       = apperr.New(apperr.Unauthenticated, "token is missing")
	ErrTokenInvalid       = apperr.New(apperr.Unauthenticated, "token is invalid")
	ErrUnknownPrincipal   = apperr.New(apperr.Unauthenticated, "user not found")
	ErrAdminRequired      = apperr.New(apperr.Forbidden, "admin privilege required")
	ErrInvalidRole        = apperr.New(apperr.InvalidInput, "invalid role")
)

// Repository persists principals.
type Repository interface {
	// Create stores a new principal, returning ErrEmailTaken when the email
	// is already registered.
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	List(ctx context.Context, req page.Request) ([]Principal, int, error)
	SetRole(ctx context.Context, id string, role Role, at time.Time) error
	Count(ctx context.Context) (int, error)
}
