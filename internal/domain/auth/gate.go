package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// Gate resolves bearer credentials to principals.
type Gate struct {
	tokens *TokenIssuer
	users  Repository
}

// NewGate creates a Gate.
func NewGate(tokens *TokenIssuer, users Repository) *Gate {
	return &Gate{tokens: tokens, users: users}
}

// Authenticate resolves an Authorization header value of the form
// "Bearer <token>" to the principal it names.
func (g *Gate) Authenticate(ctx context.Context, header string) (*Principal, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrTokenMissing
	}
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return nil, ErrTokenInvalid
	}

	id, err := g.tokens.Parse(fields[1])
	if err != nil {
		return nil, err
	}

	p, err := g.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, errors.Wrap(err, "load principal")
	}
	return p, nil
}

// RequireAuthenticated fails unless p is a resolved principal.
func RequireAuthenticated(p *Principal) error {
	if p == nil {
		return ErrTokenMissing
	}
	return nil
}

// RequireAdmin fails unless p is a resolved principal with the admin role.
func RequireAdmin(p *Principal) error {
	if err := RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return ErrAdminRequired
	}
	return nil
}
