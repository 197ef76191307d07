package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

const (
	minPasswordLen = 6
	// maxPasswordLen is the bcrypt input limit in bytes.
	maxPasswordLen = 72
)

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// LoginResult is a freshly issued token and the principal it belongs to.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Principal *Principal
}

// Service manages accounts: registration, login and admin role changes.
type Service struct {
	users  Repository
	hasher PasswordHasher
	tokens *TokenIssuer
	lg     *zap.Logger
	now    func() time.Time
}

// NewService creates an account Service.
func NewService(users Repository, hasher PasswordHasher, tokens *TokenIssuer, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		lg:     lg,
		now:    time.Now,
	}
}

// Register creates a principal with the user role.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Principal, error) {
	username := strings.TrimSpace(req.Username)
	email := normalizeEmail(req.Email)
	switch {
	case username == "" || email == "" || req.Password == "":
		return nil, apperr.New(apperr.InvalidInput, "username, email and password are required")
	case !strings.Contains(email, "@"):
		return nil, apperr.New(apperr.InvalidInput, "invalid email")
	case len(req.Password) < minPasswordLen:
		return nil, apperr.Newf(apperr.InvalidInput, "password must be at least %d characters", minPasswordLen)
	case len(req.Password) > maxPasswordLen:
		return nil, apperr.Newf(apperr.InvalidInput, "password must be at most %d bytes", maxPasswordLen)
	}

	digest, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	p := &Principal{
		ID:             uuid.NewString(),
		Username:       username,
		Email:          email,
		PasswordDigest: digest,
		Role:           RoleUser,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create principal")
	}

	s.lg.Info("Principal registered", zap.String("principal_id", p.ID))
	return p, nil
}

// Login checks credentials and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	p, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "load principal")
	}
	if !s.hasher.Verify(password, p.PasswordDigest) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(p.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: exp, Principal: p}, nil
}

// ListUsers returns a page of principals.
func (s *Service) ListUsers(ctx context.Context, req page.Request) (page.Result[Principal], error) {
	req = req.Normalize()
	users, total, err := s.users.List(ctx, req)
	if err != nil {
		return page.Result[Principal]{}, errors.Wrap(err, "list principals")
	}
	return page.NewResult(users, total, req), nil
}

// SetRole changes the role of a principal. Tokens already issued keep
// working with the new role because the gate reloads the principal on
// every request.
func (s *Service) SetRole(ctx context.Context, id string, role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	if err := s.users.SetRole(ctx, id, role, s.now().UTC()); err != nil {
		return errors.Wrap(err, "set role")
	}
	s.lg.Info("Principal role changed",
		zap.String("principal_id", id),
		zap.String("role", string(role)),
	)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
