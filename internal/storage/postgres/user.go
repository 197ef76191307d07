package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/page"
)

const (
	userColumns = `id, username, email, password_digest, role, created_at, updated_at`

	createUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	listUsersSQL = `SELECT ` + userColumns + ` FROM users
		ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	countUsersSQL = `SELECT count(*) FROM users`

	setUserRoleSQL = `UPDATE users SET role = $2, updated_at = $3 WHERE id = $1`
)

var _ auth.Repository = (*UserRepository)(nil)

// UserRepository implements auth.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, p *auth.Principal) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createUserSQL,
		p.ID, p.Username, p.Email, p.PasswordDigest, string(p.Role), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrEmailTaken
		}
		return fmt.Errorf("creating user %q: %w", p.ID, err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*auth.Principal, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) getOne(ctx context.Context, sql, arg string) (*auth.Principal, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &p, nil
}

func (r *UserRepository) List(ctx context.Context, req page.Request) ([]auth.Principal, int, error) {
	q := conn(ctx, r.pool)
	total, err := count(ctx, q, countUsersSQL)
	if err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}
	rows, err := q.Query(ctx, listUsersSQL, req.Limit(), req.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	users, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	return users, total, nil
}

func (r *UserRepository) SetRole(ctx context.Context, id string, role auth.Role, at time.Time) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, setUserRoleSQL, id, string(role), at)
	if err != nil {
		return fmt.Errorf("setting role of user %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrPrincipalNotFound
	}
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	n, err := count(ctx, conn(ctx, r.pool), countUsersSQL)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.CollectableRow) (auth.Principal, error) {
	var (
		p    auth.Principal
		role string
	)
	err := row.Scan(&p.ID, &p.Username, &p.Email, &p.PasswordDigest, &role, &p.CreatedAt, &p.UpdatedAt)
	p.Role = auth.Role(role)
	return p, err
}
