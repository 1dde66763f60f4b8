package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-checkout/internal/domain/account"
)

const (
	getAccountSQL = `SELECT id, email, name, has_ordered, loyalty_points
		FROM accounts WHERE id = $1`

	upsertAccountSQL = `INSERT INTO accounts (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository implements account.Repository backed by PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*account.Account, error) {
	var a account.Account
	err := r.pool.QueryRow(ctx, getAccountSQL, id).Scan(
		&a.ID, &a.Email, &a.Name, &a.HasOrdered, &a.LoyaltyPoints,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("getting account %q: %w", id, err)
	}
	return &a, nil
}

// Upsert creates an account or updates its profile fields.
func (r *AccountRepository) Upsert(ctx context.Context, a account.Account) error {
	if _, err := r.pool.Exec(ctx, upsertAccountSQL, a.ID, a.Email, a.Name); err != nil {
		return fmt.Errorf("upserting account %q: %w", a.ID, err)
	}
	return nil
}
