package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
)

const (
	discountColumns = `code, discount_type, value, description, active, valid_from, valid_until,
		minimum_order_value, total_usage_limit, total_used_count, per_customer_limit,
		first_order_only, order_types, category_ids, item_ids`

	getDiscountByCodeSQL = `SELECT ` + discountColumns + ` FROM discount_codes WHERE code = $1`

	countDiscountUsageSQL = `SELECT COUNT(*) FROM discount_usages WHERE code = $1 AND account_id = $2`

	upsertDiscountSQL = `INSERT INTO discount_codes (` + discountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12, $13, $14)
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			minimum_order_value = EXCLUDED.minimum_order_value,
			total_usage_limit = EXCLUDED.total_usage_limit,
			per_customer_limit = EXCLUDED.per_customer_limit,
			first_order_only = EXCLUDED.first_order_only,
			order_types = EXCLUDED.order_types,
			category_ids = EXCLUDED.category_ids,
			item_ids = EXCLUDED.item_ids`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up a code, active or not. Codes are stored normalized.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	code = discount.NormalizeCode(code)
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUsage returns how many committed orders of ownerID used code.
func (r *DiscountRepository) CountUsage(ctx context.Context, code, ownerID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countDiscountUsageSQL, code, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of %q: %w", code, err)
	}
	return n, nil
}

// Upsert creates or updates codes. Usage counters are never overwritten.
func (r *DiscountRepository) Upsert(ctx context.Context, codes ...discount.Code) error {
	batch := &pgx.Batch{}
	for _, c := range codes {
		orderTypes := make([]string, len(c.OrderTypes))
		for i, t := range c.OrderTypes {
			orderTypes[i] = string(t)
		}
		validFrom := c.ValidFrom
		if validFrom.IsZero() {
			validFrom = time.Unix(0, 0).UTC()
		}
		batch.Queue(upsertDiscountSQL,
			discount.NormalizeCode(c.Code), string(c.Type), c.Value, c.Description, c.Active,
			validFrom, c.ValidUntil, c.MinimumOrderValue.Decimal(), c.TotalUsageLimit,
			c.PerCustomerLimit, c.FirstOrderOnly, orderTypes, nonNil(c.CategoryIDs), nonNil(c.ItemIDs),
		)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d discount codes: %w", len(codes), err)
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c          discount.Code
		typ        string
		minimum    decimal.Decimal
		orderTypes []string
	)
	err := row.Scan(
		&c.Code, &typ, &c.Value, &c.Description, &c.Active, &c.ValidFrom, &c.ValidUntil,
		&minimum, &c.TotalUsageLimit, &c.TotalUsedCount, &c.PerCustomerLimit,
		&c.FirstOrderOnly, &orderTypes, &c.CategoryIDs, &c.ItemIDs,
	)
	c.Type = discount.Type(typ)
	c.MinimumOrderValue = money.FromDecimal(minimum)
	for _, t := range orderTypes {
		c.OrderTypes = append(c.OrderTypes, fulfillment.Type(t))
	}
	return c, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
