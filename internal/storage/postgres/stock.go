package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-checkout/internal/domain/stock"
)

const (
	getStockSQL = `SELECT item_id, quantity, low_threshold, tracked FROM stock WHERE item_id = $1`

	setStockSQL = `INSERT INTO stock (item_id, quantity, low_threshold, tracked)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			low_threshold = EXCLUDED.low_threshold,
			tracked = EXCLUDED.tracked`

	listLowStockSQL = `SELECT item_id, quantity, low_threshold, tracked FROM stock
		WHERE tracked AND quantity <= low_threshold ORDER BY item_id`
)

var _ stock.Repository = (*StockRepository)(nil)

// StockRepository implements stock.Repository backed by PostgreSQL.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository returns a StockRepository that uses the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

func (r *StockRepository) Get(ctx context.Context, itemID string) (*stock.Entry, error) {
	rows, err := r.pool.Query(ctx, getStockSQL, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting stock for %q: %w", itemID, err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stock.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock for %q: %w", itemID, err)
	}
	return &e, nil
}

func (r *StockRepository) Set(ctx context.Context, e stock.Entry) error {
	_, err := r.pool.Exec(ctx, setStockSQL, e.ItemID, e.Quantity, e.LowThreshold, e.Tracked)
	if err != nil {
		return fmt.Errorf("setting stock for %q: %w", e.ItemID, err)
	}
	return nil
}

func (r *StockRepository) ListLow(ctx context.Context) ([]stock.Entry, error) {
	rows, err := r.pool.Query(ctx, listLowStockSQL)
	if err != nil {
		return nil, fmt.Errorf("listing low stock: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanStock)
	if err != nil {
		return nil, fmt.Errorf("scanning low stock: %w", err)
	}
	return entries, nil
}

func scanStock(row pgx.CollectableRow) (stock.Entry, error) {
	var e stock.Entry
	err := row.Scan(&e.ItemID, &e.Quantity, &e.LowThreshold, &e.Tracked)
	return e, err
}
