package seed

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
	"github.com/xenking/food-checkout/internal/storage/memory"
	"github.com/xenking/food-checkout/internal/storage/postgres"
)

// PostgresWriter seeds through the postgres repositories.
type PostgresWriter struct {
	menu      *postgres.MenuRepository
	stock     *postgres.StockRepository
	zones     *postgres.ZoneRepository
	discounts *postgres.DiscountRepository
	apikeys   *postgres.APIKeyRepository
}

var _ Writer = (*PostgresWriter)(nil)

// NewPostgresWriter creates a PostgresWriter on pool.
func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	return &PostgresWriter{
		menu:      postgres.NewMenuRepository(pool),
		stock:     postgres.NewStockRepository(pool),
		zones:     postgres.NewZoneRepository(pool),
		discounts: postgres.NewDiscountRepository(pool),
		apikeys:   postgres.NewAPIKeyRepository(pool),
	}
}

func (w *PostgresWriter) UpsertMenuItem(ctx context.Context, it menu.Item) error {
	return w.menu.Upsert(ctx, it)
}

func (w *PostgresWriter) SetStock(ctx context.Context, e stock.Entry) error {
	return w.stock.Set(ctx, e)
}

func (w *PostgresWriter) UpsertZone(ctx context.Context, z zone.Zone) error {
	return w.zones.Upsert(ctx, z)
}

func (w *PostgresWriter) UpsertDiscounts(ctx context.Context, codes ...discount.Code) error {
	return w.discounts.Upsert(ctx, codes...)
}

func (w *PostgresWriter) UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error {
	return w.apikeys.Upsert(ctx, k)
}

// MemoryWriter seeds an in-memory DB.
type MemoryWriter struct {
	db *memory.DB
}

var _ Writer = MemoryWriter{}

// NewMemoryWriter creates a MemoryWriter on db.
func NewMemoryWriter(db *memory.DB) MemoryWriter {
	return MemoryWriter{db: db}
}

func (w MemoryWriter) UpsertMenuItem(_ context.Context, it menu.Item) error {
	w.db.PutMenuItem(it)
	return nil
}

func (w MemoryWriter) SetStock(ctx context.Context, e stock.Entry) error {
	return w.db.Stock().Set(ctx, e)
}

func (w MemoryWriter) UpsertZone(_ context.Context, z zone.Zone) error {
	w.db.PutZone(z)
	return nil
}

func (w MemoryWriter) UpsertDiscounts(_ context.Context, codes ...discount.Code) error {
	for _, c := range codes {
		w.db.PutDiscount(c)
	}
	return nil
}

func (w MemoryWriter) UpsertAPIKey(_ context.Context, k auth.APIKeyInfo) error {
	w.db.PutAPIKey(k)
	return nil
}
