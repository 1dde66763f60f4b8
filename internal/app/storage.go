package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/invoice"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
	"github.com/xenking/food-checkout/internal/seed"
	"github.com/xenking/food-checkout/internal/storage/memory"
	"github.com/xenking/food-checkout/internal/storage/postgres"
	redisstore "github.com/xenking/food-checkout/internal/storage/redis"
	"github.com/xenking/food-checkout/pkg/health"
)

// backend groups the repositories of one storage driver.
type backend struct {
	orders    order.Store
	carts     cart.Store
	menu      menu.Repository
	discounts discount.Repository
	accounts  account.Repository
	zones     zone.Repository
	stock     stock.Repository
	invoices  invoice.Repository
	apikeys   auth.Repository

	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend connects the configured storage and registers its readiness
// checks on hs.
func openBackend(ctx context.Context, cfg *Config, hs *health.Health) (*backend, error) {
	lg := zctx.From(ctx)
	b := &backend{}

	switch cfg.Storage {
	case StorageMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		db := memory.New()
		b.orders = db
		b.menu = db.Menu()
		b.discounts = db.Discounts()
		b.accounts = db.Accounts()
		b.zones = db.Zones()
		b.stock = db.Stock()
		b.invoices = db.Invoices()
		b.apikeys = db.APIKeys()

		if cfg.Seed.MenuFile != "" {
			c, err := seed.LoadMenu(cfg.Seed.MenuFile)
			if err != nil {
				return nil, errors.Wrap(err, "load seed menu")
			}
			if err := seed.Run(ctx, seed.NewMemoryWriter(db), c, seed.Options{
				StaffAPIKey: cfg.Seed.StaffAPIKey,
				Pepper:      []byte(cfg.APIKeyPepper),
			}); err != nil {
				return nil, errors.Wrap(err, "seed memory storage")
			}
		}
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		b.closers = append(b.closers, pool.Close)

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			b.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		hs.AddReadinessCheck("postgres", checkTimeout, health.PingCheck(pool))

		b.orders = postgres.NewOrderStore(pool)
		b.menu = postgres.NewMenuRepository(pool)
		b.discounts = postgres.NewDiscountRepository(pool)
		b.accounts = postgres.NewAccountRepository(pool)
		b.zones = postgres.NewZoneRepository(pool)
		b.stock = postgres.NewStockRepository(pool)
		b.invoices = postgres.NewInvoiceRepository(pool)
		b.apikeys = postgres.NewAPIKeyRepository(pool)
	}

	if cfg.Redis.URL == "" {
		lg.Info("No Redis configured, carts are kept in memory")
		b.carts = memory.NewCartStore()
		return b, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	b.closers = append(b.closers, func() {
		if err := client.Close(); err != nil {
			lg.Warn("Close redis", zap.Error(err))
		}
	})
	hs.AddReadinessCheck("redis", checkTimeout, health.RedisCheck(client))
	b.carts = redisstore.NewCartStore(client)
	return b, nil
}
