package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

const listZonesSQL = `SELECT id, name, center_lat, center_lng, radius_km,
		delivery_fee, minimum_order, active
	FROM delivery_zones ORDER BY radius_km, id`

const upsertZoneSQL = `INSERT INTO delivery_zones (id, name, center_lat, center_lng, radius_km,
		delivery_fee, minimum_order, active)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, center_lat = EXCLUDED.center_lat,
		center_lng = EXCLUDED.center_lng, radius_km = EXCLUDED.radius_km,
		delivery_fee = EXCLUDED.delivery_fee, minimum_order = EXCLUDED.minimum_order,
		active = EXCLUDED.active`

var _ zone.Repository = (*ZoneRepository)(nil)

// ZoneRepository implements zone.Repository backed by PostgreSQL.
type ZoneRepository struct {
	pool *pgxpool.Pool
}

// NewZoneRepository returns a ZoneRepository that uses the given pool.
func NewZoneRepository(pool *pgxpool.Pool) *ZoneRepository {
	return &ZoneRepository{pool: pool}
}

func (r *ZoneRepository) List(ctx context.Context) ([]zone.Zone, error) {
	rows, err := r.pool.Query(ctx, listZonesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing zones: %w", err)
	}
	zones, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (zone.Zone, error) {
		var (
			z        zone.Zone
			fee, minimum decimal.Decimal
		)
		err := row.Scan(&z.ID, &z.Name, &z.Center.Lat, &z.Center.Lng, &z.RadiusKM, &fee, &minimum, &z.Active)
		z.DeliveryFee = money.FromDecimal(fee)
		z.MinimumOrder = money.FromDecimal(minimum)
		return z, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning zones: %w", err)
	}
	return zones, nil
}

// Upsert creates or replaces a zone.
func (r *ZoneRepository) Upsert(ctx context.Context, z zone.Zone) error {
	_, err := r.pool.Exec(ctx, upsertZoneSQL, z.ID, z.Name, z.Center.Lat, z.Center.Lng, z.RadiusKM,
		z.DeliveryFee.Decimal(), z.MinimumOrder.Decimal(), z.Active)
	if err != nil {
		return fmt.Errorf("upserting zone %q: %w", z.ID, err)
	}
	return nil
}
