package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/money"
)

const (
	listMenuItemsSQL = `SELECT id, name, category_id, price, active
		FROM menu_items WHERE active = TRUE ORDER BY category_id, id`

	getMenuItemsByIDsSQL = `SELECT id, name, category_id, price, active
		FROM menu_items WHERE id = ANY($1)`

	getOptionsSQL = `SELECT g.item_id, g.id, g.name, g.selection, g.required,
			o.id, o.name, o.surcharge, o.is_default, o.active
		FROM menu_option_groups g
		LEFT JOIN menu_options o ON o.group_id = g.id
		WHERE g.item_id = ANY($1)
		ORDER BY g.item_id, g.position, g.id, o.position, o.id`
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository implements menu.Repository backed by PostgreSQL.
type MenuRepository struct {
	pool *pgxpool.Pool
}

// NewMenuRepository returns a MenuRepository that uses the given pool.
func NewMenuRepository(pool *pgxpool.Pool) *MenuRepository {
	return &MenuRepository{pool: pool}
}

// List returns all active items with their customization groups.
func (r *MenuRepository) List(ctx context.Context) ([]menu.Item, error) {
	return r.query(ctx, listMenuItemsSQL)
}

// GetByIDs returns the items with the given ids, active or not. Unknown ids
// are omitted.
func (r *MenuRepository) GetByIDs(ctx context.Context, ids []string) ([]menu.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.query(ctx, getMenuItemsByIDsSQL, ids)
}

func (r *MenuRepository) query(ctx context.Context, sql string, args ...any) ([]menu.Item, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying menu items: %w", err)
	}
	items, err := pgx.CollectRows(rows, scanMenuItem)
	if err != nil {
		return nil, fmt.Errorf("scanning menu items: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	groups, err := r.groups(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Groups = groups[items[i].ID]
	}
	return items, nil
}

// groups loads the option groups of the given items keyed by item id.
func (r *MenuRepository) groups(ctx context.Context, itemIDs []string) (map[string][]menu.Group, error) {
	rows, err := r.pool.Query(ctx, getOptionsSQL, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("querying menu options: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]menu.Group)
	for rows.Next() {
		var (
			itemID    string
			g         menu.Group
			selection string
			optID     *string
			optName   *string
			surcharge decimal.NullDecimal
			isDefault *bool
			active    *bool
		)
		if err := rows.Scan(&itemID, &g.ID, &g.Name, &selection, &g.Required,
			&optID, &optName, &surcharge, &isDefault, &active); err != nil {
			return nil, fmt.Errorf("scanning menu option: %w", err)
		}
		g.Selection = menu.Selection(selection)

		groups := out[itemID]
		if n := len(groups); n == 0 || groups[n-1].ID != g.ID {
			groups = append(groups, g)
		}
		if optID != nil {
			last := &groups[len(groups)-1]
			last.Options = append(last.Options, menu.Option{
				ID:        *optID,
				GroupID:   g.ID,
				Name:      *optName,
				Surcharge: money.FromDecimal(surcharge.Decimal),
				Default:   *isDefault,
				Active:    *active,
			})
		}
		out[itemID] = groups
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating menu options: %w", err)
	}
	return out, nil
}

func scanMenuItem(row pgx.CollectableRow) (menu.Item, error) {
	var (
		it    menu.Item
		price decimal.Decimal
	)
	err := row.Scan(&it.ID, &it.Name, &it.CategoryID, &price, &it.Active)
	it.Price = money.FromDecimal(price)
	return it, err
}

const (
	upsertMenuItemSQL = `INSERT INTO menu_items (id, name, category_id, price, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category_id = EXCLUDED.category_id,
			price = EXCLUDED.price, active = EXCLUDED.active`

	deleteMenuGroupsSQL = `DELETE FROM menu_option_groups WHERE item_id = $1`

	insertMenuGroupSQL = `INSERT INTO menu_option_groups (id, item_id, name, selection, required, position)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertMenuOptionSQL = `INSERT INTO menu_options (id, group_id, name, surcharge, is_default, active, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
)

// Upsert writes an item and replaces its customization groups.
func (r *MenuRepository) Upsert(ctx context.Context, it menu.Item) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertMenuItemSQL,
			it.ID, it.Name, it.CategoryID, it.Price.Decimal(), it.Active); err != nil {
			return fmt.Errorf("upserting menu item %q: %w", it.ID, err)
		}
		if _, err := tx.Exec(ctx, deleteMenuGroupsSQL, it.ID); err != nil {
			return fmt.Errorf("clearing groups of %q: %w", it.ID, err)
		}
		for gi, g := range it.Groups {
			if _, err := tx.Exec(ctx, insertMenuGroupSQL,
				g.ID, it.ID, g.Name, string(g.Selection), g.Required, gi); err != nil {
				return fmt.Errorf("inserting group %q: %w", g.ID, err)
			}
			for oi, o := range g.Options {
				if _, err := tx.Exec(ctx, insertMenuOptionSQL,
					o.ID, g.ID, o.Name, o.Surcharge.Decimal(), o.Default, o.Active, oi); err != nil {
					return fmt.Errorf("inserting option %q: %w", o.ID, err)
				}
			}
		}
		return nil
	})
}
