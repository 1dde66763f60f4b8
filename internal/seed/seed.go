// Package seed loads the demo catalog: menu items with their stock levels,
// delivery zones, discount codes and a staff API key.
package seed

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

// Writer stores seed data. Every method must be an idempotent upsert.
type Writer interface {
	UpsertMenuItem(ctx context.Context, it menu.Item) error
	SetStock(ctx context.Context, e stock.Entry) error
	UpsertZone(ctx context.Context, z zone.Zone) error
	UpsertDiscounts(ctx context.Context, codes ...discount.Code) error
	UpsertAPIKey(ctx context.Context, k auth.APIKeyInfo) error
}

type itemJSON struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Inactive bool            `json:"inactive"`
	Stock    *struct {
		Quantity     int `json:"quantity"`
		LowThreshold int `json:"low_threshold"`
	} `json:"stock"`
	Groups []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Selection string `json:"selection"`
		Required  bool   `json:"required"`
		Options   []struct {
			ID        string          `json:"id"`
			Name      string          `json:"name"`
			Surcharge decimal.Decimal `json:"surcharge"`
			Default   bool            `json:"default"`
		} `json:"options"`
	} `json:"groups"`
}

// Catalog is the decoded seed menu.
type Catalog struct {
	Items []menu.Item
	Stock []stock.Entry
}

// ParseMenu decodes a JSON menu file.
func ParseMenu(r io.Reader) (*Catalog, error) {
	var raw []itemJSON
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode menu")
	}

	c := &Catalog{}
	for _, in := range raw {
		if in.ID == "" || in.Name == "" {
			return nil, errors.New("menu item needs an id and a name")
		}
		if in.Price.IsNegative() {
			return nil, errors.Errorf("item %s: negative price", in.ID)
		}
		it := menu.Item{
			ID:         in.ID,
			Name:       in.Name,
			CategoryID: in.Category,
			Price:      money.FromDecimal(in.Price),
			Active:     !in.Inactive,
		}
		for _, g := range in.Groups {
			sel := menu.Selection(g.Selection)
			if sel == "" {
				sel = menu.SelectSingle
			}
			group := menu.Group{ID: g.ID, Name: g.Name, Selection: sel, Required: g.Required}
			for _, o := range g.Options {
				group.Options = append(group.Options, menu.Option{
					ID:        o.ID,
					GroupID:   g.ID,
					Name:      o.Name,
					Surcharge: money.FromDecimal(o.Surcharge),
					Default:   o.Default,
					Active:    true,
				})
			}
			it.Groups = append(it.Groups, group)
		}
		c.Items = append(c.Items, it)

		if in.Stock != nil {
			c.Stock = append(c.Stock, stock.Entry{
				ItemID:       in.ID,
				Quantity:     in.Stock.Quantity,
				LowThreshold: in.Stock.LowThreshold,
				Tracked:      true,
			})
		}
	}
	return c, nil
}

// LoadMenu reads and decodes the menu file at path.
func LoadMenu(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open menu file")
	}
	defer func() { _ = f.Close() }()
	return ParseMenu(f)
}

// Zones returns the demo delivery zones.
func Zones() []zone.Zone {
	return []zone.Zone{
		{
			ID:           "city-centre",
			Name:         "City centre",
			Center:       zone.Coordinates{Lat: 53.3498, Lng: -6.2603},
			RadiusKM:     3,
			DeliveryFee:  money.MustParse("2.50"),
			MinimumOrder: money.MustParse("10.00"),
			Active:       true,
		},
		{
			ID:           "suburbs",
			Name:         "Suburbs",
			Center:       zone.Coordinates{Lat: 53.3498, Lng: -6.2603},
			RadiusKM:     8,
			DeliveryFee:  money.MustParse("4.00"),
			MinimumOrder: money.MustParse("15.00"),
			Active:       true,
		},
	}
}

// Discounts returns the demo discount codes.
func Discounts() []discount.Code {
	return []discount.Code{
		{
			Code:             "WELCOME15",
			Type:             discount.Percentage,
			Value:            decimal.NewFromInt(15),
			Description:      "15% off your first order",
			Active:           true,
			FirstOrderOnly:   true,
			PerCustomerLimit: 1,
		},
		{
			Code:              "FIVEOFF",
			Type:              discount.Fixed,
			Value:             decimal.NewFromInt(5),
			Description:       "5.00 off orders over 25.00",
			Active:            true,
			MinimumOrderValue: money.MustParse("25.00"),
		},
		{
			Code:        "PICKUP10",
			Type:        discount.Percentage,
			Value:       decimal.NewFromInt(10),
			Description: "10% off collection orders",
			Active:      true,
			OrderTypes:  []fulfillment.Type{fulfillment.Collection},
		},
		{
			Code:            "SWEET50",
			Type:            discount.Percentage,
			Value:           decimal.NewFromInt(50),
			Description:     "Half price desserts",
			Active:          true,
			CategoryIDs:     []string{"desserts"},
			TotalUsageLimit: 500,
		},
	}
}

// StaffKey returns the kitchen API key record for key, hashed under pepper.
func StaffKey(key string, pepper []byte) auth.APIKeyInfo {
	return auth.APIKeyInfo{
		ID:      "kitchen",
		KeyHash: auth.HashKey(pepper, key),
		Name:    "Kitchen display",
		Scopes:  []string{auth.ScopeOrderStatus},
	}
}

// Options selects what Run writes besides the catalog.
type Options struct {
	// StaffAPIKey is seeded when non-empty.
	StaffAPIKey string
	Pepper      []byte
	// Now dates the discount codes. Defaults to time.Now.
	Now func() time.Time
}

// Run writes the catalog, zones, discounts and optional staff key.
func Run(ctx context.Context, w Writer, c *Catalog, opts Options) error {
	lg := zctx.From(ctx)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	for _, it := range c.Items {
		if err := w.UpsertMenuItem(ctx, it); err != nil {
			return errors.Wrapf(err, "upsert item %s", it.ID)
		}
	}
	for _, e := range c.Stock {
		if err := w.SetStock(ctx, e); err != nil {
			return errors.Wrapf(err, "set stock %s", e.ItemID)
		}
	}
	lg.Info("Seeded menu", zap.Int("items", len(c.Items)), zap.Int("tracked", len(c.Stock)))

	zones := Zones()
	for _, z := range zones {
		if err := w.UpsertZone(ctx, z); err != nil {
			return errors.Wrapf(err, "upsert zone %s", z.ID)
		}
	}
	lg.Info("Seeded zones", zap.Int("count", len(zones)))

	codes := Discounts()
	from := opts.Now().UTC().Truncate(24 * time.Hour)
	for i := range codes {
		codes[i].ValidFrom = from
	}
	if err := w.UpsertDiscounts(ctx, codes...); err != nil {
		return errors.Wrap(err, "upsert discounts")
	}
	lg.Info("Seeded discounts", zap.Int("count", len(codes)))

	if opts.StaffAPIKey != "" {
		k := StaffKey(opts.StaffAPIKey, opts.Pepper)
		if err := w.UpsertAPIKey(ctx, k); err != nil {
			return errors.Wrap(err, "upsert api key")
		}
		lg.Info("Seeded API key", zap.String("id", k.ID), zap.Strings("scopes", k.Scopes))
	}
	return nil
}
