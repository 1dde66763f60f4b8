package seed

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
	"github.com/xenking/food-checkout/internal/storage/memory"
)

// --- Mock implementations ---

type mockWriter struct {
	MemoryWriter
	failZone error
}

func (m mockWriter) UpsertZone(ctx context.Context, z zone.Zone) error {
	if m.failZone != nil {
		return m.failZone
	}
	return m.MemoryWriter.UpsertZone(ctx, z)
}

// --- Tests ---

func TestParseMenu(t *testing.T) {
	c, err := ParseMenu(strings.NewReader(`[
		{"id":"wrap","name":"Wrap","category":"mains","price":"8.50","stock":{"quantity":4,"low_threshold":1},
		 "groups":[{"id":"spice","name":"Spice","required":true,
		   "options":[{"id":"hot","name":"Hot","surcharge":"0.50","default":true}]}]},
		{"id":"cola","name":"Cola","category":"drinks","price":"2","inactive":true}
	]`))
	require.NoError(t, err)
	require.Len(t, c.Items, 2)

	wrap := c.Items[0]
	assert.Equal(t, "8.50", wrap.Price.String())
	assert.True(t, wrap.Active)
	require.Len(t, wrap.Groups, 1)
	assert.Equal(t, menu.SelectSingle, wrap.Groups[0].Selection)
	assert.Equal(t, "spice", wrap.Groups[0].Options[0].GroupID)
	assert.Equal(t, "0.50", wrap.Groups[0].Options[0].Surcharge.String())
	assert.False(t, c.Items[1].Active)

	assert.Equal(t, []stock.Entry{{ItemID: "wrap", Quantity: 4, LowThreshold: 1, Tracked: true}}, c.Stock)
}

func TestParseMenu_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"Malformed":     `[{"id":`,
		"MissingName":   `[{"id":"x","price":"1"}]`,
		"NegativePrice": `[{"id":"x","name":"X","price":"-1"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMenu(strings.NewReader(body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMenu_File(t *testing.T) {
	c, err := LoadMenu("../../db/seed/menu.json")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Items)
	assert.NotEmpty(t, c.Stock)

	_, err = LoadMenu("missing.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_Memory(t *testing.T) {
	ctx := context.Background()
	db := memory.New()
	c, err := LoadMenu("../../db/seed/menu.json")
	require.NoError(t, err)

	now := time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)
	pepper := []byte("pepper")
	require.NoError(t, Run(ctx, NewMemoryWriter(db), c, Options{
		StaffAPIKey: "staff-secret",
		Pepper:      pepper,
		Now:         func() time.Time { return now },
	}))

	items, err := db.Menu().List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, len(c.Items))

	e, err := db.Stock().Get(ctx, "cola")
	require.NoError(t, err)
	assert.Equal(t, 120, e.Quantity)

	zones, err := db.Zones().List(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, len(Zones()))

	code, err := db.Discounts().FindByCode(ctx, discount.NormalizeCode("welcome15"))
	require.NoError(t, err)
	assert.True(t, code.FirstOrderOnly)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), code.ValidFrom)

	key, err := db.APIKeys().FindByHash(ctx, auth.HashKey(pepper, "staff-secret"))
	require.NoError(t, err)
	assert.True(t, key.HasScope(auth.ScopeOrderStatus))

	// Seeding twice is harmless.
	require.NoError(t, Run(ctx, NewMemoryWriter(db), c, Options{}))
	zones, err = db.Zones().List(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, len(Zones()))
}

func TestRun_Error(t *testing.T) {
	w := mockWriter{MemoryWriter: NewMemoryWriter(memory.New()), failZone: errors.New("boom")}
	err := Run(context.Background(), w, &Catalog{}, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert zone city-centre")
}
