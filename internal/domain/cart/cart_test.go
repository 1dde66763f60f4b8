package cart

import (
	"context"
	"slices"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/money"
)

// --- Mock implementations ---

type mockStore struct {
	carts     map[Key]Cart
	conflicts int // Save fails with ErrVersionConflict this many times
	saves     int
	getErr    error
}

func newMockStore() *mockStore {
	return &mockStore{carts: make(map[Key]Cart)}
}

func (m *mockStore) Get(_ context.Context, key Key) (*Cart, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	c, ok := m.carts[key]
	if !ok {
		return &Cart{Key: key}, nil
	}
	c.Lines = slices.Clone(c.Lines)
	return &c, nil
}

func (m *mockStore) Save(_ context.Context, c *Cart, expected int64) error {
	m.saves++
	if m.conflicts > 0 {
		m.conflicts--
		return ErrVersionConflict
	}
	if m.carts[c.Key].Version != expected {
		return ErrVersionConflict
	}
	c.Version = expected + 1
	stored := *c
	stored.Lines = slices.Clone(c.Lines)
	m.carts[c.Key] = stored
	return nil
}

func (m *mockStore) Delete(_ context.Context, key Key) error {
	delete(m.carts, key)
	return nil
}

type mockMenu struct {
	items map[string]menu.Item
	err   error
}

func (m *mockMenu) List(_ context.Context) ([]menu.Item, error) {
	return nil, nil
}

func (m *mockMenu) GetByIDs(_ context.Context, ids []string) ([]menu.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []menu.Item
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

// --- Helpers ---

func testMenu() *mockMenu {
	return &mockMenu{items: map[string]menu.Item{
		"wrap": {
			ID: "wrap", Name: "Falafel Wrap", CategoryID: "wraps", Price: money.MustParse("7.00"), Active: true,
			Groups: []menu.Group{{
				ID: "spice", Selection: menu.SelectSingle, Required: true,
				Options: []menu.Option{
					{ID: "mild", GroupID: "spice", Active: true},
					{ID: "hot", GroupID: "spice", Surcharge: money.MustParse("0.50"), Active: true},
				},
			}},
		},
		"fries": {ID: "fries", Name: "Fries", CategoryID: "sides", Price: money.MustParse("3.00"), Active: true},
		"old":   {ID: "old", Name: "Retired Special", CategoryID: "sides", Price: 100, Active: false},
	}}
}

var guest = SessionKey("sess-1")

// --- Service tests ---

func TestService_AddLine_Merges(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, testMenu())
	ctx := context.Background()

	_, err := svc.AddLine(ctx, guest, AddLine{ItemID: "wrap", Quantity: 1, Options: []string{"hot"}})
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, guest, AddLine{ItemID: "fries", Quantity: 2})
	require.NoError(t, err)
	c, err := svc.AddLine(ctx, guest, AddLine{ItemID: "wrap", Quantity: 2, Options: []string{"hot"}})
	require.NoError(t, err)

	require.Len(t, c.Lines, 2)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.Equal(t, money.MustParse("7.50"), c.Lines[0].UnitPrice)
	assert.Equal(t, int64(3), c.Version)
	assert.False(t, c.CreatedAt.IsZero())
}

func TestService_AddLine_Rejects(t *testing.T) {
	svc := NewService(newMockStore(), testMenu())
	ctx := context.Background()

	_, err := svc.AddLine(ctx, guest, AddLine{ItemID: "wrap", Quantity: 0, Options: []string{"mild"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.AddLine(ctx, guest, AddLine{ItemID: "old", Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindItemUnavailable))

	_, err = svc.AddLine(ctx, guest, AddLine{ItemID: "wrap", Quantity: 1})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindItemUnavailable, e.Kind)
	assert.Equal(t, "wrap", e.ItemID)

	_, err = svc.AddLine(ctx, Key{}, AddLine{ItemID: "fries", Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestService_RetriesVersionConflict(t *testing.T) {
	store := newMockStore()
	store.conflicts = 2
	svc := NewService(store, testMenu())

	c, err := svc.AddLine(context.Background(), guest, AddLine{ItemID: "fries", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
	assert.Equal(t, 3, store.saves)
}

func TestService_GivesUpAfterConflicts(t *testing.T) {
	store := newMockStore()
	store.conflicts = saveAttempts
	svc := NewService(store, testMenu())

	_, err := svc.AddLine(context.Background(), guest, AddLine{ItemID: "fries", Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindCartChanged))
	assert.Equal(t, saveAttempts, store.saves)
}

func TestService_UpdateAndRemove(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, testMenu())
	ctx := context.Background()

	_, err := svc.AddLine(ctx, guest, AddLine{ItemID: "fries", Quantity: 1})
	require.NoError(t, err)
	_, err = svc.AddLine(ctx, guest, AddLine{ItemID: "wrap", Quantity: 1, Options: []string{"mild"}})
	require.NoError(t, err)

	c, err := svc.UpdateQuantity(ctx, guest, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Lines[0].Quantity)

	c, err = svc.RemoveLine(ctx, guest, 0)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, "wrap", c.Lines[0].ItemID)

	_, err = svc.RemoveLine(ctx, guest, 5)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestService_ApplyCodeAndClear(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, testMenu())
	ctx := context.Background()

	c, err := svc.ApplyCode(ctx, guest, " welcome10 ")
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", c.DiscountCode)

	require.NoError(t, svc.Clear(ctx, guest))
	c, err = svc.Get(ctx, guest)
	require.NoError(t, err)
	assert.True(t, c.Empty())
	assert.Empty(t, c.DiscountCode)
	assert.Zero(t, c.Version)
}

// --- Resolver tests ---

func TestResolver_Resolve(t *testing.T) {
	store := newMockStore()
	store.carts[guest] = Cart{
		Key: guest,
		Lines: []Line{
			{ItemID: "wrap", Quantity: 2, Options: []string{"hot"}, UnitPrice: 1},
			{ItemID: "fries", Quantity: 1},
			{ItemID: "wrap", Quantity: 1, Options: []string{"mild"}},
		},
		DiscountCode: "SAVE10",
		Version:      7,
	}
	r := NewResolver(store, testMenu())

	got, err := r.Resolve(context.Background(), guest)
	require.NoError(t, err)

	assert.Equal(t, int64(7), got.Version)
	assert.Equal(t, "SAVE10", got.DiscountCode)
	require.Len(t, got.Lines, 3)
	assert.Equal(t, money.MustParse("7.50"), got.Lines[0].UnitPrice)
	assert.Equal(t, money.MustParse("15.00"), got.Lines[0].LineTotal)
	assert.Equal(t, "sides", got.Lines[1].CategoryID)
	assert.Equal(t, money.MustParse("25.00"), got.Subtotal())
	assert.Equal(t, map[string]int{"wrap": 3, "fries": 1}, got.Demand())

	assert.Equal(t, int64(7), store.carts[guest].Version, "resolver must not write")
}

func TestResolver_Errors(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		wantKind apperr.Kind
		wantItem string
	}{
		{name: "empty cart", wantKind: apperr.KindValidation},
		{name: "deactivated item", lines: []Line{{ItemID: "old", Quantity: 1}}, wantKind: apperr.KindItemUnavailable, wantItem: "old"},
		{name: "missing item", lines: []Line{{ItemID: "ghost", Quantity: 1}}, wantKind: apperr.KindItemUnavailable, wantItem: "ghost"},
		{
			name:     "option withdrawn",
			lines:    []Line{{ItemID: "fries", Quantity: 1}, {ItemID: "wrap", Quantity: 1, Options: []string{"xhot"}}},
			wantKind: apperr.KindItemUnavailable,
			wantItem: "wrap",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			if tt.lines != nil {
				store.carts[guest] = Cart{Key: guest, Lines: tt.lines, Version: 1}
			}
			_, err := NewResolver(store, testMenu()).Resolve(context.Background(), guest)

			e, ok := apperr.As(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.wantKind, e.Kind)
			assert.Equal(t, tt.wantItem, e.ItemID)
		})
	}
}

func TestResolver_MenuError(t *testing.T) {
	store := newMockStore()
	store.carts[guest] = Cart{Key: guest, Lines: []Line{{ItemID: "fries", Quantity: 1}}}
	m := testMenu()
	m.err = errors.New("db down")

	_, err := NewResolver(store, m).Resolve(context.Background(), guest)
	require.ErrorContains(t, err, "db down")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}
