package memory

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

func TestInTx_RollsBack(t *testing.T) {
	db := New()
	ctx := context.Background()
	db.PutMenuItem(menu.Item{ID: "wrap", Active: true})
	require.NoError(t, db.Stock().Set(ctx, stock.Entry{ItemID: "wrap", Quantity: 3, Tracked: true}))
	db.PutDiscount(discount.Code{Code: "save", TotalUsageLimit: 5})

	boom := errors.New("boom")
	err := db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		require.NoError(t, tx.Decrement(ctx, "wrap", 2))
		require.NoError(t, tx.IncrementDiscountUsage(ctx, "SAVE"))
		require.NoError(t, tx.Insert(ctx, &order.Order{ID: "o1", IdempotencyKey: "k1", Ticket: "AAAAAA",
			Lines: []order.Line{{ItemID: "wrap", Quantity: 2}}}))
		require.NoError(t, tx.AppendHistory(ctx, "o1", order.HistoryEntry{Status: order.StatusReceived}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	e, err := db.Stock().Get(ctx, "wrap")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Quantity)

	c, err := db.Discounts().FindByCode(ctx, "save")
	require.NoError(t, err)
	assert.Equal(t, 0, c.TotalUsedCount)

	_, err = db.FindByIdempotencyKey(ctx, "k1")
	require.ErrorIs(t, err, order.ErrNotFound)
	h, err := db.History(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestInTx_Commits(t *testing.T) {
	db := New()
	ctx := context.Background()
	db.PutMenuItem(menu.Item{ID: "wrap", Active: true})
	db.PutAccount(account.Account{ID: "acc"})

	o := &order.Order{ID: "o1", IdempotencyKey: "k1", Ticket: "BBBBBB", Owner: order.AccountOwner("acc"),
		Status: order.StatusReceived, Lines: []order.Line{{ItemID: "wrap", Quantity: 1}}}
	require.NoError(t, db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		if err := tx.Insert(ctx, o); err != nil {
			return err
		}
		if err := tx.MarkOrdered(ctx, "acc"); err != nil {
			return err
		}
		return tx.AccrueLoyalty(ctx, "acc", 12)
	}))
	assert.Equal(t, int64(1), o.Number)

	got, err := db.FindByTicket(ctx, "BBBBBB")
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)

	a, err := db.Accounts().Get(ctx, "acc")
	require.NoError(t, err)
	assert.True(t, a.HasOrdered)
	assert.Equal(t, int64(12), a.LoyaltyPoints)

	err = db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Insert(ctx, &order.Order{ID: "o2", IdempotencyKey: "k1", Ticket: "CCCCCC"})
	})
	require.ErrorIs(t, err, order.ErrDuplicateIdempotencyKey)
}

func TestTx_GuardsCounters(t *testing.T) {
	db := New()
	ctx := context.Background()
	require.NoError(t, db.Stock().Set(ctx, stock.Entry{ItemID: "wrap", Quantity: 1, Tracked: true}))
	db.PutDiscount(discount.Code{Code: "ONCE", TotalUsageLimit: 1, TotalUsedCount: 1})

	err := db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Decrement(ctx, "wrap", 2)
	})
	assert.True(t, apperr.Is(err, apperr.KindStockUnavailable))

	err = db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.IncrementDiscountUsage(ctx, "ONCE")
	})
	assert.True(t, apperr.Is(err, apperr.KindDiscountUsageLimit))
}

func TestTx_RecordDiscountUsage(t *testing.T) {
	db := New()
	ctx := context.Background()
	db.PutAccount(account.Account{ID: "acc"})
	record := func(u order.DiscountUsage) error {
		return db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
			return tx.RecordDiscountUsage(ctx, u)
		})
	}

	require.NoError(t, record(order.DiscountUsage{Code: "SAVE10", OrderID: "o1", OwnerID: "acc", PerCustomerLimit: 2}))
	require.NoError(t, record(order.DiscountUsage{Code: "SAVE10", OrderID: "o2", OwnerID: "acc", PerCustomerLimit: 2}))
	err := record(order.DiscountUsage{Code: "SAVE10", OrderID: "o3", OwnerID: "acc", PerCustomerLimit: 2})
	assert.True(t, apperr.Is(err, apperr.KindDiscountCustomerLimit), "got %v", err)
	assert.Len(t, db.Usage(), 2)

	// Unlimited codes only need the account.
	require.NoError(t, record(order.DiscountUsage{Code: "FREE", OrderID: "o3", OwnerID: "acc"}))
	err = record(order.DiscountUsage{Code: "FREE", OrderID: "o4", OwnerID: "ghost"})
	assert.True(t, apperr.Is(err, apperr.KindUserNotFound), "got %v", err)

	require.NoError(t, record(order.DiscountUsage{Code: "WELCOME", OrderID: "o5", OwnerID: "acc", FirstOrderOnly: true}))
	require.NoError(t, db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.MarkOrdered(ctx, "acc")
	}))
	err = record(order.DiscountUsage{Code: "WELCOME", OrderID: "o6", OwnerID: "acc", FirstOrderOnly: true})
	assert.True(t, apperr.Is(err, apperr.KindDiscountCustomerLimit), "got %v", err)
}

func TestTx_CompareAndSetStatus(t *testing.T) {
	db := New()
	ctx := context.Background()
	db.PutMenuItem(menu.Item{ID: "wrap"})
	require.NoError(t, db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		return tx.Insert(ctx, &order.Order{ID: "o1", IdempotencyKey: "k", Ticket: "T", Status: order.StatusReceived})
	}))

	var first, second bool
	require.NoError(t, db.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		var err error
		first, err = tx.CompareAndSetStatus(ctx, "o1", order.StatusReceived, order.StatusPreparing, db.st.orders["o1"].CreatedAt)
		if err != nil {
			return err
		}
		second, err = tx.CompareAndSetStatus(ctx, "o1", order.StatusReceived, order.StatusCancelled, db.st.orders["o1"].CreatedAt)
		return err
	}))
	assert.True(t, first)
	assert.False(t, second)
}

func TestCartStore_Versioning(t *testing.T) {
	s := NewCartStore()
	ctx := context.Background()
	key := cart.SessionKey("s1")

	c, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, c.Version)

	c.Lines = append(c.Lines, cart.Line{ItemID: "wrap", Quantity: 1, Options: []string{"hot"}})
	require.NoError(t, s.Save(ctx, c, 0))
	assert.Equal(t, int64(1), c.Version)

	// Mutating the caller's copy must not leak into the store.
	c.Lines[0].Options[0] = "mild"
	stored, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hot", stored.Lines[0].Options[0])

	require.ErrorIs(t, s.Save(ctx, stored, 0), cart.ErrVersionConflict)
	require.NoError(t, s.Delete(ctx, key))
	c, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, c.Empty())
}
