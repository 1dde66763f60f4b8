package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/invoice"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

// Menu, Discounts, Accounts, Zones, Stock, Invoices and APIKeys expose the
// DB through the domain repository interfaces.
type (
	Menu      struct{ db *DB }
	Discounts struct{ db *DB }
	Accounts  struct{ db *DB }
	Zones     struct{ db *DB }
	Stock     struct{ db *DB }
	Invoices  struct{ db *DB }
	APIKeys   struct{ db *DB }
)

var (
	_ menu.Repository     = Menu{}
	_ discount.Repository = Discounts{}
	_ account.Repository  = Accounts{}
	_ zone.Repository     = Zones{}
	_ stock.Repository    = Stock{}
	_ invoice.Repository  = Invoices{}
	_ auth.Repository     = APIKeys{}
)

func (db *DB) Menu() Menu           { return Menu{db} }
func (db *DB) Discounts() Discounts { return Discounts{db} }
func (db *DB) Accounts() Accounts   { return Accounts{db} }
func (db *DB) Zones() Zones         { return Zones{db} }
func (db *DB) Stock() Stock         { return Stock{db} }
func (db *DB) Invoices() Invoices   { return Invoices{db} }
func (db *DB) APIKeys() APIKeys     { return APIKeys{db} }

func (r Menu) List(_ context.Context) ([]menu.Item, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	items := slices.Collect(maps.Values(r.db.st.menu))
	slices.SortFunc(items, func(a, b menu.Item) int { return cmp.Compare(a.ID, b.ID) })
	return items, nil
}

func (r Menu) GetByIDs(_ context.Context, ids []string) ([]menu.Item, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []menu.Item
	for _, id := range ids {
		if it, ok := r.db.st.menu[id]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r Discounts) FindByCode(_ context.Context, code string) (*discount.Code, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.st.discounts[discount.NormalizeCode(code)]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return &c, nil
}

func (r Discounts) CountUsage(_ context.Context, code, ownerID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, u := range r.db.st.usage {
		if u.Code == code && u.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (r Accounts) Get(_ context.Context, id string) (*account.Account, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	a, ok := r.db.st.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return &a, nil
}

func (r Zones) List(_ context.Context) ([]zone.Zone, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return slices.Clone(r.db.st.zones), nil
}

func (r Stock) Get(_ context.Context, itemID string) (*stock.Entry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.st.stock[itemID]
	if !ok {
		return nil, stock.ErrNotFound
	}
	return &e, nil
}

func (r Stock) Set(_ context.Context, e stock.Entry) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.st.stock[e.ItemID] = e
	return nil
}

func (r Stock) ListLow(_ context.Context) ([]stock.Entry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []stock.Entry
	for _, e := range r.db.st.stock {
		if e.Low() {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b stock.Entry) int { return cmp.Compare(a.ItemID, b.ItemID) })
	return out, nil
}

func (r Invoices) Create(_ context.Context, inv *invoice.Invoice) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.st.invoices[inv.OrderID]; ok {
		return nil
	}
	r.db.st.invoices[inv.OrderID] = *inv
	return nil
}

func (r Invoices) GetByOrder(_ context.Context, orderID string) (*invoice.Invoice, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	inv, ok := r.db.st.invoices[orderID]
	if !ok {
		return nil, invoice.ErrNotFound
	}
	return &inv, nil
}

func (r APIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k, ok := r.db.st.apikeys[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &k, nil
}

// Order reads.

func (db *DB) FindByIdempotencyKey(_ context.Context, key string) (*order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lookup(db.st.byKey, key)
}

func (db *DB) FindByTicket(_ context.Context, ticket string) (*order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lookup(db.st.byTicket, ticket)
}

func (db *DB) Get(_ context.Context, id string) (*order.Order, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

func (db *DB) History(_ context.Context, orderID string) ([]order.HistoryEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.history[orderID]), nil
}

func (db *DB) lookup(index map[string]string, k string) (*order.Order, error) {
	id, ok := index[k]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := db.st.orders[id]
	return &o, nil
}
