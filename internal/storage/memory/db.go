// Package memory implements every storage interface in process memory.
//
// It backs local runs without PostgreSQL and the service-level tests. A
// single mutex guards all state and is held for the whole of a transaction,
// so transactions are fully serialized. Rollback restores a snapshot taken
// when the transaction started.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/auth"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/invoice"
	"github.com/xenking/food-checkout/internal/domain/menu"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

// UsageRow is a stored discount usage.
type UsageRow struct {
	Code    string
	OrderID string
	OwnerID string
}

type state struct {
	menu      map[string]menu.Item
	stock     map[string]stock.Entry
	discounts map[string]discount.Code
	usage     []UsageRow
	accounts  map[string]account.Account
	zones     []zone.Zone
	apikeys   map[string]auth.APIKeyInfo
	invoices  map[string]invoice.Invoice

	orders   map[string]order.Order
	byKey    map[string]string
	byTicket map[string]string
	history  map[string][]order.HistoryEntry
	seq      int64
}

func (s *state) clone() state {
	c := *s
	c.menu = maps.Clone(s.menu)
	c.stock = maps.Clone(s.stock)
	c.discounts = maps.Clone(s.discounts)
	c.usage = slices.Clone(s.usage)
	c.accounts = maps.Clone(s.accounts)
	c.zones = slices.Clone(s.zones)
	c.apikeys = maps.Clone(s.apikeys)
	c.invoices = maps.Clone(s.invoices)
	c.orders = maps.Clone(s.orders)
	c.byKey = maps.Clone(s.byKey)
	c.byTicket = maps.Clone(s.byTicket)
	c.history = maps.Clone(s.history)
	return c
}

// DB is an in-memory database.
type DB struct {
	mu sync.Mutex
	st state
}

// New creates an empty DB.
func New() *DB {
	return &DB{st: state{
		menu:      make(map[string]menu.Item),
		stock:     make(map[string]stock.Entry),
		discounts: make(map[string]discount.Code),
		accounts:  make(map[string]account.Account),
		apikeys:   make(map[string]auth.APIKeyInfo),
		invoices:  make(map[string]invoice.Invoice),
		orders:    make(map[string]order.Order),
		byKey:     make(map[string]string),
		byTicket:  make(map[string]string),
		history:   make(map[string][]order.HistoryEntry),
	}}
}

var _ order.Store = (*DB)(nil)

// InTx implements order.Store.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.st.clone()
	err := fn(ctx, &tx{st: &db.st})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		db.st = snapshot
		return err
	}
	return nil
}

// PutMenuItem stores a menu item.
func (db *DB) PutMenuItem(it menu.Item) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.menu[it.ID] = it
}

// PutDiscount stores a discount code under its normalized code.
func (db *DB) PutDiscount(c discount.Code) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c.Code = discount.NormalizeCode(c.Code)
	db.st.discounts[c.Code] = c
}

// PutAccount stores an account.
func (db *DB) PutAccount(a account.Account) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.accounts[a.ID] = a
}

// DeleteAccount removes an account.
func (db *DB) DeleteAccount(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.st.accounts, id)
}

// PutZone stores a delivery zone, replacing one with the same id.
func (db *DB) PutZone(z zone.Zone) {
	db.mu.Lock()
	defer db.mu.Unlock()
	i := slices.IndexFunc(db.st.zones, func(e zone.Zone) bool { return e.ID == z.ID })
	if i >= 0 {
		db.st.zones[i] = z
		return
	}
	db.st.zones = append(db.st.zones, z)
}

// PutAPIKey stores an API key by hash.
func (db *DB) PutAPIKey(k auth.APIKeyInfo) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st.apikeys[k.KeyHash] = k
}

// Usage returns the stored discount usage rows.
func (db *DB) Usage() []UsageRow {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.usage)
}

// OrderCount returns the number of stored orders.
func (db *DB) OrderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.st.orders)
}
