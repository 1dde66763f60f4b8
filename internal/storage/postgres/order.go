package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/payment"
)

const (
	orderColumns = `id, number, COALESCE(account_id, ''), session_id, order_type, collection_slot,
		delivery_address, COALESCE(zone_id, ''), contact, subtotal, discount, delivery_fee, tax, total,
		discount_code, status, ticket, tracking_token, payment_method, payment_ref,
		idempotency_key, loyalty_points, created_at, updated_at`

	getOrderSQL         = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByKeySQL    = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`
	getOrderByTicketSQL = `SELECT ` + orderColumns + ` FROM orders WHERE ticket = $1`

	getOrderLinesSQL = `SELECT item_id, name, quantity, unit_price, options, line_total
		FROM order_lines WHERE order_id = $1 ORDER BY position`

	getOrderHistorySQL = `SELECT status, changed_at, actor
		FROM order_status_history WHERE order_id = $1 ORDER BY id`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) FindByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return s.find(ctx, getOrderByKeySQL, key)
}

func (s *OrderStore) FindByTicket(ctx context.Context, ticket string) (*order.Order, error) {
	return s.find(ctx, getOrderByTicketSQL, ticket)
}

func (s *OrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	return s.find(ctx, getOrderSQL, id)
}

func (s *OrderStore) History(ctx context.Context, orderID string) ([]order.HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, getOrderHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying history of %q: %w", orderID, err)
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.HistoryEntry, error) {
		var (
			e      order.HistoryEntry
			status string
		)
		err := row.Scan(&status, &e.At, &e.Actor)
		e.Status = order.Status(status)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning history of %q: %w", orderID, err)
	}
	return history, nil
}

// InTx runs fn in a READ COMMITTED transaction. Stock rows are locked
// explicitly by the Tx, so no stronger isolation is needed.
func (s *OrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(t pgx.Tx) error {
		return fn(ctx, &orderTx{tx: t})
	})
}

func (s *OrderStore) find(ctx context.Context, sql string, arg string) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}

	lines, err := s.pool.Query(ctx, getOrderLinesSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("querying lines of %q: %w", o.ID, err)
	}
	o.Lines, err = pgx.CollectRows(lines, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("scanning lines of %q: %w", o.ID, err)
	}
	return o, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                                order.Order
		accountID, orderType, status, pm string
		address, contact                 []byte
		subtotal, disc, fee, tax, total  decimal.Decimal
	)
	err := row.Scan(
		&o.ID, &o.Number, &accountID, &o.SessionID, &orderType, &o.CollectionSlot,
		&address, &o.ZoneID, &contact, &subtotal, &disc, &fee, &tax, &total,
		&o.DiscountCode, &status, &o.Ticket, &o.TrackingToken, &pm, &o.PaymentRef,
		&o.IdempotencyKey, &o.LoyaltyPoints, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.Owner = order.AccountOwner(accountID)
	o.Type = fulfillment.Type(orderType)
	o.Status = order.Status(status)
	o.PaymentMethod = payment.Method(pm)
	o.Breakdown.Subtotal = money.FromDecimal(subtotal)
	o.Breakdown.Discount = money.FromDecimal(disc)
	o.Breakdown.DeliveryFee = money.FromDecimal(fee)
	o.Breakdown.Tax = money.FromDecimal(tax)
	o.Breakdown.Total = money.FromDecimal(total)

	if len(address) > 0 && string(address) != "null" {
		o.DeliveryAddress = &order.Address{}
		if err := json.Unmarshal(address, o.DeliveryAddress); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery address: %w", err)
		}
	}
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return nil, fmt.Errorf("unmarshaling contact: %w", err)
	}
	return &o, nil
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l               order.Line
		unit, lineTotal decimal.Decimal
		options         []byte
	)
	if err := row.Scan(&l.ItemID, &l.Name, &l.Quantity, &unit, &options, &lineTotal); err != nil {
		return l, err
	}
	l.UnitPrice = money.FromDecimal(unit)
	l.LineTotal = money.FromDecimal(lineTotal)
	if err := json.Unmarshal(options, &l.Options); err != nil {
		return l, fmt.Errorf("unmarshaling line options: %w", err)
	}
	return l, nil
}

// nullable returns nil for an empty string so foreign keys stay NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
