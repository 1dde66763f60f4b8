package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

const (
	lockStockSQL = `SELECT item_id, quantity, low_threshold, tracked FROM stock
		WHERE item_id = ANY($1) ORDER BY item_id FOR UPDATE`

	decrementStockSQL = `UPDATE stock SET quantity = quantity - $2 WHERE item_id = $1 AND tracked`

	ticketExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE ticket = $1)`

	insertOrderSQL = `INSERT INTO orders (id, account_id, session_id, order_type, collection_slot,
			delivery_address, zone_id, contact, subtotal, discount, delivery_fee, tax, total,
			discount_code, status, ticket, tracking_token, payment_method, payment_ref,
			idempotency_key, loyalty_points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23)
		RETURNING number`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, position, item_id, name, quantity,
			unit_price, options, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	appendHistorySQL = `INSERT INTO order_status_history (order_id, status, actor, changed_at)
		VALUES ($1, $2, $3, $4)`

	incrementDiscountUsageSQL = `UPDATE discount_codes SET total_used_count = total_used_count + 1
		WHERE code = $1 AND (total_usage_limit = 0 OR total_used_count < total_usage_limit)`

	// NO KEY UPDATE leaves the foreign key share locks taken by order inserts
	// alone, so only competing redemptions wait.
	lockAccountSQL = `SELECT has_ordered FROM accounts WHERE id = $1 FOR NO KEY UPDATE`

	countOwnerUsageSQL = `SELECT COUNT(*) FROM discount_usages WHERE code = $1 AND account_id = $2`

	insertDiscountUsageSQL = `INSERT INTO discount_usages (code, order_id, account_id) VALUES ($1, $2, $3)`

	markOrderedSQL = `UPDATE accounts SET has_ordered = TRUE WHERE id = $1`

	accrueLoyaltySQL = `UPDATE accounts SET loyalty_points = loyalty_points + $2 WHERE id = $1`

	setStatusSQL = `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
)

// Constraint names referenced when mapping violations.
const (
	idempotencyKeyConstraint = "orders_idempotency_key_key"
	ticketConstraint         = "orders_ticket_key"
	orderAccountConstraint   = "orders_account_id_fkey"
	lineItemConstraint       = "order_lines_item_id_fkey"
	stockQuantityConstraint  = "stock_quantity_check"
)

// orderTx implements order.Tx on a pgx transaction.
type orderTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*orderTx)(nil)

func (t *orderTx) Lock(ctx context.Context, ids []string) (map[string]stock.Entry, error) {
	rows, err := t.tx.Query(ctx, lockStockSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking stock: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanStock)
	if err != nil {
		return nil, fmt.Errorf("scanning locked stock: %w", err)
	}
	out := make(map[string]stock.Entry, len(entries))
	for _, e := range entries {
		out[e.ItemID] = e
	}
	return out, nil
}

func (t *orderTx) Decrement(ctx context.Context, itemID string, qty int) error {
	if _, err := t.tx.Exec(ctx, decrementStockSQL, itemID, qty); err != nil {
		if code, constraint, ok := pgError(err); ok && code == codeCheckViolation && constraint == stockQuantityConstraint {
			return apperr.StockUnavailable(itemID)
		}
		return fmt.Errorf("decrementing stock for %q: %w", itemID, err)
	}
	return nil
}

func (t *orderTx) TicketExists(ctx context.Context, ticket string) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, ticketExistsSQL, ticket).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking ticket: %w", err)
	}
	return exists, nil
}

func (t *orderTx) Insert(ctx context.Context, o *order.Order) error {
	var address []byte
	if o.DeliveryAddress != nil {
		b, err := json.Marshal(o.DeliveryAddress)
		if err != nil {
			return fmt.Errorf("marshaling delivery address: %w", err)
		}
		address = b
	}
	contact, err := json.Marshal(o.Contact)
	if err != nil {
		return fmt.Errorf("marshaling contact: %w", err)
	}

	accountID, _ := o.Owner.ID()
	b := o.Breakdown
	err = t.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, nullable(accountID), o.SessionID, string(o.Type), o.CollectionSlot,
		address, nullable(o.ZoneID), contact,
		b.Subtotal.Decimal(), b.Discount.Decimal(), b.DeliveryFee.Decimal(), b.Tax.Decimal(), b.Total.Decimal(),
		o.DiscountCode, string(o.Status), o.Ticket, o.TrackingToken, string(o.PaymentMethod), o.PaymentRef,
		o.IdempotencyKey, o.LoyaltyPoints, o.CreatedAt, o.UpdatedAt,
	).Scan(&o.Number)
	if err != nil {
		return mapInsertError(o, err)
	}

	for i, l := range o.Lines {
		options, err := json.Marshal(l.Options)
		if err != nil {
			return fmt.Errorf("marshaling line options: %w", err)
		}
		if l.Options == nil {
			options = []byte("[]")
		}
		_, err = t.tx.Exec(ctx, insertOrderLineSQL,
			o.ID, i, l.ItemID, l.Name, l.Quantity, l.UnitPrice.Decimal(), options, l.LineTotal.Decimal())
		if err != nil {
			if code, constraint, ok := pgError(err); ok && code == codeForeignKeyViolation && constraint == lineItemConstraint {
				return apperr.ItemUnavailable(l.ItemID, "item is no longer available")
			}
			return fmt.Errorf("inserting line %d of order %q: %w", i, o.ID, err)
		}
	}
	return nil
}

// mapInsertError turns constraint violations on the orders row into domain
// errors.
func mapInsertError(o *order.Order, err error) error {
	code, constraint, ok := pgError(err)
	if !ok {
		return fmt.Errorf("inserting order %q: %w", o.ID, err)
	}
	switch {
	case code == codeUniqueViolation && constraint == idempotencyKeyConstraint:
		return order.ErrDuplicateIdempotencyKey
	case code == codeUniqueViolation && constraint == ticketConstraint:
		return apperr.New(apperr.KindTicketGenerationFailed, "ticket was taken concurrently")
	case code == codeForeignKeyViolation && constraint == orderAccountConstraint:
		return apperr.New(apperr.KindUserNotFound, "account no longer exists")
	case code == codeNotNullViolation:
		return apperr.Validation("", "order is missing a required value")
	case code == codeCheckViolation:
		return apperr.Internal(fmt.Errorf("order %q violates %s: %w", o.ID, constraint, err))
	}
	return fmt.Errorf("inserting order %q: %w", o.ID, err)
}

func (t *orderTx) AppendHistory(ctx context.Context, orderID string, e order.HistoryEntry) error {
	if _, err := t.tx.Exec(ctx, appendHistorySQL, orderID, string(e.Status), e.Actor, e.At); err != nil {
		return fmt.Errorf("appending history to %q: %w", orderID, err)
	}
	return nil
}

func (t *orderTx) IncrementDiscountUsage(ctx context.Context, code string) error {
	tag, err := t.tx.Exec(ctx, incrementDiscountUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage of %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindDiscountUsageLimit, "discount code "+code+" has been fully redeemed")
	}
	return nil
}

// RecordDiscountUsage serializes redemptions per owner on the account row, so
// the usage count read after the lock includes every committed competitor.
func (t *orderTx) RecordDiscountUsage(ctx context.Context, u order.DiscountUsage) error {
	var hasOrdered bool
	err := t.tx.QueryRow(ctx, lockAccountSQL, u.OwnerID).Scan(&hasOrdered)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.KindUserNotFound, "account no longer exists")
	}
	if err != nil {
		return fmt.Errorf("locking account %q: %w", u.OwnerID, err)
	}
	if u.FirstOrderOnly && hasOrdered {
		return customerLimitReached(u.Code)
	}
	if u.PerCustomerLimit > 0 {
		var used int
		if err := t.tx.QueryRow(ctx, countOwnerUsageSQL, u.Code, u.OwnerID).Scan(&used); err != nil {
			return fmt.Errorf("counting usage of %q: %w", u.Code, err)
		}
		if used >= u.PerCustomerLimit {
			return customerLimitReached(u.Code)
		}
	}
	if _, err := t.tx.Exec(ctx, insertDiscountUsageSQL, u.Code, u.OrderID, u.OwnerID); err != nil {
		return fmt.Errorf("recording usage of %q: %w", u.Code, err)
	}
	return nil
}

func customerLimitReached(code string) error {
	return &apperr.Error{
		Kind:    apperr.KindDiscountCustomerLimit,
		Message: "discount code " + code + " was already used on another order",
		Field:   "discount_code",
	}
}

func (t *orderTx) MarkOrdered(ctx context.Context, ownerID string) error {
	return t.updateAccount(ctx, markOrderedSQL, ownerID)
}

func (t *orderTx) AccrueLoyalty(ctx context.Context, ownerID string, points int64) error {
	return t.updateAccount(ctx, accrueLoyaltySQL, ownerID, points)
}

func (t *orderTx) updateAccount(ctx context.Context, sql, ownerID string, args ...any) error {
	tag, err := t.tx.Exec(ctx, sql, append([]any{ownerID}, args...)...)
	if err != nil {
		return fmt.Errorf("updating account %q: %w", ownerID, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindUserNotFound, "account no longer exists")
	}
	return nil
}

func (t *orderTx) CompareAndSetStatus(ctx context.Context, orderID string, from, to order.Status, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, setStatusSQL, orderID, string(from), string(to), at)
	if err != nil {
		return false, fmt.Errorf("setting status of %q: %w", orderID, err)
	}
	return tag.RowsAffected() == 1, nil
}
