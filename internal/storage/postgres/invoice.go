package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/food-checkout/internal/domain/invoice"
	"github.com/xenking/food-checkout/internal/domain/money"
)

const (
	createInvoiceSQL = `INSERT INTO invoices (order_id, number, payment_status, lines, subtotal,
			discount, delivery_fee, tax, total, tracking_url, qr_code, pdf_ref, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (order_id) DO NOTHING`

	getInvoiceSQL = `SELECT order_id, number, payment_status, lines, subtotal, discount,
			delivery_fee, tax, total, tracking_url, qr_code, pdf_ref, issued_at
		FROM invoices WHERE order_id = $1`
)

var _ invoice.Repository = (*InvoiceRepository)(nil)

// InvoiceRepository implements invoice.Repository backed by PostgreSQL.
type InvoiceRepository struct {
	pool *pgxpool.Pool
}

// NewInvoiceRepository returns an InvoiceRepository that uses the given pool.
func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *invoice.Invoice) error {
	lines, err := json.Marshal(inv.Lines)
	if err != nil {
		return fmt.Errorf("marshaling invoice lines: %w", err)
	}
	b := inv.Breakdown
	_, err = r.pool.Exec(ctx, createInvoiceSQL,
		inv.OrderID, inv.Number, string(inv.PaymentStatus), lines,
		b.Subtotal.Decimal(), b.Discount.Decimal(), b.DeliveryFee.Decimal(), b.Tax.Decimal(), b.Total.Decimal(),
		inv.TrackingURL, inv.QRCode, inv.PDFRef, inv.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("creating invoice for %q: %w", inv.OrderID, err)
	}
	return nil
}

func (r *InvoiceRepository) GetByOrder(ctx context.Context, orderID string) (*invoice.Invoice, error) {
	var (
		inv                             invoice.Invoice
		status                          string
		lines                           []byte
		subtotal, disc, fee, tax, total decimal.Decimal
	)
	err := r.pool.QueryRow(ctx, getInvoiceSQL, orderID).Scan(
		&inv.OrderID, &inv.Number, &status, &lines, &subtotal, &disc, &fee, &tax, &total,
		&inv.TrackingURL, &inv.QRCode, &inv.PDFRef, &inv.IssuedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}
		return nil, fmt.Errorf("getting invoice for %q: %w", orderID, err)
	}
	if err := json.Unmarshal(lines, &inv.Lines); err != nil {
		return nil, fmt.Errorf("unmarshaling invoice lines: %w", err)
	}
	inv.PaymentStatus = invoice.PaymentStatus(status)
	inv.Breakdown.Subtotal = money.FromDecimal(subtotal)
	inv.Breakdown.Discount = money.FromDecimal(disc)
	inv.Breakdown.DeliveryFee = money.FromDecimal(fee)
	inv.Breakdown.Tax = money.FromDecimal(tax)
	inv.Breakdown.Total = money.FromDecimal(total)
	return &inv, nil
}
