// Package invoice creates invoices for committed orders.
//
// An invoice mirrors the order lines and breakdown and carries a QR code of
// the order tracking link. Rendering the PDF is left to a separate worker,
// which fills PDFRef.
package invoice

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/skip2/go-qrcode"

	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/payment"
	"github.com/xenking/food-checkout/internal/domain/pricing"
)

// PaymentStatus of an invoice.
type PaymentStatus string

const (
	Paid    PaymentStatus = "paid"
	Pending PaymentStatus = "pending"
)

// Invoice is the billing document of one order.
type Invoice struct {
	OrderID       string
	Number        string
	Lines         []order.Line
	Breakdown     pricing.Breakdown
	PaymentStatus PaymentStatus
	TrackingURL   string
	QRCode        []byte
	PDFRef        string
	IssuedAt      time.Time
}

// Repository persists invoices. Create is a no-op when the order already
// has an invoice.
type Repository interface {
	Create(ctx context.Context, inv *Invoice) error
	GetByOrder(ctx context.Context, orderID string) (*Invoice, error)
}

// ErrNotFound is returned when an order has no invoice.
var ErrNotFound = errors.New("invoice not found")

var _ order.Invoicer = (*Service)(nil)

// Service generates invoices.
type Service struct {
	repo    Repository
	baseURL string
	qrSize  int
	now     func() time.Time
}

// NewService creates an invoice Service. baseURL is the public origin used
// to build tracking links.
func NewService(repo Repository, baseURL string) *Service {
	return &Service{repo: repo, baseURL: baseURL, qrSize: 256, now: time.Now}
}

// Generate implements order.Invoicer.
func (s *Service) Generate(ctx context.Context, o *order.Order) error {
	link := TrackingURL(s.baseURL, o.Ticket, o.TrackingToken)
	qr, err := QRCode(link, s.qrSize)
	if err != nil {
		return errors.Wrap(err, "render qr")
	}

	status := Pending
	if o.PaymentMethod == payment.Card {
		status = Paid
	}

	inv := &Invoice{
		OrderID:       o.ID,
		Number:        Number(o.Number),
		Lines:         o.Lines,
		Breakdown:     o.Breakdown,
		PaymentStatus: status,
		TrackingURL:   link,
		QRCode:        qr,
		IssuedAt:      s.now().UTC(),
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return errors.Wrapf(err, "create invoice for order %s", o.ID)
	}
	return nil
}

// Number formats the invoice number for an order number.
func Number(orderNumber int64) string {
	return fmt.Sprintf("INV-%08d", orderNumber)
}

// TrackingURL builds the guest tracking link for an order.
func TrackingURL(baseURL, ticket, token string) string {
	q := url.Values{}
	q.Set("ticket", ticket)
	q.Set("token", token)
	return baseURL + "/track?" + q.Encode()
}

// QRCode renders content as a PNG QR code of size pixels.
func QRCode(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
