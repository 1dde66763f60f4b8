package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/pricing"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

// --- Mock implementations ---

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

type mockSender struct {
	sent []*gomail.Message
	err  error
}

func (m *mockSender) DialAndSend(msgs ...*gomail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msgs...)
	return nil
}

// --- Helpers ---

func testOrder() *order.Order {
	return &order.Order{
		ID:            "ord-1",
		Number:        7,
		Owner:         order.AccountOwner("acc-1"),
		Type:          fulfillment.Delivery,
		Contact:       order.Contact{Name: "Ada", Email: "ada@example.com"},
		Status:        order.StatusReceived,
		Ticket:        "K7Q2MX",
		TrackingToken: "secret-token",
		PaymentRef:    "pay_123",
		Lines: []order.Line{
			{ItemID: "wrap", Name: "Wrap", Quantity: 3, UnitPrice: money.MustParse("8.50"), LineTotal: money.MustParse("25.50")},
		},
		Breakdown: pricing.Breakdown{
			Subtotal:    money.MustParse("25.50"),
			DeliveryFee: money.MustParse("2.50"),
			Tax:         money.MustParse("6.44"),
			Total:       money.MustParse("34.44"),
		},
	}
}

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

// --- Tests ---

func TestEncodeEvent_Created(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got := decode(t, EncodeEvent(order.Event{Type: order.EventCreated, Order: testOrder()}, at))

	assert.Equal(t, "order.created", got["type"])
	assert.Equal(t, "2026-03-01T12:00:00Z", got["occurred_at"])
	assert.Equal(t, "ord-1", got["order_id"])
	assert.EqualValues(t, 7, got["number"])
	assert.Equal(t, "acc-1", got["account_id"])
	assert.Equal(t, "34.44", got["breakdown"].(map[string]any)["total"])
	assert.Len(t, got["lines"], 1)
	assert.NotContains(t, got, "previous_status")
	assert.NotContains(t, got, "tracking_token")
	assert.NotContains(t, got, "payment_ref")
}

func TestEncodeEvent_StatusChanged(t *testing.T) {
	o := testOrder()
	o.Owner = order.Owner{}
	o.Status = order.StatusPreparing

	got := decode(t, EncodeEvent(order.Event{Type: order.EventStatusChanged, Order: o, Previous: order.StatusReceived}, time.Now()))

	assert.Equal(t, "preparing", got["status"])
	assert.Equal(t, "received", got["previous_status"])
	assert.NotContains(t, got, "account_id")
	assert.NotContains(t, got, "lines")
	assert.NotContains(t, got, "contact")
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &mockWriter{}
	p := NewKafkaPublisher(w)

	require.NoError(t, p.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: testOrder()}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "ord-1", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))
	assert.Equal(t, "ord-1", decode(t, msg.Value)["order_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Error(t *testing.T) {
	w := &mockWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w)

	err := p.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: testOrder()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaPublisher_StockLow(t *testing.T) {
	w := &mockWriter{}
	p := NewKafkaPublisher(w)

	require.NoError(t, p.StockLow(context.Background(), nil))
	assert.Empty(t, w.msgs)

	err := p.StockLow(context.Background(), []stock.Entry{
		{ItemID: "wrap", Quantity: 1, LowThreshold: 3, Tracked: true},
		{ItemID: "cola", Quantity: 0, LowThreshold: 5, Tracked: true},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "cola", string(w.msgs[1].Key))
	assert.Equal(t, EventStockLow, string(w.msgs[1].Headers[0].Value))

	got := decode(t, w.msgs[0].Value)
	assert.Equal(t, "wrap", got["item_id"])
	assert.EqualValues(t, 1, got["quantity"])
	assert.EqualValues(t, 3, got["threshold"])
}

func TestMailer_Confirmation(t *testing.T) {
	s := &mockSender{}
	m := NewMailer(MailConfig{From: "orders@eat.example.com", BaseURL: "https://eat.example.com"}, s)

	require.NoError(t, m.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: testOrder()}))

	require.Len(t, s.sent, 1)
	msg := s.sent[0]
	assert.Equal(t, []string{"orders@eat.example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"Order #7 confirmed"}, msg.GetHeader("Subject"))
	require.Len(t, msg.GetHeader("To"), 1)
	assert.Contains(t, msg.GetHeader("To")[0], "ada@example.com")

	var buf bytes.Buffer
	_, err := msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Content-ID: <"+qrName+">")
}

func TestMailer_StatusUpdates(t *testing.T) {
	s := &mockSender{}
	m := NewMailer(MailConfig{From: "orders@eat.example.com"}, s)
	ctx := context.Background()

	o := testOrder()
	o.Status = order.StatusPreparing
	require.NoError(t, m.Publish(ctx, order.Event{Type: order.EventStatusChanged, Order: o, Previous: order.StatusReceived}))
	assert.Empty(t, s.sent)

	o.Status = order.StatusOutForDelivery
	require.NoError(t, m.Publish(ctx, order.Event{Type: order.EventStatusChanged, Order: o, Previous: order.StatusPreparing}))
	require.Len(t, s.sent, 1)
	assert.Equal(t, []string{"Order #7 update"}, s.sent[0].GetHeader("Subject"))
}

func TestMailer_SkipsWithoutEmail(t *testing.T) {
	s := &mockSender{}
	m := NewMailer(MailConfig{}, s)

	o := testOrder()
	o.Contact.Email = ""
	require.NoError(t, m.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: o}))
	assert.Empty(t, s.sent)
}

func TestMailer_SendError(t *testing.T) {
	m := NewMailer(MailConfig{}, &mockSender{err: errors.New("smtp refused")})

	err := m.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: testOrder()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp refused")
}

func TestMulti(t *testing.T) {
	var calls []string
	record := func(name string, err error) order.Publisher {
		return order.PublisherFunc(func(context.Context, order.Event) error {
			calls = append(calls, name)
			return err
		})
	}
	w := &mockWriter{}
	m := Multi{
		record("first", errors.New("first failed")),
		NewKafkaPublisher(w),
		record("last", errors.New("last failed")),
	}

	err := m.Publish(context.Background(), order.Event{Type: order.EventCreated, Order: testOrder()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Contains(t, err.Error(), "last failed")
	assert.Equal(t, []string{"first", "last"}, calls)
	assert.Len(t, w.msgs, 1)

	require.NoError(t, m.StockLow(context.Background(), []stock.Entry{{ItemID: "wrap", Tracked: true}}))
	assert.Len(t, w.msgs, 2)
}

func TestNopAndLog(t *testing.T) {
	ctx := context.Background()
	e := order.Event{Type: order.EventStatusChanged, Order: testOrder(), Previous: order.StatusReceived}
	entries := []stock.Entry{{ItemID: "wrap", Tracked: true}}

	assert.NoError(t, Nop{}.Publish(ctx, e))
	assert.NoError(t, Nop{}.StockLow(ctx, entries))
	assert.NoError(t, Log{}.Publish(ctx, e))
	assert.NoError(t, Log{}.StockLow(ctx, entries))
}
