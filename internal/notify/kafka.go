package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/food-checkout/internal/domain/order"
	"github.com/xenking/food-checkout/internal/domain/stock"
)

// DefaultTopic receives order and stock events.
const DefaultTopic = "order-events"

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ order.Publisher = (*KafkaPublisher)(nil)
	_ StockAlerter    = (*KafkaPublisher)(nil)
)

// KafkaPublisher writes events to a Kafka topic. Order events are keyed by
// order id so all events of one order land on the same partition in order.
type KafkaPublisher struct {
	w   MessageWriter
	now func() time.Time
}

// NewKafkaWriter returns a writer for topic on the given brokers.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaPublisher creates a KafkaPublisher on top of w.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w, now: time.Now}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	msg := kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: EncodeEvent(e, p.now()),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "write %s for order %s", e.Type, e.Order.ID)
	}
	return nil
}

// StockLow publishes one message per item, keyed by item id.
func (p *KafkaPublisher) StockLow(ctx context.Context, entries []stock.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := p.now()
	msgs := make([]kafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = kafka.Message{
			Key:   []byte(e.ItemID),
			Value: EncodeStockLow(e, now),
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(EventStockLow)},
			},
		}
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		return errors.Wrap(err, "write stock alerts")
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
