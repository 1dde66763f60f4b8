package order

import (
	"context"
	"crypto/subtle"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/apperr"
)

// UpdateStatus moves an order to status `to` on behalf of actor.
//
// The transition is validated against the order's current status and applied
// with a compare-and-set, so two staff members racing on the same order
// cannot both win; the loser gets STATUS_CONFLICT.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status, actor string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()

	o, err := s.orders.Get(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("order")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	from := o.Status
	if err := Transition(o.Type, from, to); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err = s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.CompareAndSetStatus(ctx, orderID, from, to, now)
		if err != nil {
			return errors.Wrap(err, "set status")
		}
		if !ok {
			return &apperr.Error{
				Kind:    apperr.KindStatusConflict,
				Message: "order status was changed by someone else",
				From:    string(from),
				To:      string(to),
			}
		}
		if err := tx.AppendHistory(ctx, orderID, HistoryEntry{Status: to, At: now, Actor: actor}); err != nil {
			return errors.Wrap(err, "append history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Status = to
	o.UpdatedAt = now

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	s.dispatch.Add(1)
	go func(ctx context.Context) {
		defer s.dispatch.Done()
		if err := s.publisher.Publish(ctx, Event{Type: EventStatusChanged, Order: o, Previous: from}); err != nil {
			lg.Warn("Publish status event failed", zap.Error(err))
		}
	}(context.WithoutCancel(ctx))

	return o, nil
}

// Tracking is the guest-safe view of an order.
type Tracking struct {
	Order   *Order
	History []HistoryEntry
}

// Track looks an order up by ticket and tracking token. Any mismatch is
// reported as NOT_FOUND so tickets cannot be probed.
func (s *Service) Track(ctx context.Context, ticket, token string) (*Tracking, error) {
	if ticket == "" || token == "" {
		return nil, apperr.NotFound("order")
	}

	o, err := s.orders.FindByTicket(ctx, ticket)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("order")
	}
	if err != nil {
		return nil, errors.Wrap(err, "find by ticket")
	}
	if subtle.ConstantTimeCompare([]byte(o.TrackingToken), []byte(token)) != 1 {
		return nil, apperr.NotFound("order")
	}

	history, err := s.orders.History(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "get history")
	}
	return &Tracking{Order: o, History: history}, nil
}
