package order

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/food-checkout/internal/domain/account"
	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/cart"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/fulfillment"
	"github.com/xenking/food-checkout/internal/domain/money"
	"github.com/xenking/food-checkout/internal/domain/payment"
	"github.com/xenking/food-checkout/internal/domain/pricing"
	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/domain/zone"
)

// CartResolver prices a stored cart.
type CartResolver interface {
	Resolve(ctx context.Context, key cart.Key) (*cart.Resolved, error)
}

// Config holds business settings for checkout.
type Config struct {
	TaxRateBPS           int64
	Currency             string
	LoyaltyPointsPerUnit int64
	TicketAttempts       int
}

// Deps are the collaborators of Service. Invoices, Publisher, Meter, Tracer
// and Tickets are optional.
type Deps struct {
	Orders    Store
	Carts     cart.Store
	Resolver  CartResolver
	Discounts discount.Validator
	Zones     zone.Resolver
	Accounts  account.Repository
	Payments  payment.Charger
	Invoices  Invoicer
	Publisher Publisher
	Meter     metric.Meter
	Tracer    trace.Tracer
	Tickets   TicketGenerator
}

// Service encapsulates order creation and lifecycle business logic.
type Service struct {
	cfg Config

	orders    Store
	carts     cart.Store
	resolver  CartResolver
	discounts discount.Validator
	zones     zone.Resolver
	accounts  account.Repository
	payments  payment.Charger
	invoices  Invoicer
	publisher Publisher
	tickets   TicketGenerator

	tracer   trace.Tracer
	orderCnt metric.Int64Counter
	duration metric.Float64Histogram

	inflight singleflight.Group
	dispatch sync.WaitGroup
	now      func() time.Time
}

// NewService creates an order Service.
func NewService(cfg Config, d Deps) (*Service, error) {
	if d.Invoices == nil {
		d.Invoices = nopInvoicer{}
	}
	if d.Publisher == nil {
		d.Publisher = nopPublisher{}
	}
	if d.Meter == nil {
		d.Meter = metricnoop.NewMeterProvider().Meter("")
	}
	if d.Tracer == nil {
		d.Tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if d.Tickets == nil {
		d.Tickets = RandomTicket
	}
	if cfg.TicketAttempts <= 0 {
		cfg.TicketAttempts = TicketAttempts
	}

	orderCnt, err := d.Meter.Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}
	duration, err := d.Meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Checkout duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create duration histogram")
	}

	return &Service{
		cfg:       cfg,
		orders:    d.Orders,
		carts:     d.Carts,
		resolver:  d.Resolver,
		discounts: d.Discounts,
		zones:     d.Zones,
		accounts:  d.Accounts,
		payments:  d.Payments,
		invoices:  d.Invoices,
		publisher: d.Publisher,
		tickets:   d.Tickets,
		tracer:    d.Tracer,
		orderCnt:  orderCnt,
		duration:  duration,
		now:       time.Now,
	}, nil
}

// Wait blocks until post-commit dispatches started so far have finished.
func (s *Service) Wait() {
	s.dispatch.Wait()
}

// Checkout converts the caller's cart into an order.
//
// A request whose idempotency key already produced an order returns that
// order unchanged with Replayed set. Otherwise stock, discount usage, loyalty
// and the initial status history are written in one transaction. Invoicing
// and notifications run after commit and never fail the checkout.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout")
	defer span.End()
	start := s.now()

	res, err := s.checkout(ctx, req)

	outcome := "created"
	switch {
	case err != nil:
		outcome = string(apperr.KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	case res.Replayed:
		outcome = "replayed"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.orderCnt.Add(ctx, 1, attrs)
	s.duration.Record(ctx, s.now().Sub(start).Seconds(), attrs)
	if res != nil {
		span.SetAttributes(attribute.String("order.id", res.Order.ID))
	}
	return res, err
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := req.validate(s.now()); err != nil {
		return nil, err
	}

	if o, err := s.replay(ctx, req); err != nil || o != nil {
		if err != nil {
			return nil, err
		}
		return &CheckoutResult{Order: o, Replayed: true}, nil
	}

	// Concurrent duplicates inside this process share one execution, which
	// must outlive the leader's request.
	leader := false
	v, err, _ := s.inflight.Do(req.IdempotencyKey, func() (any, error) {
		leader = true
		return s.create(context.WithoutCancel(ctx), req)
	})
	if err != nil {
		// The same key may have committed between the replay check and
		// create, leaving this attempt with an already cleared cart.
		if o, rerr := s.replay(ctx, req); rerr == nil && o != nil {
			return &CheckoutResult{Order: o, Replayed: true}, nil
		}
		return nil, err
	}
	res := *v.(*CheckoutResult)
	if !leader {
		if err := checkCaller(res.Order, req.Caller); err != nil {
			return nil, err
		}
		res.Replayed = true
	}
	return &res, nil
}

// replay returns the order already committed under the request's
// idempotency key, if any.
func (s *Service) replay(ctx context.Context, req CheckoutRequest) (*Order, error) {
	o, err := s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find by idempotency key")
	}
	if err := checkCaller(o, req.Caller); err != nil {
		return nil, err
	}
	return o, nil
}

func checkCaller(o *Order, c Caller) error {
	id, known := o.Owner.ID()
	if known && id == c.AccountID || !known && c.AccountID == "" && o.SessionID == c.SessionID {
		return nil
	}
	return apperr.Validation("idempotency_key", "idempotency key was already used for another order")
}

func (s *Service) create(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	owner := req.Caller.Owner()
	key := req.Caller.CartKey()

	var acct *account.Account
	if id, ok := owner.ID(); ok {
		a, err := s.accounts.Get(ctx, id)
		if errors.Is(err, account.ErrNotFound) {
			return nil, apperr.New(apperr.KindUserNotFound, "account no longer exists")
		}
		if err != nil {
			return nil, errors.Wrap(err, "get account")
		}
		acct = a
	}

	resolved, err := s.resolver.Resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	var z *zone.Zone
	if req.OrderType == fulfillment.Delivery {
		z, err = s.zones.Resolve(ctx, req.DeliveryAddress.Location)
		if err != nil {
			return nil, errors.Wrap(err, "resolve zone")
		}
		if z == nil {
			return nil, &apperr.Error{
				Kind:    apperr.KindDeliveryUnavailable,
				Message: "we do not deliver to this address",
				Field:   "delivery_address",
			}
		}
	}

	decision, err := s.decideDiscount(ctx, req, resolved, acct)
	if err != nil {
		return nil, err
	}
	var discountAmount money.Amount
	if decision != nil {
		discountAmount = decision.Amount
	}

	lines := make([]pricing.Line, len(resolved.Lines))
	for i, l := range resolved.Lines {
		lines[i] = pricing.Line{UnitPrice: l.UnitPrice, Quantity: l.Quantity}
	}
	breakdown, err := pricing.Calculate(pricing.Input{
		Lines:      lines,
		OrderType:  req.OrderType,
		Discount:   discountAmount,
		Zone:       z,
		TaxRateBPS: s.cfg.TaxRateBPS,
	})
	if err != nil {
		return nil, err
	}

	// The cart must not have moved while it was being priced.
	current, err := s.carts.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if current.Version != resolved.Version {
		return nil, apperr.New(apperr.KindCartChanged, "cart changed during checkout, review it and try again")
	}

	o := s.newOrder(req, owner, resolved, breakdown, decision, z)

	if err := s.charge(ctx, req, o); err != nil {
		return nil, err
	}

	err = s.orders.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := s.persist(ctx, tx, o, resolved.Demand(), decision); err != nil {
			return err
		}
		// Claimed last so only one checkout per cart version commits.
		return s.claimCart(ctx, current, resolved.Version)
	})
	if err != nil {
		// A concurrent request with the same key may have won.
		if winner, ferr := s.orders.FindByIdempotencyKey(context.WithoutCancel(ctx), req.IdempotencyKey); ferr == nil {
			if cerr := checkCaller(winner, req.Caller); cerr != nil {
				return nil, cerr
			}
			return &CheckoutResult{Order: winner, Replayed: true}, nil
		}
		s.voidCharge(ctx, o)
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return nil, apperr.Internal(err)
		}
		return nil, err
	}

	s.afterCommit(ctx, key, o)
	return &CheckoutResult{Order: o}, nil
}

// claimCart bumps the cart version if it still equals the priced one.
func (s *Service) claimCart(ctx context.Context, c *cart.Cart, version int64) error {
	err := s.carts.Save(ctx, c, version)
	if errors.Is(err, cart.ErrVersionConflict) {
		return apperr.New(apperr.KindCartChanged, "cart changed during checkout, review it and try again")
	}
	if err != nil {
		return errors.Wrap(err, "claim cart")
	}
	return nil
}

// decideDiscount validates the requested or stored code. A nil decision means
// no discount applies.
func (s *Service) decideDiscount(ctx context.Context, req CheckoutRequest, r *cart.Resolved, acct *account.Account) (*discount.Decision, error) {
	code := r.DiscountCode
	if req.DiscountCode != nil {
		code = *req.DiscountCode
	}
	code = discount.NormalizeCode(code)
	if code == "" {
		return nil, nil
	}

	d, err := s.discounts.Validate(ctx, discountRequest(code, req.OrderType, r, acct))
	if err != nil {
		return nil, errors.Wrap(err, "validate discount")
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) newOrder(
	req CheckoutRequest,
	owner Owner,
	r *cart.Resolved,
	b pricing.Breakdown,
	d *discount.Decision,
	z *zone.Zone,
) *Order {
	now := s.now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		Owner:           owner,
		Type:            req.OrderType,
		CollectionSlot:  req.CollectionSlot,
		DeliveryAddress: req.DeliveryAddress,
		Contact:         req.Contact,
		Lines:           make([]Line, len(r.Lines)),
		Breakdown:       b,
		Status:          StatusReceived,
		TrackingToken:   uuid.NewString(),
		PaymentMethod:   req.PaymentMethod,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !owner.Known() {
		o.SessionID = req.Caller.SessionID
	}
	if z != nil {
		o.ZoneID = z.ID
	}
	if d != nil {
		o.DiscountCode = d.Code
	}
	if owner.Known() {
		o.LoyaltyPoints = account.Points(b.Total, s.cfg.LoyaltyPointsPerUnit)
	}
	for i, l := range r.Lines {
		opts := make([]LineOption, len(l.Options))
		for j, opt := range l.Options {
			opts[j] = LineOption{ID: opt.ID, Name: opt.Name, Surcharge: opt.Surcharge}
		}
		o.Lines[i] = Line{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Options:   opts,
			LineTotal: l.LineTotal,
		}
	}
	return o
}

// charge captures card payments before the transaction opens.
func (s *Service) charge(ctx context.Context, req CheckoutRequest, o *Order) error {
	if req.PaymentMethod != payment.Card || o.Breakdown.Total == 0 {
		return nil
	}
	rcpt, err := s.payments.Charge(ctx, payment.Charge{
		IdempotencyKey: req.IdempotencyKey,
		Amount:         o.Breakdown.Total,
		Currency:       s.cfg.Currency,
		Token:          req.PaymentToken,
	})
	if errors.Is(err, payment.ErrDeclined) {
		return &apperr.Error{
			Kind:    apperr.KindPaymentDeclined,
			Message: "your payment was declined",
			Field:   "payment_token",
			Err:     err,
		}
	}
	if err != nil {
		return errors.Wrap(err, "charge payment")
	}
	o.PaymentRef = rcpt.Reference
	return nil
}

func (s *Service) voidCharge(ctx context.Context, o *Order) {
	if o.PaymentRef == "" {
		return
	}
	if err := s.payments.Void(context.WithoutCancel(ctx), o.PaymentRef); err != nil {
		zctx.From(ctx).Error("Void payment failed",
			zap.String("payment_ref", o.PaymentRef),
			zap.String("idempotency_key", o.IdempotencyKey),
			zap.Error(err),
		)
	}
}

// persist performs every write of a checkout inside tx.
func (s *Service) persist(ctx context.Context, tx Tx, o *Order, demand map[string]int, d *discount.Decision) error {
	ticket, err := AllocateTicket(ctx, s.tickets, tx.TicketExists, s.cfg.TicketAttempts)
	if err != nil {
		return err
	}
	o.Ticket = ticket

	if err := stock.Reserve(ctx, tx, demand); err != nil {
		return err
	}
	if err := tx.Insert(ctx, o); err != nil {
		return err
	}
	if err := tx.AppendHistory(ctx, o.ID, HistoryEntry{
		Status: StatusReceived,
		At:     o.CreatedAt,
		Actor:  ActorCustomer,
	}); err != nil {
		return errors.Wrap(err, "append history")
	}
	if d != nil {
		if err := tx.IncrementDiscountUsage(ctx, d.Code); err != nil {
			return err
		}
	}

	ownerID, known := o.Owner.ID()
	if !known {
		return nil
	}
	if d != nil {
		if err := tx.RecordDiscountUsage(ctx, DiscountUsage{
			Code:             d.Code,
			OrderID:          o.ID,
			OwnerID:          ownerID,
			PerCustomerLimit: d.PerCustomerLimit,
			FirstOrderOnly:   d.FirstOrderOnly,
		}); err != nil {
			return err
		}
	}
	if err := tx.MarkOrdered(ctx, ownerID); err != nil {
		return errors.Wrap(err, "mark ordered")
	}
	if o.LoyaltyPoints > 0 {
		if err := tx.AccrueLoyalty(ctx, ownerID, o.LoyaltyPoints); err != nil {
			return errors.Wrap(err, "accrue loyalty")
		}
	}
	return nil
}

// afterCommit clears the cart and dispatches invoicing and notifications.
// Failures are logged and never returned.
func (s *Service) afterCommit(ctx context.Context, key cart.Key, o *Order) {
	ctx = context.WithoutCancel(ctx)
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	if err := s.carts.Delete(ctx, key); err != nil {
		lg.Warn("Clear cart failed", zap.Error(err))
	}

	s.dispatch.Add(1)
	go func() {
		defer s.dispatch.Done()
		if err := s.invoices.Generate(ctx, o); err != nil {
			lg.Warn("Generate invoice failed", zap.Error(err))
		}
		if err := s.publisher.Publish(ctx, Event{Type: EventCreated, Order: o}); err != nil {
			lg.Warn("Publish order event failed", zap.Error(err))
		}
	}()
}
