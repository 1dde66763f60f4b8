// Package payment defines the payment gateway collaborator used by checkout.
package payment

import (
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/food-checkout/internal/domain/money"
)

// Method is how the customer pays.
type Method string

const (
	Cash Method = "cash"
	Card Method = "card"
)

// Valid reports whether m is a supported method.
func (m Method) Valid() bool { return m == Cash || m == Card }

// ErrDeclined is returned by a Charger when the gateway refuses the charge.
var ErrDeclined = errors.New("payment declined")

// Charge is a request to capture funds.
type Charge struct {
	// IdempotencyKey makes retried charges for one checkout collapse into one.
	IdempotencyKey string
	Amount         money.Amount
	Currency       string
	Token          string
}

// Receipt is a successful charge.
type Receipt struct {
	Reference string
}

// Charger captures and voids payments.
type Charger interface {
	Charge(ctx context.Context, c Charge) (*Receipt, error)
	// Void releases a captured charge whose order could not be committed.
	Void(ctx context.Context, ref string) error
}

// DeclineTokenPrefix marks tokens the simulated gateway refuses.
const DeclineTokenPrefix = "tok_decline"

// Simulated is an in-process gateway for local runs and tests. Charges with a
// token starting with DeclineTokenPrefix are declined; everything else is
// approved once per idempotency key.
type Simulated struct {
	mu     sync.Mutex
	byKey  map[string]string
	voided map[string]bool
}

// NewSimulated creates a Simulated gateway.
func NewSimulated() *Simulated {
	return &Simulated{
		byKey:  make(map[string]string),
		voided: make(map[string]bool),
	}
}

// Charge implements Charger.
func (s *Simulated) Charge(_ context.Context, c Charge) (*Receipt, error) {
	if strings.HasPrefix(c.Token, DeclineTokenPrefix) {
		return nil, ErrDeclined
	}
	if c.Amount <= 0 {
		return nil, errors.Errorf("invalid charge amount %s", c.Amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.byKey[c.IdempotencyKey]; ok && c.IdempotencyKey != "" {
		return &Receipt{Reference: ref}, nil
	}
	ref := "sim_" + uuid.NewString()
	if c.IdempotencyKey != "" {
		s.byKey[c.IdempotencyKey] = ref
	}
	return &Receipt{Reference: ref}, nil
}

// Void implements Charger.
func (s *Simulated) Void(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voided[ref] = true
	return nil
}

// Voided reports whether ref was voided.
func (s *Simulated) Voided(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voided[ref]
}
