package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/food-checkout/internal/domain/cart"
)

var _ cart.Store = (*CartStore)(nil)

// CartStore keeps carts in a map guarded by a mutex.
type CartStore struct {
	mu    sync.Mutex
	carts map[cart.Key]cart.Cart
}

// NewCartStore creates an empty CartStore.
func NewCartStore() *CartStore {
	return &CartStore{carts: make(map[cart.Key]cart.Cart)}
}

func (s *CartStore) Get(_ context.Context, key cart.Key) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[key]
	if !ok {
		return &cart.Cart{Key: key}, nil
	}
	return copyCart(c), nil
}

func (s *CartStore) Save(_ context.Context, c *cart.Cart, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts[c.Key].Version != expected {
		return cart.ErrVersionConflict
	}
	c.Version = expected + 1
	s.carts[c.Key] = *copyCart(*c)
	return nil
}

func (s *CartStore) Delete(_ context.Context, key cart.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, key)
	return nil
}

func copyCart(c cart.Cart) *cart.Cart {
	c.Lines = slices.Clone(c.Lines)
	for i := range c.Lines {
		c.Lines[i].Options = slices.Clone(c.Lines[i].Options)
	}
	return &c
}
