package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/apperr"
	"github.com/xenking/food-checkout/internal/domain/discount"
	"github.com/xenking/food-checkout/internal/domain/menu"
)

const (
	saveAttempts = 3
	maxQuantity  = 99
	maxLines     = 50
)

// AddLine is the input of Service.AddLine.
type AddLine struct {
	ItemID   string
	Quantity int
	Options  []string
}

// Service applies cart mutations as read-modify-write cycles against a Store.
type Service struct {
	store Store
	menu  menu.Repository
	now   func() time.Time
}

// NewService creates a cart Service.
func NewService(store Store, menu menu.Repository) *Service {
	return &Service{store: store, menu: menu, now: time.Now}
}

// Get returns the cart for key.
func (s *Service) Get(ctx context.Context, key Key) (*Cart, error) {
	if !key.Valid() {
		return nil, apperr.Validation("cart", "cart owner is required")
	}
	c, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	return c, nil
}

// AddLine adds an item to the cart, merging with an existing line that has
// the same customizations.
func (s *Service) AddLine(ctx context.Context, key Key, in AddLine) (*Cart, error) {
	if in.ItemID == "" {
		return nil, apperr.Validation("item_id", "item is required")
	}
	if in.Quantity <= 0 || in.Quantity > maxQuantity {
		return nil, apperr.Validation("quantity", "quantity must be between 1 and 99")
	}

	items, err := s.menu.GetByIDs(ctx, []string{in.ItemID})
	if err != nil {
		return nil, errors.Wrap(err, "get menu item")
	}
	if len(items) == 0 || !items[0].Active {
		return nil, apperr.ItemUnavailable(in.ItemID, "item is not available")
	}
	price, _, err := items[0].PriceWith(in.Options)
	if err != nil {
		return nil, apperr.ItemUnavailable(in.ItemID, err.Error())
	}

	return s.mutate(ctx, key, func(c *Cart) error {
		for i := range c.Lines {
			if c.Lines[i].sameChoice(in.ItemID, in.Options) {
				q := c.Lines[i].Quantity + in.Quantity
				if q > maxQuantity {
					return apperr.Validation("quantity", "quantity must be between 1 and 99")
				}
				c.Lines[i].Quantity = q
				c.Lines[i].UnitPrice = price
				return nil
			}
		}
		if len(c.Lines) >= maxLines {
			return apperr.Validation("lines", "cart is full")
		}
		c.Lines = append(c.Lines, Line{
			ItemID:    in.ItemID,
			Quantity:  in.Quantity,
			Options:   in.Options,
			UnitPrice: price,
		})
		return nil
	})
}

// UpdateQuantity sets the quantity of the line at index. Zero removes it.
func (s *Service) UpdateQuantity(ctx context.Context, key Key, index, qty int) (*Cart, error) {
	if qty < 0 || qty > maxQuantity {
		return nil, apperr.Validation("quantity", "quantity must be between 0 and 99")
	}
	return s.mutate(ctx, key, func(c *Cart) error {
		if index < 0 || index >= len(c.Lines) {
			return apperr.NotFound("cart line")
		}
		if qty == 0 {
			c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
			return nil
		}
		c.Lines[index].Quantity = qty
		return nil
	})
}

// RemoveLine deletes the line at index.
func (s *Service) RemoveLine(ctx context.Context, key Key, index int) (*Cart, error) {
	return s.UpdateQuantity(ctx, key, index, 0)
}

// ApplyCode stores a discount code on the cart. An empty code removes it.
// Eligibility is checked at preview and checkout time, not here.
func (s *Service) ApplyCode(ctx context.Context, key Key, code string) (*Cart, error) {
	code = discount.NormalizeCode(code)
	return s.mutate(ctx, key, func(c *Cart) error {
		c.DiscountCode = code
		return nil
	})
}

// Clear removes the cart.
func (s *Service) Clear(ctx context.Context, key Key) error {
	if !key.Valid() {
		return apperr.Validation("cart", "cart owner is required")
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}

// mutate runs fn on a fresh copy of the cart and saves it, retrying the whole
// cycle when a concurrent writer wins the version race.
func (s *Service) mutate(ctx context.Context, key Key, fn func(*Cart) error) (*Cart, error) {
	if !key.Valid() {
		return nil, apperr.Validation("cart", "cart owner is required")
	}

	for range saveAttempts {
		c, err := s.store.Get(ctx, key)
		if err != nil {
			return nil, errors.Wrap(err, "get cart")
		}
		if err := fn(c); err != nil {
			return nil, err
		}

		now := s.now()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now

		err = s.store.Save(ctx, c, c.Version)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, errors.Wrap(err, "save cart")
		}
	}
	return nil, apperr.New(apperr.KindCartChanged, "cart is being modified concurrently, try again")
}
