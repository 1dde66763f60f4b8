package menu

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/money"
)

// ErrNotFound is returned when a requested menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// Selection controls how many options of a group may be chosen.
type Selection string

const (
	SelectSingle   Selection = "single"
	SelectMultiple Selection = "multiple"
)

// Item is a sellable menu entry.
type Item struct {
	ID         string
	Name       string
	CategoryID string
	Price      money.Amount
	Active     bool
	Groups     []Group
}

// Group is a set of customization options offered for an item, e.g. "Spice
// level" or "Add-ons".
type Group struct {
	ID        string
	Name      string
	Selection Selection
	Required  bool
	Options   []Option
}

// Option is a single customization choice with an optional surcharge.
type Option struct {
	ID        string
	GroupID   string
	Name      string
	Surcharge money.Amount
	Default   bool
	Active    bool
}

// Repository defines read operations for the menu catalog.
type Repository interface {
	List(ctx context.Context) ([]Item, error)
	GetByIDs(ctx context.Context, ids []string) ([]Item, error)
}

// Option returns the active option with the given id.
func (it Item) Option(id string) (Option, bool) {
	for _, g := range it.Groups {
		for _, o := range g.Options {
			if o.ID == id && o.Active {
				return o, true
			}
		}
	}
	return Option{}, false
}

// SelectionError describes a customization selection that violates the
// item's group rules.
type SelectionError struct {
	ItemID   string
	GroupID  string
	OptionID string
	Reason   string
}

func (e *SelectionError) Error() string {
	switch {
	case e.OptionID != "":
		return "option " + e.OptionID + " " + e.Reason
	case e.GroupID != "":
		return "group " + e.GroupID + " " + e.Reason
	default:
		return e.Reason
	}
}

// PriceWith resolves the selected option ids against the item and returns the
// unit price (base plus surcharges) together with the chosen options in
// selection order.
//
// Unknown or deactivated options, more than one option in a single-choice
// group, and a missing choice for a required group are rejected.
func (it Item) PriceWith(selected []string) (money.Amount, []Option, error) {
	chosen := make([]Option, 0, len(selected))
	perGroup := make(map[string]int, len(it.Groups))
	for _, id := range selected {
		if slices.ContainsFunc(chosen, func(o Option) bool { return o.ID == id }) {
			return 0, nil, &SelectionError{ItemID: it.ID, OptionID: id, Reason: "selected twice"}
		}
		o, ok := it.Option(id)
		if !ok {
			return 0, nil, &SelectionError{ItemID: it.ID, OptionID: id, Reason: "is no longer offered"}
		}
		perGroup[o.GroupID]++
		chosen = append(chosen, o)
	}

	for _, g := range it.Groups {
		n := perGroup[g.ID]
		if g.Selection == SelectSingle && n > 1 {
			return 0, nil, &SelectionError{ItemID: it.ID, GroupID: g.ID, Reason: "accepts a single option"}
		}
		if g.Required && n == 0 {
			return 0, nil, &SelectionError{ItemID: it.ID, GroupID: g.ID, Reason: "requires a choice"}
		}
	}

	price := it.Price
	for _, o := range chosen {
		price += o.Surcharge
	}
	return price, chosen, nil
}

// Index maps items by id.
func Index(items []Item) map[string]Item {
	m := make(map[string]Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}
