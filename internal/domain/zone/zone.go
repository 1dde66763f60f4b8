// Package zone resolves delivery coordinates to a delivery zone.
package zone

import (
	"context"
	"math"

	"github.com/go-faster/errors"

	"github.com/xenking/food-checkout/internal/domain/money"
)

const earthRadiusKM = 6371.0

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

// Zone is a circular delivery area with a flat fee.
type Zone struct {
	ID           string
	Name         string
	Center       Coordinates
	RadiusKM     float64
	DeliveryFee  money.Amount
	MinimumOrder money.Amount
	Active       bool
}

// Contains reports whether p lies within the zone.
func (z Zone) Contains(p Coordinates) bool {
	return Distance(z.Center, p) <= z.RadiusKM
}

// Distance returns the great-circle distance between a and b in kilometres.
func Distance(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Repository lists configured delivery zones.
type Repository interface {
	List(ctx context.Context) ([]Zone, error)
}

// Resolver finds the zone serving a location. A nil zone with a nil error
// means the location is not served.
type Resolver interface {
	Resolve(ctx context.Context, p Coordinates) (*Zone, error)
}

// Locator implements Resolver over a Repository.
type Locator struct {
	repo Repository
}

// NewLocator creates a Locator backed by repo.
func NewLocator(repo Repository) *Locator {
	return &Locator{repo: repo}
}

// Resolve returns the smallest active zone containing p.
func (l *Locator) Resolve(ctx context.Context, p Coordinates) (*Zone, error) {
	zones, err := l.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list zones")
	}

	var best *Zone
	for i := range zones {
		z := &zones[i]
		if !z.Active || !z.Contains(p) {
			continue
		}
		if best == nil || z.RadiusKM < best.RadiusKM {
			best = z
		}
	}
	return best, nil
}
