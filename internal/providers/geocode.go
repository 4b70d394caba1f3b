package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/ultralove/dod/internal/geo"
)

var geocoderKeyMu sync.Mutex

// Geocoder turns a position into a human readable place name for display.
type Geocoder struct {
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

// NewGeocoder configures the Google geocoding API key. An empty key yields
// a Geocoder that never resolves anything.
func NewGeocoder(apiKey string) *Geocoder {
	if apiKey == "" {
		return &Geocoder{}
	}
	geocoderKeyMu.Lock()
	geocoder.ApiKey = apiKey
	geocoderKeyMu.Unlock()
	return &Geocoder{reverse: geocoder.GeocodingReverse}
}

// PlaceName returns the best formatted address for loc, or "" when the
// geocoder is disabled or has no answer.
func (g *Geocoder) PlaceName(ctx context.Context, loc geo.Coordinate) (string, error) {
	if g == nil || g.reverse == nil {
		return "", nil
	}

	type answer struct {
		addrs []geocoder.Address
		err   error
	}
	ch := make(chan answer, 1)
	go func() {
		addrs, err := g.reverse(geocoder.Location{Latitude: loc.Latitude, Longitude: loc.Longitude})
		ch <- answer{addrs, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return "", fmt.Errorf("reverse geocode: %w", a.err)
		}
		for _, addr := range a.addrs {
			if name := strings.TrimSpace(addr.FormattedAddress); name != "" {
				return name, nil
			}
			if city := strings.TrimSpace(addr.City); city != "" {
				return city, nil
			}
		}
		return "", nil
	}
}
