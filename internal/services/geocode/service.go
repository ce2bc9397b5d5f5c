// Package geocode fronts the provider's geocoding endpoints with a Redis
// cache. Addresses are cached per geohash cell so nearby lookups collapse
// onto one provider call.
package geocode

import (
	"context"
	"time"

	"github.com/BearBump/GeoCore/internal/cache"
	"github.com/BearBump/GeoCore/internal/geo"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
)

// Precision 8 is a ~38m cell: small enough for street-level addresses,
// large enough to absorb GPS jitter between pings.
const cellPrecision = 8

const defaultTTL = 30 * 24 * time.Hour

type Service struct {
	provider geoprovider.Provider
	cache    cache.BytesCache
	ttl      time.Duration
}

func New(provider geoprovider.Provider, c cache.BytesCache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Service{provider: provider, cache: c, ttl: ttl}
}

func cacheKey(lat, lng float64) string {
	return "geocode:" + geo.Encode(lat, lng, cellPrecision)
}

// ReverseGeocode resolves a point to a formatted address. Cache failures are
// ignored; provider failures surface so the caller can pick its default.
func (s *Service) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey(lat, lng)

	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			return string(b), nil
		}
	}

	addr, err := s.provider.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, []byte(addr), s.ttl)
	}
	return addr, nil
}

func (s *Service) Autocomplete(ctx context.Context, input string) ([]geoprovider.Prediction, error) {
	return s.provider.Autocomplete(ctx, input)
}

func (s *Service) Place(ctx context.Context, placeID string) (*geoprovider.Place, error) {
	return s.provider.Place(ctx, placeID)
}
