// Package fake is a scripted geoprovider for tests.
package fake

import (
	"context"
	"sync"

	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
)

type FakeProvider struct {
	mu sync.Mutex

	Route    *geoprovider.Route
	Dist     *geoprovider.Distance
	Address  string
	Preds    []geoprovider.Prediction
	PlaceRes *geoprovider.Place

	// Routes lets a test script successive Directions answers; when
	// non-empty it takes precedence over Route and is consumed in order.
	Routes []*geoprovider.Route

	DirectionsErr error
	DistanceErr   error
	GeocodeErr    error

	DirectionsCalls int
	DistanceCalls   int
	GeocodeCalls    int
}

func New() *FakeProvider {
	return &FakeProvider{Address: "1 Test Road"}
}

func (f *FakeProvider) Directions(ctx context.Context, in geoprovider.Input) (*geoprovider.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DirectionsCalls++
	if f.DirectionsErr != nil {
		return nil, f.DirectionsErr
	}
	if len(f.Routes) > 0 {
		r := f.Routes[0]
		f.Routes = f.Routes[1:]
		return r, nil
	}
	if f.Route == nil {
		return nil, geoprovider.ErrZeroResults
	}
	return f.Route, nil
}

func (f *FakeProvider) Distance(ctx context.Context, in geoprovider.Input) (*geoprovider.Distance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DistanceCalls++
	if f.DistanceErr != nil {
		return nil, f.DistanceErr
	}
	if f.Dist == nil {
		return nil, geoprovider.ErrZeroResults
	}
	return f.Dist, nil
}

func (f *FakeProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GeocodeCalls++
	if f.GeocodeErr != nil {
		return "", f.GeocodeErr
	}
	return f.Address, nil
}

func (f *FakeProvider) Autocomplete(ctx context.Context, input string) ([]geoprovider.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Preds, nil
}

func (f *FakeProvider) Place(ctx context.Context, placeID string) (*geoprovider.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlaceRes == nil {
		return nil, geoprovider.ErrZeroResults
	}
	return f.PlaceRes, nil
}
