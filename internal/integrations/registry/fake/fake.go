// Package fake is an in-memory registry for tests and local runs.
package fake

import (
	"context"
	"sync"

	"github.com/BearBump/GeoCore/internal/integrations/registry"
)

type FakeRegistry struct {
	mu     sync.Mutex
	Trucks map[string]*registry.Truck
	Trips  map[string]*registry.Trip // keyed by regNumber

	TripLocationUpdates  []registry.LocationUpdate
	TruckLocationUpdates []registry.LocationUpdate
	UpdateErr            error
}

func New() *FakeRegistry {
	return &FakeRegistry{
		Trucks: map[string]*registry.Truck{},
		Trips:  map[string]*registry.Trip{},
	}
}

func (f *FakeRegistry) GetTruck(ctx context.Context, regNumber, token string) (*registry.Truck, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Trucks[regNumber]
	return t, ok
}

func (f *FakeRegistry) GetActiveTrip(ctx context.Context, regNumber, token string) (*registry.Trip, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Trips[regNumber]
	return t, ok
}

func (f *FakeRegistry) UpdateTripLocation(ctx context.Context, tripID, token string, upd registry.LocationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.TripLocationUpdates = append(f.TripLocationUpdates, upd)
	return nil
}

func (f *FakeRegistry) UpdateTruckLocation(ctx context.Context, regNumber, token string, upd registry.LocationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.TruckLocationUpdates = append(f.TruckLocationUpdates, upd)
	return nil
}
