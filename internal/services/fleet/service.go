// Package fleet covers the operator-facing truck lifecycle: creating a
// truck from the registry, booking, manual position fixes, saving truck
// requests and the booked listing.
package fleet

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/GeoCore/internal/geo"
	"github.com/BearBump/GeoCore/internal/geoquery"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	"github.com/BearBump/GeoCore/internal/integrations/registry"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
	"github.com/pkg/errors"
)

const truckGeohashPrecision = 7

var ErrTruckNotFound = errors.New("fleet: truck not found")

type Store interface {
	GetTruck(ctx context.Context, regNumber string) (*models.TruckLocation, error)
	UpsertTruck(ctx context.Context, t *models.TruckLocation) error
	UpdateTruckIf(ctx context.Context, t *models.TruckLocation) (pgfleet.UpdateResult, error)
	SetToAvailable(ctx context.Context, regNumber string) (pgfleet.UpdateResult, error)
	BookTruck(ctx context.Context, regNumber string, by models.Contact, at time.Time) (pgfleet.UpdateResult, error)
	ListTrucks(ctx context.Context, f *geoquery.Filter, limit, offset int) ([]*models.TruckLocation, error)
	InsertTruckRequest(ctx context.Context, r *models.TruckRequest) (int64, error)
}

type Service struct {
	store    Store
	registry registry.Client
	provider geoprovider.Provider
	log      *slog.Logger

	now func() time.Time
}

func New(store Store, reg registry.Client, provider geoprovider.Provider, log *slog.Logger) *Service {
	return &Service{
		store:    store,
		registry: reg,
		provider: provider,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateTruck registers a truck the tracker has not seen yet, seeded from
// the registry record.
func (s *Service) CreateTruck(ctx context.Context, regNumber, token string) (*models.TruckLocation, error) {
	if existing, err := s.store.GetTruck(ctx, regNumber); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgfleet.ErrNotFound) {
		return nil, err
	}

	rt, ok := s.registry.GetTruck(ctx, regNumber, token)
	if !ok {
		return nil, ErrTruckNotFound
	}

	doc := &models.TruckLocation{
		RegNumber: rt.RegNumber,
		Country:   rt.Country,
		AssetClass: models.AssetClass{
			ID:   rt.Asset.ID,
			Type: rt.Asset.Type,
			Unit: rt.Asset.Unit,
			Size: rt.Asset.Size,
			Name: rt.Asset.Name,
		},
		ActivePartner:      models.Partner{ID: rt.OwnerID, Name: rt.OwnerBusinessName},
		LastConnectionTime: s.now(),
		Available:          true,
	}
	if err := s.store.UpsertTruck(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateLocation applies a manual position fix. The bearing is derived from
// the previous known position when the truck moved.
func (s *Service) UpdateLocation(ctx context.Context, regNumber string, lat, lng float64, at time.Time) (*models.TruckLocation, error) {
	truck, err := s.store.GetTruck(ctx, regNumber)
	if err != nil {
		if errors.Is(err, pgfleet.ErrNotFound) {
			return nil, ErrTruckNotFound
		}
		return nil, err
	}

	if len(truck.LastKnownLocation.Coordinates) >= 2 {
		prevLat, prevLng := truck.LastKnownLocation.Lat(), truck.LastKnownLocation.Lng()
		if prevLat != lat || prevLng != lng {
			truck.Bearing = geo.Bearing(prevLat, prevLng, lat, lng)
		}
	}

	truck.LastKnownLocation = models.GeoPoint{
		Coordinates: []float64{lng, lat},
		Geohash:     geo.Encode(lat, lng, truckGeohashPrecision),
	}
	if at.IsZero() {
		at = s.now()
	}
	truck.LastConnectionTime = at
	truck.Source = "manual"

	res, err := s.store.UpdateTruckIf(ctx, truck)
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		s.log.Warn("manual location fix skipped", "regNumber", regNumber, "reason", res.Reason)
	}
	return truck, nil
}

func (s *Service) BookTruck(ctx context.Context, regNumber string, by models.Contact) (pgfleet.UpdateResult, error) {
	return s.store.BookTruck(ctx, regNumber, by, s.now())
}

func (s *Service) SetToAvailable(ctx context.Context, regNumber string) (pgfleet.UpdateResult, error) {
	return s.store.SetToAvailable(ctx, regNumber)
}

// GetAllBooked lists currently booked trucks.
func (s *Service) GetAllBooked(ctx context.Context, limit, offset int) ([]*models.TruckLocation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	f, err := geoquery.Build(geoquery.Params{Tracked: "false"}, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	f.And("booked")
	return s.store.ListTrucks(ctx, f, limit, offset)
}

// SaveTruckRequest stores an open order. Pickup/delivery geohashes and the
// expected travel numbers are computed here; a failed provider lookup keeps
// the zero values.
func (s *Service) SaveTruckRequest(ctx context.Context, r *models.TruckRequest) (int64, error) {
	if len(r.PickupLocation.Coordinates) < 2 {
		return 0, errors.New("pickup location is required")
	}

	r.PickupGeohash = geo.Encode(r.PickupLocation.Lat(), r.PickupLocation.Lng(), truckGeohashPrecision)
	r.PickupLocation.Geohash = r.PickupGeohash

	if r.DeliveryLocation != nil && len(r.DeliveryLocation.Coordinates) >= 2 {
		r.DeliveryGeohash = geo.Encode(r.DeliveryLocation.Lat(), r.DeliveryLocation.Lng(), truckGeohashPrecision)
		r.DeliveryLocation.Geohash = r.DeliveryGeohash

		if r.ExpectedETA.Value == 0 || r.TotalDistance == 0 {
			dist, err := s.provider.Distance(ctx, geoprovider.Input{
				Source:      geoprovider.Coordinate{Lat: r.PickupLocation.Lat(), Lng: r.PickupLocation.Lng()},
				Destination: geoprovider.Coordinate{Lat: r.DeliveryLocation.Lat(), Lng: r.DeliveryLocation.Lng()},
			})
			if err != nil {
				s.log.Warn("truck request distance lookup failed", "err", err)
			} else {
				if r.ExpectedETA.Value == 0 {
					r.ExpectedETA = models.ETA{Text: dist.DurationText, Value: dist.DurationSeconds}
				}
				if r.TotalDistance == 0 {
					r.TotalDistance = float64(dist.Meters) / 1000.0
				}
			}
		}
	}

	return s.store.InsertTruckRequest(ctx, r)
}
