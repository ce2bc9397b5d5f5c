// Package proximity answers the geospatial read paths: nearest available
// trucks, open orders around a truck, active trips in an area, the fleet
// overview and free-text search. All predicates go through geoquery so every
// path filters identically.
package proximity

import (
	"context"
	"log/slog"

	"github.com/BearBump/GeoCore/internal/geoquery"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
)

// Hard result caps per read path.
const (
	truckSearchLimit  = 30
	orderSearchLimit  = 100
	listingLimit      = 100
	textSearchLimit   = 10
	overviewRadiusM   = 5_000.0
	activeTripRadiusM = 10_000.0
)

const addressUnavailable = "Address unavailable"

type Store interface {
	SearchTrucksNear(ctx context.Context, q pgfleet.NearQuery) ([]*models.TruckLocation, error)
	CountTrucksNear(ctx context.Context, q pgfleet.NearQuery) (int64, error)
	ListTrucks(ctx context.Context, f *geoquery.Filter, limit, offset int) ([]*models.TruckLocation, error)
	CountTrucks(ctx context.Context, f *geoquery.Filter) (int64, error)
	StatusBreakdown(ctx context.Context, f *geoquery.Filter) ([]pgfleet.StatusCount, error)
	SearchRequestsNear(ctx context.Context, q pgfleet.NearQuery) ([]*models.TruckRequest, error)
	CountRequests(ctx context.Context, f *geoquery.Filter) (int64, error)
}

// Geocoder is the cached reverse-geocode lookup used by the overview.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

type Service struct {
	store    Store
	provider geoprovider.Provider
	geocoder Geocoder
	log      *slog.Logger
}

func New(store Store, provider geoprovider.Provider, geocoder Geocoder, log *slog.Logger) *Service {
	return &Service{store: store, provider: provider, geocoder: geocoder, log: log}
}

// NearRequest is a radius or destination-bounded search around a point.
type NearRequest struct {
	Lat, Lng float64

	// RadiusMeters caps the search explicitly. When zero and a destination
	// is set, the cap becomes the travel distance to that destination.
	RadiusMeters float64
	DestLat      *float64
	DestLng      *float64

	Params geoquery.Params
	Page   int
}

type TruckPage struct {
	Items []*models.TruckLocation `json:"items"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`

	// RoutePolyline is the route to the destination when one was
	// given; empty when the routing lookup degrades.
	RoutePolyline string `json:"routePolyline,omitempty"`
}

// AvailableTrucks returns available trucks nearest to the point, capped at 30.
func (s *Service) AvailableTrucks(ctx context.Context, req NearRequest) (*TruckPage, error) {
	f, err := geoquery.Build(req.Params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	f.And("available")

	maxDist, polyline := s.resolveBound(ctx, req)

	page := clampPage(req.Page)
	q := pgfleet.NearQuery{
		Lat: req.Lat, Lng: req.Lng,
		MaxDistanceMeters: maxDist,
		Filter:            f,
		Limit:             truckSearchLimit,
		Offset:            (page - 1) * truckSearchLimit,
	}
	items, err := s.store.SearchTrucksNear(ctx, q)
	if err != nil {
		return nil, err
	}

	cf, err := geoquery.Build(req.Params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	cf.And("available")
	total, err := s.store.CountTrucksNear(ctx, pgfleet.NearQuery{
		Lat: req.Lat, Lng: req.Lng, MaxDistanceMeters: maxDist, Filter: cf,
	})
	if err != nil {
		return nil, err
	}

	return &TruckPage{Items: items, Total: total, Page: page, Limit: truckSearchLimit, RoutePolyline: polyline}, nil
}

// resolveBound turns the request into a max distance in meters. A failed
// travel-distance lookup degrades to an unlimited search.
func (s *Service) resolveBound(ctx context.Context, req NearRequest) (maxDist float64, polyline string) {
	if req.RadiusMeters > 0 {
		return req.RadiusMeters, ""
	}
	if req.DestLat == nil || req.DestLng == nil {
		return 0, ""
	}

	in := geoprovider.Input{
		Source:      geoprovider.Coordinate{Lat: req.Lat, Lng: req.Lng},
		Destination: geoprovider.Coordinate{Lat: *req.DestLat, Lng: *req.DestLng},
	}

	dist, err := s.provider.Distance(ctx, in)
	if err != nil {
		s.log.Warn("travel distance lookup failed, search unbounded", "err", err)
		return 0, ""
	}

	if route, err := s.provider.Directions(ctx, in); err == nil {
		polyline = route.OverviewPolyline
	} else {
		s.log.Warn("route lookup failed, polyline omitted", "err", err)
	}
	return float64(dist.Meters), polyline
}

type OrderPage struct {
	Items []*models.TruckRequest `json:"items"`
	Total int64                  `json:"total"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// AvailableOrders returns open truck requests around a truck, capped at 100.
func (s *Service) AvailableOrders(ctx context.Context, req NearRequest) (*OrderPage, error) {
	f, err := geoquery.Build(req.Params, geoquery.OrderFields)
	if err != nil {
		return nil, err
	}

	maxDist, _ := s.resolveBound(ctx, req)

	page := clampPage(req.Page)
	items, err := s.store.SearchRequestsNear(ctx, pgfleet.NearQuery{
		Lat: req.Lat, Lng: req.Lng,
		MaxDistanceMeters: maxDist,
		Filter:            f,
		Limit:             orderSearchLimit,
		Offset:            (page - 1) * orderSearchLimit,
	})
	if err != nil {
		return nil, err
	}

	cf, err := geoquery.Build(req.Params, geoquery.OrderFields)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountRequests(ctx, cf)
	if err != nil {
		return nil, err
	}

	return &OrderPage{Items: items, Total: total, Page: page, Limit: orderSearchLimit}, nil
}

// ActiveTripsRequest searches on-trip trucks. Without coordinates the search
// falls back to a plain predicate match (nearest-neighbor needs a point).
type ActiveTripsRequest struct {
	Lat, Lng *float64
	Params   geoquery.Params
	Page     int
}

type ActiveTripsPage struct {
	Items     []*models.TruckLocation `json:"items"`
	Total     int64                   `json:"total"`
	Page      int                     `json:"page"`
	Limit     int                     `json:"limit"`
	Analytics []pgfleet.StatusCount   `json:"analytics"`
}

func (s *Service) ActiveTrips(ctx context.Context, req ActiveTripsRequest) (*ActiveTripsPage, error) {
	f, err := geoquery.Build(req.Params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	f.And("on_trip")

	page := clampPage(req.Page)
	var items []*models.TruckLocation
	if req.Lat != nil && req.Lng != nil {
		items, err = s.store.SearchTrucksNear(ctx, pgfleet.NearQuery{
			Lat: *req.Lat, Lng: *req.Lng,
			MaxDistanceMeters: activeTripRadiusM,
			Filter:            f,
			Limit:             listingLimit,
			Offset:            (page - 1) * listingLimit,
		})
	} else {
		items, err = s.store.ListTrucks(ctx, f, listingLimit, (page-1)*listingLimit)
	}
	if err != nil {
		return nil, err
	}

	cf, err := geoquery.Build(req.Params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	cf.And("on_trip")
	total, err := s.store.CountTrucks(ctx, cf)
	if err != nil {
		return nil, err
	}

	af, err := geoquery.Build(req.Params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	analytics, err := s.store.StatusBreakdown(ctx, af)
	if err != nil {
		return nil, err
	}

	return &ActiveTripsPage{Items: items, Total: total, Page: page, Limit: listingLimit, Analytics: analytics}, nil
}

// Overview is the at-a-glance answer for one point on the map.
type Overview struct {
	Address         string `json:"address"`
	AvailableTrucks int64  `json:"availableTrucks"`
	ActiveTrips     int64  `json:"activeTrips"`
}

// FleetOverview counts available trucks and active trips within 5 km and
// resolves the point's address. A failed geocode degrades to a placeholder.
func (s *Service) FleetOverview(ctx context.Context, lat, lng float64) (*Overview, error) {
	af, err := geoquery.Build(geoquery.Params{}, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	af.And("available")
	available, err := s.store.CountTrucksNear(ctx, pgfleet.NearQuery{
		Lat: lat, Lng: lng, MaxDistanceMeters: overviewRadiusM, Filter: af,
	})
	if err != nil {
		return nil, err
	}

	tf, err := geoquery.Build(geoquery.Params{}, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	tf.And("on_trip")
	active, err := s.store.CountTrucksNear(ctx, pgfleet.NearQuery{
		Lat: lat, Lng: lng, MaxDistanceMeters: overviewRadiusM, Filter: tf,
	})
	if err != nil {
		return nil, err
	}

	address, err := s.geocoder.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		s.log.Warn("overview geocode failed", "err", err)
		address = addressUnavailable
	}

	return &Overview{Address: address, AvailableTrucks: available, ActiveTrips: active}, nil
}

// Trucks is the general listing, capped at 100 per page.
func (s *Service) Trucks(ctx context.Context, params geoquery.Params, page int) (*TruckPage, error) {
	f, err := geoquery.Build(params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}

	page = clampPage(page)
	items, err := s.store.ListTrucks(ctx, f, listingLimit, (page-1)*listingLimit)
	if err != nil {
		return nil, err
	}

	cf, err := geoquery.Build(params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountTrucks(ctx, cf)
	if err != nil {
		return nil, err
	}

	return &TruckPage{Items: items, Total: total, Page: page, Limit: listingLimit}, nil
}

// Search matches trucks by registration or driver name substring. With
// tracked="false" it covers untracked vehicles too.
func (s *Service) Search(ctx context.Context, term string, params geoquery.Params, limit int) ([]*models.TruckLocation, error) {
	if limit <= 0 || limit > listingLimit {
		limit = textSearchLimit
	}

	f, err := geoquery.Build(params, geoquery.TruckFields)
	if err != nil {
		return nil, err
	}
	if term != "" {
		like := "%" + term + "%"
		f.And("(reg_number ILIKE ? OR driver->>'name' ILIKE ?)", like, like)
	}

	return s.store.ListTrucks(ctx, f, limit, 0)
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}
