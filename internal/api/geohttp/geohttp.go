// Package geohttp exposes the service layer over HTTP/JSON. Handlers stay
// thin: parse the request, call one service method, write the result.
package geohttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/GeoCore/internal/geo"
	"github.com/BearBump/GeoCore/internal/geoquery"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/BearBump/GeoCore/internal/services/congestion"
	"github.com/BearBump/GeoCore/internal/services/fleet"
	"github.com/BearBump/GeoCore/internal/services/proximity"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type ProximityService interface {
	AvailableTrucks(ctx context.Context, req proximity.NearRequest) (*proximity.TruckPage, error)
	AvailableOrders(ctx context.Context, req proximity.NearRequest) (*proximity.OrderPage, error)
	ActiveTrips(ctx context.Context, req proximity.ActiveTripsRequest) (*proximity.ActiveTripsPage, error)
	FleetOverview(ctx context.Context, lat, lng float64) (*proximity.Overview, error)
	Trucks(ctx context.Context, params geoquery.Params, page int) (*proximity.TruckPage, error)
	Search(ctx context.Context, term string, params geoquery.Params, limit int) ([]*models.TruckLocation, error)
}

type FleetService interface {
	CreateTruck(ctx context.Context, regNumber, token string) (*models.TruckLocation, error)
	UpdateLocation(ctx context.Context, regNumber string, lat, lng float64, at time.Time) (*models.TruckLocation, error)
	BookTruck(ctx context.Context, regNumber string, by models.Contact) (pgfleet.UpdateResult, error)
	SetToAvailable(ctx context.Context, regNumber string) (pgfleet.UpdateResult, error)
	GetAllBooked(ctx context.Context, limit, offset int) ([]*models.TruckLocation, error)
	SaveTruckRequest(ctx context.Context, r *models.TruckRequest) (int64, error)
}

type CongestionService interface {
	Estimate(ctx context.Context, src, dst geoprovider.Coordinate, directionType string) *congestion.Report
}

type GeocodeService interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
	Autocomplete(ctx context.Context, input string) ([]geoprovider.Prediction, error)
	Place(ctx context.Context, placeID string) (*geoprovider.Place, error)
}

// HistoryStore serves the per-truck read endpoints straight from storage.
type HistoryStore interface {
	GetTruck(ctx context.Context, regNumber string) (*models.TruckLocation, error)
	ListTripHistory(ctx context.Context, regNumber string, limit, offset int) ([]*models.TripHistory, error)
	ListLocationHistory(ctx context.Context, regNumber string, from, to time.Time, limit int) ([]*models.LocationHistory, error)
}

type Server struct {
	proximity  ProximityService
	fleet      FleetService
	congestion CongestionService
	geocode    GeocodeService
	history    HistoryStore
	log        *slog.Logger
}

func New(p ProximityService, f FleetService, c CongestionService, g GeocodeService, h HistoryStore, log *slog.Logger) *Server {
	return &Server{proximity: p, fleet: f, congestion: c, geocode: g, history: h, log: log}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/trucks", s.handleTrucks)
		r.Post("/trucks", s.handleCreateTruck)
		r.Get("/trucks/search", s.handleSearch)
		r.Get("/trucks/booked", s.handleBooked)
		r.Get("/trucks/available", s.handleAvailableTrucks)
		r.Get("/trucks/{regNumber}", s.handleGetTruck)
		r.Post("/trucks/{regNumber}/location", s.handleUpdateLocation)
		r.Post("/trucks/{regNumber}/book", s.handleBook)
		r.Post("/trucks/{regNumber}/release", s.handleRelease)
		r.Get("/trucks/{regNumber}/trips", s.handleTripHistory)
		r.Get("/trucks/{regNumber}/trip-route", s.handleTripRoute)
		r.Get("/trucks/{regNumber}/route", s.handleLocationHistory)

		r.Get("/orders/available", s.handleAvailableOrders)
		r.Post("/orders", s.handleCreateOrder)

		r.Get("/trips/active", s.handleActiveTrips)
		r.Get("/overview", s.handleOverview)
		r.Get("/congestion", s.handleCongestion)

		r.Get("/geocode/reverse", s.handleReverseGeocode)
		r.Get("/geocode/autocomplete", s.handleAutocomplete)
		r.Get("/geocode/place", s.handlePlace)
	})

	return r
}

// --- trucks ---

func (s *Server) handleTrucks(w http.ResponseWriter, r *http.Request) {
	params, ok := s.queryParams(w, r, geoquery.TruckFields)
	if !ok {
		return
	}
	page, err := s.proximity.Trucks(r.Context(), params, queryInt(r, "page", 1))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetTruck(w http.ResponseWriter, r *http.Request) {
	truck, err := s.history.GetTruck(r.Context(), chi.URLParam(r, "regNumber"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, truck)
}

func (s *Server) handleCreateTruck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RegNumber string `json:"regNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RegNumber == "" {
		writeError(w, http.StatusBadRequest, "regNumber is required")
		return
	}

	truck, err := s.fleet.CreateTruck(r.Context(), body.RegNumber, bearerToken(r))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, truck)
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Lat      float64    `json:"lat"`
		Lng      float64    `json:"lng"`
		DataTime *time.Time `json:"dataTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	at := time.Time{}
	if body.DataTime != nil {
		at = *body.DataTime
	}
	truck, err := s.fleet.UpdateLocation(r.Context(), chi.URLParam(r, "regNumber"), body.Lat, body.Lng, at)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, truck)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var by models.Contact
	if err := json.NewDecoder(r.Body).Decode(&by); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	res, err := s.fleet.BookTruck(r.Context(), chi.URLParam(r, "regNumber"), by)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeUpdateResult(w, res)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	res, err := s.fleet.SetToAvailable(r.Context(), chi.URLParam(r, "regNumber"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeUpdateResult(w, res)
}

func (s *Server) handleBooked(w http.ResponseWriter, r *http.Request) {
	items, err := s.fleet.GetAllBooked(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNilTrucks(items)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params, ok := s.queryParams(w, r, geoquery.TruckFields)
	if !ok {
		return
	}
	items, err := s.proximity.Search(r.Context(), r.URL.Query().Get("term"), params, queryInt(r, "limit", 0))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNilTrucks(items)})
}

// --- proximity ---

func (s *Server) handleAvailableTrucks(w http.ResponseWriter, r *http.Request) {
	req, ok := s.nearRequest(w, r, geoquery.TruckFields)
	if !ok {
		return
	}
	page, err := s.proximity.AvailableTrucks(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAvailableOrders(w http.ResponseWriter, r *http.Request) {
	req, ok := s.nearRequest(w, r, geoquery.OrderFields)
	if !ok {
		return
	}
	page, err := s.proximity.AvailableOrders(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.TruckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	id, err := s.fleet.SaveTruckRequest(r.Context(), &req)
	if err != nil {
		if len(req.PickupLocation.Coordinates) < 2 {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (s *Server) handleActiveTrips(w http.ResponseWriter, r *http.Request) {
	params, ok := s.queryParams(w, r, geoquery.TruckFields)
	if !ok {
		return
	}

	req := proximity.ActiveTripsRequest{Params: params, Page: queryInt(r, "page", 1)}
	if lat, ok, err := queryFloat(r, "lat"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if ok {
		req.Lat = &lat
	}
	if lng, ok, err := queryFloat(r, "lng"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if ok {
		req.Lng = &lng
	}

	page, err := s.proximity.ActiveTrips(r.Context(), req)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := s.requirePoint(w, r, "lat", "lng")
	if !ok {
		return
	}
	ov, err := s.proximity.FleetOverview(r.Context(), lat, lng)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleCongestion(w http.ResponseWriter, r *http.Request) {
	srcLat, srcLng, ok := s.requirePoint(w, r, "lat", "lng")
	if !ok {
		return
	}
	dstLat, dstLng, ok := s.requirePoint(w, r, "destLat", "destLng")
	if !ok {
		return
	}

	rep := s.congestion.Estimate(r.Context(),
		geoprovider.Coordinate{Lat: srcLat, Lng: srcLng},
		geoprovider.Coordinate{Lat: dstLat, Lng: dstLng},
		r.URL.Query().Get("directionType"))
	writeJSON(w, http.StatusOK, rep)
}

// handleTripRoute expands the truck's stored route polyline into [lng, lat]
// pairs for map rendering.
func (s *Server) handleTripRoute(w http.ResponseWriter, r *http.Request) {
	truck, err := s.history.GetTruck(r.Context(), chi.URLParam(r, "regNumber"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if truck.TripDetail == nil || truck.TripDetail.BestRoutePolyline == "" {
		writeError(w, http.StatusNotFound, "no route for truck")
		return
	}

	coords, err := geo.DecodePolyline(truck.TripDetail.BestRoutePolyline)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "stored polyline is not decodable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tripId":      truck.TripDetail.TripID,
		"coordinates": coords,
	})
}

// --- history ---

func (s *Server) handleTripHistory(w http.ResponseWriter, r *http.Request) {
	items, err := s.history.ListTripHistory(r.Context(), chi.URLParam(r, "regNumber"),
		queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNilHistory(items)})
}

func (s *Server) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		to = t
	}

	items, err := s.history.ListLocationHistory(r.Context(), chi.URLParam(r, "regNumber"),
		from, to, queryInt(r, "limit", 0))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": emptyIfNilSamples(items)})
}

// --- geocoding ---

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := s.requirePoint(w, r, "lat", "lng")
	if !ok {
		return
	}
	addr, err := s.geocode.ReverseGeocode(r.Context(), lat, lng)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	input := r.URL.Query().Get("input")
	if input == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	preds, err := s.geocode.Autocomplete(r.Context(), input)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if preds == nil {
		preds = []geoprovider.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": preds})
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	placeID := r.URL.Query().Get("placeId")
	if placeID == "" {
		writeError(w, http.StatusBadRequest, "placeId is required")
		return
	}
	place, err := s.geocode.Place(r.Context(), placeID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

// --- helpers ---

// queryParams extracts filter params and validates them against the field
// map, so a bad partnerId fails here with a 400 instead of deep in the
// service.
func (s *Server) queryParams(w http.ResponseWriter, r *http.Request, fields geoquery.FieldMap) (geoquery.Params, bool) {
	q := r.URL.Query()
	params := geoquery.Params{
		AssetType:  q.Get("assetType"),
		PartnerID:  q.Get("partnerId"),
		CustomerID: q.Get("customerId"),
		Status:     q.Get("status"),
		UserType:   q.Get("userType"),
		Country:    q.Get("country"),
		Tracked:    q.Get("tracked"),
		Live:       q.Get("live"),
	}
	if _, err := geoquery.Build(params, fields); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return geoquery.Params{}, false
	}
	return params, true
}

func (s *Server) nearRequest(w http.ResponseWriter, r *http.Request, fields geoquery.FieldMap) (proximity.NearRequest, bool) {
	params, ok := s.queryParams(w, r, fields)
	if !ok {
		return proximity.NearRequest{}, false
	}

	lat, lng, ok := s.requirePoint(w, r, "lat", "lng")
	if !ok {
		return proximity.NearRequest{}, false
	}

	req := proximity.NearRequest{
		Lat: lat, Lng: lng,
		Params: params,
		Page:   queryInt(r, "page", 1),
	}
	if radius, ok, err := queryFloat(r, "radius"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return proximity.NearRequest{}, false
	} else if ok {
		req.RadiusMeters = radius
	}
	if dLat, ok, err := queryFloat(r, "destLat"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return proximity.NearRequest{}, false
	} else if ok {
		req.DestLat = &dLat
	}
	if dLng, ok, err := queryFloat(r, "destLng"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return proximity.NearRequest{}, false
	} else if ok {
		req.DestLng = &dLng
	}
	return req, true
}

func (s *Server) requirePoint(w http.ResponseWriter, r *http.Request, latName, lngName string) (float64, float64, bool) {
	lat, ok, err := queryFloat(r, latName)
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, latName+" is required and must be numeric")
		return 0, 0, false
	}
	lng, ok, err := queryFloat(r, lngName)
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, lngName+" is required and must be numeric")
		return 0, 0, false
	}
	return lat, lng, true
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrTruckNotFound), errors.Is(err, pgfleet.ErrNotFound):
		writeError(w, http.StatusNotFound, "truck not found")
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeUpdateResult(w http.ResponseWriter, res pgfleet.UpdateResult) {
	if res.Applied {
		writeJSON(w, http.StatusOK, res)
		return
	}
	switch res.Reason {
	case pgfleet.ReasonNotFound:
		writeJSON(w, http.StatusNotFound, res)
	default:
		writeJSON(w, http.StatusConflict, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryFloat(r *http.Request, name string) (float64, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, errors.Errorf("%s must be numeric, got %q", name, v)
	}
	return f, true, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func emptyIfNilTrucks(in []*models.TruckLocation) []*models.TruckLocation {
	if in == nil {
		return []*models.TruckLocation{}
	}
	return in
}

func emptyIfNilHistory(in []*models.TripHistory) []*models.TripHistory {
	if in == nil {
		return []*models.TripHistory{}
	}
	return in
}

func emptyIfNilSamples(in []*models.LocationHistory) []*models.LocationHistory {
	if in == nil {
		return []*models.LocationHistory{}
	}
	return in
}
