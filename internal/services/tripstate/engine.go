// Package tripstate is the per-truck state machine. It consumes tracking
// and trip-update events, keeps the truck document consistent with the
// availability invariant, fires at-most-once proximity notifications and
// archives completed trips.
package tripstate

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/GeoCore/internal/broker/messages"
	"github.com/BearBump/GeoCore/internal/geo"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	"github.com/BearBump/GeoCore/internal/integrations/registry"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/BearBump/GeoCore/internal/services/eta"
	"github.com/BearBump/GeoCore/internal/services/notifygate"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
	"github.com/pkg/errors"
)

const truckGeohashPrecision = 7

type Store interface {
	GetTruck(ctx context.Context, regNumber string) (*models.TruckLocation, error)
	UpsertTruck(ctx context.Context, t *models.TruckLocation) error
	UpdateTruckIf(ctx context.Context, t *models.TruckLocation) (pgfleet.UpdateResult, error)
	InsertTripHistory(ctx context.Context, h *models.TripHistory) error
	InsertLocationHistoryBatch(ctx context.Context, items []models.LocationHistory) error
}

type Producer interface {
	PublishJSON(ctx context.Context, topic, key string, payload any) error
}

// Topics the engine publishes to.
type Topics struct {
	Broadcast     string
	Notifications string
}

type Engine struct {
	store    Store
	gate     *notifygate.Gate
	registry registry.Client
	provider geoprovider.Provider
	producer Producer
	topics   Topics
	log      *slog.Logger

	now func() time.Time
}

func NewEngine(store Store, gate *notifygate.Gate, reg registry.Client, provider geoprovider.Provider, producer Producer, topics Topics, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		gate:     gate,
		registry: reg,
		provider: provider,
		producer: producer,
		topics:   topics,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ApplyTracking handles one raw tracking event: merges the position into the
// truck document, classifies the approach, fires due notifications, appends
// the raw samples and fans the position out. Returning an error means the
// event must be redelivered.
func (e *Engine) ApplyTracking(ctx context.Context, ev messages.TruckTracked) error {
	if ev.RegNumber == "" {
		e.log.Warn("tracking event without regNumber, dropped")
		return nil
	}
	now := e.now()

	existing, err := e.store.GetTruck(ctx, ev.RegNumber)
	if err != nil && !errors.Is(err, pgfleet.ErrNotFound) {
		return err
	}

	var doc models.TruckLocation
	if existing == nil {
		// Первое появление регистрации: создаём документ из события.
		doc = ev.TruckLocation
		if doc.TripDetail == nil {
			doc.Available = true
			doc.OnTrip = false
		}
	} else {
		doc = *existing
		mergeMovement(&doc, ev.TruckLocation)
	}
	if doc.LastConnectionTime.IsZero() {
		doc.LastConnectionTime = now
	}
	if len(doc.LastKnownLocation.Coordinates) >= 2 && doc.LastKnownLocation.Geohash == "" {
		doc.LastKnownLocation.Geohash = geo.Encode(doc.LastKnownLocation.Lat(), doc.LastKnownLocation.Lng(), truckGeohashPrecision)
	}

	state := e.classifyAndNotify(ctx, &doc)

	if existing == nil {
		if err := e.store.UpsertTruck(ctx, &doc); err != nil {
			return err
		}
	} else {
		res, err := e.store.UpdateTruckIf(ctx, &doc)
		if err != nil {
			return err
		}
		if !res.Applied {
			// Проигранная гонка: событие догонит следующий пинг.
			e.log.Warn("tracking write skipped", "regNumber", doc.RegNumber, "reason", res.Reason)
			return nil
		}
	}

	if err := e.store.InsertLocationHistoryBatch(ctx, historyFrom(&doc, ev, now)); err != nil {
		return err
	}

	e.broadcast(ctx, &doc, state, now)
	e.forwardToRegistry(ctx, &doc, ev.AuthToken, now)
	return nil
}

// classifyAndNotify updates the current ETA on an active trip and fires the
// destination-approach notification the new state entitles. Returns the
// proximity state for the outbound broadcast.
func (e *Engine) classifyAndNotify(ctx context.Context, doc *models.TruckLocation) string {
	if !doc.OnTrip || doc.TripDetail == nil || len(doc.LastKnownLocation.Coordinates) < 2 {
		return ""
	}
	td := doc.TripDetail

	target := td.DeliveryLocation
	pickupLeg := td.OverviewStatus == models.OverviewToPickup
	if pickupLeg {
		target = td.PickupLocation
	}
	if len(target.Coordinates) < 2 {
		return ""
	}

	dist, err := e.provider.Distance(ctx, geoprovider.Input{
		Source:      geoprovider.Coordinate{Lat: doc.LastKnownLocation.Lat(), Lng: doc.LastKnownLocation.Lng()},
		Destination: geoprovider.Coordinate{Lat: target.Lat(), Lng: target.Lng()},
	})
	if err != nil {
		// Провайдер недоступен: позицию всё равно сохраняем, ETA не трогаем.
		e.log.Warn("distance lookup failed", "regNumber", doc.RegNumber, "err", err)
		return ""
	}

	td.CurrentETA = models.ETA{Text: dist.DurationText, Value: dist.DurationSeconds}
	td.RemainingDistance = float64(dist.Meters) / 1000.0

	if pickupLeg {
		return eta.ClassifyPickupApproach(dist.DurationSeconds)
	}

	state, tier := eta.ClassifyDestinationApproach(dist.DurationSeconds)
	if state == models.StateAtDestination {
		td.OverviewStatus = models.OverviewAtDestination
	}
	if tier != "" {
		e.notify(ctx, doc, tier)
	}
	return state
}

func (e *Engine) notify(ctx context.Context, doc *models.TruckLocation, tier string) {
	td := doc.TripDetail

	ok, err := e.gate.Acquire(ctx, tier, messages.RoleWaybillCollector, td.TripReadID)
	if err != nil {
		e.log.Warn("notification gate unavailable, alert suppressed", "tripReadId", td.TripReadID, "tier", tier, "err", err)
		return
	}
	if !ok {
		return
	}

	payload := messages.GeoNotification{
		Tag:          messages.TagWaybillCollect,
		Tier:         tier,
		Role:         messages.RoleWaybillCollector,
		FirstName:    td.CustomerName,
		TripID:       td.TripReadID,
		RegNumber:    doc.RegNumber,
		DriverName:   td.DriverName,
		DriverMobile: td.DriverMobile,
		AssetClass:   doc.AssetClass,
		Destination:  td.DeliveryLocation.Address,
		CustomerName: td.CustomerName,
		Duration:     td.CurrentETA.Text,
	}
	if err := e.producer.PublishJSON(ctx, e.topics.Notifications, td.TripReadID, payload); err != nil {
		// Слот возвращаем, чтобы следующий пинг повторил попытку.
		e.log.Warn("notification enqueue failed", "tripReadId", td.TripReadID, "tier", tier, "err", err)
		if relErr := e.gate.Release(ctx, tier, messages.RoleWaybillCollector, td.TripReadID); relErr != nil {
			e.log.Warn("notification slot release failed", "tripReadId", td.TripReadID, "err", relErr)
		}
	}
}

func (e *Engine) broadcast(ctx context.Context, doc *models.TruckLocation, state string, now time.Time) {
	msg := messages.LocationBroadcast{
		RegNumber: doc.RegNumber,
		Location:  doc.LastKnownLocation,
		Bearing:   doc.Bearing,
		Speed:     doc.Speed,
		State:     state,
		At:        now,
	}
	if doc.TripDetail != nil {
		msg.TripID = doc.TripDetail.TripReadID
	}
	if err := e.producer.PublishJSON(ctx, e.topics.Broadcast, doc.RegNumber, msg); err != nil {
		e.log.Warn("location broadcast failed", "regNumber", doc.RegNumber, "err", err)
	}
}

func (e *Engine) forwardToRegistry(ctx context.Context, doc *models.TruckLocation, token string, now time.Time) {
	if len(doc.LastKnownLocation.Coordinates) < 2 {
		return
	}
	upd := registry.LocationUpdate{
		Lat:             doc.LastKnownLocation.Lat(),
		Lng:             doc.LastKnownLocation.Lng(),
		LastTrackedTime: now.Format(time.RFC3339),
		From:            "geocore",
		Address:         doc.LastKnownLocation.Address,
		Country:         doc.Country,
	}

	var err error
	if doc.OnTrip && doc.TripDetail != nil {
		err = e.registry.UpdateTripLocation(ctx, doc.TripDetail.TripID, token, upd)
	} else {
		err = e.registry.UpdateTruckLocation(ctx, doc.RegNumber, token, upd)
	}
	if err != nil {
		e.log.Warn("registry location forward failed", "regNumber", doc.RegNumber, "err", err)
	}
}

// ApplyTripUpdate handles one authoritative trip status change.
func (e *Engine) ApplyTripUpdate(ctx context.Context, ev messages.TripUpdated) error {
	now := e.now()

	truck, err := e.store.GetTruck(ctx, ev.RegNumber)
	if err != nil && !errors.Is(err, pgfleet.ErrNotFound) {
		return err
	}
	if truck == nil {
		return e.registerTruck(ctx, ev, now)
	}

	d := Decide(truck, ev, now)
	switch d.Kind {
	case DecideAttachTrip:
		return e.attachActiveTrip(ctx, truck, ev)

	case DecideArchiveTrip:
		// Архив пишем до перевода трака: при падении после архива повтор
		// события упрётся в уникальный индекс и останется no-op.
		if err := e.store.InsertTripHistory(ctx, d.History); err != nil {
			return err
		}
		return e.writeTransition(ctx, d.Truck, "archive trip")

	case DecideForceAvailable:
		return e.writeTransition(ctx, d.Truck, "force available")

	case DecideUpdateTrip:
		return e.writeTransition(ctx, d.Truck, "update trip")

	default:
		return nil
	}
}

func (e *Engine) writeTransition(ctx context.Context, doc *models.TruckLocation, what string) error {
	res, err := e.store.UpdateTruckIf(ctx, doc)
	if err != nil {
		return err
	}
	if !res.Applied {
		e.log.Warn("trip transition skipped", "regNumber", doc.RegNumber, "transition", what, "reason", res.Reason)
	}
	return nil
}

// registerTruck is the create path for a registration the store has never
// seen: the registry is the source of truth for the truck and its trip.
func (e *Engine) registerTruck(ctx context.Context, ev messages.TripUpdated, now time.Time) error {
	rt, ok := e.registry.GetTruck(ctx, ev.RegNumber, ev.AuthToken)
	if !ok {
		e.log.Warn("trip update for unknown truck, registry lookup failed", "regNumber", ev.RegNumber)
		return nil
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
		LastConnectionTime: now,
		Available:          true,
	}
	if rt.ActiveOwnerID != 0 {
		doc.ActivePartner = models.Partner{ID: rt.ActiveOwnerID, Name: rt.ActiveBusinessName}
	}

	if trip, ok := e.registry.GetActiveTrip(ctx, ev.RegNumber, ev.AuthToken); ok {
		doc.Available = false
		doc.OnTrip = true
		doc.TripDetail = e.seedTripDetail(ctx, trip)
	}

	return e.store.UpsertTruck(ctx, doc)
}

// attachActiveTrip moves an available truck onto its active trip as seen by
// the registry.
func (e *Engine) attachActiveTrip(ctx context.Context, truck *models.TruckLocation, ev messages.TripUpdated) error {
	trip, ok := e.registry.GetActiveTrip(ctx, truck.RegNumber, ev.AuthToken)
	if !ok {
		e.log.Warn("no active trip to attach", "regNumber", truck.RegNumber, "tripId", ev.TripID)
		return nil
	}

	next := *truck
	next.Available = false
	next.OnTrip = true
	next.TripDetail = e.seedTripDetail(ctx, trip)
	return e.writeTransition(ctx, &next, "attach trip")
}

// seedTripDetail builds the embedded trip document from the registry trip.
// Missing ETA/distance/polyline are filled from the routing provider; every
// provider failure degrades to a zero value.
func (e *Engine) seedTripDetail(ctx context.Context, trip *registry.Trip) *models.TripDetail {
	td := &models.TripDetail{
		TripID:     trip.ID,
		TripReadID: trip.TripID,

		TripStatus:      trip.Status,
		TransportStatus: trip.TransportStatus,
		Delivered:       trip.Delivered,

		SalesOrderNo: trip.SalesOrderNo,
		WaybillNo:    trip.WaybillNo,

		LoadedDate: trip.LoadedDate,
		StartDate:  trip.StartDate,

		ExpectedETA:   models.ETA{Text: trip.EstimatedTimeOfArrival, Value: trip.EstimatedTimeOfArrivalInSeconds},
		TotalDistance: trip.EstimatedDistanceInKM,

		PickupLocation:   stationPoint(trip.PickupStation),
		DeliveryLocation: stationPoint(trip.DeliveryStation),

		GoodType:        trip.GoodType,
		GoodCategory:    trip.GoodCategory,
		SourceCountry:   trip.SourceCountry,
		DeliveryCountry: trip.DestinationCountry,

		PartnerID:    trip.PartnerID,
		PartnerName:  trip.PartnerName,
		DriverID:     trip.Driver.ID,
		DriverName:   trip.Driver.Name,
		DriverMobile: trip.Driver.Mobile,
		CustomerID:   trip.CustomerID,
		CustomerName: trip.CustomerName,
	}
	for _, d := range trip.DropOff {
		td.DropOffs = append(td.DropOffs, stationPoint(d.Location))
	}
	td.OverviewStatus = OverviewFor(td.LoadedDate, td.TripStatus, models.OverviewToPickup)

	src := geoprovider.Coordinate{Lat: td.PickupLocation.Lat(), Lng: td.PickupLocation.Lng()}
	dst := geoprovider.Coordinate{Lat: td.DeliveryLocation.Lat(), Lng: td.DeliveryLocation.Lng()}
	haveCoords := len(td.PickupLocation.Coordinates) >= 2 && len(td.DeliveryLocation.Coordinates) >= 2

	if haveCoords && (td.ExpectedETA.Value == 0 || td.TotalDistance == 0) {
		if dist, err := e.provider.Distance(ctx, geoprovider.Input{Source: src, Destination: dst}); err == nil {
			if td.ExpectedETA.Value == 0 {
				td.ExpectedETA = models.ETA{Text: dist.DurationText, Value: dist.DurationSeconds}
			}
			if td.TotalDistance == 0 {
				td.TotalDistance = float64(dist.Meters) / 1000.0
			}
		} else {
			e.log.Warn("trip seed distance lookup failed", "tripReadId", td.TripReadID, "err", err)
		}
	}
	if td.ExpectedETA.Text == "" && td.ExpectedETA.Value > 0 {
		td.ExpectedETA.Text = geo.FormatHMS(td.ExpectedETA.Value)
	}

	if haveCoords {
		if route, err := e.provider.Directions(ctx, geoprovider.Input{Source: src, Destination: dst}); err == nil {
			td.BestRoutePolyline = route.OverviewPolyline
		} else {
			e.log.Warn("trip seed route lookup failed", "tripReadId", td.TripReadID, "err", err)
		}
	}

	return td
}

// mergeMovement copies the movement fields of the inbound event onto the
// stored document, ignoring zero values.
func mergeMovement(doc *models.TruckLocation, ev models.TruckLocation) {
	if len(ev.LastKnownLocation.Coordinates) >= 2 {
		doc.LastKnownLocation = ev.LastKnownLocation
	}
	if !ev.LastConnectionTime.IsZero() {
		doc.LastConnectionTime = ev.LastConnectionTime
	}
	if ev.Bearing != 0 {
		doc.Bearing = ev.Bearing
	}
	if ev.Speed != 0 {
		doc.Speed = ev.Speed
	}
	if ev.Mileage != 0 {
		doc.Mileage = ev.Mileage
	}
	if ev.IMEI != "" {
		doc.IMEI = ev.IMEI
	}
	if ev.Source != "" {
		doc.Source = ev.Source
	}
	if ev.Provider != "" {
		doc.Provider = ev.Provider
	}
}

func historyFrom(doc *models.TruckLocation, ev messages.TruckTracked, now time.Time) []models.LocationHistory {
	base := models.LocationHistory{
		RegNumber:  doc.RegNumber,
		AssetClass: doc.AssetClass,
		IMEI:       doc.IMEI,
		Source:     doc.Source,
		Provider:   doc.Provider,
	}
	if doc.TripDetail != nil {
		base.TripID = doc.TripDetail.TripReadID
		base.DriverID = doc.TripDetail.DriverID
		base.PartnerID = doc.TripDetail.PartnerID
		base.CustomerID = doc.TripDetail.CustomerID
		base.TruckStatus = doc.TripDetail.OverviewStatus
	}

	if len(ev.Locations) == 0 {
		if len(doc.LastKnownLocation.Coordinates) < 2 {
			return nil
		}
		h := base
		h.Location = doc.LastKnownLocation
		h.Geohash = doc.LastKnownLocation.Geohash
		h.Bearing = doc.Bearing
		h.Speed = doc.Speed
		h.DataTime = now
		return []models.LocationHistory{h}
	}

	out := make([]models.LocationHistory, 0, len(ev.Locations))
	for _, s := range ev.Locations {
		if len(s.Coordinates) < 2 {
			continue // битые координаты пропускаем, не роняя пачку
		}
		h := base
		h.Location = models.GeoPoint{Coordinates: s.Coordinates, Geohash: s.Geohash, Address: s.Address}
		h.Geohash = s.Geohash
		if h.Geohash == "" {
			h.Geohash = geo.Encode(s.Coordinates[1], s.Coordinates[0], truckGeohashPrecision)
		}
		h.Bearing = s.Bearing
		h.Speed = s.Speed
		h.DataTime = s.Timestamp
		if h.DataTime.IsZero() {
			h.DataTime = now
		}
		out = append(out, h)
	}
	return out
}

func stationPoint(st registry.Station) models.GeoPoint {
	p := models.GeoPoint{Address: st.Address}
	if len(st.Location.Coordinates) >= 2 {
		// Реестр отдаёт [lat, lng], у нас [lng, lat].
		p.Coordinates = []float64{st.Location.Coordinates[1], st.Location.Coordinates[0]}
	}
	return p
}
