package tripstate

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/GeoCore/internal/broker/messages"
	"github.com/BearBump/GeoCore/internal/cache/rediscache"
	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	geofake "github.com/BearBump/GeoCore/internal/integrations/geoprovider/fake"
	"github.com/BearBump/GeoCore/internal/integrations/registry"
	regfake "github.com/BearBump/GeoCore/internal/integrations/registry/fake"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/BearBump/GeoCore/internal/services/notifygate"
	"github.com/BearBump/GeoCore/internal/storage/pgfleet"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	trucks    map[string]*models.TruckLocation
	histories []*models.TripHistory
	samples   []models.LocationHistory
}

func newFakeStore() *fakeStore {
	return &fakeStore{trucks: map[string]*models.TruckLocation{}}
}

func (f *fakeStore) GetTruck(ctx context.Context, regNumber string) (*models.TruckLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trucks[regNumber]
	if !ok {
		return nil, pgfleet.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) UpsertTruck(ctx context.Context, t *models.TruckLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	if old, ok := f.trucks[t.RegNumber]; ok {
		cp.Version = old.Version + 1
	} else {
		cp.Version = 1
	}
	f.trucks[t.RegNumber] = &cp
	return nil
}

func (f *fakeStore) UpdateTruckIf(ctx context.Context, t *models.TruckLocation) (pgfleet.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.trucks[t.RegNumber]
	if !ok {
		return pgfleet.UpdateResult{Reason: pgfleet.ReasonNotFound}, nil
	}
	if old.Version != t.Version {
		return pgfleet.UpdateResult{Reason: pgfleet.ReasonNoChange}, nil
	}
	cp := *t
	cp.Version = old.Version + 1
	f.trucks[t.RegNumber] = &cp
	return pgfleet.UpdateResult{Applied: true}, nil
}

func (f *fakeStore) InsertTripHistory(ctx context.Context, h *models.TripHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, old := range f.histories {
		if old.TripReadID == h.TripReadID {
			return nil // уникальный индекс: повтор молча отбрасывается
		}
	}
	cp := *h
	f.histories = append(f.histories, &cp)
	return nil
}

func (f *fakeStore) InsertLocationHistoryBatch(ctx context.Context, items []models.LocationHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, items...)
	return nil
}

type published struct {
	topic, key string
	payload    any
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakeProducer) PublishJSON(ctx context.Context, topic, key string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic: topic, key: key, payload: payload})
	return nil
}

func (f *fakeProducer) byTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type engineFixture struct {
	engine   *Engine
	store    *fakeStore
	producer *fakeProducer
	registry *regfake.FakeRegistry
	provider *geofake.FakeProvider
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	mr := miniredis.RunT(t)

	fx := &engineFixture{
		store:    newFakeStore(),
		producer: &fakeProducer{},
		registry: regfake.New(),
		provider: geofake.New(),
	}
	fx.engine = NewEngine(
		fx.store,
		notifygate.New(rediscache.New(mr.Addr()), 0),
		fx.registry,
		fx.provider,
		fx.producer,
		Topics{Broadcast: "geo.location", Notifications: "geo.notifications"},
		slog.Default(),
	)
	return fx
}

func TestApplyTracking_TierTwoFiresExactlyOnce(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.store.trucks["AAA-111"] = &models.TruckLocation{
		RegNumber: "AAA-111",
		OnTrip:    true,
		TripDetail: &models.TripDetail{
			TripID:           "t-9",
			TripReadID:       "TR-9",
			OverviewStatus:   models.OverviewToDelivery,
			ExpectedETA:      models.ETA{Text: "50 minutes", Value: 3000},
			DeliveryLocation: models.GeoPoint{Coordinates: []float64{3.40, 6.60}, Address: "Ibadan Depot"},
		},
		Version: 1,
	}
	// До цели 4 минуты: окно второго уровня.
	fx.provider.Dist = &geoprovider.Distance{Meters: 2000, DurationSeconds: 240, DurationText: "4 mins"}

	ev := messages.TruckTracked{
		TruckLocation: models.TruckLocation{
			RegNumber:          "AAA-111",
			LastKnownLocation:  models.GeoPoint{Coordinates: []float64{3.39, 6.59}},
			LastConnectionTime: time.Now().UTC(),
		},
	}
	require.NoError(t, fx.engine.ApplyTracking(ctx, ev))

	notifs := fx.producer.byTopic("geo.notifications")
	require.Len(t, notifs, 1)
	n := notifs[0].payload.(messages.GeoNotification)
	require.Equal(t, "secondNotif", n.Tier)
	require.Equal(t, messages.RoleWaybillCollector, n.Role)
	require.Equal(t, "TR-9", n.TripID)
	require.Equal(t, "4 mins", n.Duration)

	// Состояние и текущая ETA обновлены.
	got := fx.store.trucks["AAA-111"]
	require.Equal(t, int64(240), got.TripDetail.CurrentETA.Value)
	require.InDelta(t, 2.0, got.TripDetail.RemainingDistance, 1e-9)

	bcasts := fx.producer.byTopic("geo.location")
	require.Len(t, bcasts, 1)
	require.Equal(t, models.StateArrivingAtDestination, bcasts[0].payload.(messages.LocationBroadcast).State)

	// Второй пинг в том же окне не рождает второе уведомление.
	require.NoError(t, fx.engine.ApplyTracking(ctx, ev))
	require.Len(t, fx.producer.byTopic("geo.notifications"), 1)
	require.Len(t, fx.producer.byTopic("geo.location"), 2)
	require.Len(t, fx.store.samples, 2)

	// Позиция ушла в реестр как обновление рейса.
	require.Len(t, fx.registry.TripLocationUpdates, 2)
}

func TestApplyTracking_ProviderDownStillPersists(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	fx.store.trucks["AAA-111"] = &models.TruckLocation{
		RegNumber: "AAA-111",
		OnTrip:    true,
		TripDetail: &models.TripDetail{
			TripID: "t-9", TripReadID: "TR-9",
			OverviewStatus:   models.OverviewToDelivery,
			DeliveryLocation: models.GeoPoint{Coordinates: []float64{3.40, 6.60}},
		},
		Version: 1,
	}
	fx.provider.DistanceErr = errors.New("provider down")

	ev := messages.TruckTracked{
		TruckLocation: models.TruckLocation{
			RegNumber:         "AAA-111",
			LastKnownLocation: models.GeoPoint{Coordinates: []float64{3.39, 6.59}},
		},
	}
	require.NoError(t, fx.engine.ApplyTracking(ctx, ev))

	got := fx.store.trucks["AAA-111"]
	require.InDelta(t, 6.59, got.LastKnownLocation.Lat(), 1e-9)
	require.Empty(t, fx.producer.byTopic("geo.notifications"))
	require.Len(t, fx.store.samples, 1)
}

func TestApplyTracking_FirstSightingCreatesAvailable(t *testing.T) {
	fx := newEngineFixture(t)

	ev := messages.TruckTracked{
		TruckLocation: models.TruckLocation{
			RegNumber:         "NEW-001",
			AssetClass:        models.AssetClass{Type: "Tanker"},
			LastKnownLocation: models.GeoPoint{Coordinates: []float64{3.3, 6.5}},
		},
	}
	require.NoError(t, fx.engine.ApplyTracking(context.Background(), ev))

	got := fx.store.trucks["NEW-001"]
	require.NotNil(t, got)
	require.True(t, got.Available)
	require.False(t, got.OnTrip)
	require.NotEmpty(t, got.LastKnownLocation.Geohash)
	require.Len(t, fx.registry.TruckLocationUpdates, 1)
}

func TestApplyTripUpdate_RoundTripProducesOneHistory(t *testing.T) {
	fx := newEngineFixture(t)
	ctx := context.Background()

	loaded := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	start := loaded.Add(30 * time.Minute)
	delivered := start.Add(45 * time.Minute)

	trip := &registry.Trip{
		ID: "t-1", TripID: "TR-1", Status: "Accepted",
		EstimatedTimeOfArrival:          "1 hour",
		EstimatedTimeOfArrivalInSeconds: 3600,
		EstimatedDistanceInKM:           52,
		CustomerName:                    "Acme",
	}
	trip.PickupStation.Address = "Lagos"
	trip.PickupStation.Location.Coordinates = []float64{6.5, 3.3}
	trip.DeliveryStation.Address = "Ibadan"
	trip.DeliveryStation.Location.Coordinates = []float64{7.4, 3.9}
	fx.registry.Trucks["AAA-111"] = &registry.Truck{RegNumber: "AAA-111", Country: "Nigeria", OwnerID: 5}
	fx.registry.Trips["AAA-111"] = trip

	// Неизвестный трак: создаётся из реестра уже на рейсе.
	require.NoError(t, fx.engine.ApplyTripUpdate(ctx, messages.TripUpdated{RegNumber: "AAA-111", TripID: "t-1", Status: "Accepted"}))

	got := fx.store.trucks["AAA-111"]
	require.False(t, got.Available)
	require.True(t, got.OnTrip)
	require.Equal(t, models.OverviewToPickup, got.TripDetail.OverviewStatus)
	require.InDelta(t, 3.3, got.TripDetail.PickupLocation.Lng(), 1e-9) // [lat,lng] реестра развёрнут

	// Погрузились и поехали.
	require.NoError(t, fx.engine.ApplyTripUpdate(ctx, messages.TripUpdated{
		RegNumber: "AAA-111", TripID: "t-1",
		Status: models.TripStatusTransporting, LoadedDate: &loaded, TransportDate: &start,
	}))
	got = fx.store.trucks["AAA-111"]
	require.Equal(t, models.OverviewToDelivery, got.TripDetail.OverviewStatus)
	require.Equal(t, start, *got.TripDetail.StartDate)

	// Доставка: ровно одна запись истории, трак снова доступен.
	require.NoError(t, fx.engine.ApplyTripUpdate(ctx, messages.TripUpdated{
		RegNumber: "AAA-111", TripID: "t-1",
		Status: models.TripStatusDelivered, DateDelivered: &delivered,
	}))

	require.Len(t, fx.store.histories, 1)
	h := fx.store.histories[0]
	require.Equal(t, int64(2700), h.ActualTripDuration.Value)
	require.Equal(t, int64(900), h.RemainingETA.Value)

	got = fx.store.trucks["AAA-111"]
	require.True(t, got.Available)
	require.False(t, got.OnTrip)
	require.Nil(t, got.TripDetail)

	// Повтор события Delivered: активного рейса в реестре больше нет,
	// второй записи истории не появляется.
	delete(fx.registry.Trips, "AAA-111")
	require.NoError(t, fx.engine.ApplyTripUpdate(ctx, messages.TripUpdated{
		RegNumber: "AAA-111", TripID: "t-1",
		Status: models.TripStatusDelivered, DateDelivered: &delivered,
	}))
	require.Len(t, fx.store.histories, 1)
	require.True(t, fx.store.trucks["AAA-111"].Available)
}

func TestApplyTripUpdate_UnknownTruckWithoutRegistryIsDropped(t *testing.T) {
	fx := newEngineFixture(t)

	require.NoError(t, fx.engine.ApplyTripUpdate(context.Background(), messages.TripUpdated{
		RegNumber: "GHOST-1", TripID: "t-1", Status: models.TripStatusTransporting,
	}))
	require.Empty(t, fx.store.trucks)
}

func TestApplyTripUpdate_RegistryTruckWithoutTripIsAvailable(t *testing.T) {
	fx := newEngineFixture(t)

	fx.registry.Trucks["BBB-222"] = &registry.Truck{RegNumber: "BBB-222", Country: "Ghana"}
	require.NoError(t, fx.engine.ApplyTripUpdate(context.Background(), messages.TripUpdated{
		RegNumber: "BBB-222", TripID: "t-7", Status: models.TripStatusLoaded,
	}))

	got := fx.store.trucks["BBB-222"]
	require.NotNil(t, got)
	require.True(t, got.Available)
	require.Nil(t, got.TripDetail)
}
