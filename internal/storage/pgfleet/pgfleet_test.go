package pgfleet

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/GeoCore/internal/geoquery"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGFleet_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "geocore_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/geocore_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	now := time.Now().UTC()

	// Два трака: один в точке запроса, второй ~8.4 км севернее.
	truckA := &models.TruckLocation{
		RegNumber:          "AAA-111",
		AssetClass:         models.AssetClass{Type: "Flatbed", Name: "30 ton Flatbed"},
		Country:            "Nigeria",
		LastKnownLocation:  models.GeoPoint{Coordinates: []float64{3.3792, 6.5244}},
		LastConnectionTime: now,
		Available:          true,
	}
	truckB := &models.TruckLocation{
		RegNumber:          "BBB-222",
		AssetClass:         models.AssetClass{Type: "Tanker"},
		Country:            "Nigeria",
		LastKnownLocation:  models.GeoPoint{Coordinates: []float64{3.3792, 6.6}},
		LastConnectionTime: now,
		Available:          true,
	}
	require.NoError(t, st.UpsertTruck(ctx, truckA))
	require.NoError(t, st.UpsertTruck(ctx, truckB))

	got, err := st.GetTruck(ctx, "AAA-111")
	require.NoError(t, err)
	require.Equal(t, "Flatbed", got.AssetClass.Type)
	require.Equal(t, int64(1), got.Version)
	require.InDelta(t, 6.5244, got.LastKnownLocation.Lat(), 1e-9)

	_, err = st.GetTruck(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	// Радиус 5 км захватывает только ближний трак.
	f, err := geoquery.Build(geoquery.Params{}, geoquery.TruckFields)
	require.NoError(t, err)
	near, err := st.SearchTrucksNear(ctx, NearQuery{
		Lat: 6.5244, Lng: 3.3792, MaxDistanceMeters: 5000, Filter: f, Limit: 30,
	})
	require.NoError(t, err)
	require.Len(t, near, 1)
	require.Equal(t, "AAA-111", near[0].RegNumber)
	require.Less(t, near[0].DistanceToPoint, 10.0)

	f2, err := geoquery.Build(geoquery.Params{}, geoquery.TruckFields)
	require.NoError(t, err)
	near, err = st.SearchTrucksNear(ctx, NearQuery{
		Lat: 6.5244, Lng: 3.3792, MaxDistanceMeters: 20000, Filter: f2, Limit: 30,
	})
	require.NoError(t, err)
	require.Len(t, near, 2)
	require.Equal(t, "AAA-111", near[0].RegNumber) // ближний первым

	// Версионная защита: записать можно только с актуальной версией.
	got.Country = "Ghana"
	res, err := st.UpdateTruckIf(ctx, got)
	require.NoError(t, err)
	require.True(t, res.Applied)

	res, err = st.UpdateTruckIf(ctx, got) // версия уже устарела
	require.NoError(t, err)
	require.False(t, res.Applied)
	require.Equal(t, ReasonNoChange, res.Reason)

	missing := *got
	missing.RegNumber = "NOPE"
	res, err = st.UpdateTruckIf(ctx, &missing)
	require.NoError(t, err)
	require.Equal(t, ReasonNotFound, res.Reason)

	// Бронирование: повторная бронь не проходит.
	res, err = st.BookTruck(ctx, "BBB-222", models.Contact{Name: "Ops", UserID: 7}, now)
	require.NoError(t, err)
	require.True(t, res.Applied)

	// Бронь не трогает доступность: трак всё ещё available и без рейса.
	afterBook, err := st.GetTruck(ctx, "BBB-222")
	require.NoError(t, err)
	require.True(t, afterBook.Available)
	require.False(t, afterBook.OnTrip)
	require.Nil(t, afterBook.TripDetail)
	require.True(t, afterBook.Booked)
	require.Equal(t, "Ops", afterBook.BookedBy.Name)

	// И забронированный трак по-прежнему виден в поиске доступных.
	fb, err := geoquery.Build(geoquery.Params{}, geoquery.TruckFields)
	require.NoError(t, err)
	fb.And("available")
	near, err = st.SearchTrucksNear(ctx, NearQuery{
		Lat: 6.6, Lng: 3.3792, MaxDistanceMeters: 5000, Filter: fb, Limit: 30,
	})
	require.NoError(t, err)
	require.Len(t, near, 1)
	require.Equal(t, "BBB-222", near[0].RegNumber)

	res, err = st.BookTruck(ctx, "BBB-222", models.Contact{Name: "Ops"}, now)
	require.NoError(t, err)
	require.Equal(t, ReasonNoChange, res.Reason)

	res, err = st.SetToAvailable(ctx, "BBB-222")
	require.NoError(t, err)
	require.True(t, res.Applied)

	booked, err := st.GetTruck(ctx, "BBB-222")
	require.NoError(t, err)
	require.True(t, booked.Available)
	require.False(t, booked.Booked)
	require.Nil(t, booked.BookedBy)

	// Аналитика по статусам активных рейсов.
	onTrip, err := st.GetTruck(ctx, "AAA-111")
	require.NoError(t, err)
	onTrip.Available = false
	onTrip.OnTrip = true
	onTrip.TripDetail = &models.TripDetail{TripID: "t1", TripReadID: "TR-1", OverviewStatus: models.OverviewToDelivery}
	res, err = st.UpdateTruckIf(ctx, onTrip)
	require.NoError(t, err)
	require.True(t, res.Applied)

	f3, err := geoquery.Build(geoquery.Params{}, geoquery.TruckFields)
	require.NoError(t, err)
	breakdown, err := st.StatusBreakdown(ctx, f3)
	require.NoError(t, err)
	require.Len(t, breakdown, 1)
	require.Equal(t, models.OverviewToDelivery, breakdown[0].Status)
	require.Equal(t, int64(1), breakdown[0].Count)

	// Открытая заявка рядом с точкой запроса.
	reqID, err := st.InsertTruckRequest(ctx, &models.TruckRequest{
		CustomerID:     42,
		AssetClass:     models.AssetClass{Type: "Flatbed"},
		PickupLocation: models.GeoPoint{Coordinates: []float64{3.3792, 6.5244}},
		ExpectedETA:    models.ETA{Text: "2 hours", Value: 7200},
	})
	require.NoError(t, err)
	require.NotZero(t, reqID)

	of, err := geoquery.Build(geoquery.Params{}, geoquery.OrderFields)
	require.NoError(t, err)
	reqs, err := st.SearchRequestsNear(ctx, NearQuery{
		Lat: 6.5244, Lng: 3.3792, MaxDistanceMeters: 5000, Filter: of, Limit: 100,
	})
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Equal(t, int64(42), reqs[0].CustomerID)

	// Архив рейса идемпотентен по tripReadId.
	hist := &models.TripHistory{
		TripID: "t1", TripReadID: "TR-1", RegNumber: "AAA-111",
		ExpectedETA:        models.ETA{Text: "1 hour", Value: 3600},
		ActualTripDuration: models.ETA{Text: "45 minutes", Value: 2700},
		RemainingETA:       &models.ETA{Text: "15 minutes", Value: 900},
		DeliveryDate:       now,
	}
	require.NoError(t, st.InsertTripHistory(ctx, hist))
	require.NoError(t, st.InsertTripHistory(ctx, hist))

	archived, err := st.ListTripHistory(ctx, "AAA-111", 10, 0)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, int64(900), archived[0].RemainingETA.Value)

	// Сырые точки пишутся пачкой.
	err = st.InsertLocationHistoryBatch(ctx, []models.LocationHistory{
		{RegNumber: "AAA-111", Location: models.GeoPoint{Coordinates: []float64{3.38, 6.53}}, DataTime: now.Add(-time.Minute)},
		{RegNumber: "AAA-111", Location: models.GeoPoint{Coordinates: []float64{3.39, 6.54}}, DataTime: now},
	})
	require.NoError(t, err)

	samples, err := st.ListLocationHistory(ctx, "AAA-111", now.Add(-time.Hour), now.Add(time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.InDelta(t, 6.54, samples[0].Location.Lat(), 1e-9) // свежие первыми
}
