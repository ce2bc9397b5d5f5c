package corehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/GeoCore/internal/integrations/registry"
	"github.com/stretchr/testify/require"
)

func TestClient_GetTruck_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/truck/regNumber/ABC-123", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "fleet": {
    "regNumber": "ABC-123",
    "country": "Nigeria",
    "asset": {"_id": "a1", "type": "Flatbed", "unit": "ton", "size": "30", "name": "30 ton Flatbed"},
    "ownerId": 11,
    "ownerBusinessName": "Haulage Ltd"
  }
}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	truck, ok := c.GetTruck(context.Background(), "ABC-123", "tok")
	require.True(t, ok)
	require.Equal(t, "Nigeria", truck.Country)
	require.Equal(t, "Flatbed", truck.Asset.Type)
	require.Equal(t, int64(11), truck.OwnerID)
}

func TestClient_GetTruck_NotFoundOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, ok := c.GetTruck(context.Background(), "NOPE", "tok")
	require.False(t, ok)
}

func TestClient_GetActiveTrip_NoTripBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/trip/active/regNumber/ABC-123", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, ok := c.GetActiveTrip(context.Background(), "ABC-123", "tok")
	require.False(t, ok)
}

func TestClient_GetActiveTrip_MalformedBodyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not-json`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, ok := c.GetActiveTrip(context.Background(), "ABC-123", "tok")
	require.False(t, ok)
}

func TestClient_UpdateTripLocation(t *testing.T) {
	var got registry.LocationUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/trip/trip-9/updateLocation", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.UpdateTripLocation(context.Background(), "trip-9", "tok", registry.LocationUpdate{
		Lat: 6.5, Lng: 3.3, From: "corelocation",
	})
	require.NoError(t, err)
	require.Equal(t, 6.5, got.Lat)
	require.Equal(t, "corelocation", got.From)
}

func TestClient_UpdateTruckLocation_ErrorOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.UpdateTruckLocation(context.Background(), "ABC-123", "tok", registry.LocationUpdate{})
	require.Error(t, err)
}
