package gmapshttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
	"github.com/stretchr/testify/require"
)

func TestClient_Directions_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/directions/json", r.URL.Path)
		require.Equal(t, "demo", r.URL.Query().Get("key"))
		require.NotEmpty(t, r.URL.Query().Get("origin"))

		_, _ = w.Write([]byte(`{
  "status": "OK",
  "routes": [{
    "overview_polyline": {"points": "abc123"},
    "legs": [{
      "start_address": "Lagos",
      "end_address": "Ibadan",
      "duration": {"value": 5400},
      "duration_in_traffic": {"value": 6000},
      "distance": {"value": 128000},
      "steps": [
        {"start_location": {"lat": 6.5, "lng": 3.3}, "end_location": {"lat": 6.6, "lng": 3.4}, "duration": {"value": 900}}
      ]
    }]
  }]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", nil)
	route, err := c.Directions(context.Background(), geoprovider.Input{})
	require.NoError(t, err)
	require.Equal(t, "abc123", route.OverviewPolyline)
	require.Len(t, route.Legs, 1)
	require.Equal(t, int64(6000), route.Legs[0].DurationInTrafficSeconds)
	require.Len(t, route.Legs[0].Steps, 1)
	require.Equal(t, int64(900), route.Legs[0].Steps[0].DurationSeconds)
}

func TestClient_Directions_ZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ZERO_RESULTS", "routes": []}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", nil)
	_, err := c.Directions(context.Background(), geoprovider.Input{})
	require.ErrorIs(t, err, geoprovider.ErrZeroResults)
}

func TestClient_Distance_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/distancematrix/json", r.URL.Path)
		_, _ = w.Write([]byte(`{
  "status": "OK",
  "rows": [{"elements": [{"status": "OK", "distance": {"value": 128000}, "duration": {"value": 5400, "text": "1 hour 30 mins"}}]}]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", nil)
	d, err := c.Distance(context.Background(), geoprovider.Input{})
	require.NoError(t, err)
	require.Equal(t, int64(128000), d.Meters)
	require.Equal(t, int64(5400), d.DurationSeconds)
}

func TestClient_ReverseGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		_, _ = w.Write([]byte(`{"status": "OK", "results": [{"formatted_address": "3 Dauda Alhaji Street, Gauraka"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", nil)
	addr, err := c.ReverseGeocode(context.Background(), 9.2, 8.5)
	require.NoError(t, err)
	require.Equal(t, "3 Dauda Alhaji Street, Gauraka", addr)
}

func TestClient_Autocomplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
  "status": "OK",
  "predictions": [{"description": "Lagos, Nigeria", "place_id": "p1", "terms": [{"value": "Lagos"}, {"value": "Nigeria"}]}]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", nil)
	preds, err := c.Autocomplete(context.Background(), "Lag")
	require.NoError(t, err)
	require.Len(t, preds, 1)
	require.Equal(t, "p1", preds[0].PlaceID)
	require.Equal(t, []string{"Lagos", "Nigeria"}, preds[0].Terms)
}

func TestClient_StatusDeniedIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "REQUEST_DENIED", "error_message": "bad key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo", nil)
	_, err := c.ReverseGeocode(context.Background(), 1, 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, geoprovider.ErrZeroResults)
	require.Contains(t, err.Error(), "bad key")
}
