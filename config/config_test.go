package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  truck_tracked_topic_name: "truck.tracked"
  trip_updated_topic_name: "trip.updated"
  location_broadcast_topic_name: "geo.location"
  geo_notification_topic_name: "geo.notifications"
redis:
  host: "localhost"
  port: 6379
registry:
  base_url: "http://registry:8000"
provider:
  base_url: "https://maps.example.com"
  api_key: "k"
  call_budget_per_minute: 300
geocore:
  http_addr: ":8080"
  kafka_consumer_group: "geo-ingest"
  notification_ttl_seconds: 86400
  geocode_ttl_seconds: 2592000
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "truck.tracked", cfg.Kafka.TruckTrackedTopicName)
	require.Equal(t, "trip.updated", cfg.Kafka.TripUpdatedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "http://registry:8000", cfg.Registry.BaseURL)
	require.Equal(t, 300, cfg.Provider.CallBudgetPerMinute)
	require.Equal(t, ":8080", cfg.GeoCore.HTTPAddr)
	require.Equal(t, 86400, cfg.GeoCore.NotificationTTLSeconds)
}
