package pgfleet

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS trucks (
  reg_number TEXT PRIMARY KEY,
  imei TEXT NOT NULL DEFAULT '',
  asset_class JSONB NOT NULL DEFAULT '{}',
  user_type TEXT NOT NULL DEFAULT '',
  country TEXT NOT NULL DEFAULT '',
  source TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL DEFAULT '',
  bearing DOUBLE PRECISION NOT NULL DEFAULT 0,
  speed DOUBLE PRECISION NOT NULL DEFAULT 0,
  mileage DOUBLE PRECISION NOT NULL DEFAULT 0,
  last_lat DOUBLE PRECISION NULL,
  last_lng DOUBLE PRECISION NULL,
  last_geohash TEXT NOT NULL DEFAULT '',
  last_address TEXT NOT NULL DEFAULT '',
  last_connection_time TIMESTAMPTZ NOT NULL,
  available BOOLEAN NOT NULL DEFAULT TRUE,
  on_trip BOOLEAN NOT NULL DEFAULT FALSE,
  booked BOOLEAN NOT NULL DEFAULT FALSE,
  booked_date TIMESTAMPTZ NULL,
  booked_by JSONB NULL,
  partner_id BIGINT NOT NULL DEFAULT 0,
  partner_name TEXT NOT NULL DEFAULT '',
  driver JSONB NOT NULL DEFAULT '{}',
  trip_detail JSONB NULL,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_trucks_last_coords ON trucks(last_lat, last_lng)`,
		`CREATE INDEX IF NOT EXISTS idx_trucks_last_connection ON trucks(last_connection_time)`,
		`CREATE INDEX IF NOT EXISTS idx_trucks_overview_status ON trucks((trip_detail->>'overviewStatus')) WHERE trip_detail IS NOT NULL`,
		`
CREATE TABLE IF NOT EXISTS truck_requests (
  id BIGSERIAL PRIMARY KEY,
  customer_id BIGINT NOT NULL,
  customer_name TEXT NOT NULL DEFAULT '',
  asset_class JSONB NOT NULL DEFAULT '{}',
  pickup_lat DOUBLE PRECISION NULL,
  pickup_lng DOUBLE PRECISION NULL,
  pickup_geohash TEXT NOT NULL DEFAULT '',
  delivery_lat DOUBLE PRECISION NULL,
  delivery_lng DOUBLE PRECISION NULL,
  delivery_geohash TEXT NOT NULL DEFAULT '',
  expected_eta JSONB NOT NULL DEFAULT '{}',
  total_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_truck_requests_pickup ON truck_requests(pickup_lat, pickup_lng)`,
		`
CREATE TABLE IF NOT EXISTS trip_history (
  id BIGSERIAL PRIMARY KEY,
  trip_id TEXT NOT NULL,
  trip_read_id TEXT NOT NULL,
  reg_number TEXT NOT NULL,
  expected_eta JSONB NOT NULL DEFAULT '{}',
  actual_trip_duration JSONB NOT NULL DEFAULT '{}',
  remaining_eta JSONB NULL,
  total_distance DOUBLE PRECISION NOT NULL DEFAULT 0,
  last_known_location JSONB NULL,
  pickup_location JSONB NOT NULL DEFAULT '{}',
  delivery_location JSONB NOT NULL DEFAULT '{}',
  loaded_date TIMESTAMPTZ NULL,
  start_date TIMESTAMPTZ NULL,
  delivery_date TIMESTAMPTZ NOT NULL,
  partner_id BIGINT NOT NULL DEFAULT 0,
  driver_id BIGINT NOT NULL DEFAULT 0,
  customer_id BIGINT NOT NULL DEFAULT 0,
  asset JSONB NOT NULL DEFAULT '{}',
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Делает повторную архивацию одного рейса no-op'ом.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_trip_history_trip_read_id ON trip_history(trip_read_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trip_history_reg_number ON trip_history(reg_number, delivery_date DESC)`,
		`
CREATE TABLE IF NOT EXISTS location_history (
  id BIGSERIAL PRIMARY KEY,
  reg_number TEXT NOT NULL,
  lat DOUBLE PRECISION NOT NULL,
  lng DOUBLE PRECISION NOT NULL,
  geohash TEXT NOT NULL DEFAULT '',
  asset_class JSONB NOT NULL DEFAULT '{}',
  imei TEXT NOT NULL DEFAULT '',
  bearing DOUBLE PRECISION NOT NULL DEFAULT 0,
  speed DOUBLE PRECISION NOT NULL DEFAULT 0,
  source TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL DEFAULT '',
  data_time TIMESTAMPTZ NOT NULL,
  trip_id TEXT NOT NULL DEFAULT '',
  driver_id BIGINT NOT NULL DEFAULT 0,
  partner_id BIGINT NOT NULL DEFAULT 0,
  customer_id BIGINT NOT NULL DEFAULT 0,
  truck_status TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_location_history_reg_time ON location_history(reg_number, data_time DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
