package pgfleet

import (
	"context"
	"time"

	"github.com/BearBump/GeoCore/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// InsertTripHistory archives a delivered trip. Replays of the same trip
// (same tripReadId) are silently dropped by the unique index.
func (s *Storage) InsertTripHistory(ctx context.Context, h *models.TripHistory) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO trip_history (
  trip_id, trip_read_id, reg_number,
  expected_eta, actual_trip_duration, remaining_eta,
  total_distance, last_known_location, pickup_location, delivery_location,
  loaded_date, start_date, delivery_date,
  partner_id, driver_id, customer_id, asset, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (trip_read_id) DO NOTHING
`,
		h.TripID, h.TripReadID, h.RegNumber,
		h.ExpectedETA, h.ActualTripDuration, h.RemainingETA,
		h.TotalDistance, h.LastKnownLocation, h.PickupLocation, h.DeliveryLocation,
		h.LoadedDate, h.StartDate, h.DeliveryDate.UTC(),
		h.PartnerID, h.DriverID, h.CustomerID, h.Asset, time.Now().UTC())
	return errors.Wrap(err, "insert trip history")
}

func (s *Storage) ListTripHistory(ctx context.Context, regNumber string, limit, offset int) ([]*models.TripHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, trip_id, trip_read_id, reg_number,
  expected_eta, actual_trip_duration, remaining_eta,
  total_distance, last_known_location, pickup_location, delivery_location,
  loaded_date, start_date, delivery_date,
  partner_id, driver_id, customer_id, asset, created_at
FROM trip_history
WHERE reg_number = $1
ORDER BY delivery_date DESC
LIMIT $2 OFFSET $3
`, regNumber, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select trip history")
	}
	defer rows.Close()

	var out []*models.TripHistory
	for rows.Next() {
		var h models.TripHistory
		if err := rows.Scan(
			&h.ID, &h.TripID, &h.TripReadID, &h.RegNumber,
			&h.ExpectedETA, &h.ActualTripDuration, &h.RemainingETA,
			&h.TotalDistance, &h.LastKnownLocation, &h.PickupLocation, &h.DeliveryLocation,
			&h.LoadedDate, &h.StartDate, &h.DeliveryDate,
			&h.PartnerID, &h.DriverID, &h.CustomerID, &h.Asset, &h.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan trip history")
		}
		out = append(out, &h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// InsertLocationHistoryBatch appends raw samples in one transaction.
func (s *Storage) InsertLocationHistoryBatch(ctx context.Context, items []models.LocationHistory) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, it := range items {
		_, err := tx.Exec(ctx, `
INSERT INTO location_history (
  reg_number, lat, lng, geohash, asset_class, imei,
  bearing, speed, source, provider, data_time,
  trip_id, driver_id, partner_id, customer_id, truck_status, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`,
			it.RegNumber, it.Location.Lat(), it.Location.Lng(), it.Geohash, it.AssetClass, it.IMEI,
			it.Bearing, it.Speed, it.Source, it.Provider, it.DataTime.UTC(),
			it.TripID, it.DriverID, it.PartnerID, it.CustomerID, it.TruckStatus, now)
		if err != nil {
			return errors.Wrap(err, "insert location history")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}

func (s *Storage) ListLocationHistory(ctx context.Context, regNumber string, from, to time.Time, limit int) ([]*models.LocationHistory, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, reg_number, lat, lng, geohash, asset_class, imei,
  bearing, speed, source, provider, data_time,
  trip_id, driver_id, partner_id, customer_id, truck_status, created_at
FROM location_history
WHERE reg_number = $1 AND data_time >= $2 AND data_time <= $3
ORDER BY data_time DESC
LIMIT $4
`, regNumber, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select location history")
	}
	defer rows.Close()

	var out []*models.LocationHistory
	for rows.Next() {
		var h models.LocationHistory
		var lat, lng float64
		if err := rows.Scan(
			&h.ID, &h.RegNumber, &lat, &lng, &h.Geohash, &h.AssetClass, &h.IMEI,
			&h.Bearing, &h.Speed, &h.Source, &h.Provider, &h.DataTime,
			&h.TripID, &h.DriverID, &h.PartnerID, &h.CustomerID, &h.TruckStatus, &h.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan location history")
		}
		h.Location = models.GeoPoint{Coordinates: []float64{lng, lat}, Geohash: h.Geohash}
		out = append(out, &h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
