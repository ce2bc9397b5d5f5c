package pgfleet

import (
	"context"
	"strconv"
	"time"

	"github.com/BearBump/GeoCore/internal/geoquery"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/pkg/errors"
)

const truckCols = `
  reg_number, imei, asset_class, user_type, country, source, provider,
  bearing, speed, mileage,
  last_lat, last_lng, last_geohash, last_address, last_connection_time,
  available, on_trip, booked, booked_date, booked_by,
  partner_id, partner_name, driver, trip_detail, version`

// haversineTrucks computes meters from ($1 lat, $2 lng) to the truck's last
// known position. Placeholders $1/$2 are reserved for the query point in
// every radius query.
const haversineTrucks = `(6371000 * 2 * asin(sqrt(
  power(sin(radians(($1 - last_lat) / 2)), 2) +
  cos(radians(last_lat)) * cos(radians($1)) *
  power(sin(radians(($2 - last_lng) / 2)), 2))))`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTruck(row rowScanner, withDistance bool) (*models.TruckLocation, error) {
	var t models.TruckLocation
	var lat, lng *float64
	var geohash, address string

	dest := []any{
		&t.RegNumber, &t.IMEI, &t.AssetClass, &t.UserType, &t.Country, &t.Source, &t.Provider,
		&t.Bearing, &t.Speed, &t.Mileage,
		&lat, &lng, &geohash, &address, &t.LastConnectionTime,
		&t.Available, &t.OnTrip, &t.Booked, &t.BookedDate, &t.BookedBy,
		&t.ActivePartner.ID, &t.ActivePartner.Name, &t.Driver, &t.TripDetail, &t.Version,
	}
	if withDistance {
		dest = append(dest, &t.DistanceToPoint)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if lat != nil && lng != nil {
		t.LastKnownLocation = models.GeoPoint{
			Coordinates: []float64{*lng, *lat},
			Geohash:     geohash,
			Address:     address,
		}
	}
	return &t, nil
}

func (s *Storage) GetTruck(ctx context.Context, regNumber string) (*models.TruckLocation, error) {
	row := s.db.QueryRow(ctx, `SELECT`+truckCols+` FROM trucks WHERE reg_number = $1`, regNumber)
	t, err := scanTruck(row, false)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select truck")
	}
	return t, nil
}

// UpsertTruck writes the full document. Inserts start at version 1; every
// update bumps the version.
func (s *Storage) UpsertTruck(ctx context.Context, t *models.TruckLocation) error {
	now := time.Now().UTC()
	lat, lng := coordsOf(t.LastKnownLocation)

	_, err := s.db.Exec(ctx, `
INSERT INTO trucks (
  reg_number, imei, asset_class, user_type, country, source, provider,
  bearing, speed, mileage,
  last_lat, last_lng, last_geohash, last_address, last_connection_time,
  available, on_trip, booked, booked_date, booked_by,
  partner_id, partner_name, driver, trip_detail,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$25)
ON CONFLICT (reg_number) DO UPDATE SET
  imei = EXCLUDED.imei,
  asset_class = EXCLUDED.asset_class,
  user_type = EXCLUDED.user_type,
  country = EXCLUDED.country,
  source = EXCLUDED.source,
  provider = EXCLUDED.provider,
  bearing = EXCLUDED.bearing,
  speed = EXCLUDED.speed,
  mileage = EXCLUDED.mileage,
  last_lat = EXCLUDED.last_lat,
  last_lng = EXCLUDED.last_lng,
  last_geohash = EXCLUDED.last_geohash,
  last_address = EXCLUDED.last_address,
  last_connection_time = EXCLUDED.last_connection_time,
  available = EXCLUDED.available,
  on_trip = EXCLUDED.on_trip,
  booked = EXCLUDED.booked,
  booked_date = EXCLUDED.booked_date,
  booked_by = EXCLUDED.booked_by,
  partner_id = EXCLUDED.partner_id,
  partner_name = EXCLUDED.partner_name,
  driver = EXCLUDED.driver,
  trip_detail = EXCLUDED.trip_detail,
  version = trucks.version + 1,
  updated_at = EXCLUDED.updated_at
`,
		t.RegNumber, t.IMEI, t.AssetClass, t.UserType, t.Country, t.Source, t.Provider,
		t.Bearing, t.Speed, t.Mileage,
		lat, lng, t.LastKnownLocation.Geohash, t.LastKnownLocation.Address, t.LastConnectionTime.UTC(),
		t.Available, t.OnTrip, t.Booked, t.BookedDate, t.BookedBy,
		t.ActivePartner.ID, t.ActivePartner.Name, t.Driver, t.TripDetail,
		now)
	return errors.Wrap(err, "upsert truck")
}

// UpdateTruckIf writes the document only if the stored version still equals
// t.Version (the version read before the transition was computed). A lost
// race yields NoChange, a vanished row NotFound; neither is an error.
func (s *Storage) UpdateTruckIf(ctx context.Context, t *models.TruckLocation) (UpdateResult, error) {
	lat, lng := coordsOf(t.LastKnownLocation)

	tag, err := s.db.Exec(ctx, `
UPDATE trucks SET
  imei = $2, asset_class = $3, user_type = $4, country = $5, source = $6, provider = $7,
  bearing = $8, speed = $9, mileage = $10,
  last_lat = $11, last_lng = $12, last_geohash = $13, last_address = $14, last_connection_time = $15,
  available = $16, on_trip = $17, booked = $18, booked_date = $19, booked_by = $20,
  partner_id = $21, partner_name = $22, driver = $23, trip_detail = $24,
  version = version + 1,
  updated_at = now()
WHERE reg_number = $1 AND version = $25
`,
		t.RegNumber, t.IMEI, t.AssetClass, t.UserType, t.Country, t.Source, t.Provider,
		t.Bearing, t.Speed, t.Mileage,
		lat, lng, t.LastKnownLocation.Geohash, t.LastKnownLocation.Address, t.LastConnectionTime.UTC(),
		t.Available, t.OnTrip, t.Booked, t.BookedDate, t.BookedBy,
		t.ActivePartner.ID, t.ActivePartner.Name, t.Driver, t.TripDetail,
		t.Version)
	if err != nil {
		return UpdateResult{}, errors.Wrap(err, "update truck")
	}
	if tag.RowsAffected() > 0 {
		return UpdateResult{Applied: true}, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trucks WHERE reg_number = $1)`, t.RegNumber).Scan(&exists); err != nil {
		return UpdateResult{}, errors.Wrap(err, "check truck exists")
	}
	if !exists {
		return UpdateResult{Reason: ReasonNotFound}, nil
	}
	return UpdateResult{Reason: ReasonNoChange}, nil
}

// NearQuery selects trucks ordered by distance from a point.
// MaxDistanceMeters <= 0 means unbounded.
type NearQuery struct {
	Lat, Lng          float64
	MaxDistanceMeters float64
	Filter            *geoquery.Filter
	Limit             int
	Offset            int
}

func (s *Storage) SearchTrucksNear(ctx context.Context, q NearQuery) ([]*models.TruckLocation, error) {
	where, args := q.Filter.Where(3)
	all := append([]any{q.Lat, q.Lng}, args...)
	n := 3 + q.Filter.NumArgs()

	sql := `SELECT` + truckCols + `, ` + haversineTrucks + ` AS distance_to_point
FROM trucks
WHERE ` + where
	if q.MaxDistanceMeters > 0 {
		sql += ` AND ` + haversineTrucks + ` <= $` + strconv.Itoa(n)
		all = append(all, q.MaxDistanceMeters)
		n++
	}
	sql += `
ORDER BY distance_to_point ASC
LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	all = append(all, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, sql, all...)
	if err != nil {
		return nil, errors.Wrap(err, "select trucks near")
	}
	defer rows.Close()

	out := make([]*models.TruckLocation, 0, q.Limit)
	for rows.Next() {
		t, err := scanTruck(rows, true)
		if err != nil {
			return nil, errors.Wrap(err, "scan truck")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListTrucks is the plain (no query point) listing, newest connection first.
func (s *Storage) ListTrucks(ctx context.Context, f *geoquery.Filter, limit, offset int) ([]*models.TruckLocation, error) {
	where, args := f.Where(1)
	n := 1 + f.NumArgs()

	rows, err := s.db.Query(ctx, `SELECT`+truckCols+`
FROM trucks
WHERE `+where+`
ORDER BY last_connection_time DESC
LIMIT $`+strconv.Itoa(n)+` OFFSET $`+strconv.Itoa(n+1), append(args, limit, offset)...)
	if err != nil {
		return nil, errors.Wrap(err, "select trucks")
	}
	defer rows.Close()

	out := make([]*models.TruckLocation, 0, limit)
	for rows.Next() {
		t, err := scanTruck(rows, false)
		if err != nil {
			return nil, errors.Wrap(err, "scan truck")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CountTrucks(ctx context.Context, f *geoquery.Filter) (int64, error) {
	where, args := f.Where(1)
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM trucks WHERE `+where, args...).Scan(&n)
	return n, errors.Wrap(err, "count trucks")
}

func (s *Storage) CountTrucksNear(ctx context.Context, q NearQuery) (int64, error) {
	where, args := q.Filter.Where(3)
	all := append([]any{q.Lat, q.Lng}, args...)
	n := 3 + q.Filter.NumArgs()

	sql := `SELECT COUNT(*) FROM trucks WHERE ` + where
	if q.MaxDistanceMeters > 0 {
		sql += ` AND ` + haversineTrucks + ` <= $` + strconv.Itoa(n)
		all = append(all, q.MaxDistanceMeters)
	}

	var count int64
	err := s.db.QueryRow(ctx, sql, all...).Scan(&count)
	return count, errors.Wrap(err, "count trucks near")
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// StatusBreakdown groups on-trip trucks by overview status.
func (s *Storage) StatusBreakdown(ctx context.Context, f *geoquery.Filter) ([]StatusCount, error) {
	where, args := f.Where(1)

	rows, err := s.db.Query(ctx, `
SELECT COALESCE(trip_detail->>'overviewStatus', ''), COUNT(*)
FROM trucks
WHERE on_trip AND `+where+`
GROUP BY 1
ORDER BY 2 DESC`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "status breakdown")
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		out = append(out, sc)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// SetToAvailable force-clears any trip state regardless of version.
func (s *Storage) SetToAvailable(ctx context.Context, regNumber string) (UpdateResult, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE trucks SET
  available = TRUE, on_trip = FALSE, booked = FALSE,
  booked_date = NULL, booked_by = NULL, trip_detail = NULL,
  version = version + 1, updated_at = now()
WHERE reg_number = $1
`, regNumber)
	if err != nil {
		return UpdateResult{}, errors.Wrap(err, "set truck available")
	}
	if tag.RowsAffected() == 0 {
		return UpdateResult{Reason: ReasonNotFound}, nil
	}
	return UpdateResult{Applied: true}, nil
}

// BookTruck marks a truck as booked. Availability is untouched: a booked
// truck keeps showing up in available search until a trip starts. A truck
// that is already booked yields NoChange.
func (s *Storage) BookTruck(ctx context.Context, regNumber string, by models.Contact, at time.Time) (UpdateResult, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE trucks SET
  booked = TRUE, booked_date = $2, booked_by = $3,
  version = version + 1, updated_at = now()
WHERE reg_number = $1 AND NOT booked
`, regNumber, at.UTC(), by)
	if err != nil {
		return UpdateResult{}, errors.Wrap(err, "book truck")
	}
	if tag.RowsAffected() > 0 {
		return UpdateResult{Applied: true}, nil
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM trucks WHERE reg_number = $1)`, regNumber).Scan(&exists); err != nil {
		return UpdateResult{}, errors.Wrap(err, "check truck exists")
	}
	if !exists {
		return UpdateResult{Reason: ReasonNotFound}, nil
	}
	return UpdateResult{Reason: ReasonNoChange}, nil
}

func coordsOf(p models.GeoPoint) (lat, lng *float64) {
	if len(p.Coordinates) < 2 {
		return nil, nil
	}
	la, ln := p.Coordinates[1], p.Coordinates[0]
	return &la, &ln
}
