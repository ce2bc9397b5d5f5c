package pgfleet

import (
	"context"
	"strconv"
	"time"

	"github.com/BearBump/GeoCore/internal/geoquery"
	"github.com/BearBump/GeoCore/internal/models"
	"github.com/pkg/errors"
)

const requestCols = `
  id, customer_id, customer_name, asset_class,
  pickup_lat, pickup_lng, pickup_geohash,
  delivery_lat, delivery_lng, delivery_geohash,
  expected_eta, total_distance, created_at`

const haversineRequests = `(6371000 * 2 * asin(sqrt(
  power(sin(radians(($1 - pickup_lat) / 2)), 2) +
  cos(radians(pickup_lat)) * cos(radians($1)) *
  power(sin(radians(($2 - pickup_lng) / 2)), 2))))`

func (s *Storage) InsertTruckRequest(ctx context.Context, r *models.TruckRequest) (int64, error) {
	pLat, pLng := coordsOf(r.PickupLocation)
	var dLat, dLng *float64
	var dHash string
	if r.DeliveryLocation != nil {
		dLat, dLng = coordsOf(*r.DeliveryLocation)
		dHash = r.DeliveryLocation.Geohash
	}

	var id int64
	err := s.db.QueryRow(ctx, `
INSERT INTO truck_requests (
  customer_id, customer_name, asset_class,
  pickup_lat, pickup_lng, pickup_geohash,
  delivery_lat, delivery_lng, delivery_geohash,
  expected_eta, total_distance, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id
`,
		r.CustomerID, r.CustomerName, r.AssetClass,
		pLat, pLng, r.PickupLocation.Geohash,
		dLat, dLng, dHash,
		r.ExpectedETA, r.TotalDistance, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "insert truck request")
	}
	return id, nil
}

func scanRequest(row rowScanner, withDistance bool) (*models.TruckRequest, error) {
	var r models.TruckRequest
	var pLat, pLng, dLat, dLng *float64

	dest := []any{
		&r.ID, &r.CustomerID, &r.CustomerName, &r.AssetClass,
		&pLat, &pLng, &r.PickupGeohash,
		&dLat, &dLng, &r.DeliveryGeohash,
		&r.ExpectedETA, &r.TotalDistance, &r.CreatedAt,
	}
	if withDistance {
		dest = append(dest, &r.DistanceToPoint)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if pLat != nil && pLng != nil {
		r.PickupLocation = models.GeoPoint{Coordinates: []float64{*pLng, *pLat}, Geohash: r.PickupGeohash}
	}
	if dLat != nil && dLng != nil {
		r.DeliveryLocation = &models.GeoPoint{Coordinates: []float64{*dLng, *dLat}, Geohash: r.DeliveryGeohash}
	}
	return &r, nil
}

// SearchRequestsNear returns open truck requests ordered by pickup distance
// from the point.
func (s *Storage) SearchRequestsNear(ctx context.Context, q NearQuery) ([]*models.TruckRequest, error) {
	where, args := q.Filter.Where(3)
	all := append([]any{q.Lat, q.Lng}, args...)
	n := 3 + q.Filter.NumArgs()

	sql := `SELECT` + requestCols + `, ` + haversineRequests + ` AS distance_to_point
FROM truck_requests
WHERE ` + where
	if q.MaxDistanceMeters > 0 {
		sql += ` AND ` + haversineRequests + ` <= $` + strconv.Itoa(n)
		all = append(all, q.MaxDistanceMeters)
		n++
	}
	sql += `
ORDER BY distance_to_point ASC
LIMIT $` + strconv.Itoa(n) + ` OFFSET $` + strconv.Itoa(n+1)
	all = append(all, q.Limit, q.Offset)

	rows, err := s.db.Query(ctx, sql, all...)
	if err != nil {
		return nil, errors.Wrap(err, "select requests near")
	}
	defer rows.Close()

	out := make([]*models.TruckRequest, 0, q.Limit)
	for rows.Next() {
		r, err := scanRequest(rows, true)
		if err != nil {
			return nil, errors.Wrap(err, "scan request")
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CountRequests(ctx context.Context, f *geoquery.Filter) (int64, error) {
	where, args := f.Where(1)
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM truck_requests WHERE `+where, args...).Scan(&n)
	return n, errors.Wrap(err, "count requests")
}
