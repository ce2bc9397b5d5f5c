package geo

import (
	"fmt"
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/twpayne/go-polyline"
)

const earthRadiusMeters = 6371000.0

// Encode returns the geohash of a point at the given character precision.
// Precision 7 (~150m cell) is used for truck positions, 8 for geocode caching.
func Encode(lat, lng float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lng, precision)
}

// Haversine returns the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Bearing returns the initial bearing in degrees [0, 360) travelling from
// the current point to the next one.
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DecodePolyline expands an encoded route polyline into [lng, lat] pairs,
// the coordinate order used by GeoPoint.
func DecodePolyline(encoded string) ([][]float64, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, err
	}
	out := make([][]float64, 0, len(coords))
	for _, c := range coords {
		out = append(out, []float64{c[1], c[0]})
	}
	return out, nil
}

// FormatHMS renders a duration in seconds as "1 day, 2 hours, 3 minutes, 4 seconds".
// Zero-valued units are omitted.
func FormatHMS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := seconds / (3600 * 24)
	h := seconds % (3600 * 24) / 3600
	m := seconds % 3600 / 60
	s := seconds % 60

	var parts []string
	add := func(v int64, singular string) {
		if v <= 0 {
			return
		}
		unit := singular
		if v != 1 {
			unit += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", v, unit))
	}
	add(d, "day")
	add(h, "hour")
	add(m, "minute")
	add(s, "second")

	return strings.Join(parts, ", ")
}
