package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	// Lagos. Known geohash prefix "s14".
	gh := Encode(6.5244, 3.3792, 7)
	require.Len(t, gh, 7)
	require.Equal(t, "s14", gh[:3])
}

func TestHaversine(t *testing.T) {
	// Lagos -> Abuja is roughly 536 km.
	d := Haversine(6.5244, 3.3792, 9.0765, 7.3986)
	require.InDelta(t, 536_000, d, 10_000)

	require.Zero(t, Haversine(6.5, 3.3, 6.5, 3.3))
}

func TestBearing(t *testing.T) {
	// Due east along the equator.
	b := Bearing(0, 0, 0, 1)
	require.InDelta(t, 90, b, 0.01)

	// Due north.
	b = Bearing(0, 0, 1, 0)
	require.InDelta(t, 0, b, 0.01)

	// Result is always [0, 360).
	b = Bearing(0, 1, 0, 0)
	require.InDelta(t, 270, b, 0.01)
}

func TestDecodePolyline(t *testing.T) {
	// Google's documented sample: (38.5,-120.2) (40.7,-120.95) (43.252,-126.453).
	coords, err := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@")
	require.NoError(t, err)
	require.Len(t, coords, 3)
	require.InDelta(t, -120.2, coords[0][0], 1e-9)
	require.InDelta(t, 38.5, coords[0][1], 1e-9)
	require.InDelta(t, -126.453, coords[2][0], 1e-9)

	_, err = DecodePolyline("\xff")
	require.Error(t, err)
}

func TestFormatHMS(t *testing.T) {
	require.Equal(t, "45 minutes", FormatHMS(2700))
	require.Equal(t, "1 hour", FormatHMS(3600))
	require.Equal(t, "1 day, 1 hour, 1 minute, 1 second", FormatHMS(90061))
	require.Equal(t, "", FormatHMS(0))
	require.Equal(t, "", FormatHMS(-5))
}
