// Package geoprovider abstracts the third-party mapping service used for
// directions, travel distance, reverse geocoding and place lookups. Every
// operation is a fallible network call; callers treat errors as soft
// failures with sensible defaults (empty polyline, zero distance).
package geoprovider

import (
	"context"

	"github.com/pkg/errors"
)

// ErrZeroResults marks a well-formed provider answer with no usable data
// (e.g. no route between the points). Callers degrade, never abort.
var ErrZeroResults = errors.New("geoprovider: zero results")

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Input struct {
	Source      Coordinate
	Destination Coordinate
}

type Step struct {
	StartLocation   Coordinate
	EndLocation     Coordinate
	DurationSeconds int64
}

type Leg struct {
	StartAddress             string
	EndAddress               string
	DurationSeconds          int64
	DurationInTrafficSeconds int64
	DistanceMeters           int64
	Steps                    []Step
}

type Route struct {
	OverviewPolyline string
	Legs             []Leg
}

type Distance struct {
	Meters          int64
	DurationSeconds int64
	DurationText    string
}

type Prediction struct {
	Description string   `json:"description"`
	PlaceID     string   `json:"placeId"`
	Terms       []string `json:"terms,omitempty"`
}

type Place struct {
	FormattedAddress string     `json:"formattedAddress"`
	PlaceID          string     `json:"placeId"`
	Location         Coordinate `json:"location"`
}

type Provider interface {
	Directions(ctx context.Context, in Input) (*Route, error)
	Distance(ctx context.Context, in Input) (*Distance, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
	Autocomplete(ctx context.Context, input string) ([]Prediction, error)
	Place(ctx context.Context, placeID string) (*Place, error)
}
