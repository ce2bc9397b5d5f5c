package messages

import (
	"time"

	"github.com/BearBump/GeoCore/internal/models"
)

// LocationSample is one raw GPS reading inside a tracking batch.
type LocationSample struct {
	Coordinates []float64 `json:"coordinates"`
	Geohash     string    `json:"geohash,omitempty"`
	Address     string    `json:"address,omitempty"`
	Bearing     float64   `json:"bearing,omitempty"`
	Speed       float64   `json:"speed,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TruckTracked is the inbound tracking event, keyed by truck registration.
// It carries the truck document as seen by the tracker plus the batch of raw
// samples collected since the previous event.
type TruckTracked struct {
	models.TruckLocation

	Locations []LocationSample `json:"locations,omitempty"`

	// AuthToken authorizes the follow-up registry update.
	AuthToken string `json:"authToken,omitempty"`
}

// LocationBroadcast is the outbound per-truck position fanned out to live
// clients, keyed by registration number.
type LocationBroadcast struct {
	RegNumber string          `json:"regNumber"`
	Location  models.GeoPoint `json:"location"`
	Bearing   float64         `json:"bearing,omitempty"`
	Speed     float64         `json:"speed,omitempty"`
	TripID    string          `json:"tripId,omitempty"`
	State     string          `json:"state,omitempty"`
	At        time.Time       `json:"at"`
}
