package messages

import "time"

// TripUpdated is the authoritative trip status change from the registry,
// keyed by trip id.
type TripUpdated struct {
	RegNumber string `json:"regNumber"`
	TripID    string `json:"tripId"`

	Status          string `json:"status"`
	TransportStatus string `json:"transportStatus,omitempty"`

	LoadedDate    *time.Time `json:"loadedDate,omitempty"`
	TransportDate *time.Time `json:"transportDate,omitempty"`
	DateDelivered *time.Time `json:"dateDelivered,omitempty"`

	AuthToken string `json:"authToken,omitempty"`
}
