// Package registry talks to the core truck/trip registry service. Lookup
// failures (network, non-2xx, malformed body) surface as "not found" so the
// trip-state engine can degrade instead of propagating transport errors.
package registry

import (
	"context"
	"time"
)

// Truck is the registry's view of a fleet vehicle.
type Truck struct {
	RegNumber string `json:"regNumber"`
	Country   string `json:"country,omitempty"`

	Asset struct {
		ID   string `json:"_id"`
		Type string `json:"type"`
		Unit string `json:"unit"`
		Size string `json:"size"`
		Name string `json:"name"`
	} `json:"asset"`

	OwnerID             int64  `json:"ownerId"`
	OwnerBusinessName   string `json:"ownerBusinessName"`
	ActiveOwnerID       int64  `json:"activeOwnerId,omitempty"`
	ActiveBusinessName  string `json:"activeBusinessName,omitempty"`
}

// Station is a pickup/delivery point. Coordinates come as [lat, lng].
type Station struct {
	Address  string `json:"address"`
	Location struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"location"`
}

// Trip is the registry's active trip record for a truck.
type Trip struct {
	ID     string `json:"_id"`
	TripID string `json:"tripId"`
	Status string `json:"status"`

	SalesOrderNo    string     `json:"salesOrderNo,omitempty"`
	WaybillNo       string     `json:"waybillNo,omitempty"`
	TransportStatus string     `json:"transportStatus,omitempty"`
	Delivered       bool       `json:"delivered"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	LoadedDate      *time.Time `json:"loadedDate,omitempty"`

	EstimatedTimeOfArrival          string  `json:"estimatedTimeOfArrival,omitempty"`
	EstimatedTimeOfArrivalInSeconds int64   `json:"estimatedTimeOfArrivalInSeconds,omitempty"`
	EstimatedDistanceInKM           float64 `json:"estimatedDistanceInKM,omitempty"`

	GoodType     string `json:"goodType,omitempty"`
	GoodCategory string `json:"goodCategory,omitempty"`

	PickupStation   Station `json:"pickupStation"`
	DeliveryStation Station `json:"deliveryStation"`
	DropOff         []struct {
		Location Station `json:"location"`
	} `json:"dropOff,omitempty"`

	SourceCountry      string `json:"sourceCountry,omitempty"`
	DestinationCountry string `json:"destinationCountry,omitempty"`

	PartnerID   int64  `json:"partnerId,omitempty"`
	PartnerName string `json:"partnerName,omitempty"`

	Driver struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Mobile string `json:"mobile"`
	} `json:"driver"`

	CustomerID    int64  `json:"customerId,omitempty"`
	CustomerName  string `json:"customerName,omitempty"`
	CustomerPhone string `json:"customerPhone,omitempty"`
}

// LocationUpdate is pushed back to the registry on every tracking event.
type LocationUpdate struct {
	Lat             float64 `json:"lat"`
	Lng             float64 `json:"long"`
	LastTrackedTime string  `json:"lastTrackedTime"`
	From            string  `json:"from"`
	Address         string  `json:"address,omitempty"`
	City            string  `json:"city,omitempty"`
	State           string  `json:"state,omitempty"`
	Country         string  `json:"country,omitempty"`
}

type Client interface {
	// GetTruck returns the registry truck, or ok=false when it is unknown
	// or the registry is unreachable.
	GetTruck(ctx context.Context, regNumber, token string) (*Truck, bool)
	// GetActiveTrip returns the truck's active trip, ok=false when none.
	GetActiveTrip(ctx context.Context, regNumber, token string) (*Trip, bool)
	// UpdateTripLocation pushes the latest position onto an active trip.
	UpdateTripLocation(ctx context.Context, tripID, token string, upd LocationUpdate) error
	// UpdateTruckLocation pushes the latest position onto a truck without
	// an active trip.
	UpdateTruckLocation(ctx context.Context, regNumber, token string, upd LocationUpdate) error
}
