package models

import "time"

// Overview statuses of an active trip.
const (
	OverviewToPickup      = "toPickup"
	OverviewToDelivery    = "toDelivery"
	OverviewAtDestination = "atDestination"
	OverviewReturning     = "returning"
)

// Upstream trip statuses from the registry.
const (
	TripStatusTransporting  = "Transporting"
	TripStatusLoaded        = "Loaded"
	TripStatusAtDestination = "At-destination"
	TripStatusOffloaded     = "Offloaded"
	TripStatusReturning     = "ReturningContainer"
	TripStatusDelivered     = "Delivered"
)

// Proximity states derived from ETA while tracking.
const (
	StateToPickup             = "toPickup"
	StateArrivingAtPickup     = "arrivingAtPickup"
	StateArrivedAtPickup      = "arrivedAtPickup"
	StateToDelivery           = "toDelivery"
	StateArrivingAtDestination = "arrivingAtDestination"
	StateAtDestination        = "atDestination"
)

// GeoPoint is a GeoJSON-style point: coordinates are [lng, lat].
type GeoPoint struct {
	Coordinates []float64 `json:"coordinates"`
	Geohash     string    `json:"geohash,omitempty"`
	Address     string    `json:"address,omitempty"`
}

func (p GeoPoint) Lng() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[0]
}

func (p GeoPoint) Lat() float64 {
	if len(p.Coordinates) < 2 {
		return 0
	}
	return p.Coordinates[1]
}

// ETA holds a duration in seconds plus its human form ("1 hour, 5 minutes").
type ETA struct {
	Text  string `json:"text"`
	Value int64  `json:"value"`
}

type AssetClass struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
	Unit string `json:"unit,omitempty"`
	Size string `json:"size,omitempty"`
	Name string `json:"name,omitempty"`
}

type Partner struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

type Driver struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

type Contact struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	UserID int64  `json:"userId,omitempty"`
}

// TruckLocation is the per-truck document, keyed by registration number.
// Invariant: either available && !onTrip && tripDetail==nil,
// or !available && onTrip && tripDetail!=nil.
type TruckLocation struct {
	RegNumber  string     `json:"regNumber"`
	IMEI       string     `json:"imei,omitempty"`
	AssetClass AssetClass `json:"assetClass"`
	UserType   string     `json:"userType,omitempty"`
	Country    string     `json:"country,omitempty"`
	Source     string     `json:"source,omitempty"`
	Provider   string     `json:"provider,omitempty"`

	Bearing float64 `json:"bearing,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Mileage float64 `json:"mileage,omitempty"`

	LastKnownLocation  GeoPoint  `json:"lastKnownLocation"`
	LastConnectionTime time.Time `json:"lastConnectionTime"`

	Available bool       `json:"available"`
	OnTrip    bool       `json:"onTrip"`
	Booked    bool       `json:"booked,omitempty"`
	BookedDate *time.Time `json:"bookedDate,omitempty"`
	BookedBy   *Contact   `json:"bookedBy,omitempty"`

	ActivePartner Partner `json:"activePartner"`
	Driver        Driver  `json:"driver"`

	TripDetail *TripDetail `json:"tripDetail,omitempty"`

	// DistanceToPoint is populated by nearest-neighbor queries only.
	DistanceToPoint float64 `json:"distanceToPoint,omitempty"`

	// Version guards read-then-write transitions (compare-and-swap).
	Version int64 `json:"-"`
}

// TripDetail is embedded in TruckLocation while a trip is active.
type TripDetail struct {
	TripID     string `json:"tripId"`
	TripReadID string `json:"tripReadId"`

	TripStatus      string `json:"tripStatus,omitempty"`
	TransportStatus string `json:"transportStatus,omitempty"`
	OverviewStatus  string `json:"overviewStatus"`
	Delivered       bool   `json:"delivered"`

	SalesOrderNo string `json:"salesOrderNo,omitempty"`
	WaybillNo    string `json:"waybillNo,omitempty"`

	LoadedDate         *time.Time `json:"loadedDate,omitempty"`
	StartDate          *time.Time `json:"startDate,omitempty"`
	AcceptanceDateTime *time.Time `json:"acceptanceDateTime,omitempty"`

	ExpectedETA ETA `json:"expectedETA"`
	CurrentETA  ETA `json:"currentETA"`

	TotalDistance     float64 `json:"totalDistance,omitempty"`
	RemainingDistance float64 `json:"remainingDistance,omitempty"`

	PickupLocation   GeoPoint   `json:"pickupLocation"`
	DeliveryLocation GeoPoint   `json:"deliveryLocation"`
	DropOffs         []GeoPoint `json:"dropOffs,omitempty"`

	GoodType        string `json:"goodType,omitempty"`
	GoodCategory    string `json:"goodCategory,omitempty"`
	SourceCountry   string `json:"sourceCountry,omitempty"`
	DeliveryCountry string `json:"deliveryCountry,omitempty"`

	PartnerID    int64  `json:"partnerId,omitempty"`
	PartnerName  string `json:"partnerName,omitempty"`
	DriverID     int64  `json:"driverId,omitempty"`
	DriverName   string `json:"driverName,omitempty"`
	DriverMobile string `json:"driverMobile,omitempty"`
	CustomerID   int64  `json:"customerId,omitempty"`
	CustomerName string `json:"customerName,omitempty"`

	BestRoutePolyline string `json:"bestRoutePolyline,omitempty"`
}

// TripHistory is the immutable archive entry written once per delivered trip.
type TripHistory struct {
	ID         uint64 `json:"id,omitempty"`
	TripID     string `json:"tripId"`
	TripReadID string `json:"tripReadId"`
	RegNumber  string `json:"regNumber"`

	ExpectedETA        ETA  `json:"expectedETA"`
	ActualTripDuration ETA  `json:"actualTripDuration"`
	// RemainingETA is set only when the trip beat its expected duration.
	RemainingETA *ETA `json:"remainingETA,omitempty"`

	TotalDistance float64 `json:"totalDistance,omitempty"`

	LastKnownLocation *GeoPoint `json:"lastKnownLocation,omitempty"`
	PickupLocation    GeoPoint  `json:"pickupLocation"`
	DeliveryLocation  GeoPoint  `json:"deliveryLocation"`

	LoadedDate   *time.Time `json:"loadedDate,omitempty"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	DeliveryDate time.Time  `json:"deliveryDate"`

	PartnerID  int64      `json:"partnerId,omitempty"`
	DriverID   int64      `json:"driverId,omitempty"`
	CustomerID int64      `json:"customerId,omitempty"`
	Asset      AssetClass `json:"asset"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// LocationHistory is one row per raw location sample; append-only.
type LocationHistory struct {
	ID         uint64    `json:"id,omitempty"`
	RegNumber  string    `json:"regNumber"`
	Location   GeoPoint  `json:"location"`
	AssetClass AssetClass `json:"assetClass"`
	IMEI       string    `json:"imei,omitempty"`
	Bearing    float64   `json:"bearing,omitempty"`
	Speed      float64   `json:"speed,omitempty"`
	Geohash    string    `json:"geohash,omitempty"`
	Source     string    `json:"source,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	DataTime   time.Time `json:"dataTime"`
	TripID     string    `json:"tripId,omitempty"`
	DriverID   int64     `json:"driverId,omitempty"`
	PartnerID  int64     `json:"partnerId,omitempty"`
	CustomerID int64     `json:"customerId,omitempty"`
	TruckStatus string   `json:"truckStatus,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
}

// TruckRequest is an open order waiting for a truck.
type TruckRequest struct {
	ID           int64      `json:"id"`
	CustomerID   int64      `json:"customerId"`
	CustomerName string     `json:"customerName,omitempty"`
	AssetClass   AssetClass `json:"assetClass"`

	PickupLocation   GeoPoint  `json:"pickupLocation"`
	DeliveryLocation *GeoPoint `json:"deliveryLocation,omitempty"`
	PickupGeohash    string    `json:"pickupGeohash,omitempty"`
	DeliveryGeohash  string    `json:"deliveryGeohash,omitempty"`

	ExpectedETA   ETA     `json:"expectedETA"`
	TotalDistance float64 `json:"totalDistance,omitempty"`

	DistanceToPoint float64 `json:"distanceToPoint,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}
