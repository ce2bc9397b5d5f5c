package messages

import "github.com/BearBump/GeoCore/internal/models"

// Recipient roles.
const (
	RoleWaybillCollector = "waybillCollector"
)

// Notification tags understood by the alerting queue consumer.
const (
	TagWaybillCollect = "WAYBILL_COLLECT"
)

// GeoNotification is the payload pushed to the alerting queue when a truck
// approaches its destination.
type GeoNotification struct {
	Tag  string `json:"tag,omitempty"`
	Tier string `json:"tier"`

	// Recipient.
	FirstName string `json:"firstName,omitempty"`
	Phone     string `json:"phone,omitempty"`
	UserID    int64  `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`

	// Trip context.
	TripID       string            `json:"tripId"`
	RegNumber    string            `json:"regNumber"`
	DriverName   string            `json:"driverName,omitempty"`
	DriverMobile string            `json:"driverMobile,omitempty"`
	AssetClass   models.AssetClass `json:"assetClass"`
	Destination  string            `json:"destination,omitempty"`
	CustomerName string            `json:"customerName,omitempty"`
	Duration     string            `json:"duration,omitempty"`
}
