package tripstate

import (
	"time"

	"github.com/BearBump/GeoCore/internal/broker/messages"
	"github.com/BearBump/GeoCore/internal/geo"
	"github.com/BearBump/GeoCore/internal/models"
)

// DecisionKind tags the outcome of a trip-update transition.
type DecisionKind string

const (
	// DecideNone: nothing to do.
	DecideNone DecisionKind = "none"
	// DecideAttachTrip: the event references a trip the truck does not
	// carry yet; the caller must look up the active trip and attach it.
	DecideAttachTrip DecisionKind = "attachTrip"
	// DecideForceAvailable: the attached trip was already delivered, the
	// archive exists; just revert the truck to available.
	DecideForceAvailable DecisionKind = "forceAvailable"
	// DecideUpdateTrip: write the recomputed trip detail.
	DecideUpdateTrip DecisionKind = "updateTrip"
	// DecideArchiveTrip: the trip completed; write the history record and
	// revert the truck to available.
	DecideArchiveTrip DecisionKind = "archiveTrip"
)

// Decision is the full outcome of a transition: the document to persist and
// the archive record, returned as data so the caller owns all side effects.
type Decision struct {
	Kind    DecisionKind
	Truck   *models.TruckLocation
	History *models.TripHistory
}

// Decide computes the trip-update transition for a known truck. The function
// is pure: it never touches storage, the registry or the clock beyond now.
func Decide(truck *models.TruckLocation, ev messages.TripUpdated, now time.Time) Decision {
	if truck.TripDetail == nil || truck.TripDetail.TripID != ev.TripID {
		return Decision{Kind: DecideAttachTrip}
	}

	if truck.TripDetail.Delivered {
		return Decision{Kind: DecideForceAvailable, Truck: availableCopy(truck)}
	}

	if ev.Status == models.TripStatusDelivered {
		history := buildHistory(truck, ev, now)
		return Decision{
			Kind:    DecideArchiveTrip,
			Truck:   availableCopy(truck),
			History: history,
		}
	}

	next := *truck
	td := *truck.TripDetail
	next.TripDetail = &td
	next.Available = false
	next.OnTrip = true

	td.TripStatus = ev.Status
	if ev.TransportStatus != "" {
		td.TransportStatus = ev.TransportStatus
	}
	if ev.LoadedDate != nil {
		td.LoadedDate = ev.LoadedDate
	}

	td.OverviewStatus = OverviewFor(td.LoadedDate, ev.Status, td.OverviewStatus)
	if ev.Status == models.TripStatusTransporting && td.LoadedDate != nil && td.StartDate == nil {
		start := now
		if ev.TransportDate != nil {
			start = *ev.TransportDate
		}
		td.StartDate = &start
	}

	return Decision{Kind: DecideUpdateTrip, Truck: &next}
}

// OverviewFor maps (loadedDate, upstream status) to the coarse overview
// label. Unknown statuses keep the current label.
func OverviewFor(loadedDate *time.Time, status, current string) string {
	switch {
	case loadedDate == nil:
		return models.OverviewToPickup
	case status == models.TripStatusTransporting, status == models.TripStatusLoaded:
		return models.OverviewToDelivery
	case status == models.TripStatusAtDestination, status == models.TripStatusOffloaded:
		return models.OverviewAtDestination
	case status == models.TripStatusReturning:
		return models.OverviewReturning
	default:
		return current
	}
}

func buildHistory(truck *models.TruckLocation, ev messages.TripUpdated, now time.Time) *models.TripHistory {
	td := truck.TripDetail

	deliveredAt := now
	if ev.DateDelivered != nil {
		deliveredAt = *ev.DateDelivered
	}

	var actual int64
	if td.StartDate != nil && deliveredAt.After(*td.StartDate) {
		actual = int64(deliveredAt.Sub(*td.StartDate).Seconds())
	}

	h := &models.TripHistory{
		TripID:     td.TripID,
		TripReadID: td.TripReadID,
		RegNumber:  truck.RegNumber,

		ExpectedETA:        td.ExpectedETA,
		ActualTripDuration: models.ETA{Text: geo.FormatHMS(actual), Value: actual},

		TotalDistance:    td.TotalDistance,
		PickupLocation:   td.PickupLocation,
		DeliveryLocation: td.DeliveryLocation,

		LoadedDate:   td.LoadedDate,
		StartDate:    td.StartDate,
		DeliveryDate: deliveredAt,

		PartnerID:  td.PartnerID,
		DriverID:   td.DriverID,
		CustomerID: td.CustomerID,
		Asset:      truck.AssetClass,
	}

	if len(truck.LastKnownLocation.Coordinates) >= 2 {
		loc := truck.LastKnownLocation
		h.LastKnownLocation = &loc
	}

	// remainingETA существует только если рейс закончился быстрее плана.
	if expected := td.ExpectedETA.Value; actual < expected {
		rem := expected - actual
		h.RemainingETA = &models.ETA{Text: geo.FormatHMS(rem), Value: rem}
	}

	return h
}

func availableCopy(truck *models.TruckLocation) *models.TruckLocation {
	next := *truck
	next.Available = true
	next.OnTrip = false
	next.Booked = false
	next.BookedDate = nil
	next.BookedBy = nil
	next.TripDetail = nil
	return &next
}
