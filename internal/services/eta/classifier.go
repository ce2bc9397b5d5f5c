// Package eta turns a remaining travel time into a proximity state and,
// for the destination leg, the notification tier that state entitles.
package eta

import "github.com/BearBump/GeoCore/internal/models"

// Thresholds in minutes. ETA seconds are divided by 60 before comparison,
// so a 90-second ETA counts as 1.5 minutes, not 1.
const (
	arrivedWithin  = 1.0
	arrivingWithin = 5.0
	approachWithin = 60.0
)

// Notification tiers for the delivery leg. The values double as the
// dedup-key prefix, so they must stay stable across deployments.
const (
	TierFirst  = "firstNotif"
	TierSecond = "secondNotif"
)

// ClassifyPickupApproach maps the remaining ETA to the pickup leg states.
// The pickup leg never fires notifications.
func ClassifyPickupApproach(etaSeconds int64) string {
	m := minutes(etaSeconds)
	switch {
	case m <= arrivedWithin:
		return models.StateArrivedAtPickup
	case m <= arrivingWithin:
		return models.StateArrivingAtPickup
	default:
		return models.StateToPickup
	}
}

// ClassifyDestinationApproach maps the remaining ETA to the delivery leg
// states. The returned tier is empty outside the notification windows:
// tier one covers (5, 60] minutes out, tier two (1, 5].
func ClassifyDestinationApproach(etaSeconds int64) (state, tier string) {
	m := minutes(etaSeconds)
	switch {
	case m <= arrivedWithin:
		return models.StateAtDestination, ""
	case m <= arrivingWithin:
		return models.StateArrivingAtDestination, TierSecond
	case m <= approachWithin:
		return models.StateToDelivery, TierFirst
	default:
		return models.StateToDelivery, ""
	}
}

func minutes(etaSeconds int64) float64 {
	return float64(etaSeconds) / 60.0
}
