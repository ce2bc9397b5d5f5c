// Package congestion estimates traffic delay along the first stretch of a
// route. It is a best-effort enrichment: every provider failure produces an
// informational report, never an error.
package congestion

import (
	"context"
	"log/slog"
	"math"

	"github.com/BearBump/GeoCore/internal/integrations/geoprovider"
)

// budgetSeconds caps how much of the route is analyzed: steps are walked in
// order until their accumulated free-flow duration reaches 30 minutes.
const budgetSeconds int64 = 1800

type Segment struct {
	StartLocation   geoprovider.Coordinate `json:"startLocation"`
	EndLocation     geoprovider.Coordinate `json:"endLocation"`
	DurationSeconds int64                  `json:"durationSeconds"`
	DelayMinutes    float64                `json:"delayMinutes"`
}

// Report always carries Status=true; Message is set when the estimate
// degraded and Segments is empty.
type Report struct {
	Status        bool      `json:"status"`
	Message       string    `json:"message,omitempty"`
	DirectionType string    `json:"directionType,omitempty"`
	Segments      []Segment `json:"segments"`
}

type Estimator struct {
	provider geoprovider.Provider
	log      *slog.Logger
}

func New(provider geoprovider.Provider, log *slog.Logger) *Estimator {
	return &Estimator{provider: provider, log: log}
}

// Estimate analyzes congestion between source and destination. Steps beyond
// the time budget are not evaluated at all (each evaluated step costs one
// extra provider call).
func (e *Estimator) Estimate(ctx context.Context, src, dst geoprovider.Coordinate, directionType string) *Report {
	report := &Report{Status: true, DirectionType: directionType, Segments: []Segment{}}

	route, err := e.provider.Directions(ctx, geoprovider.Input{Source: src, Destination: dst})
	if err != nil {
		report.Message = "congestion estimate unavailable: " + err.Error()
		e.log.Warn("congestion route lookup failed", "err", err)
		return report
	}
	if len(route.Legs) == 0 {
		report.Message = "congestion estimate unavailable: route has no legs"
		return report
	}

	var accumulated int64
	for _, step := range route.Legs[0].Steps {
		seg := Segment{
			StartLocation:   step.StartLocation,
			EndLocation:     step.EndLocation,
			DurationSeconds: step.DurationSeconds,
			DelayMinutes:    e.stepDelay(ctx, step),
		}
		report.Segments = append(report.Segments, seg)

		accumulated += step.DurationSeconds
		if accumulated >= budgetSeconds {
			break
		}
	}
	return report
}

// stepDelay re-queries directions for the single step to obtain its
// duration in traffic; the delay is traffic minus free-flow, in minutes.
func (e *Estimator) stepDelay(ctx context.Context, step geoprovider.Step) float64 {
	route, err := e.provider.Directions(ctx, geoprovider.Input{
		Source:      step.StartLocation,
		Destination: step.EndLocation,
	})
	if err != nil || len(route.Legs) == 0 {
		e.log.Warn("step traffic lookup failed", "err", err)
		return 0
	}

	leg := route.Legs[0]
	delay := leg.DurationInTrafficSeconds - leg.DurationSeconds
	if delay <= 0 {
		return 0
	}
	return math.Round(float64(delay)/60.0*100) / 100
}
