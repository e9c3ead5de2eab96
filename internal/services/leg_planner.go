package services

import (
	"math"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// legStops groups a leg's attendees by destination in first-seen order. Attendees
// with no known destination are returned separately.
func legStops(leg []uuid.UUID, destinations map[uuid.UUID]string) ([]string, map[string][]uuid.UUID, []uuid.UUID) {
	var (
		order    []string
		unrouted []uuid.UUID
		byDest   = make(map[string][]uuid.UUID)
	)
	for _, id := range leg {
		d := strings.TrimSpace(destinations[id])
		if d == "" {
			unrouted = append(unrouted, id)
			continue
		}
		if _, ok := byDest[d]; !ok {
			order = append(order, d)
		}
		byDest[d] = append(byDest[d], id)
	}
	return order, byDest, unrouted
}

type legWalk struct {
	plan     *domain.LegPlan
	now      time.Time
	location string
}

func newLegWalk(route domain.Route, trip int, origin string) *legWalk {
	departAt := route.DepartureFor(trip)
	return &legWalk{
		plan: &domain.LegPlan{
			RouteID:    route.ID,
			TripNumber: trip,
			DepartAt:   departAt,
			Stops:      []domain.LegStop{},
		},
		now:      departAt,
		location: origin,
	}
}

func (w *legWalk) arrive(dest string, r ports.DistanceResult, ids []uuid.UUID) {
	w.now = w.now.Add(time.Duration(r.DurationSeconds) * time.Second)
	w.plan.TotalDurationSeconds += r.DurationSeconds
	w.plan.TotalDistanceMeters += r.DistanceMeters
	w.plan.Stops = append(w.plan.Stops, domain.LegStop{Destination: dest, ArriveAt: w.now, AttendeeIDs: ids})
	w.location = dest
}

// finish drops the attendees without a destination at the last stop's time, so the
// plan still covers the whole leg.
func (w *legWalk) finish(unrouted []uuid.UUID) *domain.LegPlan {
	if len(unrouted) > 0 {
		w.plan.Stops = append(w.plan.Stops, domain.LegStop{ArriveAt: w.now, AttendeeIDs: unrouted})
	}
	return w.plan
}

// Plan a leg's drop-offs using a greedy nearest-neighbor walk from origin.
//
// Each step picks the remaining destination with the shortest travel duration from
// the current stop. Attendees sharing a destination share a stop and keep their
// relative order. It does not attempt global optimization.
func PlanLeg(
	route domain.Route,
	trip int,
	origin string,
	leg []uuid.UUID,
	destinations map[uuid.UUID]string,
	table DistanceTable,
) (*domain.LegPlan, error) {
	if origin == "" {
		return nil, errors.New("plan leg: origin must be non-empty")
	}

	order, byDest, unrouted := legStops(leg, destinations)
	w := newLegWalk(route, trip, origin)

	remaining := make(map[string]struct{}, len(order))
	for _, d := range order {
		remaining[d] = struct{}{}
	}

	for len(remaining) > 0 {
		var (
			best       string
			bestResult ports.DistanceResult
		)
		minDuration := math.MaxInt

		for d := range remaining {
			r, ok := table.lookup(w.location, d)
			if !ok {
				return nil, errors.Errorf("plan leg: missing distance result from %q to %q", w.location, d)
			}
			// Tie-breaker keeps the order deterministic when durations are equal.
			if r.DurationSeconds < minDuration || (r.DurationSeconds == minDuration && d < best) {
				minDuration = r.DurationSeconds
				best = d
				bestResult = r
			}
		}

		w.arrive(best, bestResult, byDest[best])
		delete(remaining, best)
	}

	return w.finish(unrouted), nil
}

// TimeLeg computes arrival times for the leg in its current order. Consecutive
// attendees headed to the same destination share a stop.
func TimeLeg(
	route domain.Route,
	trip int,
	origin string,
	leg []uuid.UUID,
	destinations map[uuid.UUID]string,
	table DistanceTable,
) (*domain.LegPlan, error) {
	if origin == "" {
		return nil, errors.New("time leg: origin must be non-empty")
	}

	w := newLegWalk(route, trip, origin)
	var unrouted []uuid.UUID

	for i := 0; i < len(leg); {
		d := strings.TrimSpace(destinations[leg[i]])
		if d == "" {
			unrouted = append(unrouted, leg[i])
			i++
			continue
		}

		ids := []uuid.UUID{leg[i]}
		for i++; i < len(leg) && strings.TrimSpace(destinations[leg[i]]) == d; i++ {
			ids = append(ids, leg[i])
		}

		r, ok := table.lookup(w.location, d)
		if !ok {
			return nil, errors.Errorf("time leg: missing distance result from %q to %q", w.location, d)
		}
		w.arrive(d, r, ids)
	}

	return w.finish(unrouted), nil
}
