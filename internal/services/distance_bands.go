package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// DistanceBandSuggester proposes placements without an LLM. With no distance
// provider every destination counts as equally far and bands follow name order.
type DistanceBandSuggester struct {
	Distances ports.DistanceProvider
}

func (s *DistanceBandSuggester) Suggest(ctx context.Context, req ports.SuggestionRequest) ([]domain.Suggestion, error) {
	byDest := make(map[string][]uuid.UUID)
	for _, a := range req.Attendees {
		if !a.Eligible() {
			continue
		}
		d := strings.TrimSpace(*a.Destination)
		byDest[d] = append(byDest[d], a.ProfileID)
	}

	destinations := make([]string, 0, len(byDest))
	for d := range byDest {
		destinations = append(destinations, d)
	}
	if len(destinations) == 0 {
		return []domain.Suggestion{}, nil
	}

	distances := make(map[string]ports.DistanceResult, len(destinations))
	if s.Distances != nil && req.Venue.Address != "" {
		var err error
		distances, err = DistancesFrom(ctx, s.Distances, req.Venue.Address, destinations, ports.RouteOptions{})
		if err != nil {
			return nil, errors.Wrap(err, "distance bands")
		}
	}

	return SuggestByDistanceBands(req.Routes, req.Passengers, byDest, distances, destinations)
}

// SuggestByDistanceBands spreads attendees across routes using a simple heuristic.
//
// Destinations are sorted by distance from the venue and chunked across routes, so
// each route receives a contiguous band of destinations. Within its route an
// attendee goes to the first leg with a free seat, or to the outbound leg when all
// are full; capacity is advisory and the board reports the overload.
func SuggestByDistanceBands(
	routes []domain.Route,
	passengers []domain.Passenger,
	byDest map[string][]uuid.UUID,
	distances map[string]ports.DistanceResult,
	destinations []string,
) ([]domain.Suggestion, error) {
	if len(routes) == 0 {
		return nil, errors.New("distance bands: route list must not be empty")
	}

	slices.SortFunc(destinations, func(a, b string) int {
		if c := distances[a].DistanceMeters - distances[b].DistanceMeters; c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	load := make(map[uuid.UUID]map[int]int, len(routes))
	for _, rt := range routes {
		load[rt.ID] = make(map[int]int)
	}
	for _, p := range passengers {
		if legs, ok := load[p.RouteID]; ok {
			legs[p.TripNumber]++
		}
	}

	nRoutes := len(routes)
	nDests := len(destinations)

	// Ceiling division: distribute destinations as evenly as possible across routes.
	chunkSize := (nDests + nRoutes - 1) / nRoutes

	out := make([]domain.Suggestion, 0, nDests)
	for ri, rt := range routes {
		start := ri * chunkSize
		if start >= nDests {
			break
		}
		end := min(start+chunkSize, nDests)

		for _, d := range destinations[start:end] {
			for _, id := range byDest[d] {
				trip := 1
				for t := 1; t <= rt.TripCount(); t++ {
					if load[rt.ID][t] < rt.Capacity {
						trip = t
						break
					}
				}
				load[rt.ID][trip]++

				out = append(out, domain.Suggestion{
					AttendeeID: id,
					RouteID:    rt.ID,
					TripNumber: trip,
					Reason:     fmt.Sprintf("distance band %d of %d (%s)", ri+1, nRoutes, d),
				})
			}
		}
	}

	return out, nil
}
