package services

import (
	"context"
	"testing"

	"venue-pickup-service/internal/adapters/maps"
	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSuggestByDistanceBands(t *testing.T) {
	t.Parallel()

	r1 := domain.Route{ID: uuid.New(), Capacity: 2}
	r2 := domain.Route{ID: uuid.New(), Capacity: 1, RoundTrips: 1}
	a, a2, b, c := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	byDest := map[string][]uuid.UUID{"A": {a, a2}, "B": {b}, "C": {c}}
	distances := map[string]ports.DistanceResult{
		"A": {DistanceMeters: 1000},
		"B": {DistanceMeters: 2000},
		"C": {DistanceMeters: 1500},
	}
	// r2's outbound leg already carries someone.
	passengers := []domain.Passenger{{RouteID: r2.ID, AttendeeID: uuid.New(), TripNumber: 1}}

	got, err := SuggestByDistanceBands([]domain.Route{r1, r2}, passengers, byDest, distances, []string{"B", "C", "A"})
	require.NoError(t, err)
	require.Len(t, got, 4)

	require.Equal(t, a, got[0].AttendeeID)
	require.Equal(t, r1.ID, got[0].RouteID)
	require.Equal(t, a2, got[1].AttendeeID)
	require.Equal(t, r1.ID, got[1].RouteID)

	// r1 is full after the A band; C spills past capacity onto trip 1.
	require.Equal(t, c, got[2].AttendeeID)
	require.Equal(t, r1.ID, got[2].RouteID)
	require.Equal(t, 1, got[2].TripNumber)

	require.Equal(t, b, got[3].AttendeeID)
	require.Equal(t, r2.ID, got[3].RouteID)
	require.Equal(t, 2, got[3].TripNumber)
}

func TestSuggestByDistanceBandsNeedsRoutes(t *testing.T) {
	t.Parallel()

	_, err := SuggestByDistanceBands(nil, nil, map[string][]uuid.UUID{"A": {uuid.New()}}, nil, []string{"A"})
	require.Error(t, err)
}

func TestDistanceBandSuggesterWithoutProviderUsesNames(t *testing.T) {
	t.Parallel()

	r1 := domain.Route{ID: uuid.New(), Capacity: 5}
	r2 := domain.Route{ID: uuid.New(), Capacity: 5}
	dest := func(s string) *string { return &s }
	x, y, none := uuid.New(), uuid.New(), uuid.New()

	s := &DistanceBandSuggester{}
	got, err := s.Suggest(context.Background(), ports.SuggestionRequest{
		Routes: []domain.Route{r1, r2},
		Attendees: []domain.Attendee{
			{ProfileID: y, Destination: dest("Yoyogi")},
			{ProfileID: x, Destination: dest("Asakusa")},
			{ProfileID: none},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, x, got[0].AttendeeID)
	require.Equal(t, r1.ID, got[0].RouteID)
	require.Equal(t, y, got[1].AttendeeID)
	require.Equal(t, r2.ID, got[1].RouteID)
}

func TestDistanceBandSuggesterUsesVenueDistances(t *testing.T) {
	t.Parallel()

	r1 := domain.Route{ID: uuid.New(), Capacity: 5}
	r2 := domain.Route{ID: uuid.New(), Capacity: 5}
	dest := func(s string) *string { return &s }
	a, b := uuid.New(), uuid.New()

	s := &DistanceBandSuggester{Distances: maps.NewMockDistanceProvider(hubPairs)}
	got, err := s.Suggest(context.Background(), ports.SuggestionRequest{
		Venue:  domain.Venue{Address: "HUB"},
		Routes: []domain.Route{r1, r2},
		Attendees: []domain.Attendee{
			{ProfileID: b, Destination: dest("B")},
			{ProfileID: a, Destination: dest("A")},
		},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a, got[0].AttendeeID)
	require.Equal(t, r1.ID, got[0].RouteID)
	require.Equal(t, r2.ID, got[1].RouteID)
}
