package services

import (
	"context"
	"testing"
	"time"

	"venue-pickup-service/internal/adapters/maps"
	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/ports"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var hubPairs = []maps.MockPair{
	{From: "HUB", To: "A", Meters: 1000, Seconds: 300},
	{From: "HUB", To: "B", Meters: 2000, Seconds: 600},
	{From: "HUB", To: "C", Meters: 1500, Seconds: 450},
	{From: "A", To: "B", Meters: 800, Seconds: 240},
	{From: "A", To: "C", Meters: 700, Seconds: 210},
	{From: "B", To: "C", Meters: 900, Seconds: 270},
	{From: "B", To: "A", Meters: 800, Seconds: 240},
	{From: "C", To: "A", Meters: 700, Seconds: 210},
	{From: "C", To: "B", Meters: 900, Seconds: 270},
}

func fetchTable(t *testing.T, dests ...string) DistanceTable {
	t.Helper()
	table, err := FetchDistanceTable(context.Background(), maps.NewMockDistanceProvider(hubPairs), "HUB", dests, ports.RouteOptions{})
	require.NoError(t, err)
	return table
}

func TestPlanLegNearestNeighbor(t *testing.T) {
	t.Parallel()

	a, b, c, c2 := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	dests := map[uuid.UUID]string{a: "A", b: "B", c: "C", c2: " C "}
	depart := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	rt := domain.Route{ID: uuid.New(), Capacity: 4, DepartAt: depart}

	plan, err := PlanLeg(rt, 1, "HUB", []uuid.UUID{b, c, a, c2}, dests, fetchTable(t, "A", "B", "C"))
	require.NoError(t, err)

	require.Len(t, plan.Stops, 3)
	require.Equal(t, "A", plan.Stops[0].Destination)
	require.Equal(t, "C", plan.Stops[1].Destination)
	require.Equal(t, "B", plan.Stops[2].Destination)
	require.Equal(t, []uuid.UUID{c, c2}, plan.Stops[1].AttendeeIDs)

	require.Equal(t, 780, plan.TotalDurationSeconds)
	require.Equal(t, 2600, plan.TotalDistanceMeters)
	require.Equal(t, depart.Add(300*time.Second), plan.Stops[0].ArriveAt)
	require.Equal(t, depart.Add(780*time.Second), plan.Stops[2].ArriveAt)
	require.Equal(t, []uuid.UUID{a, c, c2, b}, plan.Order())
}

func TestPlanLegKeepsAttendeesWithoutDestination(t *testing.T) {
	t.Parallel()

	a, lost := uuid.New(), uuid.New()
	rt := domain.Route{ID: uuid.New(), Capacity: 4, DepartAt: time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)}

	plan, err := PlanLeg(rt, 1, "HUB", []uuid.UUID{lost, a}, map[uuid.UUID]string{a: "A"}, fetchTable(t, "A"))
	require.NoError(t, err)
	require.Len(t, plan.Stops, 2)
	require.Equal(t, "", plan.Stops[1].Destination)
	require.Equal(t, plan.Stops[0].ArriveAt, plan.Stops[1].ArriveAt)
	require.Equal(t, []uuid.UUID{a, lost}, plan.Order())
}

func TestPlanLegEmptyAndMissingDistances(t *testing.T) {
	t.Parallel()

	rt := domain.Route{ID: uuid.New(), Capacity: 4, RoundTrips: 1}
	returnAt := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	rt.ReturnDepartAt = &returnAt

	plan, err := PlanLeg(rt, 2, "HUB", nil, nil, DistanceTable{})
	require.NoError(t, err)
	require.Empty(t, plan.Stops)
	require.Equal(t, returnAt, plan.DepartAt)

	a := uuid.New()
	_, err = PlanLeg(rt, 1, "HUB", []uuid.UUID{a}, map[uuid.UUID]string{a: "Z"}, DistanceTable{})
	require.Error(t, err)

	_, err = PlanLeg(rt, 1, "", nil, nil, DistanceTable{})
	require.Error(t, err)
}

func TestTimeLegFollowsCurrentOrder(t *testing.T) {
	t.Parallel()

	a, b, b2, c := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	dests := map[uuid.UUID]string{a: "A", b: "B", b2: "B", c: "C"}
	depart := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	rt := domain.Route{ID: uuid.New(), Capacity: 4, DepartAt: depart}

	plan, err := TimeLeg(rt, 1, "HUB", []uuid.UUID{b, b2, a, c}, dests, fetchTable(t, "A", "B", "C"))
	require.NoError(t, err)

	require.Len(t, plan.Stops, 3)
	require.Equal(t, []uuid.UUID{b, b2}, plan.Stops[0].AttendeeIDs)
	// HUB->B 600, B->A 240, A->C 210
	require.Equal(t, 1050, plan.TotalDurationSeconds)
	require.Equal(t, 3500, plan.TotalDistanceMeters)
	require.Equal(t, []uuid.UUID{b, b2, a, c}, plan.Order())
}

func TestFetchDistanceTablePropagatesErrors(t *testing.T) {
	t.Parallel()

	_, err := FetchDistanceTable(context.Background(), maps.NewMockDistanceProvider(hubPairs), "HUB", []string{"A", "Nowhere"}, ports.RouteOptions{})
	require.Error(t, err)

	table, err := FetchDistanceTable(context.Background(), maps.NewMockDistanceProvider(nil), "HUB", nil, ports.RouteOptions{})
	require.NoError(t, err)
	require.Empty(t, table)
}
