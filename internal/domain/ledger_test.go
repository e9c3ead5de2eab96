package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testDate = BusinessDate{Year: 2026, Month: time.March, Day: 14}

func newTestLedger(t *testing.T, routes ...Route) *PickupLedger {
	t.Helper()
	l := NewPickupLedger(uuid.New(), testDate)
	for _, r := range routes {
		require.NoError(t, l.AddRoute(r))
	}
	return l
}

func testRoute(roundTrips, capacity int) Route {
	return Route{
		ID:         uuid.New(),
		Label:      "car",
		RoundTrips: roundTrips,
		Capacity:   capacity,
		DepartAt:   time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC),
	}
}

// requireInvariants checks dense ordering on every leg and one route per attendee.
func requireInvariants(t *testing.T, l *PickupLedger) {
	t.Helper()

	owner := map[uuid.UUID]uuid.UUID{}
	for _, r := range l.Routes() {
		for trip := 1; trip <= r.TripCount(); trip++ {
			seen := map[uuid.UUID]bool{}
			indexes := []int{}
			for _, p := range l.Passengers(r.ID) {
				if p.TripNumber != trip {
					continue
				}
				require.False(t, seen[p.AttendeeID], "duplicate on leg")
				seen[p.AttendeeID] = true
				indexes = append(indexes, p.OrderIndex)
			}
			for want, got := range indexes {
				require.Equal(t, want, got, "route %s trip %d", r.ID, trip)
			}
		}
		for _, p := range l.Passengers(r.ID) {
			if prev, ok := owner[p.AttendeeID]; ok {
				require.Equal(t, prev, r.ID, "attendee %s on two routes", p.AttendeeID)
			}
			owner[p.AttendeeID] = r.ID

			got, ok := l.FindExistingAssignment(p.AttendeeID)
			require.True(t, ok)
			require.Equal(t, r.ID, got)
		}
	}
}

func TestAddPassengerAppendsAtEnd(t *testing.T) {
	t.Parallel()

	r := testRoute(0, 4)
	l := newTestLedger(t, r)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	require.NoError(t, l.AddPassenger(r.ID, a, 1))
	require.NoError(t, l.AddPassenger(r.ID, b, 1))
	require.NoError(t, l.AddPassenger(r.ID, c, 1))

	require.Equal(t, []uuid.UUID{a, b, c}, l.Leg(r.ID, 1))
	ps := l.Passengers(r.ID)
	require.Len(t, ps, 3)
	require.Equal(t, 2, ps[2].OrderIndex)
	require.Equal(t, c, ps[2].AttendeeID)
}

func TestAddPassengerIsIdempotent(t *testing.T) {
	t.Parallel()

	r := testRoute(0, 4)
	l := newTestLedger(t, r)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, l.AddPassenger(r.ID, a, 1))
	require.NoError(t, l.AddPassenger(r.ID, b, 1))
	once := l.Passengers(r.ID)

	require.NoError(t, l.AddPassenger(r.ID, b, 1))
	require.NoError(t, l.AddPassenger(r.ID, b, 1))
	require.Equal(t, once, l.Passengers(r.ID))
}

func TestAddPassengerSameRouteSeveralLegs(t *testing.T) {
	t.Parallel()

	r := testRoute(1, 4)
	l := newTestLedger(t, r)
	a := uuid.New()

	require.NoError(t, l.AddPassenger(r.ID, a, 1))
	require.NoError(t, l.AddPassenger(r.ID, a, 2))

	require.Equal(t, []uuid.UUID{a}, l.Leg(r.ID, 1))
	require.Equal(t, []uuid.UUID{a}, l.Leg(r.ID, 2))
	requireInvariants(t, l)
}

func TestAddPassengerValidatesRouteAndTrip(t *testing.T) {
	t.Parallel()

	r := testRoute(1, 4)
	l := newTestLedger(t, r)
	a := uuid.New()

	err := l.AddPassenger(uuid.New(), a, 1)
	require.ErrorIs(t, err, KindRouteNotFound)

	for _, trip := range []int{0, 3, -1} {
		err = l.AddPassenger(r.ID, a, trip)
		require.ErrorIs(t, err, KindTripNumberOutOfRange, "trip %d", trip)
	}

	_, ok := l.FindExistingAssignment(a)
	require.False(t, ok)
}

func TestAddPassengerConflictLeavesLedgerUntouched(t *testing.T) {
	t.Parallel()

	r1, r2 := testRoute(0, 4), testRoute(0, 4)
	l := newTestLedger(t, r1, r2)
	x, y := uuid.New(), uuid.New()
	require.NoError(t, l.AddPassenger(r1.ID, y, 1))
	require.NoError(t, l.AddPassenger(r1.ID, x, 1))
	before := l.Passengers(r1.ID)

	err := l.AddPassenger(r2.ID, x, 1)
	require.ErrorIs(t, err, KindAlreadyAssignedElsewhere)

	conflicting, ok := ConflictingRoute(err)
	require.True(t, ok)
	require.Equal(t, r1.ID, conflicting)

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindAlreadyAssignedElsewhere, kind)

	require.Equal(t, before, l.Passengers(r1.ID))
	require.Empty(t, l.Passengers(r2.ID))
}

func TestMoveAttendeeAfterConflict(t *testing.T) {
	t.Parallel()

	r1, r2 := testRoute(0, 4), testRoute(0, 4)
	l := newTestLedger(t, r1, r2)
	a, x, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, l.AddPassenger(r1.ID, a, 1))
	require.NoError(t, l.AddPassenger(r1.ID, x, 1))
	require.NoError(t, l.AddPassenger(r1.ID, c, 1))
	require.NoError(t, l.AddPassenger(r2.ID, d, 1))

	require.ErrorIs(t, l.AddPassenger(r2.ID, x, 1), KindAlreadyAssignedElsewhere)
	require.NoError(t, l.MoveAttendee(x, r2.ID, 1))

	require.Equal(t, []uuid.UUID{a, c}, l.Leg(r1.ID, 1))
	require.Equal(t, []uuid.UUID{d, x}, l.Leg(r2.ID, 1))

	ps := l.Passengers(r2.ID)
	require.Equal(t, 1, ps[1].OrderIndex)

	got, ok := l.FindExistingAssignment(x)
	require.True(t, ok)
	require.Equal(t, r2.ID, got)
	requireInvariants(t, l)
}

func TestMoveAttendeeRemovesFromEveryLegOfOldRoute(t *testing.T) {
	t.Parallel()

	r1, r2 := testRoute(1, 4), testRoute(0, 4)
	l := newTestLedger(t, r1, r2)
	x, y := uuid.New(), uuid.New()
	require.NoError(t, l.AddPassenger(r1.ID, x, 1))
	require.NoError(t, l.AddPassenger(r1.ID, y, 2))
	require.NoError(t, l.AddPassenger(r1.ID, x, 2))

	require.NoError(t, l.MoveAttendee(x, r2.ID, 1))
	require.Empty(t, l.Leg(r1.ID, 1))
	require.Equal(t, []uuid.UUID{y}, l.Leg(r1.ID, 2))
	require.Equal(t, []uuid.UUID{x}, l.Leg(r2.ID, 1))
	requireInvariants(t, l)
}

func TestMoveAttendeeInvalidTargetChangesNothing(t *testing.T) {
	t.Parallel()

	r1, r2 := testRoute(0, 4), testRoute(0, 4)
	l := newTestLedger(t, r1, r2)
	x := uuid.New()
	require.NoError(t, l.AddPassenger(r1.ID, x, 1))

	require.ErrorIs(t, l.MoveAttendee(x, r2.ID, 2), KindTripNumberOutOfRange)
	require.ErrorIs(t, l.MoveAttendee(x, uuid.New(), 1), KindRouteNotFound)
	require.Equal(t, []uuid.UUID{x}, l.Leg(r1.ID, 1))
}

func TestMoveAttendeeUnassignedBehavesLikeAdd(t *testing.T) {
	t.Parallel()

	r := testRoute(1, 4)
	l := newTestLedger(t, r)
	x := uuid.New()

	require.NoError(t, l.MoveAttendee(x, r.ID, 2))
	require.Equal(t, []uuid.UUID{x}, l.Leg(r.ID, 2))

	// Moving within the same route adds the other leg and keeps the first.
	require.NoError(t, l.MoveAttendee(x, r.ID, 1))
	require.Equal(t, []uuid.UUID{x}, l.Leg(r.ID, 1))
	require.Equal(t, []uuid.UUID{x}, l.Leg(r.ID, 2))
}

func TestRemovePassengerReindexes(t *testing.T) {
	t.Parallel()

	r := testRoute(1, 4)
	l := newTestLedger(t, r)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b, c} {
		require.NoError(t, l.AddPassenger(r.ID, id, 1))
	}
	require.NoError(t, l.AddPassenger(r.ID, c, 2))
	require.NoError(t, l.AddPassenger(r.ID, b, 2))

	require.NoError(t, l.RemovePassenger(r.ID, b))

	require.Equal(t, []uuid.UUID{a, c}, l.Leg(r.ID, 1))
	require.Equal(t, []uuid.UUID{c}, l.Leg(r.ID, 2))
	_, ok := l.FindExistingAssignment(b)
	require.False(t, ok)
	requireInvariants(t, l)

	// Absent attendee is a no-op; unknown route is not.
	require.NoError(t, l.RemovePassenger(r.ID, uuid.New()))
	require.ErrorIs(t, l.RemovePassenger(uuid.New(), a), KindRouteNotFound)
}

func TestReorder(t *testing.T) {
	t.Parallel()

	r := testRoute(0, 4)
	l := newTestLedger(t, r)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b, c} {
		require.NoError(t, l.AddPassenger(r.ID, id, 1))
	}

	require.NoError(t, l.Reorder(r.ID, 1, []uuid.UUID{c, a, b}))
	require.Equal(t, []uuid.UUID{c, a, b}, l.Leg(r.ID, 1))

	cases := map[string][]uuid.UUID{
		"missing":    {c, a},
		"extraneous": {c, a, b, uuid.New()},
		"foreign":    {c, a, uuid.New()},
		"duplicate":  {c, a, a},
	}
	for name, ids := range cases {
		err := l.Reorder(r.ID, 1, ids)
		require.ErrorIs(t, err, KindInvalidPermutation, name)
	}
	require.Equal(t, []uuid.UUID{c, a, b}, l.Leg(r.ID, 1))

	require.NoError(t, l.Reorder(r.ID, 1, []uuid.UUID{a, b, c}))
	require.ErrorIs(t, l.Reorder(r.ID, 2, nil), KindTripNumberOutOfRange)
}

func TestMoveOneStep(t *testing.T) {
	t.Parallel()

	r := testRoute(0, 4)
	l := newTestLedger(t, r)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{a, b, c} {
		require.NoError(t, l.AddPassenger(r.ID, id, 1))
	}

	require.NoError(t, l.MoveOneStep(r.ID, 1, c, Up))
	require.Equal(t, []uuid.UUID{a, c, b}, l.Leg(r.ID, 1))
	ps := l.Passengers(r.ID)
	require.Equal(t, []int{0, 1, 2}, []int{ps[0].OrderIndex, ps[1].OrderIndex, ps[2].OrderIndex})

	require.NoError(t, l.MoveOneStep(r.ID, 1, a, Up))
	require.Equal(t, []uuid.UUID{a, c, b}, l.Leg(r.ID, 1))

	require.NoError(t, l.MoveOneStep(r.ID, 1, b, Down))
	require.Equal(t, []uuid.UUID{a, c, b}, l.Leg(r.ID, 1))

	require.NoError(t, l.MoveOneStep(r.ID, 1, a, Down))
	require.Equal(t, []uuid.UUID{c, a, b}, l.Leg(r.ID, 1))

	require.ErrorIs(t, l.MoveOneStep(r.ID, 1, uuid.New(), Up), KindPassengerNotFound)
}

func TestDeleteRouteCascades(t *testing.T) {
	t.Parallel()

	r, other := testRoute(1, 4), testRoute(0, 4)
	l := newTestLedger(t, r, other)
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, l.AddPassenger(r.ID, a, 1))
	require.NoError(t, l.AddPassenger(r.ID, b, 2))
	require.NoError(t, l.AddPassenger(r.ID, a, 2))
	require.NoError(t, l.AddPassenger(other.ID, c, 1))

	require.NoError(t, l.DeleteRoute(r.ID))

	for _, id := range []uuid.UUID{a, b} {
		_, ok := l.FindExistingAssignment(id)
		require.False(t, ok)
	}
	_, ok := l.Route(r.ID)
	require.False(t, ok)
	require.Empty(t, l.Passengers(r.ID))
	require.Len(t, l.Routes(), 1)
	require.Len(t, l.AllPassengers(), 1)

	require.ErrorIs(t, l.DeleteRoute(r.ID), KindRouteNotFound)

	// Freed attendees can join another route without a conflict.
	require.NoError(t, l.AddPassenger(other.ID, a, 1))
}

func TestCapacityWarnings(t *testing.T) {
	t.Parallel()

	r := testRoute(1, 2)
	l := newTestLedger(t, r)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.AddPassenger(r.ID, uuid.New(), 1))
	}
	require.NoError(t, l.AddPassenger(r.ID, uuid.New(), 2))

	trips, err := l.CapacityWarnings(r.ID)
	require.NoError(t, err)
	require.Equal(t, []int{1}, trips)

	_, err = l.CapacityWarnings(uuid.New())
	require.ErrorIs(t, err, KindRouteNotFound)
}

func TestAddAndUpdateRoute(t *testing.T) {
	t.Parallel()

	l := newTestLedger(t)
	r := testRoute(2, 4)
	require.NoError(t, l.AddRoute(r))
	require.ErrorIs(t, l.AddRoute(r), KindInvalidRoute)

	bad := testRoute(0, 0)
	require.ErrorIs(t, l.AddRoute(bad), KindInvalidRoute)
	bad = testRoute(-1, 3)
	require.ErrorIs(t, l.AddRoute(bad), KindInvalidRoute)

	stored, ok := l.Route(r.ID)
	require.True(t, ok)
	require.Equal(t, l.VenueID, stored.VenueID)
	require.Equal(t, testDate, stored.BusinessDate)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, l.AddPassenger(r.ID, a, 1))
	require.NoError(t, l.AddPassenger(r.ID, a, 3))
	require.NoError(t, l.AddPassenger(r.ID, b, 3))

	r.RoundTrips = 0
	r.Label = "van"
	dropped, err := l.UpdateRoute(r)
	require.NoError(t, err)
	require.Len(t, dropped, 2)

	_, ok = l.FindExistingAssignment(b)
	require.False(t, ok)
	got, ok := l.FindExistingAssignment(a)
	require.True(t, ok)
	require.Equal(t, r.ID, got)

	stored, _ = l.Route(r.ID)
	require.Equal(t, "van", stored.Label)
	require.Equal(t, 1, stored.TripCount())
	requireInvariants(t, l)

	_, err = l.UpdateRoute(testRoute(0, 1))
	require.ErrorIs(t, err, KindRouteNotFound)
}

func TestUnassigned(t *testing.T) {
	t.Parallel()

	r := testRoute(0, 4)
	l := newTestLedger(t, r)
	dest := "Shibuya 1-2-3"
	blank := "  "
	riding := Attendee{ProfileID: uuid.New(), Destination: &dest}
	waiting := Attendee{ProfileID: uuid.New(), Destination: &dest}
	noDest := Attendee{ProfileID: uuid.New()}
	blankDest := Attendee{ProfileID: uuid.New(), Destination: &blank}
	require.NoError(t, l.AddPassenger(r.ID, riding.ProfileID, 1))

	got := l.Unassigned([]Attendee{riding, waiting, noDest, blankDest})
	require.Equal(t, []Attendee{waiting}, got)
}

func TestRestoreLedger(t *testing.T) {
	t.Parallel()

	venue := uuid.New()
	r1, r2 := testRoute(1, 4), testRoute(0, 4)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	// Stored indexes with gaps and out of order.
	rows := []Passenger{
		{RouteID: r1.ID, AttendeeID: b, TripNumber: 1, OrderIndex: 7},
		{RouteID: r1.ID, AttendeeID: a, TripNumber: 1, OrderIndex: 2},
		{RouteID: r1.ID, AttendeeID: a, TripNumber: 2, OrderIndex: 0},
		{RouteID: r2.ID, AttendeeID: c, TripNumber: 1, OrderIndex: 3},
	}
	l, err := RestoreLedger(venue, testDate, 9, []Route{r1, r2}, rows)
	require.NoError(t, err)
	require.Equal(t, int64(9), l.Version)
	require.Equal(t, []uuid.UUID{a, b}, l.Leg(r1.ID, 1))
	require.Equal(t, []uuid.UUID{a}, l.Leg(r1.ID, 2))
	require.Equal(t, []uuid.UUID{c}, l.Leg(r2.ID, 1))
	requireInvariants(t, l)

	bad := append(rows, Passenger{RouteID: r2.ID, AttendeeID: a, TripNumber: 1})
	_, err = RestoreLedger(venue, testDate, 1, []Route{r1, r2}, bad)
	require.ErrorIs(t, err, KindInconsistentSnapshot)

	_, err = RestoreLedger(venue, testDate, 1, []Route{r1}, rows)
	require.ErrorIs(t, err, KindInconsistentSnapshot)

	_, err = RestoreLedger(venue, testDate, 1, []Route{r2}, []Passenger{{RouteID: r2.ID, AttendeeID: a, TripNumber: 2}})
	require.ErrorIs(t, err, KindInconsistentSnapshot)
}

func TestRandomOperationSequencesKeepInvariants(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(2026))
	routes := []Route{testRoute(0, 3), testRoute(1, 3), testRoute(2, 2)}
	l := newTestLedger(t, routes...)

	people := make([]uuid.UUID, 12)
	for i := range people {
		people[i] = uuid.New()
	}

	for step := 0; step < 3000; step++ {
		route := routes[r.Intn(len(routes))]
		person := people[r.Intn(len(people))]
		trip := r.Intn(route.TripCount()+1) + 1 // occasionally out of range

		switch r.Intn(5) {
		case 0:
			_ = l.AddPassenger(route.ID, person, trip)
		case 1:
			_ = l.RemovePassenger(route.ID, person)
		case 2:
			_ = l.MoveAttendee(person, route.ID, trip)
		case 3:
			leg := l.Leg(route.ID, trip)
			r.Shuffle(len(leg), func(i, j int) { leg[i], leg[j] = leg[j], leg[i] })
			_ = l.Reorder(route.ID, trip, leg)
		case 4:
			dir := Up
			if r.Intn(2) == 1 {
				dir = Down
			}
			_ = l.MoveOneStep(route.ID, trip, person, dir)
		}

		requireInvariants(t, l)
	}
}
