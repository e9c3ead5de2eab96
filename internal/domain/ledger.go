package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type legKey struct {
	route uuid.UUID
	trip  int
}

// PickupLedger is the aggregate of all routes and passengers of one venue on one
// business date.
//
// It keeps two invariants after every operation:
//   - within a (route, trip) leg, order indexes are exactly 0..n-1;
//   - an attendee rides at most one route of the ledger (possibly on several legs of it).
//
// A ledger is owned by a single caller for the duration of one operation; it is not
// safe for concurrent use.
type PickupLedger struct {
	VenueID      uuid.UUID
	BusinessDate BusinessDate
	// Version is the optimistic concurrency token of the stored snapshot.
	Version int64

	routes     map[uuid.UUID]*Route
	routeOrder []uuid.UUID
	legs       map[legKey][]uuid.UUID
	assigned   map[uuid.UUID]uuid.UUID
}

func NewPickupLedger(venueID uuid.UUID, date BusinessDate) *PickupLedger {
	return &PickupLedger{
		VenueID:      venueID,
		BusinessDate: date,
		routes:       make(map[uuid.UUID]*Route),
		legs:         make(map[legKey][]uuid.UUID),
		assigned:     make(map[uuid.UUID]uuid.UUID),
	}
}

// RestoreLedger rebuilds a ledger from stored rows. Stored order indexes are compacted
// to a dense sequence keeping their relative order. Rows that reference unknown routes,
// legs out of range, duplicate a leg entry, or place an attendee on two routes are
// rejected.
func RestoreLedger(
	venueID uuid.UUID,
	date BusinessDate,
	version int64,
	routes []Route,
	passengers []Passenger,
) (*PickupLedger, error) {
	l := NewPickupLedger(venueID, date)
	l.Version = version

	for _, r := range routes {
		if err := l.AddRoute(r); err != nil {
			return nil, &AssignmentError{Kind: KindInconsistentSnapshot, RouteID: r.ID, Detail: err.Error()}
		}
	}

	sorted := make([]Passenger, len(passengers))
	copy(sorted, passengers)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RouteID != b.RouteID {
			return l.routeRank(a.RouteID) < l.routeRank(b.RouteID)
		}
		if a.TripNumber != b.TripNumber {
			return a.TripNumber < b.TripNumber
		}
		return a.OrderIndex < b.OrderIndex
	})

	for _, p := range sorted {
		r, ok := l.routes[p.RouteID]
		if !ok {
			return nil, &AssignmentError{
				Kind: KindInconsistentSnapshot, RouteID: p.RouteID, AttendeeID: p.AttendeeID,
				Detail: "passenger references unknown route",
			}
		}
		if !r.HasTrip(p.TripNumber) {
			return nil, &AssignmentError{
				Kind: KindInconsistentSnapshot, RouteID: p.RouteID, AttendeeID: p.AttendeeID,
				TripNumber: p.TripNumber, Detail: "passenger trip out of range",
			}
		}
		if other, ok := l.assigned[p.AttendeeID]; ok && other != p.RouteID {
			return nil, &AssignmentError{
				Kind: KindInconsistentSnapshot, RouteID: p.RouteID, AttendeeID: p.AttendeeID,
				ConflictingRouteID: other, Detail: "attendee assigned to two routes",
			}
		}
		key := legKey{route: p.RouteID, trip: p.TripNumber}
		if indexOf(l.legs[key], p.AttendeeID) >= 0 {
			return nil, &AssignmentError{
				Kind: KindInconsistentSnapshot, RouteID: p.RouteID, AttendeeID: p.AttendeeID,
				TripNumber: p.TripNumber, Detail: "duplicate passenger on leg",
			}
		}

		l.legs[key] = append(l.legs[key], p.AttendeeID)
		l.assigned[p.AttendeeID] = p.RouteID
	}

	return l, nil
}

// AddRoute registers a new route. Its venue and business date are forced to the
// ledger's scope.
func (l *PickupLedger) AddRoute(r Route) error {
	if err := r.validate(); err != nil {
		return err
	}
	if _, ok := l.routes[r.ID]; ok {
		return &AssignmentError{Kind: KindInvalidRoute, RouteID: r.ID, Detail: "route already exists"}
	}

	r.VenueID = l.VenueID
	r.BusinessDate = l.BusinessDate
	l.routes[r.ID] = &r
	l.routeOrder = append(l.routeOrder, r.ID)
	return nil
}

// UpdateRoute replaces the editable attributes of an existing route. When RoundTrips
// shrinks, the legs above the new trip count are dropped and their passengers returned.
// An attendee left on no leg of the route is released.
func (l *PickupLedger) UpdateRoute(r Route) ([]Passenger, error) {
	cur, ok := l.routes[r.ID]
	if !ok {
		return nil, &AssignmentError{Kind: KindRouteNotFound, RouteID: r.ID}
	}
	if err := r.validate(); err != nil {
		return nil, err
	}

	var dropped []Passenger
	for trip := r.TripCount() + 1; trip <= cur.TripCount(); trip++ {
		key := legKey{route: r.ID, trip: trip}
		for i, id := range l.legs[key] {
			dropped = append(dropped, Passenger{RouteID: r.ID, AttendeeID: id, TripNumber: trip, OrderIndex: i})
		}
		delete(l.legs, key)
	}

	r.VenueID = cur.VenueID
	r.BusinessDate = cur.BusinessDate
	r.CreatedAt = cur.CreatedAt
	*cur = r

	for _, p := range dropped {
		if !l.ridesRoute(r.ID, p.AttendeeID) {
			delete(l.assigned, p.AttendeeID)
		}
	}

	return dropped, nil
}

func (l *PickupLedger) Route(id uuid.UUID) (Route, bool) {
	r, ok := l.routes[id]
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// Routes returns the routes in the order they were added.
func (l *PickupLedger) Routes() []Route {
	out := make([]Route, 0, len(l.routeOrder))
	for _, id := range l.routeOrder {
		out = append(out, *l.routes[id])
	}
	return out
}

// FindExistingAssignment reports which route, if any, the attendee rides.
func (l *PickupLedger) FindExistingAssignment(attendeeID uuid.UUID) (uuid.UUID, bool) {
	id, ok := l.assigned[attendeeID]
	return id, ok
}

// AddPassenger appends the attendee to the end of a leg.
//
// Adding an attendee already on that leg is a no-op. An attendee riding a different
// route is rejected with KindAlreadyAssignedElsewhere; the caller confirms with the
// user and then calls MoveAttendee.
func (l *PickupLedger) AddPassenger(routeID, attendeeID uuid.UUID, trip int) error {
	if err := l.checkLeg(routeID, trip); err != nil {
		return err
	}

	if current, ok := l.assigned[attendeeID]; ok && current != routeID {
		return &AssignmentError{
			Kind:               KindAlreadyAssignedElsewhere,
			RouteID:            routeID,
			AttendeeID:         attendeeID,
			TripNumber:         trip,
			ConflictingRouteID: current,
		}
	}

	l.appendToLeg(routeID, attendeeID, trip)
	return nil
}

// RemovePassenger detaches the attendee from every leg of the route.
func (l *PickupLedger) RemovePassenger(routeID, attendeeID uuid.UUID) error {
	if _, ok := l.routes[routeID]; !ok {
		return &AssignmentError{Kind: KindRouteNotFound, RouteID: routeID, AttendeeID: attendeeID}
	}

	l.detach(routeID, attendeeID)
	return nil
}

// MoveAttendee puts the attendee at the end of (toRouteID, toTrip), taking them off
// whichever other route they ride. The destination is validated before anything changes.
func (l *PickupLedger) MoveAttendee(attendeeID, toRouteID uuid.UUID, toTrip int) error {
	if err := l.checkLeg(toRouteID, toTrip); err != nil {
		return err
	}

	if current, ok := l.assigned[attendeeID]; ok && current != toRouteID {
		l.detach(current, attendeeID)
	}

	l.appendToLeg(toRouteID, attendeeID, toTrip)
	return nil
}

// Reorder sets the leg order. ids must be a permutation of the leg's attendees.
func (l *PickupLedger) Reorder(routeID uuid.UUID, trip int, ids []uuid.UUID) error {
	if err := l.checkLeg(routeID, trip); err != nil {
		return err
	}

	key := legKey{route: routeID, trip: trip}
	current := l.legs[key]
	if len(ids) != len(current) {
		return &AssignmentError{
			Kind: KindInvalidPermutation, RouteID: routeID, TripNumber: trip,
			Detail: fmt.Sprintf("got %d ids, leg has %d passengers", len(ids), len(current)),
		}
	}

	members := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		members[id] = false
	}
	for _, id := range ids {
		seen, ok := members[id]
		if !ok {
			return &AssignmentError{
				Kind: KindInvalidPermutation, RouteID: routeID, AttendeeID: id, TripNumber: trip,
				Detail: "attendee is not on this leg",
			}
		}
		if seen {
			return &AssignmentError{
				Kind: KindInvalidPermutation, RouteID: routeID, AttendeeID: id, TripNumber: trip,
				Detail: "attendee listed twice",
			}
		}
		members[id] = true
	}

	next := make([]uuid.UUID, len(ids))
	copy(next, ids)
	if len(next) == 0 {
		delete(l.legs, key)
		return nil
	}
	l.legs[key] = next
	return nil
}

// MoveOneStep swaps the attendee with its neighbour. Moving the first passenger up or
// the last one down changes nothing.
func (l *PickupLedger) MoveOneStep(routeID uuid.UUID, trip int, attendeeID uuid.UUID, dir Direction) error {
	if err := l.checkLeg(routeID, trip); err != nil {
		return err
	}

	leg := l.legs[legKey{route: routeID, trip: trip}]
	i := indexOf(leg, attendeeID)
	if i < 0 {
		return &AssignmentError{Kind: KindPassengerNotFound, RouteID: routeID, AttendeeID: attendeeID, TripNumber: trip}
	}

	j := i - 1
	if dir == Down {
		j = i + 1
	}
	if j < 0 || j >= len(leg) {
		return nil
	}

	leg[i], leg[j] = leg[j], leg[i]
	return nil
}

// DeleteRoute removes the route and every passenger on it.
func (l *PickupLedger) DeleteRoute(routeID uuid.UUID) error {
	r, ok := l.routes[routeID]
	if !ok {
		return &AssignmentError{Kind: KindRouteNotFound, RouteID: routeID}
	}

	for trip := 1; trip <= r.TripCount(); trip++ {
		key := legKey{route: routeID, trip: trip}
		for _, id := range l.legs[key] {
			delete(l.assigned, id)
		}
		delete(l.legs, key)
	}

	delete(l.routes, routeID)
	for i, id := range l.routeOrder {
		if id == routeID {
			l.routeOrder = append(l.routeOrder[:i], l.routeOrder[i+1:]...)
			break
		}
	}
	return nil
}

// CapacityWarnings lists the trips of the route carrying more passengers than its capacity.
func (l *PickupLedger) CapacityWarnings(routeID uuid.UUID) ([]int, error) {
	r, ok := l.routes[routeID]
	if !ok {
		return nil, &AssignmentError{Kind: KindRouteNotFound, RouteID: routeID}
	}

	var trips []int
	for trip := 1; trip <= r.TripCount(); trip++ {
		if len(l.legs[legKey{route: routeID, trip: trip}]) > r.Capacity {
			trips = append(trips, trip)
		}
	}
	return trips, nil
}

// Leg returns the attendees of a leg in pickup order.
func (l *PickupLedger) Leg(routeID uuid.UUID, trip int) []uuid.UUID {
	leg := l.legs[legKey{route: routeID, trip: trip}]
	out := make([]uuid.UUID, len(leg))
	copy(out, leg)
	return out
}

// Passengers returns every passenger of the route, by trip then order.
func (l *PickupLedger) Passengers(routeID uuid.UUID) []Passenger {
	r, ok := l.routes[routeID]
	if !ok {
		return nil
	}

	var out []Passenger
	for trip := 1; trip <= r.TripCount(); trip++ {
		for i, id := range l.legs[legKey{route: routeID, trip: trip}] {
			out = append(out, Passenger{RouteID: routeID, AttendeeID: id, TripNumber: trip, OrderIndex: i})
		}
	}
	return out
}

func (l *PickupLedger) AllPassengers() []Passenger {
	var out []Passenger
	for _, id := range l.routeOrder {
		out = append(out, l.Passengers(id)...)
	}
	return out
}

// Unassigned returns the eligible attendees that ride no route.
func (l *PickupLedger) Unassigned(attendees []Attendee) []Attendee {
	out := make([]Attendee, 0, len(attendees))
	for _, a := range attendees {
		if !a.Eligible() {
			continue
		}
		if _, ok := l.assigned[a.ProfileID]; ok {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (l *PickupLedger) checkLeg(routeID uuid.UUID, trip int) error {
	r, ok := l.routes[routeID]
	if !ok {
		return &AssignmentError{Kind: KindRouteNotFound, RouteID: routeID, TripNumber: trip}
	}
	if !r.HasTrip(trip) {
		return &AssignmentError{
			Kind: KindTripNumberOutOfRange, RouteID: routeID, TripNumber: trip,
			Detail: fmt.Sprintf("route has trips 1-%d", r.TripCount()),
		}
	}
	return nil
}

func (l *PickupLedger) appendToLeg(routeID, attendeeID uuid.UUID, trip int) {
	key := legKey{route: routeID, trip: trip}
	if indexOf(l.legs[key], attendeeID) >= 0 {
		return
	}
	l.legs[key] = append(l.legs[key], attendeeID)
	l.assigned[attendeeID] = routeID
}

func (l *PickupLedger) detach(routeID, attendeeID uuid.UUID) {
	r, ok := l.routes[routeID]
	if !ok {
		return
	}

	for trip := 1; trip <= r.TripCount(); trip++ {
		key := legKey{route: routeID, trip: trip}
		leg := l.legs[key]
		i := indexOf(leg, attendeeID)
		if i < 0 {
			continue
		}
		leg = append(leg[:i], leg[i+1:]...)
		if len(leg) == 0 {
			delete(l.legs, key)
		} else {
			l.legs[key] = leg
		}
	}

	if l.assigned[attendeeID] == routeID {
		delete(l.assigned, attendeeID)
	}
}

func (l *PickupLedger) ridesRoute(routeID, attendeeID uuid.UUID) bool {
	r, ok := l.routes[routeID]
	if !ok {
		return false
	}
	for trip := 1; trip <= r.TripCount(); trip++ {
		if indexOf(l.legs[legKey{route: routeID, trip: trip}], attendeeID) >= 0 {
			return true
		}
	}
	return false
}

func (l *PickupLedger) routeRank(id uuid.UUID) int {
	for i, r := range l.routeOrder {
		if r == id {
			return i
		}
	}
	return len(l.routeOrder)
}

func indexOf(ids []uuid.UUID, id uuid.UUID) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
