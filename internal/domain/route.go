package domain

import (
	"time"

	"github.com/google/uuid"
)

// Route is one vehicle/driver assignment for a single business date at a single venue.
// Passengers are held by the PickupLedger, not by the Route.
type Route struct {
	ID           uuid.UUID
	VenueID      uuid.UUID
	BusinessDate BusinessDate
	Label        string
	DriverID     *uuid.UUID
	// RoundTrips counts the return legs after the first outbound leg.
	RoundTrips int
	// Capacity is advisory: overloads are reported, never rejected.
	Capacity       int
	DepartAt       time.Time
	ReturnDepartAt *time.Time
	AvoidHighways  bool
	AvoidTolls     bool
	CreatedAt      time.Time
}

// TripCount is the number of legs the route drives: the outbound leg plus RoundTrips.
func (r Route) TripCount() int { return r.RoundTrips + 1 }

func (r Route) HasTrip(trip int) bool { return trip >= 1 && trip <= r.TripCount() }

// DepartureFor returns the scheduled departure of a leg. Return legs use
// ReturnDepartAt when set.
func (r Route) DepartureFor(trip int) time.Time {
	if trip > 1 && r.ReturnDepartAt != nil {
		return *r.ReturnDepartAt
	}
	return r.DepartAt
}

func (r Route) validate() error {
	switch {
	case r.ID == uuid.Nil:
		return &AssignmentError{Kind: KindInvalidRoute, Detail: "route id must be set"}
	case r.RoundTrips < 0:
		return &AssignmentError{Kind: KindInvalidRoute, RouteID: r.ID, Detail: "round trips must not be negative"}
	case r.Capacity < 1:
		return &AssignmentError{Kind: KindInvalidRoute, RouteID: r.ID, Detail: "capacity must be positive"}
	}
	return nil
}

// Passenger is one attendee's place on one leg of a Route.
type Passenger struct {
	RouteID    uuid.UUID
	AttendeeID uuid.UUID
	// TripNumber 1 is the outbound leg; higher numbers are return legs.
	TripNumber int
	// OrderIndex is the zero-based pickup/drop-off position within the leg.
	OrderIndex int
}

// Direction moves a passenger one position within a leg.
type Direction int

const (
	Up Direction = iota
	Down
)

func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return Up, true
	case "down":
		return Down, true
	}
	return 0, false
}

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}
